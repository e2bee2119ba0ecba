package clipwriter

import (
	"time"

	"github.com/Kim-Ziho/doorbell-camera/config"
)

type ClipWriterSettings struct {
	Directory string
	Ladder    []Codec
	Async     AsyncWriterSettings
}

// ClipWriterSettingsProvider implements SettingsProvider for ClipWriterSettings
type ClipWriterSettingsProvider struct {
	configProvider config.SettingsProvider[config.Config]
}

func NewClipWriterSettingsProvider(configProvider config.SettingsProvider[config.Config]) *ClipWriterSettingsProvider {
	return &ClipWriterSettingsProvider{configProvider: configProvider}
}

// GetSettings returns the clip writer settings mapped from the application config
func (p *ClipWriterSettingsProvider) GetSettings() ClipWriterSettings {
	rec := p.configProvider.GetSettings().Recording

	async := DefaultAsyncWriterSettings
	if rec.WriteQueueSize > 0 {
		async.QueueSize = rec.WriteQueueSize
	}
	if rec.WriteTimeoutMillis >= 0 {
		async.WriteTimeout = time.Duration(rec.WriteTimeoutMillis) * time.Millisecond
	}

	dir := rec.ClipDirectory
	if dir == "" {
		dir = "records"
	}

	return ClipWriterSettings{
		Directory: dir,
		Ladder:    CodecLadder(rec.Codecs),
		Async:     async,
	}
}
