package postprocessing

import (
	"github.com/Kim-Ziho/doorbell-camera/config"
	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/resolution"
)

type PostProcessingSettings struct {
	Enabled             bool       // Whether closed clips are transcoded at all
	OutputFormat        string     // Output container format (e.g., "mp4", "avi")
	OutputCodec         string     // ffmpeg encoder to use (e.g., "libx264")
	VideoBitRate        string     // Bitrate for video compression (e.g., "1000k")
	Grayscale           bool       // Whether to convert video to grayscale
	DownscaleResolution frame.Size // Size to downscale video to, empty keeps the capture size
	KeepRaw             bool       // Keep the capture file next to the transcoded one
}

// PostProcessingSettingsProvider implements SettingsProvider for PostProcessingSettings
type PostProcessingSettingsProvider struct {
	configProvider config.SettingsProvider[config.Config]
}

func NewPostProcessingSettingsProvider(configProvider config.SettingsProvider[config.Config]) *PostProcessingSettingsProvider {
	return &PostProcessingSettingsProvider{
		configProvider: configProvider,
	}
}

// GetSettings returns the current post-processing settings mapped from the application config
func (p *PostProcessingSettingsProvider) GetSettings() PostProcessingSettings {
	pp := p.configProvider.GetSettings().PostProcessing

	// Parse the downscale resolution string, fallback to empty size if parsing fails
	downscale := resolution.ParseOr(pp.DownscaleResolution, frame.Size{})

	return PostProcessingSettings{
		Enabled:             pp.Enabled,
		OutputFormat:        pp.OutputFormat,
		OutputCodec:         pp.OutputCodec,
		VideoBitRate:        pp.VideoBitRate,
		Grayscale:           pp.Grayscale,
		DownscaleResolution: downscale,
		KeepRaw:             pp.KeepRaw,
	}
}
