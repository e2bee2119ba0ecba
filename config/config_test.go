package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_CreatesDefaultFileWhenMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.FileExists(t, path)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"motion": {"start_ratio": 0.05}, "recording": {"clip_directory": "/tmp/clips"}}`), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.Motion.StartRatio)
	assert.Equal(t, 0.005, cfg.Motion.StopRatio)
	assert.Equal(t, 3, cfg.Motion.StartPersistenceFrames)
	assert.Equal(t, "/tmp/clips", cfg.Recording.ClipDirectory)
	assert.Equal(t, 2.0, cfg.Recording.PrerollSeconds)
	assert.Equal(t, []string{"mp4v", "avc1", "MJPG"}, cfg.Recording.Codecs)
}

func TestLoadConfig_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yamlDoc := `
camera_devices: ["rtsp://doorbell.local/stream"]
recording:
  postroll_seconds: 4.5
  auto_mode_enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"rtsp://doorbell.local/stream"}, cfg.CameraDevices)
	assert.Equal(t, 4.5, cfg.Recording.PostrollSeconds)
	assert.False(t, cfg.Recording.AutoModeEnabled)
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"recording": {"preroll_seconds": 1}}`), 0600))
	t.Setenv("DOORBELL_RECORDING_PREROLL_SECONDS", "5")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 5.0, cfg.Recording.PrerollSeconds)
}

func TestLoadConfig_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json}`), 0600))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfig_RoundTripsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")
	cfg := DefaultConfig()
	cfg.Storage.StorageLimitMegabytes = 2048

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "start equals stop", mutate: func(c *Config) { c.Motion.StopRatio = c.Motion.StartRatio }, wantErr: true},
		{name: "start below stop", mutate: func(c *Config) { c.Motion.StartRatio = 0.001 }, wantErr: true},
		{name: "ratio above one", mutate: func(c *Config) { c.Motion.StartRatio = 1.5 }, wantErr: true},
		{name: "zero persistence", mutate: func(c *Config) { c.Motion.StartPersistenceFrames = 0 }, wantErr: true},
		{name: "negative preroll", mutate: func(c *Config) { c.Recording.PrerollSeconds = -1 }, wantErr: true},
		{name: "negative postroll", mutate: func(c *Config) { c.Recording.PostrollSeconds = -0.5 }, wantErr: true},
		{name: "empty clip directory", mutate: func(c *Config) { c.Recording.ClipDirectory = "" }, wantErr: true},
		{name: "storage warning above one", mutate: func(c *Config) { c.Notifications.StorageWarningThreshold = 1.2 }, wantErr: true},
		{name: "bogus fallback fps is tolerated", mutate: func(c *Config) { c.FallbackFrameRate = -3 }},
		{name: "zero durations are allowed", mutate: func(c *Config) {
			c.Recording.PrerollSeconds = 0
			c.Recording.PostrollSeconds = 0
			c.Motion.QuietSecondsToStop = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestOverride(t *testing.T) {
	cfg := DefaultConfig()

	device := "/dev/video2"
	empty := ""
	auto := false
	preroll := 3.5
	addr := ":9000"

	cfg.Override(ConfigOverrides{
		CameraDevice:    &device,
		FrameSize:       &empty,
		AutoModeEnabled: &auto,
		PrerollSeconds:  &preroll,
		HTTPAddr:        &addr,
	})

	assert.Equal(t, []string{"/dev/video2"}, cfg.CameraDevices)
	assert.Equal(t, "1280x720", cfg.FrameSize, "empty override must not clear the value")
	assert.False(t, cfg.Recording.AutoModeEnabled)
	assert.Equal(t, 3.5, cfg.Recording.PrerollSeconds)
	assert.Equal(t, ":9000", cfg.Control.HTTPAddr)
	assert.True(t, cfg.Control.HTTPEnabled)
}

func TestStaticSettingsProvider(t *testing.T) {
	p := NewStaticSettingsProvider(Config{FrameSize: "640x480"})
	assert.Equal(t, "640x480", p.GetSettings().FrameSize)
}

func TestNotificationsConfig_Enabled(t *testing.T) {
	n := DefaultConfig().Notifications
	assert.False(t, n.Enabled())

	n.SMTPHost = "mail.example.com"
	assert.False(t, n.Enabled())

	n.Recipient = "owner@example.com"
	assert.True(t, n.Enabled())
}
