package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes environment variables that override config keys,
// e.g. DOORBELL_RECORDING_PREROLL_SECONDS.
const EnvPrefix = "DOORBELL"

// Config holds the application configuration
type Config struct {
	CameraDevices     []string `mapstructure:"camera_devices" json:"camera_devices" yaml:"camera_devices"` // device indices or stream URLs, tried in order
	FrameSize         string   `mapstructure:"frame_size" json:"frame_size" yaml:"frame_size"`             // requested capture size, e.g. "1280x720" or "720p"
	FallbackFrameRate float64  `mapstructure:"fallback_frame_rate" json:"fallback_frame_rate" yaml:"fallback_frame_rate"`

	Motion         MotionConfig         `mapstructure:"motion" json:"motion" yaml:"motion"`
	Recording      RecordingConfig      `mapstructure:"recording" json:"recording" yaml:"recording"`
	PostProcessing PostProcessingConfig `mapstructure:"post_processing" json:"post_processing" yaml:"post_processing"`
	Storage        StorageConfig        `mapstructure:"storage" json:"storage" yaml:"storage"`
	Control        ControlConfig        `mapstructure:"control" json:"control" yaml:"control"`
	Notifications  NotificationsConfig  `mapstructure:"notifications" json:"notifications" yaml:"notifications"`
	Logging        LoggingConfig        `mapstructure:"logging" json:"logging" yaml:"logging"`
}

type MotionConfig struct {
	StartRatio             float64 `mapstructure:"start_ratio" json:"start_ratio" yaml:"start_ratio"`
	StopRatio              float64 `mapstructure:"stop_ratio" json:"stop_ratio" yaml:"stop_ratio"`
	StartPersistenceFrames int     `mapstructure:"start_persistence_frames" json:"start_persistence_frames" yaml:"start_persistence_frames"`
	QuietSecondsToStop     float64 `mapstructure:"quiet_seconds_to_stop" json:"quiet_seconds_to_stop" yaml:"quiet_seconds_to_stop"`

	// background subtractor tuning
	MogHistory      int     `mapstructure:"mog_history" json:"mog_history" yaml:"mog_history"`
	MogVarThreshold float64 `mapstructure:"mog_var_threshold" json:"mog_var_threshold" yaml:"mog_var_threshold"`
	DetectShadows   bool    `mapstructure:"detect_shadows" json:"detect_shadows" yaml:"detect_shadows"`
	BlurKernelSize  int     `mapstructure:"blur_kernel_size" json:"blur_kernel_size" yaml:"blur_kernel_size"`
	BinaryThreshold float64 `mapstructure:"binary_threshold" json:"binary_threshold" yaml:"binary_threshold"`
	MinRegionArea   float64 `mapstructure:"min_region_area" json:"min_region_area" yaml:"min_region_area"`
}

type RecordingConfig struct {
	PrerollSeconds     float64  `mapstructure:"preroll_seconds" json:"preroll_seconds" yaml:"preroll_seconds"`
	PostrollSeconds    float64  `mapstructure:"postroll_seconds" json:"postroll_seconds" yaml:"postroll_seconds"`
	AutoModeEnabled    bool     `mapstructure:"auto_mode_enabled" json:"auto_mode_enabled" yaml:"auto_mode_enabled"`
	ClipDirectory      string   `mapstructure:"clip_directory" json:"clip_directory" yaml:"clip_directory"`
	Codecs             []string `mapstructure:"codecs" json:"codecs" yaml:"codecs"` // fourcc ladder, first that opens wins
	WriteQueueSize     int      `mapstructure:"write_queue_size" json:"write_queue_size" yaml:"write_queue_size"`
	WriteTimeoutMillis int      `mapstructure:"write_timeout_millis" json:"write_timeout_millis" yaml:"write_timeout_millis"`
}

type PostProcessingConfig struct {
	Enabled             bool   `mapstructure:"enabled" json:"enabled" yaml:"enabled"`
	OutputFormat        string `mapstructure:"output_format" json:"output_format" yaml:"output_format"`
	OutputCodec         string `mapstructure:"output_codec" json:"output_codec" yaml:"output_codec"`
	VideoBitRate        string `mapstructure:"video_bit_rate" json:"video_bit_rate" yaml:"video_bit_rate"`
	Grayscale           bool   `mapstructure:"grayscale" json:"grayscale" yaml:"grayscale"`
	DownscaleResolution string `mapstructure:"downscale_resolution" json:"downscale_resolution" yaml:"downscale_resolution"`
	KeepRaw             bool   `mapstructure:"keep_raw" json:"keep_raw" yaml:"keep_raw"`
}

type StorageConfig struct {
	DatabasePath          string `mapstructure:"database_path" json:"database_path" yaml:"database_path"`
	StorageLimitMegabytes int    `mapstructure:"storage_limit_megabytes" json:"storage_limit_megabytes" yaml:"storage_limit_megabytes"` // 0 disables retention
	EncryptionPassphrase  string `mapstructure:"encryption_passphrase" json:"encryption_passphrase" yaml:"encryption_passphrase"`       // empty disables encryption
	ArchiveQueueSize      int    `mapstructure:"archive_queue_size" json:"archive_queue_size" yaml:"archive_queue_size"`
	DrainTimeoutSeconds   int    `mapstructure:"drain_timeout_seconds" json:"drain_timeout_seconds" yaml:"drain_timeout_seconds"`
}

type ControlConfig struct {
	KeyboardEnabled bool   `mapstructure:"keyboard_enabled" json:"keyboard_enabled" yaml:"keyboard_enabled"`
	HTTPEnabled     bool   `mapstructure:"http_enabled" json:"http_enabled" yaml:"http_enabled"`
	HTTPAddr        string `mapstructure:"http_addr" json:"http_addr" yaml:"http_addr"`
}

// NotificationsConfig configures e-mail alerts. They stay off until SMTPHost and Recipient are set.
type NotificationsConfig struct {
	SMTPHost                  string  `mapstructure:"smtp_host" json:"smtp_host" yaml:"smtp_host"`
	SMTPPort                  int     `mapstructure:"smtp_port" json:"smtp_port" yaml:"smtp_port"`
	SMTPUsername              string  `mapstructure:"smtp_username" json:"smtp_username" yaml:"smtp_username"`
	SMTPPassword              string  `mapstructure:"smtp_password" json:"smtp_password" yaml:"smtp_password"`
	SMTPFrom                  string  `mapstructure:"smtp_from" json:"smtp_from" yaml:"smtp_from"`
	Recipient                 string  `mapstructure:"recipient" json:"recipient" yaml:"recipient"`
	MotionMinIntervalMinutes  int     `mapstructure:"motion_min_interval_minutes" json:"motion_min_interval_minutes" yaml:"motion_min_interval_minutes"`
	StorageMinIntervalMinutes int     `mapstructure:"storage_min_interval_minutes" json:"storage_min_interval_minutes" yaml:"storage_min_interval_minutes"`
	StorageWarningThreshold   float64 `mapstructure:"storage_warning_threshold" json:"storage_warning_threshold" yaml:"storage_warning_threshold"` // fraction of the storage limit
}

// Enabled reports whether enough is configured to send mail
func (n NotificationsConfig) Enabled() bool {
	return n.SMTPHost != "" && n.Recipient != ""
}

type LoggingConfig struct {
	LogLevel string `mapstructure:"log_level" json:"log_level" yaml:"log_level"`
	LogPath  string `mapstructure:"log_path" json:"log_path" yaml:"log_path"` // directory for rotating log files, empty logs to stderr
}

// DefaultConfig returns the configuration written when no config file exists
func DefaultConfig() *Config {
	return &Config{
		CameraDevices:     []string{"0", "1"},
		FrameSize:         "1280x720",
		FallbackFrameRate: 30.0,
		Motion: MotionConfig{
			StartRatio:             0.015,
			StopRatio:              0.005,
			StartPersistenceFrames: 3,
			QuietSecondsToStop:     2.0,
			MogHistory:             500,
			MogVarThreshold:        16.0,
			DetectShadows:          true,
			BlurKernelSize:         5,
			BinaryThreshold:        200,
			MinRegionArea:          200,
		},
		Recording: RecordingConfig{
			PrerollSeconds:     2.0,
			PostrollSeconds:    2.0,
			AutoModeEnabled:    true,
			ClipDirectory:      "records",
			Codecs:             []string{"mp4v", "avc1", "MJPG"},
			WriteQueueSize:     120,
			WriteTimeoutMillis: 500,
		},
		PostProcessing: PostProcessingConfig{
			Enabled:      false,
			OutputFormat: "mp4",
			OutputCodec:  "libx264",
			VideoBitRate: "1000k",
			KeepRaw:      false,
		},
		Storage: StorageConfig{
			DatabasePath:        "clips.db",
			ArchiveQueueSize:    16,
			DrainTimeoutSeconds: 30,
		},
		Control: ControlConfig{
			KeyboardEnabled: true,
			HTTPEnabled:     false,
			HTTPAddr:        "127.0.0.1:8090",
		},
		Notifications: NotificationsConfig{
			SMTPPort:                  587,
			MotionMinIntervalMinutes:  10,
			StorageMinIntervalMinutes: 60,
			StorageWarningThreshold:   0.9,
		},
		Logging: LoggingConfig{
			LogLevel: "info",
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("camera_devices", d.CameraDevices)
	v.SetDefault("frame_size", d.FrameSize)
	v.SetDefault("fallback_frame_rate", d.FallbackFrameRate)

	v.SetDefault("motion.start_ratio", d.Motion.StartRatio)
	v.SetDefault("motion.stop_ratio", d.Motion.StopRatio)
	v.SetDefault("motion.start_persistence_frames", d.Motion.StartPersistenceFrames)
	v.SetDefault("motion.quiet_seconds_to_stop", d.Motion.QuietSecondsToStop)
	v.SetDefault("motion.mog_history", d.Motion.MogHistory)
	v.SetDefault("motion.mog_var_threshold", d.Motion.MogVarThreshold)
	v.SetDefault("motion.detect_shadows", d.Motion.DetectShadows)
	v.SetDefault("motion.blur_kernel_size", d.Motion.BlurKernelSize)
	v.SetDefault("motion.binary_threshold", d.Motion.BinaryThreshold)
	v.SetDefault("motion.min_region_area", d.Motion.MinRegionArea)

	v.SetDefault("recording.preroll_seconds", d.Recording.PrerollSeconds)
	v.SetDefault("recording.postroll_seconds", d.Recording.PostrollSeconds)
	v.SetDefault("recording.auto_mode_enabled", d.Recording.AutoModeEnabled)
	v.SetDefault("recording.clip_directory", d.Recording.ClipDirectory)
	v.SetDefault("recording.codecs", d.Recording.Codecs)
	v.SetDefault("recording.write_queue_size", d.Recording.WriteQueueSize)
	v.SetDefault("recording.write_timeout_millis", d.Recording.WriteTimeoutMillis)

	v.SetDefault("post_processing.enabled", d.PostProcessing.Enabled)
	v.SetDefault("post_processing.output_format", d.PostProcessing.OutputFormat)
	v.SetDefault("post_processing.output_codec", d.PostProcessing.OutputCodec)
	v.SetDefault("post_processing.video_bit_rate", d.PostProcessing.VideoBitRate)
	v.SetDefault("post_processing.grayscale", d.PostProcessing.Grayscale)
	v.SetDefault("post_processing.downscale_resolution", d.PostProcessing.DownscaleResolution)
	v.SetDefault("post_processing.keep_raw", d.PostProcessing.KeepRaw)

	v.SetDefault("storage.database_path", d.Storage.DatabasePath)
	v.SetDefault("storage.storage_limit_megabytes", d.Storage.StorageLimitMegabytes)
	v.SetDefault("storage.encryption_passphrase", d.Storage.EncryptionPassphrase)
	v.SetDefault("storage.archive_queue_size", d.Storage.ArchiveQueueSize)
	v.SetDefault("storage.drain_timeout_seconds", d.Storage.DrainTimeoutSeconds)

	v.SetDefault("control.keyboard_enabled", d.Control.KeyboardEnabled)
	v.SetDefault("control.http_enabled", d.Control.HTTPEnabled)
	v.SetDefault("control.http_addr", d.Control.HTTPAddr)

	v.SetDefault("notifications.smtp_host", d.Notifications.SMTPHost)
	v.SetDefault("notifications.smtp_port", d.Notifications.SMTPPort)
	v.SetDefault("notifications.smtp_username", d.Notifications.SMTPUsername)
	v.SetDefault("notifications.smtp_password", d.Notifications.SMTPPassword)
	v.SetDefault("notifications.smtp_from", d.Notifications.SMTPFrom)
	v.SetDefault("notifications.recipient", d.Notifications.Recipient)
	v.SetDefault("notifications.motion_min_interval_minutes", d.Notifications.MotionMinIntervalMinutes)
	v.SetDefault("notifications.storage_min_interval_minutes", d.Notifications.StorageMinIntervalMinutes)
	v.SetDefault("notifications.storage_warning_threshold", d.Notifications.StorageWarningThreshold)

	v.SetDefault("logging.log_level", d.Logging.LogLevel)
	v.SetDefault("logging.log_path", d.Logging.LogPath)
}

// LoadConfig loads configuration from a JSON or YAML file, the extension decides.
// Environment variables prefixed with DOORBELL_ override file values.
// A missing file is created with the default configuration.
func LoadConfig(filename string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if _, err := os.Stat(filename); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := SaveConfig(filename, DefaultConfig()); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Default config file created at %s\n", filename)
	}

	v.SetConfigFile(filename)
	v.SetConfigType(configType(filename))
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(cfg.CameraDevices) == 0 {
		cfg.CameraDevices = DefaultConfig().CameraDevices
	}
	if len(cfg.Recording.Codecs) == 0 {
		cfg.Recording.Codecs = DefaultConfig().Recording.Codecs
	}

	return &cfg, nil
}

// SaveConfig writes cfg as YAML for .yaml/.yml files and as indented JSON otherwise
func SaveConfig(filename string, cfg *Config) error {
	var (
		data []byte
		err  error
	)
	if configType(filename) == "yaml" {
		data, err = yaml.Marshal(cfg)
	} else {
		data, err = json.MarshalIndent(cfg, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func configType(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return "yaml"
	default:
		return "json"
	}
}

// Validate rejects thresholds the recorder cannot work with.
// An unusable fallback frame rate is not an error; it is replaced at startup.
func (c *Config) Validate() error {
	var errs []error

	m := c.Motion
	if m.StartRatio < 0 || m.StartRatio > 1 {
		errs = append(errs, fmt.Errorf("motion.start_ratio must lie in [0,1], got %v", m.StartRatio))
	}
	if m.StopRatio < 0 || m.StopRatio > 1 {
		errs = append(errs, fmt.Errorf("motion.stop_ratio must lie in [0,1], got %v", m.StopRatio))
	}
	if m.StartRatio <= m.StopRatio {
		errs = append(errs, fmt.Errorf("motion.start_ratio (%v) must be greater than motion.stop_ratio (%v)", m.StartRatio, m.StopRatio))
	}
	if m.StartPersistenceFrames < 1 {
		errs = append(errs, fmt.Errorf("motion.start_persistence_frames must be at least 1, got %d", m.StartPersistenceFrames))
	}
	if m.QuietSecondsToStop < 0 {
		errs = append(errs, fmt.Errorf("motion.quiet_seconds_to_stop must not be negative, got %v", m.QuietSecondsToStop))
	}

	r := c.Recording
	if r.PrerollSeconds < 0 {
		errs = append(errs, fmt.Errorf("recording.preroll_seconds must not be negative, got %v", r.PrerollSeconds))
	}
	if r.PostrollSeconds < 0 {
		errs = append(errs, fmt.Errorf("recording.postroll_seconds must not be negative, got %v", r.PostrollSeconds))
	}
	if r.ClipDirectory == "" {
		errs = append(errs, errors.New("recording.clip_directory must not be empty"))
	}
	if r.WriteQueueSize < 0 {
		errs = append(errs, fmt.Errorf("recording.write_queue_size must not be negative, got %d", r.WriteQueueSize))
	}

	if c.Storage.StorageLimitMegabytes < 0 {
		errs = append(errs, fmt.Errorf("storage.storage_limit_megabytes must not be negative, got %d", c.Storage.StorageLimitMegabytes))
	}

	if n := c.Notifications; n.StorageWarningThreshold < 0 || n.StorageWarningThreshold > 1 {
		errs = append(errs, fmt.Errorf("notifications.storage_warning_threshold must lie in [0,1], got %v", n.StorageWarningThreshold))
	}

	return errors.Join(errs...)
}

// ConfigOverrides holds potential override values for configuration
type ConfigOverrides struct {
	CameraDevice         *string
	FrameSize            *string
	ClipDirectory        *string
	AutoModeEnabled      *bool
	PrerollSeconds       *float64
	PostrollSeconds      *float64
	HTTPAddr             *string
	EncryptionPassphrase *string
	LogLevel             *string
	LogPath              *string
}

// Override allows overriding specific configuration values using ConfigOverrides struct
func (c *Config) Override(overrides ConfigOverrides) {
	if overrides.CameraDevice != nil && *overrides.CameraDevice != "" {
		c.CameraDevices = []string{*overrides.CameraDevice}
	}
	if overrides.FrameSize != nil && *overrides.FrameSize != "" {
		c.FrameSize = *overrides.FrameSize
	}
	if overrides.ClipDirectory != nil && *overrides.ClipDirectory != "" {
		c.Recording.ClipDirectory = *overrides.ClipDirectory
	}
	if overrides.AutoModeEnabled != nil {
		c.Recording.AutoModeEnabled = *overrides.AutoModeEnabled
	}
	if overrides.PrerollSeconds != nil && *overrides.PrerollSeconds >= 0 {
		c.Recording.PrerollSeconds = *overrides.PrerollSeconds
	}
	if overrides.PostrollSeconds != nil && *overrides.PostrollSeconds >= 0 {
		c.Recording.PostrollSeconds = *overrides.PostrollSeconds
	}
	if overrides.HTTPAddr != nil && *overrides.HTTPAddr != "" {
		c.Control.HTTPAddr = *overrides.HTTPAddr
		c.Control.HTTPEnabled = true
	}
	if overrides.EncryptionPassphrase != nil && *overrides.EncryptionPassphrase != "" {
		c.Storage.EncryptionPassphrase = *overrides.EncryptionPassphrase
	}
	if overrides.LogLevel != nil && *overrides.LogLevel != "" {
		c.Logging.LogLevel = *overrides.LogLevel
	}
	if overrides.LogPath != nil && *overrides.LogPath != "" {
		c.Logging.LogPath = *overrides.LogPath
	}
}
