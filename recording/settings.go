package recording

import (
	"fmt"
	"math"

	"github.com/Kim-Ziho/doorbell-camera/config"
	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/preroll"
)

var DefaultRecordingSettings = RecordingSettings{
	MotionStartRatio:       0.015, // 1.5% of the frame changed
	MotionStopRatio:        0.005,
	StartPersistenceFrames: 3,
	QuietSecondsToStop:     2.0,
	PrerollSeconds:         2.0,
	PostrollSeconds:        2.0,
	FallbackFrameRate:      frame.DefaultFrameRate,
	AutoModeEnabled:        true,
}

type RecordingSettings struct {
	MotionStartRatio       float64 // ratio at or above which a frame counts as motion
	MotionStopRatio        float64 // ratio at or below which a frame counts as quiet
	StartPersistenceFrames int     // consecutive motion frames needed to open an automatic clip
	QuietSecondsToStop     float64 // quiet time before the postroll is armed
	PrerollSeconds         float64
	PostrollSeconds        float64
	FallbackFrameRate      float64 // used when the source reports an unusable rate
	AutoModeEnabled        bool    // automatic recording state at startup
}

// Validate checks the thresholds. An unusable frame rate is not an error;
// it is replaced by the fallback when timings are derived.
func (s RecordingSettings) Validate() error {
	if !inUnitRange(s.MotionStartRatio) || !inUnitRange(s.MotionStopRatio) {
		return fmt.Errorf("motion ratios must lie in [0,1]: start=%v stop=%v", s.MotionStartRatio, s.MotionStopRatio)
	}
	if s.MotionStartRatio <= s.MotionStopRatio {
		return fmt.Errorf("motion start ratio %v must be greater than stop ratio %v", s.MotionStartRatio, s.MotionStopRatio)
	}
	if s.StartPersistenceFrames < 1 {
		return fmt.Errorf("start persistence must be at least one frame, got %d", s.StartPersistenceFrames)
	}
	if s.QuietSecondsToStop < 0 || s.PrerollSeconds < 0 || s.PostrollSeconds < 0 {
		return fmt.Errorf("durations must not be negative: quiet=%v preroll=%v postroll=%v",
			s.QuietSecondsToStop, s.PrerollSeconds, s.PostrollSeconds)
	}
	return nil
}

func inUnitRange(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Timing holds the frame counts derived once at startup from the settings and the source rate
type Timing struct {
	FrameRate         float64
	PrerollFrames     int
	QuietFramesToStop int
	PostrollFrames    int
}

func (s RecordingSettings) TimingFor(deviceFPS float64) Timing {
	fps := frame.NormalizeFrameRate(deviceFPS, s.FallbackFrameRate)
	return Timing{
		FrameRate:         fps,
		PrerollFrames:     preroll.CapacityFor(s.PrerollSeconds, fps, s.FallbackFrameRate),
		QuietFramesToStop: max(1, int(s.QuietSecondsToStop*fps)),
		PostrollFrames:    max(1, int(s.PostrollSeconds*fps)),
	}
}

// RecordingSettingsProvider implements SettingsProvider for RecordingSettings
type RecordingSettingsProvider struct {
	configProvider config.SettingsProvider[config.Config]
}

func NewRecordingSettingsProvider(configProvider config.SettingsProvider[config.Config]) *RecordingSettingsProvider {
	return &RecordingSettingsProvider{configProvider: configProvider}
}

// GetSettings returns the recording settings mapped from the application config
func (p *RecordingSettingsProvider) GetSettings() RecordingSettings {
	cfg := p.configProvider.GetSettings()

	return RecordingSettings{
		MotionStartRatio:       cfg.Motion.StartRatio,
		MotionStopRatio:        cfg.Motion.StopRatio,
		StartPersistenceFrames: cfg.Motion.StartPersistenceFrames,
		QuietSecondsToStop:     cfg.Motion.QuietSecondsToStop,
		PrerollSeconds:         cfg.Recording.PrerollSeconds,
		PostrollSeconds:        cfg.Recording.PostrollSeconds,
		FallbackFrameRate:      cfg.FallbackFrameRate,
		AutoModeEnabled:        cfg.Recording.AutoModeEnabled,
	}
}
