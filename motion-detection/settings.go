package motiondetection

import (
	"github.com/Kim-Ziho/doorbell-camera/config"
)

type MotionDetectionSettings struct {
	MogHistory      int     // MOG2 history length
	MogVarThreshold float64 // MOG2 variance threshold
	DetectShadows   bool    // MOG2 shadow labelling
	BlurKernelSize  int     // Gaussian blur kernel, forced odd
	BinaryThreshold float64 // foreground mask threshold
	MinRegionArea   float64 // smallest contour reported as a region
}

// MotionDetectionSettingsProvider implements SettingsProvider for MotionDetectionSettings
type MotionDetectionSettingsProvider struct {
	configProvider config.SettingsProvider[config.Config]
}

// NewMotionDetectionSettingsProvider creates a new MotionDetectionSettingsProvider
func NewMotionDetectionSettingsProvider(configProvider config.SettingsProvider[config.Config]) *MotionDetectionSettingsProvider {
	return &MotionDetectionSettingsProvider{
		configProvider: configProvider,
	}
}

// GetSettings returns the current motion detection settings mapped from the application config.
// Unset values fall back to DefaultMotionDetectionSettings.
func (p *MotionDetectionSettingsProvider) GetSettings() MotionDetectionSettings {
	m := p.configProvider.GetSettings().Motion
	d := DefaultMotionDetectionSettings

	s := MotionDetectionSettings{
		MogHistory:      m.MogHistory,
		MogVarThreshold: m.MogVarThreshold,
		DetectShadows:   m.DetectShadows,
		BlurKernelSize:  m.BlurKernelSize,
		BinaryThreshold: m.BinaryThreshold,
		MinRegionArea:   m.MinRegionArea,
	}
	if s.MogHistory <= 0 {
		s.MogHistory = d.MogHistory
	}
	if s.MogVarThreshold <= 0 {
		s.MogVarThreshold = d.MogVarThreshold
	}
	if s.BlurKernelSize <= 0 {
		s.BlurKernelSize = d.BlurKernelSize
	}
	if s.BlurKernelSize%2 == 0 {
		s.BlurKernelSize++
	}
	if s.BinaryThreshold <= 0 {
		s.BinaryThreshold = d.BinaryThreshold
	}
	if s.MinRegionArea < 0 {
		s.MinRegionArea = 0
	}
	return s
}
