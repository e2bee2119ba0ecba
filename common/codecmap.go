package common

import (
	"fmt"
	"maps"
	"os/exec"
	"regexp"
	"strings"

	"github.com/Kim-Ziho/doorbell-camera/logging"
)

// CodecFallbackMap defines fallback chains for the ffmpeg encoders used when transcoding clips
var CodecFallbackMap = map[string][]string{
	// H.264 encoders in preference order
	"libx264":      {"libx264", "libopenh264", "h264_vaapi", "h264_qsv", "h264_v4l2m2m"},
	"libopenh264":  {"libopenh264", "libx264", "h264_vaapi", "h264_qsv", "h264_v4l2m2m"},
	"h264_vaapi":   {"h264_vaapi", "libx264", "libopenh264", "h264_qsv", "h264_v4l2m2m"},
	"h264_qsv":     {"h264_qsv", "libx264", "libopenh264", "h264_vaapi", "h264_v4l2m2m"},
	"h264_v4l2m2m": {"h264_v4l2m2m", "libx264", "libopenh264", "h264_vaapi", "h264_qsv"},

	// H.265 falls back to H.264
	"libx265": {"libx265", "libx264", "libopenh264", "h264_vaapi", "h264_qsv", "h264_v4l2m2m"},

	"libvpx-vp9": {"libvpx-vp9", "libvpx"},
}

type CodecProvider interface {
	IsCodecAvailable(codec string) bool
	GetFallbackCodec(requestedCodec string) (string, error)
	GetAvailableCodecs() map[string]bool
}

// FFmpegCodecProvider answers codec questions from the encoder list of the local ffmpeg
type FFmpegCodecProvider struct {
	availableCodecs map[string]bool
	logger          logging.Logger
}

// NewFFmpegCodecProvider runs `ffmpeg -encoders` once and caches the result.
// When ffmpeg cannot be run no codec is reported as available.
func NewFFmpegCodecProvider(logger logging.Logger) *FFmpegCodecProvider {
	if logger == nil {
		logger = logging.NopLogger
	}

	output, err := exec.Command("ffmpeg", "-hide_banner", "-encoders").Output()
	if err != nil {
		logger.Warn("failed to query ffmpeg encoders", "error", err)
		return NewStaticCodecProvider(nil, logger)
	}

	codecs := ParseEncoderList(string(output))
	logger.Info("loaded ffmpeg encoders", "count", len(codecs))
	return NewStaticCodecProvider(codecs, logger)
}

// NewStaticCodecProvider uses a known set of available codecs
func NewStaticCodecProvider(available map[string]bool, logger logging.Logger) *FFmpegCodecProvider {
	if logger == nil {
		logger = logging.NopLogger
	}
	codecs := make(map[string]bool, len(available))
	maps.Copy(codecs, available)
	return &FFmpegCodecProvider{availableCodecs: codecs, logger: logger}
}

// encoder lines look like " V....D libopenh264          OpenH264 H.264 / AVC ..."
var encoderPattern = regexp.MustCompile(`^ ([VA][.SFXBD]{5})\s+([a-zA-Z0-9_-]+)\s+`)

// ParseEncoderList extracts video and audio encoder names from `ffmpeg -encoders` output
func ParseEncoderList(output string) map[string]bool {
	codecs := make(map[string]bool)
	for _, line := range strings.Split(output, "\n") {
		// legend lines such as " V..... = Video"
		if strings.Contains(line, " = ") {
			continue
		}
		matches := encoderPattern.FindStringSubmatch(line)
		if len(matches) >= 3 && matches[2] != "" {
			codecs[matches[2]] = true
		}
	}
	return codecs
}

func (c *FFmpegCodecProvider) IsCodecAvailable(codec string) bool {
	return c.availableCodecs[codec]
}

// GetAvailableCodecs returns a copy of all available codecs
func (c *FFmpegCodecProvider) GetAvailableCodecs() map[string]bool {
	result := make(map[string]bool, len(c.availableCodecs))
	maps.Copy(result, c.availableCodecs)
	return result
}

// GetFallbackCodec returns the requested codec if available, otherwise the first available one of its chain
func (c *FFmpegCodecProvider) GetFallbackCodec(requestedCodec string) (string, error) {
	if c.IsCodecAvailable(requestedCodec) {
		return requestedCodec, nil
	}

	chain, exists := CodecFallbackMap[requestedCodec]
	if !exists {
		return "", fmt.Errorf("codec '%s' is not available and no fallback is defined", requestedCodec)
	}

	for _, codec := range chain {
		if c.IsCodecAvailable(codec) {
			c.logger.Info("using fallback codec", "requested", requestedCodec, "codec", codec)
			return codec, nil
		}
	}

	return "", fmt.Errorf("no suitable codec available from fallback chain: %v", chain)
}
