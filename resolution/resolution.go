package resolution

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Kim-Ziho/doorbell-camera/frame"
)

var presets = map[string]frame.Size{
	"240p":  {Width: 426, Height: 240},
	"360p":  {Width: 640, Height: 360},
	"480p":  {Width: 854, Height: 480},
	"720p":  {Width: 1280, Height: 720},
	"1080p": {Width: 1920, Height: 1080},
}

// Parse converts a resolution string into a frame size.
// Supported formats:
// - "1920x1080"
// - "1920:1080"
// - "1080p", "720p", "480p", "360p", "240p"
// An empty string yields an empty size.
func Parse(s string) (frame.Size, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == "":
		return frame.Size{}, nil
	case strings.Contains(s, "x"):
		return parseDimensions(s, "x")
	case strings.Contains(s, ":"):
		return parseDimensions(s, ":")
	case strings.HasSuffix(s, "p"):
		size, ok := presets[s]
		if !ok {
			return frame.Size{}, fmt.Errorf("unsupported resolution preset: %s", s)
		}
		return size, nil
	default:
		return frame.Size{}, fmt.Errorf("invalid resolution format: %s", s)
	}
}

func parseDimensions(s, sep string) (frame.Size, error) {
	parts := strings.Split(s, sep)
	if len(parts) != 2 {
		return frame.Size{}, fmt.Errorf("invalid dimensions: %s", s)
	}

	width, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || width <= 0 {
		return frame.Size{}, fmt.Errorf("invalid width: %s", parts[0])
	}
	height, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || height <= 0 {
		return frame.Size{}, fmt.Errorf("invalid height: %s", parts[1])
	}

	return frame.Size{Width: width, Height: height}, nil
}

// ParseOr returns fallback when s does not parse
func ParseOr(s string, fallback frame.Size) frame.Size {
	size, err := Parse(s)
	if err != nil {
		return fallback
	}
	return size
}

// Format replaces "w" with the width and "h" with the height, e.g. "w:h" for ffmpeg scale filters
func Format(size frame.Size, format string) string {
	r := strings.NewReplacer("w", strconv.Itoa(size.Width), "h", strconv.Itoa(size.Height))
	return r.Replace(format)
}
