package postprocessing

import "time"

// VideoClip is the result of post-processing a closed clip
type VideoClip struct {
	Path     string
	Codec    string
	Format   string
	MimeType string
	OpenedAt time.Time
	Duration time.Duration
}
