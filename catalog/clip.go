package catalog

import "time"

// Clip is a finalised recording as stored in the catalog
type Clip struct {
	ID             string        `json:"id"`
	Origin         string        `json:"origin"`
	Path           string        `json:"path"`
	MimeType       string        `json:"mime_type"`
	OpenedAt       time.Time     `json:"opened_at"`
	ClosedAt       time.Time     `json:"closed_at"`
	Duration       time.Duration `json:"duration"`
	Frames         int           `json:"frames"`
	PrerollFrames  int           `json:"preroll_frames"`
	PostrollFrames int           `json:"postroll_frames"`
	FrameRate      float64       `json:"frame_rate"`
	Reason         string        `json:"reason"`
	SizeBytes      int64         `json:"size_bytes"`
	Encrypted      bool          `json:"encrypted"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ClipQuery filters catalog lookups. Zero values mean "no filter".
type ClipQuery struct {
	Origin string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}
