package recording

import (
	"sync/atomic"
	"time"
)

// Status is what the loop publishes after every frame
type Status struct {
	MachineStatus
	LastRatio       float64   `json:"last_ratio"`
	FramesProcessed uint64    `json:"frames_processed"`
	MeasuredFPS     float64   `json:"measured_fps"`
	FrameRate       float64   `json:"frame_rate"` // rate the timings were derived from
	UpdatedAt       time.Time `json:"updated_at"`
	Running         bool      `json:"running"`
}

// StatusBoard holds the latest Status for readers on other goroutines
type StatusBoard struct {
	current atomic.Pointer[Status]
}

func NewStatusBoard() *StatusBoard {
	b := &StatusBoard{}
	b.current.Store(&Status{})
	return b
}

func (b *StatusBoard) Store(s Status) {
	b.current.Store(&s)
}

// Load returns a copy of the latest status
func (b *StatusBoard) Load() Status {
	return *b.current.Load()
}
