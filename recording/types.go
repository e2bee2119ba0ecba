package recording

import (
	"errors"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/frame"
)

var (
	// ErrSinkOpen is returned by Step when the clip writer could not open a sink.
	// No session exists afterwards and the triggering streak has been discarded.
	ErrSinkOpen = errors.New("failed to open clip sink")
	// ErrSinkWrite is returned when a frame could not be written to the open sink.
	ErrSinkWrite = errors.New("failed to write frame to clip sink")
	// ErrSinkClose is returned when finalising a sink fails.
	ErrSinkClose = errors.New("failed to close clip sink")
)

type State int

const (
	StateIdle State = iota
	StateRecordingAuto
	StateRecordingManual
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecordingAuto:
		return "recording_auto"
	case StateRecordingManual:
		return "recording_manual"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// IsRecording reports whether a clip is open in this state
func (s State) IsRecording() bool {
	return s == StateRecordingAuto || s == StateRecordingManual
}

type Origin string

const (
	OriginAuto   Origin = "auto"
	OriginManual Origin = "manual"
)

// Command is a discrete operator request, decoded once at the input boundary.
type Command int

const (
	CommandNone Command = iota
	CommandStart
	CommandStop
	// CommandToggleRecording starts a clip when idle and stops the open clip otherwise.
	CommandToggleRecording
	CommandToggleAuto
	CommandQuit
)

func (c Command) String() string {
	switch c {
	case CommandNone:
		return "none"
	case CommandStart:
		return "start"
	case CommandStop:
		return "stop"
	case CommandToggleRecording:
		return "toggle_recording"
	case CommandToggleAuto:
		return "toggle_auto"
	case CommandQuit:
		return "quit"
	default:
		return "unknown"
	}
}

// CloseReason records why a clip was finalised
type CloseReason string

const (
	ReasonManualStop       CloseReason = "manual_stop"
	ReasonPostrollComplete CloseReason = "postroll_complete"
	ReasonShutdown         CloseReason = "shutdown"
	ReasonEndOfStream      CloseReason = "end_of_stream"
)

// Sample is the per-frame evaluation unit
type Sample struct {
	Frame *frame.Frame
	Ratio float64
}

type OpenRequest struct {
	Origin    Origin
	Size      frame.Size
	FPS       float64
	StartedAt time.Time
}

// ClipWriter opens one sink per clip. Every successful Open must yield an
// independently addressable artifact.
type ClipWriter interface {
	Open(req OpenRequest) (Sink, error)
}

type Sink interface {
	Write(f *frame.Frame) error
	// Close finalises the artifact. It is called exactly once.
	Close() error
	Path() string
}

// ClipSummary describes a finalised clip
type ClipSummary struct {
	ID             string      `json:"id"`
	Origin         Origin      `json:"origin"`
	Path           string      `json:"path"`
	OpenedAt       time.Time   `json:"opened_at"`
	ClosedAt       time.Time   `json:"closed_at"`
	FirstSeq       uint64      `json:"first_seq"`
	LastSeq        uint64      `json:"last_seq"`
	Frames         int         `json:"frames"`
	PrerollFrames  int         `json:"preroll_frames"`
	PostrollFrames int         `json:"postroll_frames"`
	FrameRate      float64     `json:"frame_rate"`
	Reason         CloseReason `json:"reason"`
}

// Duration is the playback length of the clip at its recorded frame rate
func (c ClipSummary) Duration() time.Duration {
	if c.FrameRate <= 0 {
		return c.ClosedAt.Sub(c.OpenedAt)
	}
	return time.Duration(float64(c.Frames) / c.FrameRate * float64(time.Second))
}

type EventKind string

const (
	EventClipOpened      EventKind = "clip_opened"
	EventClipClosed      EventKind = "clip_closed"
	EventPostrollArmed   EventKind = "postroll_armed"
	EventOpenFailed      EventKind = "open_failed"
	EventAutoModeChanged EventKind = "auto_mode_changed"
)

type Event struct {
	Kind           EventKind    `json:"kind"`
	At             time.Time    `json:"at"`
	Seq            uint64       `json:"seq"`
	Origin         Origin       `json:"origin,omitempty"`
	ClipID         string       `json:"clip_id,omitempty"`
	Path           string       `json:"path,omitempty"`
	AutoEnabled    bool         `json:"auto_enabled"`
	PostrollFrames int          `json:"postroll_frames,omitempty"`
	Clip           *ClipSummary `json:"clip,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// Listener receives machine events on the processing goroutine.
// Implementations must return quickly and never block.
type Listener interface {
	OnEvent(e Event)
}

type ListenerFunc func(e Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

// Listeners fans an event out to every listener in order
type Listeners []Listener

func (ls Listeners) OnEvent(e Event) {
	for _, l := range ls {
		if l != nil {
			l.OnEvent(e)
		}
	}
}
