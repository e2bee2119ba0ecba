package recording

import (
	"errors"
	"fmt"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/frame"
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/preroll"
	"github.com/google/uuid"
)

type MachineOptions struct {
	Listener Listener
	Logger   logging.Logger
	// NewClipID defaults to uuid.NewString
	NewClipID func() string
}

// session is the single open clip
type session struct {
	id       string
	origin   Origin
	sink     Sink
	openedAt time.Time

	firstSeq       uint64
	lastSeq        uint64
	frames         int
	prerollFrames  int
	postrollFrames int

	postrollArmed     bool
	postrollRemaining int
}

// Machine decides, frame by frame, when a clip opens and closes.
//
// It owns the preroll buffer, the open session and the hysteresis counters.
// None of it is safe for concurrent use: a single processing loop calls Step
// once per captured frame, in capture order.
type Machine struct {
	settings RecordingSettings
	timing   Timing
	size     frame.Size
	writer   ClipWriter
	preroll  *preroll.Buffer
	listener Listener
	logger   logging.Logger
	newID    func() string

	state       State
	autoEnabled bool
	session     *session
	startStreak int
	quietStreak int
	lastFrameAt time.Time
}

// NewMachine derives the frame timings from deviceFPS once. An unusable device
// rate is replaced by settings.FallbackFrameRate.
func NewMachine(settings RecordingSettings, deviceFPS float64, size frame.Size, writer ClipWriter, opts MachineOptions) (*Machine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if writer == nil {
		return nil, errors.New("clip writer is required")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NopLogger
	}
	if opts.Listener == nil {
		opts.Listener = Listeners(nil)
	}
	if opts.NewClipID == nil {
		opts.NewClipID = uuid.NewString
	}

	timing := settings.TimingFor(deviceFPS)

	opts.Logger.Info("recording machine ready",
		"fps", timing.FrameRate,
		"preroll_frames", timing.PrerollFrames,
		"quiet_frames_to_stop", timing.QuietFramesToStop,
		"postroll_frames", timing.PostrollFrames,
		"auto_mode", settings.AutoModeEnabled)

	return &Machine{
		settings:    settings,
		timing:      timing,
		size:        size,
		writer:      writer,
		preroll:     preroll.NewBuffer(timing.PrerollFrames),
		listener:    opts.Listener,
		logger:      opts.Logger,
		newID:       opts.NewClipID,
		state:       StateIdle,
		autoEnabled: settings.AutoModeEnabled,
	}, nil
}

func (m *Machine) Timing() Timing { return m.timing }

func (m *Machine) State() State { return m.state }

func (m *Machine) AutoEnabled() bool { return m.autoEnabled }

// Step processes one frame. The rules are applied in a fixed order:
//
//  1. the manual command, which takes priority over automatic logic for this frame
//  2. automatic start (idle, auto mode on)
//  3. automatic stop scheduling (automatic clip, auto mode on, postroll not armed)
//  4. the frame joins the preroll buffer
//  5. the frame is written to the open sink and an armed postroll counts down
//
// The preroll snapshot for a clip opening on this frame is taken before step 4,
// so the frame itself is written exactly once, as the first live frame.
// Errors never leave the machine in a state without a sink.
func (m *Machine) Step(s Sample, cmd Command) error {
	var errs []error
	m.lastFrameAt = s.Frame.Timestamp

	handled, err := m.applyCommand(s, cmd)
	if err != nil {
		errs = append(errs, err)
	}

	if !handled {
		if err := m.evaluateAutoStart(s); err != nil {
			errs = append(errs, err)
		}
		m.evaluateAutoStop(s)
	}

	m.preroll.Push(s.Frame)

	if err := m.writeLive(s); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Shutdown closes any open clip and clears the preroll buffer.
func (m *Machine) Shutdown(reason CloseReason) error {
	if m.session == nil {
		m.preroll.Clear()
		return nil
	}
	at := m.lastFrameAt
	if at.IsZero() {
		at = time.Now()
	}
	m.logger.Info("closing open clip", "reason", reason, "path", m.session.sink.Path())
	return m.closeSession(reason, at)
}

// applyCommand reports whether the command caused a transition this frame.
func (m *Machine) applyCommand(s Sample, cmd Command) (bool, error) {
	if cmd == CommandToggleRecording {
		if m.state == StateIdle {
			cmd = CommandStart
		} else {
			cmd = CommandStop
		}
	}

	switch cmd {
	case CommandStart:
		if m.state != StateIdle {
			m.logger.Debug("manual start ignored, already recording", "state", m.state)
			return false, nil
		}
		return true, m.openSession(OriginManual, s)

	case CommandStop:
		if m.state == StateIdle {
			m.logger.Debug("manual stop ignored, not recording")
			return false, nil
		}
		return true, m.closeSession(ReasonManualStop, s.Frame.Timestamp)

	case CommandToggleAuto:
		m.autoEnabled = !m.autoEnabled
		// stale streaks must not carry across a mode change
		m.startStreak = 0
		m.quietStreak = 0
		m.logger.Info("automatic recording toggled", "enabled", m.autoEnabled)
		m.emit(Event{Kind: EventAutoModeChanged, At: s.Frame.Timestamp, Seq: s.Frame.Seq})
		return false, nil
	}

	return false, nil
}

func (m *Machine) evaluateAutoStart(s Sample) error {
	if m.state != StateIdle || !m.autoEnabled {
		return nil
	}

	if s.Ratio >= m.settings.MotionStartRatio {
		m.startStreak++
	} else {
		m.startStreak = 0
	}

	if m.startStreak < m.settings.StartPersistenceFrames {
		return nil
	}

	m.startStreak = 0
	m.logger.Info("motion detected, starting automatic clip", "ratio", s.Ratio, "seq", s.Frame.Seq)
	return m.openSession(OriginAuto, s)
}

func (m *Machine) evaluateAutoStop(s Sample) {
	if m.state != StateRecordingAuto || !m.autoEnabled || m.session.postrollArmed {
		return
	}

	if s.Ratio <= m.settings.MotionStopRatio {
		m.quietStreak++
	} else {
		m.quietStreak = 0
	}

	if m.quietStreak < m.timing.QuietFramesToStop {
		return
	}

	m.quietStreak = 0
	m.session.postrollArmed = true
	m.session.postrollRemaining = m.timing.PostrollFrames

	m.logger.Info("scene quiet, postroll armed", "postroll_frames", m.timing.PostrollFrames, "seq", s.Frame.Seq)
	m.emit(Event{
		Kind:           EventPostrollArmed,
		At:             s.Frame.Timestamp,
		Seq:            s.Frame.Seq,
		Origin:         m.session.origin,
		ClipID:         m.session.id,
		Path:           m.session.sink.Path(),
		PostrollFrames: m.timing.PostrollFrames,
	})
}

func (m *Machine) openSession(origin Origin, s Sample) error {
	snapshot := m.preroll.Snapshot()

	size := s.Frame.Size
	if size.IsEmpty() {
		size = m.size
	}

	sink, err := m.writer.Open(OpenRequest{
		Origin:    origin,
		Size:      size,
		FPS:       m.timing.FrameRate,
		StartedAt: s.Frame.Timestamp,
	})
	if err != nil {
		m.resetCounters()
		m.logger.Error("failed to open clip sink", "origin", origin, "error", err)
		m.emit(Event{Kind: EventOpenFailed, At: s.Frame.Timestamp, Seq: s.Frame.Seq, Origin: origin, Error: err.Error()})
		return fmt.Errorf("%w: %w", ErrSinkOpen, err)
	}

	sess := &session{
		id:       m.newID(),
		origin:   origin,
		sink:     sink,
		openedAt: s.Frame.Timestamp,
		firstSeq: s.Frame.Seq,
	}
	if len(snapshot) > 0 {
		sess.firstSeq = snapshot[0].Seq
	}

	var errs []error
	for _, f := range snapshot {
		if err := sink.Write(f); err != nil {
			errs = append(errs, fmt.Errorf("%w: preroll frame %d: %w", ErrSinkWrite, f.Seq, err))
			continue
		}
		sess.frames++
		sess.prerollFrames++
		sess.lastSeq = f.Seq
	}

	m.session = sess
	if origin == OriginAuto {
		m.state = StateRecordingAuto
	} else {
		m.state = StateRecordingManual
	}
	m.resetCounters()

	m.logger.Info("clip opened", "origin", origin, "path", sink.Path(), "preroll_frames", sess.prerollFrames)
	m.emit(Event{
		Kind:   EventClipOpened,
		At:     s.Frame.Timestamp,
		Seq:    s.Frame.Seq,
		Origin: origin,
		ClipID: sess.id,
		Path:   sink.Path(),
	})

	return errors.Join(errs...)
}

func (m *Machine) writeLive(s Sample) error {
	sess := m.session
	if sess == nil {
		return nil
	}

	var writeErr error
	if err := sess.sink.Write(s.Frame); err != nil {
		writeErr = fmt.Errorf("%w: frame %d: %w", ErrSinkWrite, s.Frame.Seq, err)
	} else {
		sess.frames++
		sess.lastSeq = s.Frame.Seq
	}

	if !sess.postrollArmed {
		return writeErr
	}

	sess.postrollFrames++
	sess.postrollRemaining--
	if sess.postrollRemaining > 0 {
		return writeErr
	}

	return errors.Join(writeErr, m.closeSession(ReasonPostrollComplete, s.Frame.Timestamp))
}

func (m *Machine) closeSession(reason CloseReason, at time.Time) error {
	sess := m.session
	m.session = nil
	m.state = StateIdle
	m.preroll.Clear()
	m.resetCounters()

	if err := sess.sink.Close(); err != nil {
		m.logger.Error("failed to finalise clip", "path", sess.sink.Path(), "error", err)
		return fmt.Errorf("%w: %s: %w", ErrSinkClose, sess.sink.Path(), err)
	}

	summary := &ClipSummary{
		ID:             sess.id,
		Origin:         sess.origin,
		Path:           sess.sink.Path(),
		OpenedAt:       sess.openedAt,
		ClosedAt:       at,
		FirstSeq:       sess.firstSeq,
		LastSeq:        sess.lastSeq,
		Frames:         sess.frames,
		PrerollFrames:  sess.prerollFrames,
		PostrollFrames: sess.postrollFrames,
		FrameRate:      m.timing.FrameRate,
		Reason:         reason,
	}

	m.logger.Info("clip saved", "path", summary.Path, "frames", summary.Frames, "reason", reason)
	m.emit(Event{
		Kind:   EventClipClosed,
		At:     at,
		Seq:    sess.lastSeq,
		Origin: sess.origin,
		ClipID: sess.id,
		Path:   summary.Path,
		Clip:   summary,
	})
	return nil
}

func (m *Machine) resetCounters() {
	m.startStreak = 0
	m.quietStreak = 0
}

func (m *Machine) emit(e Event) {
	e.AutoEnabled = m.autoEnabled
	m.listener.OnEvent(e)
}

// MachineStatus is a point-in-time view of the machine
type MachineStatus struct {
	State             State  `json:"state"`
	AutoEnabled       bool   `json:"auto_enabled"`
	StartStreak       int    `json:"start_streak"`
	QuietStreak       int    `json:"quiet_streak"`
	PrerollFrames     int    `json:"preroll_frames"`
	PostrollArmed     bool   `json:"postroll_armed"`
	PostrollRemaining int    `json:"postroll_remaining"`
	ClipID            string `json:"clip_id,omitempty"`
	ClipOrigin        Origin `json:"clip_origin,omitempty"`
	ClipPath          string `json:"clip_path,omitempty"`
	ClipFrames        int    `json:"clip_frames,omitempty"`
}

func (m *Machine) Status() MachineStatus {
	st := MachineStatus{
		State:         m.state,
		AutoEnabled:   m.autoEnabled,
		StartStreak:   m.startStreak,
		QuietStreak:   m.quietStreak,
		PrerollFrames: m.preroll.Len(),
	}
	if m.session != nil {
		st.PostrollArmed = m.session.postrollArmed
		st.PostrollRemaining = m.session.postrollRemaining
		st.ClipID = m.session.id
		st.ClipOrigin = m.session.origin
		st.ClipPath = m.session.sink.Path()
		st.ClipFrames = m.session.frames
	}
	return st
}
