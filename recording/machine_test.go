package recording

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// shortStop keeps the scenarios small: 15 quiet frames arm a 30 frame postroll at 30 fps
func shortStop() RecordingSettings {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.5
	s.PostrollSeconds = 1
	return s
}

func TestMachine_AutoClipLifecycle(t *testing.T) {
	h := newHarness(t, shortStop(), 30, 200)

	h.run(repeat(low, 100)...) // 0..99
	h.run(repeat(high, 30)...) // 100..129
	h.run(repeat(low, 70)...)  // 130..199

	require.Len(t, h.writer.sinks, 1)
	sink := h.writer.sinks[0]

	// opened on 102 with 60 preroll frames, armed on 144, closed after 30 postroll frames
	assert.Equal(t, seqRange(42, 173), sink.seqs)
	assert.Equal(t, 1, sink.closed)

	require.Len(t, h.writer.requests, 1)
	assert.Equal(t, OriginAuto, h.writer.requests[0].Origin)
	assert.Equal(t, 30.0, h.writer.requests[0].FPS)
	assert.Equal(t, testSize(), h.writer.requests[0].Size)
	assert.Equal(t, h.frames[102].Timestamp, h.writer.requests[0].StartedAt)

	assert.Equal(t, []EventKind{EventClipOpened, EventPostrollArmed, EventClipClosed}, h.events.kinds())
	assert.Equal(t, uint64(102), h.events.events[0].Seq)
	assert.Equal(t, uint64(144), h.events.events[1].Seq)
	assert.Equal(t, 30, h.events.events[1].PostrollFrames)

	clips := h.events.closed()
	require.Len(t, clips, 1)
	clip := clips[0]
	assert.Equal(t, "clip-1", clip.ID)
	assert.Equal(t, OriginAuto, clip.Origin)
	assert.Equal(t, ReasonPostrollComplete, clip.Reason)
	assert.Equal(t, uint64(42), clip.FirstSeq)
	assert.Equal(t, uint64(173), clip.LastSeq)
	assert.Equal(t, 132, clip.Frames)
	assert.Equal(t, 60, clip.PrerollFrames)
	assert.Equal(t, 30, clip.PostrollFrames)
	assert.Equal(t, h.frames[173].Timestamp, clip.ClosedAt)
	assert.InDelta(t, 4.4, clip.Duration().Seconds(), 1e-6)

	st := h.machine.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, 26, st.PrerollFrames, "preroll refills from 174 after the clip closes")
	assert.Empty(t, st.ClipPath)
}

func TestMachine_StartRequiresConsecutiveMotion(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 10)

	h.run(high, high, low, high, high)
	assert.Empty(t, h.writer.sinks)
	assert.Equal(t, StateIdle, h.machine.State())

	h.run(high)
	require.Len(t, h.writer.sinks, 1)
	assert.Equal(t, StateRecordingAuto, h.machine.State())
	assert.Equal(t, h.frames[5].Timestamp, h.writer.requests[0].StartedAt)
	assert.Equal(t, seqRange(0, 5), h.writer.sinks[0].seqs)
}

func TestMachine_ThresholdsAreInclusive(t *testing.T) {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.1 // 3 frames
	s.PostrollSeconds = 0.1    // 3 frames
	h := newHarness(t, s, 30, 20)

	h.run(repeat(s.MotionStartRatio, 3)...)
	require.Len(t, h.writer.sinks, 1)

	h.run(repeat(s.MotionStopRatio, 3)...)
	assert.True(t, h.machine.Status().PostrollArmed)
}

func TestMachine_RatioBetweenThresholdsResetsBothStreaks(t *testing.T) {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.1
	h := newHarness(t, s, 30, 20)
	mid := (s.MotionStartRatio + s.MotionStopRatio) / 2

	h.run(high, high, mid, high, high)
	assert.Empty(t, h.writer.sinks)

	h.run(high)
	require.Len(t, h.writer.sinks, 1)

	h.run(low, low, mid, low, low)
	assert.False(t, h.machine.Status().PostrollArmed)
	assert.Equal(t, 2, h.machine.Status().QuietStreak)
}

func TestMachine_PrerollIsBoundedAndPartialFillIsAccepted(t *testing.T) {
	s := DefaultRecordingSettings
	s.PrerollSeconds = 0
	h := newHarness(t, s, 30, 10)
	assert.Equal(t, 1, h.machine.Timing().PrerollFrames)

	h.run(low, high, high, high)
	require.Len(t, h.writer.sinks, 1)
	assert.Equal(t, []uint64{2, 3}, h.writer.sinks[0].seqs)
}

func TestMachine_PostrollIsNotCancelledByResumedMotion(t *testing.T) {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.1 // 3 frames
	s.PostrollSeconds = 0.2    // 6 frames
	h := newHarness(t, s, 30, 30)

	h.run(high, high, high) // opens on 2
	h.run(low, low, low)    // arms on 5
	require.True(t, h.machine.Status().PostrollArmed)

	h.run(repeat(high, 5)...) // 6..10, closes on 10
	require.Len(t, h.writer.sinks, 1)
	assert.Equal(t, seqRange(0, 10), h.writer.sinks[0].seqs)
	assert.Equal(t, StateIdle, h.machine.State())

	// a new clip needs a fresh streak and never repeats frame 10
	h.run(high, high)
	assert.Len(t, h.writer.sinks, 1)
	h.run(high)
	require.Len(t, h.writer.sinks, 2)
	assert.Equal(t, []uint64{11, 12, 13}, h.writer.sinks[1].seqs)
}

func TestMachine_ManualStartFlushesPrerollAndIgnoresQuiet(t *testing.T) {
	h := newHarness(t, shortStop(), 30, 200)

	h.run(repeat(low, 10)...)
	require.NoError(t, h.step(low, CommandStart))

	require.Len(t, h.writer.sinks, 1)
	assert.Equal(t, OriginManual, h.writer.requests[0].Origin)
	assert.Equal(t, StateRecordingManual, h.machine.State())

	h.run(repeat(low, 100)...)
	assert.Equal(t, StateRecordingManual, h.machine.State(), "manual clips are never stopped by quiet")
	assert.False(t, h.machine.Status().PostrollArmed)

	require.NoError(t, h.step(low, CommandStop))
	assert.Equal(t, StateIdle, h.machine.State())
	assert.Equal(t, seqRange(0, 110), h.writer.sinks[0].seqs, "the stop frame is not part of the clip")

	clips := h.events.closed()
	require.Len(t, clips, 1)
	assert.Equal(t, ReasonManualStop, clips[0].Reason)
	assert.Equal(t, OriginManual, clips[0].Origin)
	assert.Equal(t, 10, clips[0].PrerollFrames)
	assert.Equal(t, 1, h.machine.Status().PrerollFrames, "preroll restarts with the stop frame")
}

func TestMachine_ManualStopDuringPostrollClosesImmediately(t *testing.T) {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.1
	s.PostrollSeconds = 1
	h := newHarness(t, s, 30, 30)

	h.run(high, high, high)
	h.run(low, low, low, low)
	require.True(t, h.machine.Status().PostrollArmed)

	require.NoError(t, h.step(low, CommandStop))
	assert.Equal(t, StateIdle, h.machine.State())

	clips := h.events.closed()
	require.Len(t, clips, 1)
	assert.Equal(t, ReasonManualStop, clips[0].Reason)
	assert.Equal(t, 2, clips[0].PostrollFrames)
	assert.Equal(t, seqRange(0, 6), h.writer.sinks[0].seqs)
}

func TestMachine_ManualCommandWinsOverAutoStartOnTheSameFrame(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 10)

	h.run(high, high)
	require.NoError(t, h.step(high, CommandStart))

	require.Len(t, h.writer.sinks, 1)
	assert.Equal(t, OriginManual, h.writer.requests[0].Origin)
	assert.Equal(t, StateRecordingManual, h.machine.State())
}

func TestMachine_RedundantCommandsAreIgnored(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 10)

	require.NoError(t, h.step(low, CommandStop))
	assert.Equal(t, StateIdle, h.machine.State())
	assert.Empty(t, h.writer.requests)

	h.run(high, high, high)
	require.Len(t, h.writer.sinks, 1)
	require.Equal(t, StateRecordingAuto, h.machine.State())

	require.NoError(t, h.step(high, CommandStart))
	assert.Len(t, h.writer.requests, 1)
	assert.Equal(t, StateRecordingAuto, h.machine.State(), "start while recording keeps the automatic origin")
}

func TestMachine_ToggleRecording(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 10)

	require.NoError(t, h.step(low, CommandToggleRecording))
	assert.Equal(t, StateRecordingManual, h.machine.State())

	h.run(low, low)
	require.NoError(t, h.step(low, CommandToggleRecording))
	assert.Equal(t, StateIdle, h.machine.State())

	require.Len(t, h.writer.sinks, 1)
	assert.Equal(t, []uint64{0, 1, 2}, h.writer.sinks[0].seqs)
}

func TestMachine_ToggleAuto(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 20)

	h.run(high, high)
	require.NoError(t, h.step(high, CommandToggleAuto))
	assert.False(t, h.machine.AutoEnabled())
	assert.Zero(t, h.machine.Status().StartStreak)

	h.run(high, high, high, high)
	assert.Empty(t, h.writer.sinks, "no automatic start while disabled")

	require.NoError(t, h.step(high, CommandToggleAuto))
	assert.True(t, h.machine.AutoEnabled())
	assert.Equal(t, 1, h.machine.Status().StartStreak, "streak restarts on the toggle frame")

	h.run(high)
	assert.Empty(t, h.writer.sinks)
	h.run(high)
	assert.Len(t, h.writer.sinks, 1)

	var toggles []Event
	for _, e := range h.events.events {
		if e.Kind == EventAutoModeChanged {
			toggles = append(toggles, e)
		}
	}
	require.Len(t, toggles, 2)
	assert.False(t, toggles[0].AutoEnabled)
	assert.True(t, toggles[1].AutoEnabled)
}

func TestMachine_DisablingAutoKeepsClipOpenUntilStopped(t *testing.T) {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.1
	h := newHarness(t, s, 30, 40)

	h.run(high, high, high)
	require.NoError(t, h.step(high, CommandToggleAuto))

	h.run(repeat(low, 20)...)
	assert.Equal(t, StateRecordingAuto, h.machine.State())
	assert.False(t, h.machine.Status().PostrollArmed)

	require.NoError(t, h.step(low, CommandStop))
	assert.Equal(t, StateIdle, h.machine.State())
}

func TestMachine_ArmedPostrollFinishesWithAutoDisabled(t *testing.T) {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.1 // 3 frames
	s.PostrollSeconds = 0.2    // 6 frames
	h := newHarness(t, s, 30, 30)

	h.run(high, high, high)
	h.run(low, low, low) // armed on 5, one postroll frame written
	require.NoError(t, h.step(low, CommandToggleAuto))
	h.run(low, low, low, low)

	assert.Equal(t, StateIdle, h.machine.State())
	clips := h.events.closed()
	require.Len(t, clips, 1)
	assert.Equal(t, ReasonPostrollComplete, clips[0].Reason)
	assert.Equal(t, 6, clips[0].PostrollFrames)
}

func TestMachine_OpenFailureLeavesMachineIdle(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 20)
	h.writer.openErr = errors.New("codec unavailable")

	h.run(high, high)
	err := h.step(high, CommandNone)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSinkOpen)
	assert.Equal(t, StateIdle, h.machine.State())
	assert.Zero(t, h.machine.Status().StartStreak)
	assert.Contains(t, h.events.kinds(), EventOpenFailed)

	// the streak has to build up again before the next attempt
	h.run(high, high)
	assert.Len(t, h.writer.requests, 1)

	h.writer.openErr = nil
	h.run(high)
	require.Len(t, h.writer.sinks, 1)
	assert.Equal(t, StateRecordingAuto, h.machine.State())
}

func TestMachine_ManualOpenFailure(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 5)
	h.writer.openErr = errors.New("no space left")

	err := h.step(low, CommandStart)
	assert.ErrorIs(t, err, ErrSinkOpen)
	assert.Equal(t, StateIdle, h.machine.State())
}

func TestMachine_WriteFailureKeepsSession(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 10)

	require.NoError(t, h.step(low, CommandStart))
	h.writer.sinks[0].writeErr = errors.New("disk hiccup")

	err := h.step(low, CommandNone)
	assert.ErrorIs(t, err, ErrSinkWrite)
	assert.Equal(t, StateRecordingManual, h.machine.State())
}

func TestMachine_CloseFailureStillReturnsToIdle(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 10)
	h.writer.closeErr = errors.New("moov atom write failed")

	require.NoError(t, h.step(low, CommandStart))
	err := h.step(low, CommandStop)

	assert.ErrorIs(t, err, ErrSinkClose)
	assert.Equal(t, StateIdle, h.machine.State())
	assert.Empty(t, h.events.closed())
	assert.Equal(t, 1, h.writer.sinks[0].closed)
}

func TestMachine_Shutdown(t *testing.T) {
	h := newHarness(t, DefaultRecordingSettings, 30, 10)

	require.NoError(t, h.machine.Shutdown(ReasonShutdown))
	assert.Empty(t, h.events.events)

	h.run(low)
	require.NoError(t, h.step(low, CommandStart))
	h.run(low, low)

	require.NoError(t, h.machine.Shutdown(ReasonShutdown))
	assert.Equal(t, StateIdle, h.machine.State())
	assert.Equal(t, 0, h.machine.Status().PrerollFrames)

	clips := h.events.closed()
	require.Len(t, clips, 1)
	assert.Equal(t, ReasonShutdown, clips[0].Reason)
	assert.Equal(t, h.frames[3].Timestamp, clips[0].ClosedAt)
	assert.Equal(t, 1, h.writer.sinks[0].closed)
}

func TestMachine_NeverOverlapsSessions(t *testing.T) {
	s := DefaultRecordingSettings
	s.QuietSecondsToStop = 0.1
	s.PostrollSeconds = 0.1
	h := newHarness(t, s, 30, 300)

	// fakeWriter fails the test if a sink opens while another is open
	pattern := []float64{high, high, high, high, low, low, low, low, low, low, low}
	for h.next+len(pattern)+1 < len(h.frames) {
		h.run(pattern...)
		require.NoError(t, h.step(low, CommandToggleRecording))
	}

	require.NotEmpty(t, h.writer.sinks)
	seen := map[uint64]bool{}
	for _, sink := range h.writer.sinks {
		for i, seq := range sink.seqs {
			assert.False(t, seen[seq], "frame %d written twice", seq)
			seen[seq] = true
			if i > 0 {
				assert.Equal(t, sink.seqs[i-1]+1, seq, "gap in %s", sink.path)
			}
		}
	}
}

func TestNewMachine_Validation(t *testing.T) {
	bad := DefaultRecordingSettings
	bad.MotionStopRatio = bad.MotionStartRatio

	_, err := NewMachine(bad, 30, testSize(), &fakeWriter{t: t}, MachineOptions{})
	assert.Error(t, err)

	_, err = NewMachine(DefaultRecordingSettings, 30, testSize(), nil, MachineOptions{})
	assert.Error(t, err)
}

func TestRecordingSettings_TimingFor(t *testing.T) {
	tests := []struct {
		name     string
		fps      float64
		settings RecordingSettings
		want     Timing
	}{
		{
			name:     "defaults at 30 fps",
			fps:      30,
			settings: DefaultRecordingSettings,
			want:     Timing{FrameRate: 30, PrerollFrames: 60, QuietFramesToStop: 60, PostrollFrames: 60},
		},
		{
			name:     "bogus device rate falls back",
			fps:      0,
			settings: DefaultRecordingSettings,
			want:     Timing{FrameRate: 30, PrerollFrames: 60, QuietFramesToStop: 60, PostrollFrames: 60},
		},
		{
			name:     "above 240 falls back",
			fps:      1000,
			settings: DefaultRecordingSettings,
			want:     Timing{FrameRate: 30, PrerollFrames: 60, QuietFramesToStop: 60, PostrollFrames: 60},
		},
		{
			name:     "preroll rounds up, quiet and postroll truncate",
			fps:      12.5,
			settings: RecordingSettings{PrerollSeconds: 1.1, QuietSecondsToStop: 1.1, PostrollSeconds: 1.1, FallbackFrameRate: 30},
			want:     Timing{FrameRate: 12.5, PrerollFrames: 14, QuietFramesToStop: 13, PostrollFrames: 13},
		},
		{
			name:     "zero durations clamp to one frame",
			fps:      30,
			settings: RecordingSettings{FallbackFrameRate: 30},
			want:     Timing{FrameRate: 30, PrerollFrames: 1, QuietFramesToStop: 1, PostrollFrames: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.TimingFor(tt.fps))
		})
	}
}

func TestCommandAndStateStrings(t *testing.T) {
	assert.Equal(t, "recording_auto", StateRecordingAuto.String())
	assert.True(t, StateRecordingManual.IsRecording())
	assert.False(t, StateIdle.IsRecording())
	assert.Equal(t, "toggle_recording", CommandToggleRecording.String())

	text, err := StateIdle.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "idle", string(text))
}
