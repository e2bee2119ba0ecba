package control

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
	"golang.org/x/term"
)

const (
	keyCtrlC  = 3
	keyEscape = 27
)

// DecodeKey maps a single key press onto a command
func DecodeKey(b byte) recording.Command {
	switch b {
	case ' ':
		return recording.CommandToggleRecording
	case 'a', 'A':
		return recording.CommandToggleAuto
	case keyEscape, keyCtrlC:
		return recording.CommandQuit
	default:
		return recording.CommandNone
	}
}

// Keyboard reads single key presses from a terminal and submits them to a Hub.
// When the input is a terminal it is switched to raw mode for the duration of Run.
type Keyboard struct {
	in     io.Reader
	hub    *Hub
	logger logging.Logger
}

func NewKeyboard(in io.Reader, hub *Hub, logger logging.Logger) *Keyboard {
	if in == nil {
		in = os.Stdin
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &Keyboard{in: in, hub: hub, logger: logger}
}

// Run submits decoded keys until ctx is cancelled, the input ends or a quit key is read.
func (k *Keyboard) Run(ctx context.Context) error {
	if f, ok := k.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("failed to switch terminal to raw mode: %w", err)
		}
		defer func() {
			if err := term.Restore(int(f.Fd()), state); err != nil {
				k.logger.Warn("failed to restore terminal", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	keys := make(chan byte)
	readErr := make(chan error, 1)
	// the reader may stay blocked in Read after Run returns; it exits with the process
	go func() {
		buf := make([]byte, 1)
		for {
			n, err := k.in.Read(buf)
			if n > 0 {
				select {
				case keys <- buf[0]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				readErr <- err
				return
			}
		}
	}()

	k.logger.Info("keyboard controls active", "toggle_recording", "space", "toggle_auto", "a", "quit", "esc")
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read keyboard input: %w", err)
		case b := <-keys:
			cmd := DecodeKey(b)
			if cmd == recording.CommandNone {
				continue
			}
			k.hub.Submit(cmd)
			if cmd == recording.CommandQuit {
				return nil
			}
		}
	}
}
