package control

import (
	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
)

const DefaultHubSize = 8

// Hub collects operator commands from every control surface and hands them
// to the processing loop one per frame.
type Hub struct {
	commands chan recording.Command
	logger   logging.Logger
}

func NewHub(size int, logger logging.Logger) *Hub {
	if size <= 0 {
		size = DefaultHubSize
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &Hub{
		commands: make(chan recording.Command, size),
		logger:   logger,
	}
}

// Submit enqueues cmd without blocking. It returns false when the queue is full.
func (h *Hub) Submit(cmd recording.Command) bool {
	if cmd == recording.CommandNone {
		return true
	}
	select {
	case h.commands <- cmd:
		h.logger.Debug("command queued", "command", cmd)
		return true
	default:
		h.logger.Warn("command queue full, dropping command", "command", cmd)
		return false
	}
}

// Poll returns the oldest pending command or CommandNone
func (h *Hub) Poll() recording.Command {
	select {
	case cmd := <-h.commands:
		return cmd
	default:
		return recording.CommandNone
	}
}
