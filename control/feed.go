package control

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/Kim-Ziho/doorbell-camera/logging"
	"github.com/Kim-Ziho/doorbell-camera/recording"
)

const DefaultSubscriberBuffer = 32

// envelope is the wire format for feed messages
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func encodeEnvelope(kind string, at time.Time, data any) ([]byte, error) {
	env := envelope{Type: kind, Data: data}
	if !at.IsZero() {
		env.Ts = &at
	}
	return json.Marshal(env)
}

type subscriber struct {
	send chan []byte
}

// EventFeed fans recording events out to subscribers as serialized JSON frames.
// It is a recording.Listener: OnEvent never blocks, and a subscriber whose
// buffer is full is disconnected.
type EventFeed struct {
	logger  logging.Logger
	sendBuf int

	mu     sync.Mutex
	subs   map[*subscriber]struct{}
	closed bool
}

func NewEventFeed(sendBuf int, logger logging.Logger) *EventFeed {
	if sendBuf <= 0 {
		sendBuf = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = logging.NopLogger
	}
	return &EventFeed{
		logger:  logger,
		sendBuf: sendBuf,
		subs:    make(map[*subscriber]struct{}),
	}
}

// Subscribe registers a new subscriber. The returned channel is closed when the
// subscriber is dropped, cancelled or the feed is closed.
func (f *EventFeed) Subscribe() (<-chan []byte, func()) {
	sub := &subscriber{send: make(chan []byte, f.sendBuf)}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.send)
		return sub.send, func() {}
	}
	f.subs[sub] = struct{}{}
	f.mu.Unlock()

	return sub.send, func() { f.remove(sub, "unsubscribe") }
}

func (f *EventFeed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *EventFeed) OnEvent(e recording.Event) {
	msg, err := encodeEnvelope(string(e.Kind), e.At, e)
	if err != nil {
		f.logger.Error("failed to encode event", "kind", e.Kind, "error", err)
		return
	}
	f.Broadcast(msg)
}

// Broadcast delivers a pre-serialized frame to every subscriber without blocking
func (f *EventFeed) Broadcast(msg []byte) {
	var slow []*subscriber

	f.mu.Lock()
	for sub := range f.subs {
		select {
		case sub.send <- msg:
		default:
			slow = append(slow, sub)
		}
	}
	f.mu.Unlock()

	for _, sub := range slow {
		f.remove(sub, "slow_subscriber")
	}
}

func (f *EventFeed) remove(sub *subscriber, reason string) {
	f.mu.Lock()
	_, ok := f.subs[sub]
	if ok {
		delete(f.subs, sub)
		close(sub.send)
	}
	n := len(f.subs)
	f.mu.Unlock()

	if ok && reason != "unsubscribe" {
		f.logger.Info("event subscriber disconnected", "reason", reason, "subscribers", n)
	}
}

// Close disconnects every subscriber
func (f *EventFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	for sub := range f.subs {
		close(sub.send)
		delete(f.subs, sub)
	}
}
