package audit

import (
	"log"
	"sync"
	"time"
)

// Event is one remediation or configuration action taken by an operator.
// The portal only forwards these; rendering and querying audit history
// belongs to the audit-log service.
type Event struct {
	Actor   string    `json:"actor"`
	Action  string    `json:"action"`
	Subject string    `json:"subject"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

type Recorder interface {
	Record(event Event)
}

// LogRecorder writes events to the process log. Stand-in sink when no audit
// service is wired up.
type LogRecorder struct{}

func (LogRecorder) Record(event Event) {
	log.Printf("AUDIT actor=%s action=%s subject=%s detail=%q", event.Actor, event.Action, event.Subject, event.Detail)
}

// AsyncRecorder decouples callers from the sink with a buffered channel so a
// slow audit backend never delays a remediation request. Events are dropped
// with a log line when the buffer is full.
type AsyncRecorder struct {
	sink   Recorder
	events chan Event
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewAsyncRecorder(sink Recorder, bufferSize int) *AsyncRecorder {
	if bufferSize <= 0 {
		bufferSize = 256
	}

	r := &AsyncRecorder{
		sink:   sink,
		events: make(chan Event, bufferSize),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		for event := range r.events {
			r.sink.Record(event)
		}
	}()

	return r
}

// Record is safe to call concurrently with Close: a handler still in flight
// during shutdown falls back to recording synchronously instead of sending
// on the closed channel.
func (r *AsyncRecorder) Record(event Event) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.sink.Record(event)
		return
	}

	select {
	case r.events <- event:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		log.Printf("audit buffer full, dropping event: %s %s", event.Action, event.Subject)
	}
}

// Close drains outstanding events and stops the worker. Idempotent.
func (r *AsyncRecorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	close(r.events)
	<-r.done
}
