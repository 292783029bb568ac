package audit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Record(event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestAsyncRecorder_DrainsOnClose(t *testing.T) {
	sink := &captureSink{}
	recorder := NewAsyncRecorder(sink, 16)

	for i := 0; i < 5; i++ {
		recorder.Record(Event{Action: "reset_counter", Subject: "signup_ip:203.0.113.9:hourly", At: time.Now()})
	}
	recorder.Close()

	assert.Equal(t, 5, sink.count())
}

func TestAsyncRecorder_RecordAfterClose(t *testing.T) {
	// A handler still in flight when shutdown closes the recorder must not
	// panic, and its event still reaches the sink.
	sink := &captureSink{}
	recorder := NewAsyncRecorder(sink, 16)
	recorder.Close()

	require.NotPanics(t, func() {
		recorder.Record(Event{Action: "suspend_sending", Subject: "user-1", At: time.Now()})
	})
	assert.Equal(t, 1, sink.count(), "late events fall back to a synchronous write")
}

func TestAsyncRecorder_CloseIsIdempotent(t *testing.T) {
	recorder := NewAsyncRecorder(&captureSink{}, 4)
	recorder.Close()

	require.NotPanics(t, recorder.Close)
}
