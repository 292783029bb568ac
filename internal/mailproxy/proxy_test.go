package mailproxy

import (
	"errors"
	"testing"
	"time"

	"github.com/relaypoint/mailadmin/internal/circuitbreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProxy(t *testing.T) *Proxy {
	t.Helper()
	return &Proxy{
		breaker: circuitbreaker.New(circuitbreaker.Config{
			MaxFailures: 2,
			Timeout:     time.Minute,
		}),
		prefix: "/mailserver",
	}
}

func TestRewritePath(t *testing.T) {
	p := newTestProxy(t)

	assert.Equal(t, "/domains", p.rewritePath("/mailserver/domains"))
	assert.Equal(t, "/", p.rewritePath("/mailserver"))
	assert.Equal(t, "/other", p.rewritePath("/other"), "paths without the prefix pass through")
}

func TestBreakerAccessors(t *testing.T) {
	// The health endpoint reports BreakerState and the admin reset route
	// calls ResetBreaker; both must reflect the breaker's real state.
	p := newTestProxy(t)
	assert.Equal(t, circuitbreaker.StateClosed, p.BreakerState())

	boom := errors.New("upstream down")
	for i := 0; i < 2; i++ {
		require.Error(t, p.breaker.Call(func() error { return boom }))
	}
	assert.Equal(t, circuitbreaker.StateOpen, p.BreakerState())

	p.ResetBreaker()
	assert.Equal(t, circuitbreaker.StateClosed, p.BreakerState())
	assert.NoError(t, p.breaker.Call(func() error { return nil }))
}
