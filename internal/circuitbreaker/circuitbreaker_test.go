package circuitbreaker_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourorg/payment-gateway/internal/circuitbreaker"
)

const (
	testBackend    = "stripe"
	anotherBackend = "paypal_express"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newBreaker(cfg circuitbreaker.Config) (*circuitbreaker.CircuitBreaker, *fakeClock) {
	clk := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	return circuitbreaker.New(cfg).WithClock(clk.Now), clk
}

func TestNew_Defaults(t *testing.T) {
	cb, _ := newBreaker(circuitbreaker.Config{})
	require.NotNil(t, cb)

	for i := 0; i < 4; i++ {
		cb.RecordFailure(testBackend)
	}
	assert.True(t, cb.AllowRequest(testBackend), "should still be closed after 4 failures")
	cb.RecordFailure(testBackend)
	assert.False(t, cb.AllowRequest(testBackend), "should be open after 5 failures with default config")
	assert.Equal(t, circuitbreaker.Open, cb.State(testBackend))
}

func TestCircuitBreaker_Lifecycle(t *testing.T) {
	cb, clk := newBreaker(circuitbreaker.Config{FailureThreshold: 2, ResetTimeout: time.Minute, HalfOpenSuccesses: 2})

	assert.Equal(t, circuitbreaker.Closed, cb.State(testBackend))
	cb.RecordFailure(testBackend)
	cb.RecordFailure(testBackend)
	assert.False(t, cb.AllowRequest(testBackend))

	clk.Advance(59 * time.Second)
	assert.False(t, cb.AllowRequest(testBackend), "still open before timeout")

	clk.Advance(2 * time.Second)
	assert.True(t, cb.AllowRequest(testBackend))
	assert.Equal(t, circuitbreaker.HalfOpen, cb.State(testBackend))

	cb.RecordSuccess(testBackend)
	assert.Equal(t, circuitbreaker.HalfOpen, cb.State(testBackend))
	cb.RecordSuccess(testBackend)
	assert.Equal(t, circuitbreaker.Closed, cb.State(testBackend))
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newBreaker(circuitbreaker.Config{FailureThreshold: 1, ResetTimeout: time.Second})

	cb.RecordFailure(testBackend)
	clk.Advance(2 * time.Second)
	require.True(t, cb.AllowRequest(testBackend))

	cb.RecordFailure(testBackend)
	assert.Equal(t, circuitbreaker.Open, cb.State(testBackend))
	assert.False(t, cb.AllowRequest(testBackend))
}

func TestCircuitBreaker_SuccessResetsFailureCount(t *testing.T) {
	cb, _ := newBreaker(circuitbreaker.Config{FailureThreshold: 3})

	cb.RecordFailure(testBackend)
	cb.RecordFailure(testBackend)
	cb.RecordSuccess(testBackend)
	cb.RecordFailure(testBackend)
	cb.RecordFailure(testBackend)
	assert.True(t, cb.AllowRequest(testBackend))
}

func TestCircuitBreaker_BackendsAreIsolated(t *testing.T) {
	cb, _ := newBreaker(circuitbreaker.Config{FailureThreshold: 1})

	cb.RecordFailure(testBackend)
	assert.False(t, cb.AllowRequest(testBackend))
	assert.True(t, cb.AllowRequest(anotherBackend))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", circuitbreaker.Closed.String())
	assert.Equal(t, "open", circuitbreaker.Open.String())
	assert.Equal(t, "half_open", circuitbreaker.HalfOpen.String())
	assert.Equal(t, "unknown", circuitbreaker.State(9).String())
}
