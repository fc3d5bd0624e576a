package circuit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// step is one Record call: 'f' for failure, 's' for success.
type step struct {
	call     byte
	wantOpen bool
	opened   bool
	closed   bool
}

func run(t *testing.T, b *Breaker, steps []step) {
	t.Helper()
	for i, st := range steps {
		var change StateChange
		if st.call == 'f' {
			_, change = b.RecordFailure()
		} else {
			_, change = b.RecordSuccess()
		}
		assert.Equal(t, st.wantOpen, b.IsOpen(), "step %d", i)
		assert.Equal(t, st.opened, change.Opened, "step %d opened", i)
		assert.Equal(t, st.closed, change.Closed, "step %d closed", i)
	}
}

func TestBreakerTransitions(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		steps []step
	}{
		{
			name: "opens on the third consecutive failure",
			opts: []Option{WithFailureThreshold(3)},
			steps: []step{
				{call: 'f'}, {call: 'f'},
				{call: 'f', wantOpen: true, opened: true},
				{call: 'f', wantOpen: true},
			},
		},
		{
			name: "success while closed clears the failure streak",
			opts: []Option{WithFailureThreshold(2)},
			steps: []step{
				{call: 'f'}, {call: 's'}, {call: 'f'},
				{call: 'f', wantOpen: true, opened: true},
			},
		},
		{
			name: "closes after enough probes succeed",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{call: 'f', wantOpen: true, opened: true},
				{call: 's', wantOpen: true},
				{call: 's', closed: true},
			},
		},
		{
			name: "a failed probe restarts the success count",
			opts: []Option{WithFailureThreshold(1), WithSuccessThreshold(2)},
			steps: []step{
				{call: 'f', wantOpen: true, opened: true},
				{call: 's', wantOpen: true},
				{call: 'f', wantOpen: true},
				{call: 's', wantOpen: true},
				{call: 's', closed: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run(t, New("audit-kafka", tt.opts...), tt.steps)
		})
	}
}

func TestBreakerFallbackFlags(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(1))
	useFallback, _ := b.RecordFailure()
	assert.True(t, useFallback)

	usePrimary, _ := b.RecordSuccess()
	assert.False(t, usePrimary, "default success threshold is two")
	usePrimary, _ = b.RecordSuccess()
	assert.True(t, usePrimary)
}

func TestBreakerResetAndNames(t *testing.T) {
	b := New("audit-kafka", WithFailureThreshold(1), WithFailureThreshold(0))
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, "open", b.State().String())

	b.Reset()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "closed", b.State().String())
	assert.Equal(t, "audit-kafka", b.Name())
}
