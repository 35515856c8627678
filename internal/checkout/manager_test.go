package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type terminalRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *terminalRecorder) record(_ *Countdown, s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *terminalRecorder) all() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestManager_TrackIsIdempotent(t *testing.T) {
	m := NewManager(&fakeActions{}, ManagerOptions{Clock: fixedClock(epoch)}, zaptest.NewLogger(t))

	exp := epoch.Add(2 * time.Minute)
	first := m.Track("h1", "v1", "u1", &exp)
	later := epoch.Add(9 * time.Minute)
	second := m.Track("h1", "v1", "u1", &later)

	assert.Same(t, first, second)
	assert.Equal(t, exp, second.ExpiresAt)
	assert.Equal(t, 1, m.Len())
}

func TestManager_TrackFallsBackToHoldWindow(t *testing.T) {
	m := NewManager(&fakeActions{}, ManagerOptions{HoldWindow: 10 * time.Minute, Clock: fixedClock(epoch)}, zaptest.NewLogger(t))

	c := m.Track("h1", "v1", "u1", nil)
	assert.Equal(t, epoch.Add(10*time.Minute), c.ExpiresAt)
	assert.Equal(t, 600, c.Remaining(epoch))
}

func TestManager_GetUnknown(t *testing.T) {
	m := NewManager(&fakeActions{}, ManagerOptions{}, zaptest.NewLogger(t))

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrUnknownHold)
}

func TestManager_SweepExpiresAndReportsOnce(t *testing.T) {
	var mu sync.Mutex
	now := epoch
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	rec := &terminalRecorder{}
	m := NewManager(&fakeActions{}, ManagerOptions{Clock: clock, OnTerminal: rec.record}, zaptest.NewLogger(t))

	exp := epoch.Add(5 * time.Second)
	m.Track("h1", "v1", "u1", &exp)
	later := epoch.Add(time.Hour)
	m.Track("h2", "v1", "u2", &later)

	m.Sweep()
	assert.Empty(t, rec.all())

	mu.Lock()
	now = epoch.Add(5 * time.Second)
	mu.Unlock()
	m.Sweep()
	m.Sweep()

	assert.Equal(t, []State{StateExpired}, rec.all())

	c, err := m.Get("h1")
	require.NoError(t, err)
	assert.Equal(t, StateExpired, c.State())

	c2, err := m.Get("h2")
	require.NoError(t, err)
	assert.Equal(t, StatePending, c2.State())
}

func TestManager_ConfirmAndCancelReportTerminal(t *testing.T) {
	rec := &terminalRecorder{}
	m := NewManager(&fakeActions{}, ManagerOptions{OnTerminal: rec.record}, zaptest.NewLogger(t))

	require.NoError(t, m.Track("h1", "v1", "u1", nil).Confirm(context.Background(), "token"))
	require.NoError(t, m.Track("h2", "v1", "u1", nil).Cancel(context.Background(), "token"))

	assert.Equal(t, []State{StateConfirmed, StateCancelled}, rec.all())
}

func TestManager_FailedConfirmDoesNotReport(t *testing.T) {
	rec := &terminalRecorder{}
	m := NewManager(&fakeActions{confirmErr: errors.New("boom")}, ManagerOptions{OnTerminal: rec.record}, zaptest.NewLogger(t))

	assert.Error(t, m.Track("h1", "v1", "u1", nil).Confirm(context.Background(), "token"))
	assert.Empty(t, rec.all())
}

func TestManager_RunSweepsUntilCancelled(t *testing.T) {
	rec := &terminalRecorder{}
	m := NewManager(&fakeActions{}, ManagerOptions{Tick: 5 * time.Millisecond, OnTerminal: rec.record}, zaptest.NewLogger(t))

	exp := time.Now().Add(20 * time.Millisecond)
	m.Track("h1", "v1", "u1", &exp)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(rec.all()) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
