// Package checkout tracks the payment countdown of booking holds.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State of a hold as seen by the payment page.
type State string

const (
	StatePending   State = "pending"
	StateConfirmed State = "confirmed"
	StateCancelled State = "cancelled"
	StateExpired   State = "expired"
)

// Terminal reports whether no further transition is possible. Expired is terminal
// for the countdown, but a confirm may still be attempted against the server.
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateCancelled || s == StateExpired
}

var (
	ErrHoldExpired = errors.New("hold expired, please rebook")
	ErrNotPending  = errors.New("hold is no longer pending")
	ErrUnknownHold = errors.New("unknown hold")
)

// Actions are the server calls a countdown may request.
type Actions interface {
	ConfirmHold(ctx context.Context, token, holdID string) error
	CancelHold(ctx context.Context, token, holdID string) error
}

// Countdown is the state machine of one hold: pending -> confirmed | cancelled |
// expired. The local expiry is advisory; the server enforces the real one.
type Countdown struct {
	HoldID    string
	VenueID   string
	UserID    string
	ExpiresAt time.Time

	actions Actions
	clock   func() time.Time

	mu         sync.Mutex
	state      State
	onTerminal func(*Countdown, State)
}

// NewCountdown starts a pending countdown that expires at expiresAt.
func NewCountdown(holdID, venueID, userID string, expiresAt time.Time, actions Actions) *Countdown {
	return &Countdown{
		HoldID:    holdID,
		VenueID:   venueID,
		UserID:    userID,
		ExpiresAt: expiresAt,
		actions:   actions,
		clock:     time.Now,
		state:     StatePending,
	}
}

// ExpiryOrFallback returns the server-supplied expiry, or from+window when absent.
func ExpiryOrFallback(expiresAt *time.Time, from time.Time, window time.Duration) time.Time {
	if expiresAt != nil && !expiresAt.IsZero() {
		return *expiresAt
	}
	return from.Add(window)
}

// State returns the current state without advancing the clock.
func (c *Countdown) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining returns the whole seconds left at now, never negative.
func (c *Countdown) Remaining(now time.Time) int {
	left := c.ExpiresAt.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / time.Second)
}

// Tick advances the countdown to now. A pending countdown expires exactly when the
// remaining value reaches zero.
func (c *Countdown) Tick(now time.Time) (State, int) {
	remaining := c.Remaining(now)

	c.mu.Lock()
	var fire bool
	if c.state == StatePending && remaining == 0 {
		fire = c.transitionLocked(StateExpired)
	}
	state := c.state
	hook := c.onTerminal
	c.mu.Unlock()

	if fire && hook != nil {
		hook(c, state)
	}
	return state, remaining
}

// Confirm reports payment to the server. The state only changes once the server
// accepts. After a local expiry, a server success is still accepted and a server
// rejection is reported as ErrHoldExpired.
func (c *Countdown) Confirm(ctx context.Context, token string) error {
	c.mu.Lock()
	state := c.state
	c.mu.Unlock()
	if state == StateConfirmed || state == StateCancelled {
		return ErrNotPending
	}

	if err := c.actions.ConfirmHold(ctx, token, c.HoldID); err != nil {
		// The sweep may not have ticked since the deadline passed.
		if state, _ := c.Tick(c.clock()); state == StateExpired {
			return fmt.Errorf("%w: %v", ErrHoldExpired, err)
		}
		return err
	}

	c.finish(StateConfirmed)
	return nil
}

// Cancel releases the hold on the server. Only a pending countdown can be cancelled.
func (c *Countdown) Cancel(ctx context.Context, token string) error {
	if c.State() != StatePending {
		return ErrNotPending
	}
	if err := c.actions.CancelHold(ctx, token, c.HoldID); err != nil {
		return err
	}
	c.finish(StateCancelled)
	return nil
}

func (c *Countdown) finish(to State) {
	c.mu.Lock()
	fire := c.transitionLocked(to)
	hook := c.onTerminal
	c.mu.Unlock()

	if fire && hook != nil {
		hook(c, to)
	}
}

// transitionLocked moves to a terminal state. Confirmed and cancelled are final;
// expired may still become confirmed.
func (c *Countdown) transitionLocked(to State) bool {
	switch c.state {
	case StatePending:
	case StateExpired:
		if to != StateConfirmed {
			return false
		}
	default:
		return false
	}
	c.state = to
	return true
}

// Run ticks every interval until the countdown leaves pending or ctx ends. fn sees
// every tick, including the one that reaches a terminal state.
func (c *Countdown) Run(ctx context.Context, interval time.Duration, fn func(State, int)) {
	state, remaining := c.Tick(c.clock())
	fn(state, remaining)
	if state != StatePending {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			state, remaining := c.Tick(c.clock())
			fn(state, remaining)
			if state != StatePending {
				return
			}
		}
	}
}

// FormatRemaining renders seconds as MM:SS.
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%02d:%02d", seconds/60, seconds%60)
}
