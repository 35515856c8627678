package checkout

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// TerminalFunc is called on every terminal transition. An expired hold that the
// server still confirms reports twice: expired, then confirmed.
type TerminalFunc func(c *Countdown, state State)

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// HoldWindow is the fallback expiry used when the server sends none.
	HoldWindow time.Duration
	// Retention keeps finished countdowns readable after expiry.
	Retention time.Duration
	// Tick is the sweep interval of Run.
	Tick       time.Duration
	OnTerminal TerminalFunc
	Clock      func() time.Time
}

// Manager tracks the countdowns of every hold this service has seen.
type Manager struct {
	actions Actions
	opts    ManagerOptions
	items   *cache.Cache
	logger  *zap.Logger
}

// NewManager creates a manager.
func NewManager(actions Actions, opts ManagerOptions, logger *zap.Logger) *Manager {
	if opts.HoldWindow <= 0 {
		opts.HoldWindow = 10 * time.Minute
	}
	if opts.Retention <= 0 {
		opts.Retention = opts.HoldWindow
	}
	if opts.Tick <= 0 {
		opts.Tick = time.Second
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Manager{
		actions: actions,
		opts:    opts,
		items:   cache.New(opts.Retention, opts.Retention),
		logger:  logger,
	}
}

// Track registers a pending hold. Tracking an already known hold returns the existing
// countdown unchanged.
func (m *Manager) Track(holdID, venueID, userID string, expiresAt *time.Time) *Countdown {
	if existing, ok := m.items.Get(holdID); ok {
		return existing.(*Countdown)
	}

	now := m.opts.Clock()
	c := NewCountdown(holdID, venueID, userID, ExpiryOrFallback(expiresAt, now, m.opts.HoldWindow), m.actions)
	c.clock = m.opts.Clock
	c.onTerminal = m.terminal

	ttl := c.ExpiresAt.Sub(now) + m.opts.Retention
	if ttl <= 0 {
		ttl = m.opts.Retention
	}
	if err := m.items.Add(holdID, c, ttl); err != nil {
		// Lost a race with a concurrent Track.
		if existing, ok := m.items.Get(holdID); ok {
			return existing.(*Countdown)
		}
		m.items.Set(holdID, c, ttl)
	}
	m.logger.Debug("tracking hold",
		zap.String("hold_id", holdID),
		zap.String("venue_id", venueID),
		zap.Time("expires_at", c.ExpiresAt),
	)
	return c
}

// Get returns the countdown for holdID.
func (m *Manager) Get(holdID string) (*Countdown, error) {
	item, ok := m.items.Get(holdID)
	if !ok {
		return nil, ErrUnknownHold
	}
	return item.(*Countdown), nil
}

// Len returns the number of tracked holds.
func (m *Manager) Len() int {
	return m.items.ItemCount()
}

// Sweep ticks every tracked countdown, expiring the ones past their deadline.
func (m *Manager) Sweep() {
	now := m.opts.Clock()
	for _, item := range m.items.Items() {
		if c, ok := item.Object.(*Countdown); ok {
			c.Tick(now)
		}
	}
}

// Run sweeps on every tick until ctx is cancelled, so holds expire even when no
// client is watching them.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.opts.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("countdown manager stopped")
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Manager) terminal(c *Countdown, state State) {
	m.logger.Info("hold finished",
		zap.String("hold_id", c.HoldID),
		zap.String("venue_id", c.VenueID),
		zap.String("state", string(state)),
	)
	if m.opts.OnTerminal != nil {
		m.opts.OnTerminal(c, state)
	}
}
