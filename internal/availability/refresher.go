// Package availability keeps the confirmed bookings and pending holds of one venue
// and date fresh, and projects them onto the slot grid.
package availability

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"court-booking-backend/internal/booking"
	"court-booking-backend/internal/events"
	"court-booking-backend/internal/slots"
)

// Fetcher reads the two remote lists. Both calls are independent.
type Fetcher interface {
	ConfirmedBookings(ctx context.Context, venueID, date string) ([]booking.ConfirmedBooking, error)
	PendingHolds(ctx context.Context, venueID, date string) ([]booking.PendingHold, error)
}

// Snapshot is a copy of the latest fetched lists.
type Snapshot struct {
	VenueID        string
	Date           string
	Bookings       []booking.ConfirmedBooking
	Holds          []booking.PendingHold
	BookingsLoaded bool
	HoldsLoaded    bool
	UpdatedAt      time.Time
}

// Ready reports whether both lists have been loaded at least once.
func (s Snapshot) Ready() bool {
	return s.BookingsLoaded && s.HoldsLoaded
}

// ChangeFunc observes consecutive ready snapshots.
type ChangeFunc func(prev, next Snapshot)

// Options tune a Refresher.
type Options struct {
	// Topic is the venue topic to subscribe to.
	Topic string
	// PollInterval re-fetches periodically when positive.
	PollInterval time.Duration
	// OnChange is called after each refresh once both lists are loaded.
	OnChange ChangeFunc
}

// Refresher owns the local copy of one venue+date. It never mutates the lists
// locally: every transition is observed through a re-fetch.
type Refresher struct {
	venueID string
	date    string
	fetcher Fetcher
	channel events.Channel
	opts    Options
	logger  *zap.Logger

	mu       sync.RWMutex
	snap     Snapshot
	notified *Snapshot

	lifecycle sync.Mutex
	started   bool
	stopped   bool
	cancel    context.CancelFunc
	sub       events.Subscription
	done      chan struct{}

	spawnMu  sync.Mutex
	closing  bool
	inflight sync.WaitGroup
}

// NewRefresher creates an idle refresher; call Start to begin syncing.
func NewRefresher(venueID, date string, fetcher Fetcher, channel events.Channel, opts Options, logger *zap.Logger) *Refresher {
	return &Refresher{
		venueID: venueID,
		date:    date,
		fetcher: fetcher,
		channel: channel,
		opts:    opts,
		logger:  logger.Named("refresher").With(zap.String("venue_id", venueID), zap.String("date", date)),
		snap:    Snapshot{VenueID: venueID, Date: date},
	}
}

// Start subscribes to the venue topic, performs the first fetch and launches the
// poll loop. Calling Start again is a no-op.
func (r *Refresher) Start(ctx context.Context) error {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.started || r.stopped {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	if r.channel != nil && r.opts.Topic != "" {
		sub, err := r.channel.Subscribe(runCtx, r.opts.Topic, func(events.Event) {
			r.spawnRefresh(runCtx)
		})
		if err != nil {
			cancel()
			return err
		}
		r.sub = sub
	}

	r.started = true
	r.cancel = cancel
	r.done = make(chan struct{})

	r.Refresh(runCtx)
	go r.run(runCtx)
	return nil
}

// spawnRefresh runs an event-triggered refresh in the background. Overlapping
// refreshes are not coalesced; the last response wins.
func (r *Refresher) spawnRefresh(ctx context.Context) {
	r.spawnMu.Lock()
	defer r.spawnMu.Unlock()
	if r.closing {
		return
	}
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.Refresh(ctx)
	}()
}

// Stop unsubscribes, stops polling, cancels in-flight fetches and waits for them.
// Calling Stop more than once is a no-op.
func (r *Refresher) Stop() {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()
	if r.stopped {
		return
	}
	r.stopped = true
	if !r.started {
		return
	}

	r.spawnMu.Lock()
	r.closing = true
	r.spawnMu.Unlock()

	if r.sub != nil {
		if err := r.sub.Unsubscribe(); err != nil {
			r.logger.Warn("failed to unsubscribe", zap.Error(err))
		}
	}
	r.cancel()
	r.inflight.Wait()
	<-r.done
	r.logger.Debug("refresher stopped")
}

func (r *Refresher) run(ctx context.Context) {
	defer close(r.done)
	if r.opts.PollInterval <= 0 {
		<-ctx.Done()
		return
	}

	timer := time.NewTimer(r.opts.PollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.Refresh(ctx)
			timer.Reset(r.opts.PollInterval)
		}
	}
}

// Refresh fetches both lists concurrently and waits for both. A failed fetch keeps
// the previous list for that side.
func (r *Refresher) Refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		list, err := r.fetcher.ConfirmedBookings(ctx, r.venueID, r.date)
		if err != nil {
			r.logger.Warn("failed to fetch confirmed bookings, keeping previous list", zap.Error(err))
			return
		}
		r.mu.Lock()
		r.snap.Bookings = list
		r.snap.BookingsLoaded = true
		r.snap.UpdatedAt = time.Now()
		r.mu.Unlock()
	}()

	go func() {
		defer wg.Done()
		list, err := r.fetcher.PendingHolds(ctx, r.venueID, r.date)
		if err != nil {
			r.logger.Warn("failed to fetch pending holds, keeping previous list", zap.Error(err))
			return
		}
		r.mu.Lock()
		r.snap.Holds = list
		r.snap.HoldsLoaded = true
		r.snap.UpdatedAt = time.Now()
		r.mu.Unlock()
	}()

	wg.Wait()
	r.notify()
}

func (r *Refresher) notify() {
	if r.opts.OnChange == nil {
		return
	}

	r.mu.Lock()
	next := r.copyLocked()
	if !next.Ready() {
		r.mu.Unlock()
		return
	}
	prev := r.notified
	r.notified = &next
	r.mu.Unlock()

	if prev != nil {
		r.opts.OnChange(*prev, next)
	}
}

// Snapshot returns a copy of the current lists.
func (r *Refresher) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.copyLocked()
}

func (r *Refresher) copyLocked() Snapshot {
	s := r.snap
	s.Bookings = append([]booking.ConfirmedBooking(nil), r.snap.Bookings...)
	s.Holds = append([]booking.PendingHold(nil), r.snap.Holds...)
	return s
}

// Views projects the current snapshot onto the grid of courtID for viewerID.
func (r *Refresher) Views(venue *booking.Venue, courtID, viewerID string) ([]slots.View, Snapshot) {
	snap := r.Snapshot()
	return slots.Compute(venue, courtID, snap.Bookings, snap.Holds, viewerID), snap
}
