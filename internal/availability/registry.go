package availability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"court-booking-backend/internal/events"
)

// RegistryOptions configure the refreshers a Registry creates.
type RegistryOptions struct {
	TopicPrefix  string
	PollInterval time.Duration
	IdleTTL      time.Duration
	// OnChange, when set, receives the venue of the refresher along with the snapshots.
	OnChange func(venueID string, prev, next Snapshot)
}

// Registry keeps one running Refresher per venue and date. Refreshers that are not
// requested for IdleTTL are evicted and stopped.
type Registry struct {
	ctx     context.Context
	fetcher Fetcher
	channel events.Channel
	opts    RegistryOptions
	logger  *zap.Logger

	mu         sync.Mutex
	refreshers *cache.Cache
	stopping   sync.WaitGroup
}

// registryEntry is published before its refresher starts; ready is closed once
// Start has returned and err is set.
type registryEntry struct {
	refresher *Refresher
	ready     chan struct{}
	err       error
}

// NewRegistry creates a registry whose refreshers live under ctx.
func NewRegistry(ctx context.Context, fetcher Fetcher, channel events.Channel, opts RegistryOptions, logger *zap.Logger) *Registry {
	r := &Registry{
		ctx:        ctx,
		fetcher:    fetcher,
		channel:    channel,
		opts:       opts,
		logger:     logger,
		refreshers: cache.New(opts.IdleTTL, opts.IdleTTL/2+time.Second),
	}
	r.refreshers.OnEvicted(func(key string, v interface{}) {
		logger.Debug("evicting refresher", zap.String("key", key))
		// Stop waits for in-flight fetches; keep it off the janitor goroutine.
		r.stopping.Add(1)
		go func() {
			defer r.stopping.Done()
			v.(*registryEntry).refresher.Stop()
		}()
	})
	return r
}

func registryKey(venueID, date string) string {
	return fmt.Sprintf("%s|%s", venueID, date)
}

// Get returns the running refresher of venueID and date, creating and starting it
// (including its first fetch) on first use. Every call extends its idle lifetime.
// Only callers asking for the same venue and date wait on a first fetch.
func (r *Registry) Get(venueID, date string) (*Refresher, error) {
	key := registryKey(venueID, date)

	r.mu.Lock()
	var entry *registryEntry
	starting := false
	if v, found := r.refreshers.Get(key); found {
		entry = v.(*registryEntry)
	} else {
		// go-cache hides an expired item until the janitor sweeps it, and SetDefault
		// would overwrite it without eviction. Delete runs OnEvicted on it.
		r.refreshers.Delete(key)
		entry = &registryEntry{
			refresher: r.newRefresher(venueID, date),
			ready:     make(chan struct{}),
		}
		starting = true
	}
	r.refreshers.SetDefault(key, entry)
	r.mu.Unlock()

	if starting {
		entry.err = entry.refresher.Start(r.ctx)
		close(entry.ready)
		if entry.err != nil {
			r.mu.Lock()
			if v, found := r.refreshers.Get(key); found && v == entry {
				r.refreshers.Delete(key)
			}
			r.mu.Unlock()
		}
	} else {
		<-entry.ready
	}

	if entry.err != nil {
		return nil, fmt.Errorf("failed to start refresher for %s: %w", key, entry.err)
	}
	return entry.refresher, nil
}

func (r *Registry) newRefresher(venueID, date string) *Refresher {
	opts := Options{
		Topic:        events.VenueTopic(r.opts.TopicPrefix, venueID),
		PollInterval: r.opts.PollInterval,
	}
	if r.opts.OnChange != nil {
		opts.OnChange = func(prev, next Snapshot) { r.opts.OnChange(venueID, prev, next) }
	}
	return NewRefresher(venueID, date, r.fetcher, r.channel, opts, r.logger)
}

// Release stops and forgets the refresher of venueID and date, if any.
func (r *Registry) Release(venueID, date string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshers.Delete(registryKey(venueID, date))
}

// Len returns the number of live refreshers.
func (r *Registry) Len() int {
	return r.refreshers.ItemCount()
}

// Close stops every refresher, including expired ones the janitor has not swept.
func (r *Registry) Close() {
	r.mu.Lock()
	r.refreshers.DeleteExpired()
	items := r.refreshers.Items()
	r.refreshers.Flush()
	r.mu.Unlock()

	for _, item := range items {
		item.Object.(*registryEntry).refresher.Stop()
	}
	r.stopping.Wait()
}
