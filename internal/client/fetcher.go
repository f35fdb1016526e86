package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/neighbourhood/atmfinder/internal/geo"
)

// DefaultRefreshInterval is the background freshness cadence.
const DefaultRefreshInterval = 5 * time.Minute

// ErrNoData indicates a fetch failed before any data was ever loaded.
var ErrNoData = errors.New("no atm data available")

// FetchOptions scope one fetch attempt.
type FetchOptions struct {
	// UsePreferences requests the preference-filtered endpoint when a token
	// is available.
	UsePreferences bool
	Token          string
	Location       *geo.Coordinate
}

// Fetcher retrieves the ATM list with the degradation policy the map uses:
// filtered requests fall back to unfiltered ones, and once data has been
// shown it is never blanked by a failed refresh. Responses carry sequence
// numbers so a slow, superseded request cannot overwrite a newer result.
type Fetcher struct {
	client *Client
	logger *slog.Logger

	mu          sync.Mutex
	nextSeq     uint64
	appliedSeq  uint64
	atms        []ATM
	loaded      bool
	lastUpdated time.Time

	done    chan struct{}
	stopped chan struct{}
}

// NewFetcher builds a fetcher over the API client.
func NewFetcher(c *Client, logger *slog.Logger) *Fetcher {
	return &Fetcher{client: c, logger: logger}
}

// Fetch retrieves the current ATM list. On a filtered-request failure it
// retries unfiltered; on total failure it returns the stale list when one
// exists and ErrNoData otherwise.
func (f *Fetcher) Fetch(ctx context.Context, opts FetchOptions) ([]ATM, error) {
	seq := f.claimSeq()

	if opts.UsePreferences && opts.Token != "" {
		atms, err := f.client.ListFilteredATMs(ctx, opts.Token, opts.Location)
		if err == nil {
			return f.commit(seq, atms), nil
		}
		f.logger.Warn("preference-filtered fetch failed, retrying unfiltered", "error", err)
	}

	atms, err := f.client.ListATMs(ctx)
	if err != nil {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.loaded {
			// Stale data beats a blank screen.
			f.logger.Warn("atm refresh failed, keeping stale data", "error", err)
			return snapshot(f.atms), nil
		}
		return nil, ErrNoData
	}
	return f.commit(seq, atms), nil
}

// Current returns the last committed list and its timestamp.
func (f *Fetcher) Current() ([]ATM, time.Time, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return snapshot(f.atms), f.lastUpdated, f.loaded
}

// StartAutoRefresh refreshes the list on a fixed interval until StopAutoRefresh
// is called or the context is cancelled. opts is re-evaluated per tick so the
// caller can reflect token and location changes.
func (f *Fetcher) StartAutoRefresh(ctx context.Context, interval time.Duration, opts func() FetchOptions) {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}

	done := make(chan struct{})
	stopped := make(chan struct{})
	f.mu.Lock()
	f.done = done
	f.stopped = stopped
	f.mu.Unlock()

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := f.Fetch(ctx, opts()); err != nil {
					f.logger.Warn("background atm refresh failed", "error", err)
				}
			case <-ctx.Done():
				return
			case <-done:
				return
			}
		}
	}()
}

// StopAutoRefresh terminates the background refresh loop.
func (f *Fetcher) StopAutoRefresh() {
	f.mu.Lock()
	done, stopped := f.done, f.stopped
	f.done, f.stopped = nil, nil
	f.mu.Unlock()

	if done != nil {
		close(done)
	}
	if stopped != nil {
		<-stopped
	}
}

func (f *Fetcher) claimSeq() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSeq++
	return f.nextSeq
}

// commit applies a response unless a newer request already landed, in which
// case the newer list is returned instead.
func (f *Fetcher) commit(seq uint64, atms []ATM) []ATM {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seq < f.appliedSeq {
		return snapshot(f.atms)
	}
	f.appliedSeq = seq
	f.atms = snapshot(atms)
	f.loaded = true
	f.lastUpdated = time.Now()
	return snapshot(f.atms)
}

func snapshot(atms []ATM) []ATM {
	out := make([]ATM, len(atms))
	copy(out, atms)
	return out
}
