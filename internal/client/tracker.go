package client

import (
	"context"
	"log/slog"
	"sync"

	"github.com/neighbourhood/atmfinder/internal/geo"
)

// maxAccuracyMeters is the sanity threshold above which a reported accuracy is
// discarded as unreliable. The position itself is still used.
const maxAccuracyMeters = 50000

// Position is one reading from a location source.
type Position struct {
	Lat      float64
	Lng      float64
	Accuracy float64 // metres; 0 when unknown
}

// LocationSource abstracts the platform location API.
type LocationSource interface {
	// Current returns a single position fix.
	Current(ctx context.Context) (Position, error)
	// Watch streams position updates until ctx is cancelled.
	Watch(ctx context.Context) (<-chan Position, error)
}

// Tracker owns the user's location: it validates readings, applies the
// fallback policy and serves the latest position to the rest of the pipeline.
type Tracker struct {
	source   LocationSource
	logger   *slog.Logger
	fallback geo.Coordinate

	mu       sync.Mutex
	loc      geo.Coordinate
	accuracy *float64
	haveFix  bool
	lastErr  string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewTracker builds a tracker over the given source. Kingston is the fallback
// center when the platform cannot provide a position.
func NewTracker(source LocationSource, logger *slog.Logger) *Tracker {
	return &Tracker{
		source:   source,
		logger:   logger,
		fallback: geo.KingstonCenter,
	}
}

// Start requests an immediate fix and then watches for updates until Stop is
// called. It always leaves the tracker with a usable location.
func (t *Tracker) Start(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	t.mu.Lock()
	t.cancel = cancel
	t.done = done
	t.mu.Unlock()

	pos, err := t.source.Current(watchCtx)
	if err != nil {
		t.setFallback("Unable to determine location: " + err.Error())
	} else {
		t.update(pos)
	}

	updates, err := t.source.Watch(watchCtx)
	if err != nil {
		t.setFallback("Location tracking unavailable: " + err.Error())
		close(done)
		return
	}

	go func() {
		defer close(done)
		for {
			select {
			case pos, ok := <-updates:
				if !ok {
					return
				}
				t.update(pos)
			case <-watchCtx.Done():
				return
			}
		}
	}()
}

// Stop releases the watch.
func (t *Tracker) Stop() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Location returns the current position. usingFallback reports whether it is
// the configured default rather than a real fix.
func (t *Tracker) Location() (loc geo.Coordinate, usingFallback bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.haveFix {
		return t.fallback, true
	}
	return t.loc, false
}

// Accuracy returns the last reading's accuracy in metres, when one was
// reported within the sanity threshold.
func (t *Tracker) Accuracy() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.accuracy == nil {
		return 0, false
	}
	return *t.accuracy, true
}

// Err returns the current location error message, empty when healthy.
func (t *Tracker) Err() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

func (t *Tracker) update(pos Position) {
	coord := geo.Coordinate{Lat: pos.Lat, Lng: pos.Lng}
	if !coord.Valid() {
		t.logger.Error("rejected invalid location reading", "lat", pos.Lat, "lng", pos.Lng)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.loc = coord
	t.haveFix = true
	t.lastErr = ""
	if pos.Accuracy > 0 && pos.Accuracy <= maxAccuracyMeters {
		acc := pos.Accuracy
		t.accuracy = &acc
	} else {
		t.accuracy = nil
	}
}

func (t *Tracker) setFallback(msg string) {
	t.logger.Warn("falling back to default location", "reason", msg)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = msg
	if !t.haveFix {
		t.loc = t.fallback
	}
}
