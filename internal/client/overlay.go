package client

import (
	"context"
	"errors"
	"sync"

	"github.com/neighbourhood/atmfinder/internal/geo"
)

var (
	// ErrAuthRequired indicates recommendations were requested without a
	// session token. No network call is made.
	ErrAuthRequired = errors.New("authentication required for recommendations")
	// ErrLocationRequired indicates recommendations were requested before a
	// location was available. No network call is made.
	ErrLocationRequired = errors.New("location required for recommendations")
)

// Overlay holds the active recommendation set and merges it onto the base
// ATM list. Recommendations are only fetched on explicit user action and
// stay applied until cleared.
type Overlay struct {
	client *Client

	mu     sync.Mutex
	active []Recommendation
}

// NewOverlay builds an overlay over the API client.
func NewOverlay(c *Client) *Overlay {
	return &Overlay{client: c}
}

// Fetch requests recommendations for the given position. Both preconditions
// are checked before any network activity.
func (o *Overlay) Fetch(ctx context.Context, token string, loc *geo.Coordinate) ([]Recommendation, error) {
	if token == "" {
		return nil, ErrAuthRequired
	}
	if loc == nil {
		return nil, ErrLocationRequired
	}

	recs, err := o.client.Recommendations(ctx, token, *loc)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.active = recs
	o.mu.Unlock()
	return recs, nil
}

// Active reports whether an overlay is currently applied.
func (o *Overlay) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active) > 0
}

// Clear removes the overlay; the pipeline reverts to the active filter.
func (o *Overlay) Clear() {
	o.mu.Lock()
	o.active = nil
	o.mu.Unlock()
}

// Apply reduces the base list to the recommended machines, merging the
// score, wait estimate and reasons onto the matching records. Without an
// active overlay the list is returned unchanged.
func (o *Overlay) Apply(atms []ATM) []ATM {
	o.mu.Lock()
	recs := o.active
	o.mu.Unlock()

	if len(recs) == 0 {
		return atms
	}

	byID := make(map[int64]Recommendation, len(recs))
	for _, rec := range recs {
		byID[rec.ATMID] = rec
	}

	out := make([]ATM, 0, len(recs))
	for _, atm := range atms {
		rec, ok := byID[atm.ID]
		if !ok {
			continue
		}
		score := rec.Score
		wait := rec.EstimatedWaitPeople
		dist := rec.DistanceKM
		atm.Score = &score
		atm.EstimatedWaitPeople = &wait
		atm.DistanceKM = &dist
		atm.Reasons = rec.Reasons
		out = append(out, atm)
	}
	return out
}
