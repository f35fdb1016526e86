// Package geocode resolves free-text ATM locations to coordinates, with a
// persistent cache, a bounded retry budget for failures and parish-centre
// fallbacks so downstream consumers always get a usable point.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/neighbourhood/atmfinder/internal/domain"
	"github.com/neighbourhood/atmfinder/internal/geo"
	"github.com/neighbourhood/atmfinder/internal/store"
)

// ErrNoResults indicates the geocoding API returned no matches.
var ErrNoResults = errors.New("no geocoding results")

// MaxRetries bounds how often a failed location is retried.
const MaxRetries = 3

// Geocoder resolves a location string to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, location, parish string) (geo.Coordinate, error)
}

// Resolver combines the cache, the geocoding API and the parish fallbacks.
type Resolver struct {
	store    store.Store
	geocoder Geocoder
	logger   *slog.Logger
	group    singleflight.Group
}

// NewResolver builds a resolver over the given store and geocoder.
func NewResolver(st store.Store, geocoder Geocoder, logger *slog.Logger) *Resolver {
	return &Resolver{
		store:    st,
		geocoder: geocoder,
		logger:   logger,
	}
}

// Resolve returns coordinates for the location. The boolean result reports
// whether geocoding failed and a parish-centre approximation was substituted.
func (r *Resolver) Resolve(ctx context.Context, atmID, location, parish string) (geo.Coordinate, bool) {
	if entry, err := r.store.CachedCoordinates(ctx, location, parish); err == nil {
		return geo.Coordinate{Lat: entry.Latitude, Lng: entry.Longitude}, false
	} else if !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("geocode cache lookup failed", "error", err, "location", location)
	}

	// Concurrent workers resolving the same location share one API call.
	key := location + "|" + parish
	result, err, _ := r.group.Do(key, func() (any, error) {
		return r.geocoder.Geocode(ctx, location, parish)
	})
	if err != nil {
		r.logger.Warn("geocoding failed, using parish centre",
			"atmId", atmID, "location", location, "parish", parish, "error", err)
		if recErr := r.store.RecordGeocodingFailure(ctx, domain.GeocodingFailure{
			ATMID:    atmID,
			Location: location,
			Parish:   parish,
			ErrorMsg: err.Error(),
		}); recErr != nil {
			r.logger.Error("recording geocoding failure failed", "error", recErr, "atmId", atmID)
		}
		return geo.ParishCenter(parish), true
	}

	coord := result.(geo.Coordinate)
	if err := r.store.CacheCoordinates(ctx, domain.GeocodingCacheEntry{
		Location:  location,
		Parish:    parish,
		Latitude:  coord.Lat,
		Longitude: coord.Lng,
	}); err != nil {
		r.logger.Warn("caching coordinates failed", "error", err, "location", location)
	}
	return coord, false
}

// RetryFailures re-attempts previously failed locations that still have retry
// budget. Resolved entries are removed from the failure log; the machines
// themselves pick up the cached coordinates on the next feed pass.
func (r *Resolver) RetryFailures(ctx context.Context) error {
	failures, err := r.store.ListGeocodingFailures(ctx, MaxRetries)
	if err != nil {
		return fmt.Errorf("list geocoding failures: %w", err)
	}

	for _, failure := range failures {
		r.logger.Info("retrying geocoding", "atmId", failure.ATMID, "location", failure.Location)
		if _, failed := r.Resolve(ctx, failure.ATMID, failure.Location, failure.Parish); !failed {
			if err := r.store.DeleteGeocodingFailure(ctx, failure.ATMID); err != nil {
				r.logger.Error("clearing geocoding failure failed", "error", err, "atmId", failure.ATMID)
			}
		}
	}
	return nil
}
