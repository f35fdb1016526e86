package domain

import (
	"strings"
	"time"
)

// ATM is the stored record for a single machine, as ingested from the
// operator status feed and enriched by geocoding.
type ATM struct {
	ID               int64
	ATMID            string
	Location         string
	Parish           string
	Latitude         *float64
	Longitude        *float64
	DepositAvailable bool
	Status           string
	LastUsed         string
	Timestamp        time.Time
	GeocodingFailed  bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Working reports whether the machine is in service. A missing status is
// treated as working, matching the feed's behaviour for healthy machines.
func (a ATM) Working() bool {
	return a.Status == "" || strings.EqualFold(a.Status, "WORKING")
}

// HasCoordinates reports whether the record carries usable coordinates.
func (a ATM) HasCoordinates() bool {
	return a.Latitude != nil && a.Longitude != nil
}

// ATMStats summarises the ingested dataset for the stats endpoint.
type ATMStats struct {
	Total           int
	Working         int
	NotWorking      int
	GeocodingFailed int
	LastUpdated     *time.Time
}

// GeocodingCacheEntry memoises a resolved location so repeat feed updates do
// not re-hit the geocoding API.
type GeocodingCacheEntry struct {
	Location  string
	Parish    string
	Latitude  float64
	Longitude float64
	CreatedAt time.Time
}

// GeocodingFailure records a location that could not be resolved, with a
// retry budget consumed by the scheduled refresh.
type GeocodingFailure struct {
	ATMID      string
	Location   string
	Parish     string
	ErrorMsg   string
	RetryCount int
	CreatedAt  time.Time
	LastRetry  time.Time
}
