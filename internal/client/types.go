// Package client implements the consumer side of the ATM API: geolocation
// tracking, data fetching with graceful degradation, the distance/filter
// pipeline and the recommendation overlay. It is the library behind the
// finder CLI and mirrors what the map frontend does.
package client

import (
	"github.com/neighbourhood/atmfinder/internal/geo"
)

// ATM is the wire record served by the backend, plus fields derived locally.
type ATM struct {
	ID               int64    `json:"id"`
	Bank             string   `json:"bank"`
	BankName         string   `json:"bankName"`
	Type             string   `json:"type"`
	Lat              *float64 `json:"lat"`
	Lng              *float64 `json:"lng"`
	WithdrawalFee    int      `json:"withdrawalFee"`
	DepositFee       int      `json:"depositFee"`
	LowOnCash        bool     `json:"lowOnCash"`
	Functional       bool     `json:"functional"`
	SupportsCurrency string   `json:"supportsCurrency"`
	Address          string   `json:"address"`
	Location         string   `json:"location"`
	Parish           string   `json:"parish"`
	GeocodingFailed  bool     `json:"geocodingFailed"`
	LastUpdated      string   `json:"lastUpdated"`

	// Derived per query, never sent by the server.
	DistanceKM *float64 `json:"-"`

	// Overlay fields, populated when a recommendation matches this record.
	Score               *float64 `json:"-"`
	EstimatedWaitPeople *int     `json:"-"`
	Reasons             []string `json:"-"`
}

// Coordinates returns the record's position when it carries a usable one.
func (a ATM) Coordinates() (geo.Coordinate, bool) {
	if a.Lat == nil || a.Lng == nil {
		return geo.Coordinate{}, false
	}
	coord := geo.Coordinate{Lat: *a.Lat, Lng: *a.Lng}
	if !coord.Valid() {
		return geo.Coordinate{}, false
	}
	return coord, true
}

// Recommendation is a ranked suggestion returned by the backend.
type Recommendation struct {
	ATMID               int64    `json:"atm_id"`
	ATMData             ATM      `json:"atm_data"`
	Score               float64  `json:"recommendation_score"`
	DistanceKM          float64  `json:"distance_km"`
	EstimatedWaitPeople int      `json:"estimated_wait_people"`
	Reasons             []string `json:"reasons"`
}

// Preferences is the questionnaire selection synced with the backend.
type Preferences struct {
	PreferredBanks    []string `json:"preferred_banks"`
	TransactionTypes  []string `json:"transaction_types"`
	MaxRadiusKM       float64  `json:"max_radius_km"`
	PreferredCurrency string   `json:"preferred_currency"`
}

// ATMStats summarises the dataset, as served by the stats endpoint.
type ATMStats struct {
	Total           int     `json:"total"`
	Working         int     `json:"working"`
	NotWorking      int     `json:"not_working"`
	GeocodingFailed int     `json:"geocoding_failed"`
	LastUpdated     *string `json:"last_updated"`
}
