package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/neighbourhood/atmfinder/internal/auth"
	"github.com/neighbourhood/atmfinder/internal/domain"
	"github.com/neighbourhood/atmfinder/internal/geo"
	"github.com/neighbourhood/atmfinder/internal/store"
)

// lowOnCashMinutes is the last-used age beyond which a machine is flagged as
// likely low on cash.
const lowOnCashMinutes = 120

func (h *APIHandlers) handleATMs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	atms, err := h.store.ListATMs(r.Context())
	if err != nil {
		h.logger.Error("failed to list atms", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch ATM data")
		return
	}

	resp := make([]atmResponse, 0, len(atms))
	for _, atm := range atms {
		resp = append(resp, toATMResponse(atm))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) handleFilteredATMs(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	var userLoc *geo.Coordinate
	query := r.URL.Query()
	if query.Get("lat") != "" || query.Get("lng") != "" {
		loc, err := parseCoordinate(query.Get("lat"), query.Get("lng"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		userLoc = &loc
	}

	prefs, err := h.store.GetPreferences(r.Context(), claims.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			h.logger.Error("preference lookup failed", "error", err, "userId", claims.UserID)
			writeError(w, http.StatusInternalServerError, "Failed to fetch ATM data")
			return
		}
		prefs = domain.DefaultPreferences(claims.UserID)
	}

	atms, err := h.store.ListATMs(r.Context())
	if err != nil {
		h.logger.Error("failed to list atms", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch ATM data")
		return
	}

	maxRadius := prefs.MaxRadiusKM
	if maxRadius <= 0 {
		maxRadius = 10
	}

	resp := make([]atmResponse, 0, len(atms))
	for _, atm := range atms {
		bank := domain.BankFromLocation(atm.Location)
		if !prefs.AcceptsBank(bank) {
			continue
		}
		if requiresDeposit(prefs) && !atm.DepositAvailable {
			continue
		}
		// Machines without coordinates cannot be distance-filtered and pass
		// through; the client decides what to do with them.
		if userLoc != nil && atm.HasCoordinates() {
			distance := geo.Distance(*userLoc, geo.Coordinate{Lat: *atm.Latitude, Lng: *atm.Longitude})
			if distance > maxRadius {
				continue
			}
		}
		resp = append(resp, toATMResponse(atm))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *APIHandlers) handleATMStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	stats, err := h.store.ATMStats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute atm stats", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch ATM statistics")
		return
	}

	var lastUpdated *string
	if stats.LastUpdated != nil {
		s := stats.LastUpdated.UTC().Format(time.RFC3339)
		lastUpdated = &s
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"total":            stats.Total,
		"working":          stats.Working,
		"not_working":      stats.NotWorking,
		"geocoding_failed": stats.GeocodingFailed,
		"last_updated":     lastUpdated,
	})
}

func (h *APIHandlers) handleRecommendations(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	query := r.URL.Query()
	loc, err := parseCoordinate(query.Get("lat"), query.Get("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	recs, err := h.engine.Recommend(r.Context(), claims.UserID, loc)
	if err != nil {
		h.logger.Error("recommendation generation failed", "error", err, "userId", claims.UserID)
		writeError(w, http.StatusInternalServerError, "Failed to generate recommendations")
		return
	}

	resp := recommendationsResponse{Recommendations: make([]recommendationResponse, 0, len(recs))}
	for _, rec := range recs {
		resp.Recommendations = append(resp.Recommendations, toRecommendationResponse(rec))
	}
	respondJSON(w, http.StatusOK, resp)
}

// requiresDeposit reports whether every transaction type the user selected
// needs a deposit-capable machine.
func requiresDeposit(prefs domain.UserPreferences) bool {
	if len(prefs.TransactionTypes) == 0 {
		return false
	}
	for _, t := range prefs.TransactionTypes {
		if t != domain.TransactionDeposit {
			return false
		}
	}
	return true
}

func parseCoordinate(latStr, lngStr string) (geo.Coordinate, error) {
	if latStr == "" || lngStr == "" {
		return geo.Coordinate{}, errParam("lat and lng are required")
	}
	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return geo.Coordinate{}, errParam("invalid lat")
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return geo.Coordinate{}, errParam("invalid lng")
	}
	coord := geo.Coordinate{Lat: lat, Lng: lng}
	if !coord.Valid() {
		return geo.Coordinate{}, errParam("coordinates out of range")
	}
	return coord, nil
}

type paramError string

func (e paramError) Error() string { return string(e) }

func errParam(msg string) error { return paramError(msg) }

// --- Response DTOs ---

// atmResponse is the wire shape the map frontend consumes.
type atmResponse struct {
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
}

func toATMResponse(atm domain.ATM) atmResponse {
	bank := domain.BankFromLocation(atm.Location)

	machineType := "ATM"
	if atm.DepositAvailable {
		machineType = "ABM"
	}

	var lastUpdated string
	if !atm.UpdatedAt.IsZero() {
		lastUpdated = atm.UpdatedAt.UTC().Format(time.RFC3339)
	}

	return atmResponse{
		ID:               atm.ID,
		Bank:             bank,
		BankName:         domain.BankFullName(bank),
		Type:             machineType,
		Lat:              atm.Latitude,
		Lng:              atm.Longitude,
		WithdrawalFee:    domain.WithdrawalFee(bank),
		DepositFee:       domain.DepositFee(bank),
		LowOnCash:        lowOnCash(atm.LastUsed),
		Functional:       atm.Working(),
		SupportsCurrency: domain.CurrencyJMD,
		Address:          atm.Location + ", " + atm.Parish,
		Location:         atm.Location,
		Parish:           atm.Parish,
		GeocodingFailed:  atm.GeocodingFailed,
		LastUpdated:      lastUpdated,
	}
}

// lowOnCash flags machines whose last use is more than two hours old,
// interpreting the feed's "HH:MM:SS" as elapsed time.
func lowOnCash(lastUsed string) bool {
	if lastUsed == "" {
		return false
	}
	parts := strings.Split(lastUsed, ":")
	if len(parts) < 2 {
		return false
	}
	hours, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return false
	}
	return hours*60+minutes > lowOnCashMinutes
}

type recommendationsResponse struct {
	Recommendations []recommendationResponse `json:"recommendations"`
}

type recommendationResponse struct {
	ATMID          int64                  `json:"atm_id"`
	ATMData        atmResponse            `json:"atm_data"`
	Score          float64                `json:"recommendation_score"`
	DistanceKM     float64                `json:"distance_km"`
	EstimatedWait  int                    `json:"estimated_wait_people"`
	Reasons        []string               `json:"reasons"`
	ScoreBreakdown scoreBreakdownResponse `json:"score_breakdown"`
}

type scoreBreakdownResponse struct {
	Distance       float64 `json:"distance"`
	BankPreference float64 `json:"bank_preference"`
	Functionality  float64 `json:"functionality"`
	DepositAvail   float64 `json:"deposit_availability"`
	WaitTime       float64 `json:"wait_time"`
}

func toRecommendationResponse(rec domain.Recommendation) recommendationResponse {
	return recommendationResponse{
		ATMID:         rec.ATM.ID,
		ATMData:       toATMResponse(rec.ATM),
		Score:         rec.Score,
		DistanceKM:    rec.DistanceKM,
		EstimatedWait: rec.EstimatedWaitPeople,
		Reasons:       rec.Reasons,
		ScoreBreakdown: scoreBreakdownResponse{
			Distance:       round2(rec.Breakdown.Distance),
			BankPreference: round2(rec.Breakdown.BankPreference),
			Functionality:  round2(rec.Breakdown.Functionality),
			DepositAvail:   round2(rec.Breakdown.DepositAvail),
			WaitTime:       round2(rec.Breakdown.WaitTime),
		},
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
