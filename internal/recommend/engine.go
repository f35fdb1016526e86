// Package recommend scores ATMs against a user's preferences and location and
// produces ranked suggestions.
package recommend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
	"github.com/neighbourhood/atmfinder/internal/geo"
	"github.com/neighbourhood/atmfinder/internal/store"
)

// Weights of the scoring factors. They sum to 1.
const (
	weightDistance     = 0.30
	weightBank         = 0.25
	weightFunctional   = 0.20
	weightDeposit      = 0.15
	weightWait         = 0.10
)

const (
	// maxScoreDistanceKM is the distance at which the distance factor bottoms out.
	maxScoreDistanceKM = 15.0
	// maxRadiusCapKM bounds the user's preferred radius for scoring.
	maxRadiusCapKM = 20.0
	// maxWaitPeople is the queue length at which the wait factor bottoms out.
	maxWaitPeople = 5
	// resultLimit is the number of suggestions returned.
	resultLimit = 3
)

// Engine computes recommendations from the stored ATM dataset.
type Engine struct {
	store  store.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine builds a recommendation engine over the given store.
func NewEngine(st store.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:  st,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the engine's time source for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Recommend returns the top suggestions for the user at the given location.
// Users without saved preferences are scored against the defaults.
func (e *Engine) Recommend(ctx context.Context, userID string, loc geo.Coordinate) ([]domain.Recommendation, error) {
	prefs, err := e.store.GetPreferences(ctx, userID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("load preferences: %w", err)
		}
		e.logger.Warn("no preferences found, using defaults", "userId", userID)
		prefs = domain.DefaultPreferences(userID)
	}

	maxRadius := prefs.MaxRadiusKM
	if maxRadius <= 0 || maxRadius > maxRadiusCapKM {
		maxRadius = maxRadiusCapKM
	}

	atms, err := e.store.ListATMs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list atms: %w", err)
	}

	var scored []domain.Recommendation
	for _, atm := range atms {
		if !atm.HasCoordinates() || atm.GeocodingFailed || !atm.Working() {
			continue
		}
		distance := geo.Distance(loc, geo.Coordinate{Lat: *atm.Latitude, Lng: *atm.Longitude})
		if distance > maxRadius {
			continue
		}
		scored = append(scored, e.score(atm, distance, prefs))
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].DistanceKM < scored[j].DistanceKM
	})

	if len(scored) > resultLimit {
		scored = scored[:resultLimit]
	}
	e.logger.Info("generated recommendations", "userId", userID, "count", len(scored))
	return scored, nil
}

func (e *Engine) score(atm domain.ATM, distance float64, prefs domain.UserPreferences) domain.Recommendation {
	rec := domain.Recommendation{
		ATM:        atm,
		Bank:       domain.BankFromLocation(atm.Location),
		DistanceKM: round2(distance),
	}

	var breakdown domain.ScoreBreakdown

	if distance <= maxScoreDistanceKM {
		breakdown.Distance = 1.0 - distance/maxScoreDistanceKM
	}

	if prefs.AcceptsBank(rec.Bank) {
		breakdown.BankPreference = 1.0
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("Matches preferred bank (%s)", rec.Bank))
	} else {
		// Non-preferred banks keep a partial score rather than dropping out.
		breakdown.BankPreference = 0.3
	}

	if atm.Working() {
		breakdown.Functionality = 1.0
		rec.Reasons = append(rec.Reasons, "ATM is functional")
	} else {
		rec.Reasons = append(rec.Reasons, "ATM may not be working")
	}

	if prefs.WantsDeposits() {
		if atm.DepositAvailable {
			breakdown.DepositAvail = 1.0
			rec.Reasons = append(rec.Reasons, "Supports deposits")
		} else {
			rec.Reasons = append(rec.Reasons, "Does not support deposits")
		}
	} else {
		breakdown.DepositAvail = 1.0
	}

	wait := EstimateWait(atm.LastUsed, e.now())
	rec.EstimatedWaitPeople = wait
	if wait <= maxWaitPeople {
		breakdown.WaitTime = 1.0 - float64(wait)/maxWaitPeople
	}
	switch {
	case wait == 0:
		rec.Reasons = append(rec.Reasons, "No expected wait time")
	case wait <= 2:
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("Short wait (~%d people)", wait))
	default:
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("Longer wait (~%d people)", wait))
	}

	rec.Breakdown = breakdown
	rec.Score = round3(
		breakdown.Distance*weightDistance +
			breakdown.BankPreference*weightBank +
			breakdown.Functionality*weightFunctional +
			breakdown.DepositAvail*weightDeposit +
			breakdown.WaitTime*weightWait,
	)
	return rec
}

// EstimateWait converts the feed's last-used wall clock ("HH:MM:SS") into an
// estimated queue length: recently used machines are assumed busy.
func EstimateWait(lastUsed string, now time.Time) int {
	if lastUsed == "" {
		return 0
	}
	parts := strings.Split(lastUsed, ":")
	if len(parts) != 3 {
		return 0
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	second, err3 := strconv.Atoi(parts[2])
	if err1 != nil || err2 != nil || err3 != nil {
		return 0
	}

	used := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, second, 0, now.Location())
	minutesSince := now.Sub(used).Minutes()

	switch {
	case minutesSince <= 10:
		return 5
	case minutesSince <= 30:
		return 3
	case minutesSince <= 60:
		return 1
	default:
		return 0
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
