package recommend

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
	"github.com/neighbourhood/atmfinder/internal/geo"
	"github.com/neighbourhood/atmfinder/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedATM(t *testing.T, mem *store.MemoryStore, id string, lat, lng float64, atm domain.ATM) {
	t.Helper()
	atm.ATMID = id
	atm.Latitude = &lat
	atm.Longitude = &lng
	if err := mem.UpsertATM(context.Background(), atm); err != nil {
		t.Fatalf("seed atm %s: %v", id, err)
	}
}

func TestRecommendRanksAndLimits(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	user := geo.Coordinate{Lat: 18.0179, Lng: -76.8099}

	// Four candidates within radius; the engine returns at most three.
	seedATM(t, mem, "A", 18.0180, -76.8100, domain.ATM{Location: "NCB Half Way Tree", Parish: "St Andrew", Status: "WORKING", DepositAvailable: true})
	seedATM(t, mem, "B", 18.0300, -76.8200, domain.ATM{Location: "BNS Cross Roads", Parish: "St Andrew", Status: "WORKING"})
	seedATM(t, mem, "C", 18.0500, -76.8500, domain.ATM{Location: "JMMB Manor Park", Parish: "St Andrew", Status: "WORKING"})
	seedATM(t, mem, "D", 18.0700, -76.8700, domain.ATM{Location: "CIBC Liguanea", Parish: "St Andrew", Status: "WORKING"})

	if err := mem.SavePreferences(ctx, domain.UserPreferences{
		UserID:            "u-1",
		PreferredBanks:    []string{domain.BankNCB},
		TransactionTypes:  []string{domain.TransactionBoth},
		MaxRadiusKM:       15,
		PreferredCurrency: domain.CurrencyJMD,
	}); err != nil {
		t.Fatalf("save prefs: %v", err)
	}

	engine := NewEngine(mem, discardLogger())
	recs, err := engine.Recommend(ctx, "u-1", user)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}

	if len(recs) != 3 {
		t.Fatalf("expected 3 recommendations, got %d", len(recs))
	}
	if recs[0].ATM.ATMID != "A" {
		t.Fatalf("expected the preferred-bank deposit machine first, got %s", recs[0].ATM.ATMID)
	}
	for i := 1; i < len(recs); i++ {
		if recs[i].Score > recs[i-1].Score {
			t.Fatalf("recommendations not sorted by score: %v then %v", recs[i-1].Score, recs[i].Score)
		}
	}
	for _, rec := range recs {
		if rec.Score < 0 || rec.Score > 1 {
			t.Fatalf("score out of range: %f", rec.Score)
		}
		if len(rec.Reasons) == 0 {
			t.Fatalf("expected reasons for %s", rec.ATM.ATMID)
		}
	}
}

func TestRecommendSkipsUnusableMachines(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	user := geo.Coordinate{Lat: 18.0179, Lng: -76.8099}

	// No coordinates.
	if err := mem.UpsertATM(ctx, domain.ATM{ATMID: "NOLOC", Location: "NCB Somewhere", Parish: "St Andrew", Status: "WORKING"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// Approximate coordinates from a failed geocode.
	seedATM(t, mem, "GEOFAIL", 18.0391, -76.7567, domain.ATM{Location: "BNS Papine", Parish: "St Andrew", Status: "WORKING", GeocodingFailed: true})
	// Out of service.
	seedATM(t, mem, "BROKEN", 18.0200, -76.8100, domain.ATM{Location: "NCB Duke Street", Parish: "Kingston", Status: "OUT_OF_SERVICE"})
	// Far outside the search radius.
	seedATM(t, mem, "FAR", 18.4833, -77.9167, domain.ATM{Location: "Scotia Montego Bay", Parish: "St James", Status: "WORKING"})
	// The one usable machine.
	seedATM(t, mem, "OK", 18.0180, -76.8100, domain.ATM{Location: "NCB Half Way Tree", Parish: "St Andrew", Status: "WORKING"})

	engine := NewEngine(mem, discardLogger())
	recs, err := engine.Recommend(ctx, "missing-user", user)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if len(recs) != 1 || recs[0].ATM.ATMID != "OK" {
		t.Fatalf("expected only the usable machine, got %+v", recs)
	}
}

func TestScoreWeighting(t *testing.T) {
	mem := store.NewMemoryStore()
	engine := NewEngine(mem, discardLogger())

	lat, lng := 18.0179, -76.8099
	atm := domain.ATM{
		ATMID:            "A",
		Location:         "NCB Half Way Tree",
		Parish:           "St Andrew",
		Latitude:         &lat,
		Longitude:        &lng,
		Status:           "WORKING",
		DepositAvailable: true,
	}
	prefs := domain.DefaultPreferences("u-1")

	// Zero distance, preferred bank (Any), working, deposits available and no
	// last-used data: every factor maxes out.
	rec := engine.score(atm, 0, prefs)
	if rec.Score != 1.0 {
		t.Fatalf("expected perfect score, got %f (%+v)", rec.Score, rec.Breakdown)
	}

	// A non-preferred bank keeps the partial 0.3 factor.
	prefs.PreferredBanks = []string{domain.BankBNS}
	rec = engine.score(atm, 0, prefs)
	want := round3(1.0 - (1.0-0.3)*weightBank)
	if rec.Score != want {
		t.Fatalf("expected %f for non-preferred bank, got %f", want, rec.Score)
	}
}

func TestEstimateWait(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		lastUsed string
		want     int
	}{
		{"11:55:00", 5},
		{"11:40:00", 3},
		{"11:10:00", 1},
		{"09:00:00", 0},
		{"", 0},
		{"garbage", 0},
		{"11:xx:00", 0},
	}
	for _, tc := range cases {
		if got := EstimateWait(tc.lastUsed, now); got != tc.want {
			t.Fatalf("EstimateWait(%q) = %d, want %d", tc.lastUsed, got, tc.want)
		}
	}
}
