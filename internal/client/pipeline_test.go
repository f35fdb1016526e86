package client

import (
	"testing"

	"github.com/neighbourhood/atmfinder/internal/geo"
)

func fptr(v float64) *float64 { return &v }

func testATMs() []ATM {
	return []ATM{
		{ID: 1, Bank: "NCB", Type: "ABM", WithdrawalFee: 200, SupportsCurrency: "JMD", Lat: fptr(18.01), Lng: fptr(-76.79)},
		{ID: 2, Bank: "BNS", Type: "ATM", WithdrawalFee: 100, SupportsCurrency: "JMD", Lat: fptr(18.02), Lng: fptr(-76.78)},
		{ID: 3, Bank: "NCB", Type: "ATM", WithdrawalFee: 150, SupportsCurrency: "USD", Lat: fptr(18.05), Lng: fptr(-76.75)},
		{ID: 4, Bank: "JMMB", Type: "ABM", WithdrawalFee: 250, SupportsCurrency: "JMD"}, // no coordinates
		{ID: 5, Bank: "JN", Type: "ATM", WithdrawalFee: 125, SupportsCurrency: "JMD", Lat: fptr(0), Lng: fptr(0)}, // sentinel
	}
}

func userAt() *geo.Coordinate {
	return &geo.Coordinate{Lat: 18.0, Lng: -76.8}
}

func TestApplyFilterBankCode(t *testing.T) {
	out := ApplyFilter(testATMs(), userAt(), Filter("NCB"))
	if len(out) != 2 {
		t.Fatalf("expected 2 NCB machines, got %d", len(out))
	}
	for _, atm := range out {
		if atm.Bank != "NCB" {
			t.Fatalf("non-NCB machine in result: %+v", atm)
		}
		if atm.DistanceKM == nil {
			t.Fatalf("distance not annotated: %+v", atm)
		}
	}
}

func TestApplyFilterDropsUnusableCoordinates(t *testing.T) {
	out := ApplyFilter(testATMs(), userAt(), FilterShortestDistance)
	for _, atm := range out {
		if atm.ID == 4 || atm.ID == 5 {
			t.Fatalf("record without usable coordinates survived: %+v", atm)
		}
	}
}

func TestApplyFilterLowestFees(t *testing.T) {
	out := ApplyFilter([]ATM{
		{ID: 1, Bank: "NCB", WithdrawalFee: 200, Lat: fptr(18.01), Lng: fptr(-76.79)},
		{ID: 2, Bank: "BNS", WithdrawalFee: 100, Lat: fptr(18.02), Lng: fptr(-76.78)},
	}, userAt(), FilterLowestFees)

	if len(out) != 2 {
		t.Fatalf("expected 2 machines, got %d", len(out))
	}
	if out[0].Bank != "BNS" || out[1].Bank != "NCB" {
		t.Fatalf("expected BNS(100) before NCB(200), got %s then %s", out[0].Bank, out[1].Bank)
	}
}

func TestApplyFilterCapsAtTen(t *testing.T) {
	var atms []ATM
	for i := 0; i < 25; i++ {
		atms = append(atms, ATM{
			ID:            int64(i),
			Bank:          "NCB",
			WithdrawalFee: 100 + i,
			Lat:           fptr(18.0 + float64(i)*0.001),
			Lng:           fptr(-76.8),
		})
	}

	fees := ApplyFilter(atms, userAt(), FilterLowestFees)
	if len(fees) != 10 {
		t.Fatalf("LOWEST_FEES should cap at 10, got %d", len(fees))
	}
	for i := 1; i < len(fees); i++ {
		if fees[i].WithdrawalFee < fees[i-1].WithdrawalFee {
			t.Fatalf("fees not ascending at %d", i)
		}
	}

	dist := ApplyFilter(atms, userAt(), FilterShortestDistance)
	if len(dist) != 10 {
		t.Fatalf("SHORTEST_DISTANCE should cap at 10, got %d", len(dist))
	}
	for i := 1; i < len(dist); i++ {
		if *dist[i].DistanceKM < *dist[i-1].DistanceKM {
			t.Fatalf("distances not ascending at %d", i)
		}
	}
}

func TestApplyFilterTypeAndCurrency(t *testing.T) {
	abm := ApplyFilter(testATMs(), userAt(), FilterABMOnly)
	for _, atm := range abm {
		if atm.Type != "ABM" {
			t.Fatalf("non-ABM machine in result: %+v", atm)
		}
	}

	usd := ApplyFilter(testATMs(), userAt(), FilterUSDOnly)
	if len(usd) != 1 || usd[0].ID != 3 {
		t.Fatalf("unexpected USD set: %+v", usd)
	}
}

func TestApplyFilterWithoutLocationPassesThrough(t *testing.T) {
	atms := testATMs()
	out := ApplyFilter(atms, nil, Filter("NCB"))
	if len(out) != len(atms) {
		t.Fatalf("expected untouched passthrough, got %d of %d", len(out), len(atms))
	}
	for _, atm := range out {
		if atm.DistanceKM != nil {
			t.Fatalf("distance computed without a location: %+v", atm)
		}
	}
}

func TestValidFilter(t *testing.T) {
	for _, f := range []Filter{FilterAll, FilterUserPreferences, FilterLowestFees, FilterShortestDistance, FilterABMOnly, FilterUSDOnly, Filter("NCB"), Filter("Sagicor")} {
		if !ValidFilter(f) {
			t.Errorf("filter %q should be valid", f)
		}
	}
	if ValidFilter(Filter("BOGUS")) {
		t.Error("unknown filter accepted")
	}
}
