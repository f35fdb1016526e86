package ingest

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/neighbourhood/atmfinder/internal/config"
	"github.com/neighbourhood/atmfinder/internal/geo"
	"github.com/neighbourhood/atmfinder/internal/geocode"
	"github.com/neighbourhood/atmfinder/internal/store"
)

type stubGeocoder struct {
	mu    sync.Mutex
	calls int
	coord geo.Coordinate
	err   error
}

func (s *stubGeocoder) Geocode(context.Context, string, string) (geo.Coordinate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return geo.Coordinate{}, s.err
	}
	return s.coord, nil
}

func (s *stubGeocoder) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFeedClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "feeduser" || pass != "feedpass" {
			t.Errorf("missing or wrong basic auth: %q %q", user, pass)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"ATM_Id":"SBJ-001","Location":"Half Way Tree","Parish":"St Andrew","Deposit":"Y","Status":"WORKING","Last_Used":"00:05:00","TimeStamp":"2026-08-29 10:00:00"},
			{"ATM_Id":"SBJ-002","Location":"Montego Bay","Parish":"St James","Deposit":"N","Status":"OUT OF SERVICE","Last_Used":"02:10:00","TimeStamp":"2026-08-29 10:00:00"}
		]`))
	}))
	defer srv.Close()

	client := NewFeedClient(config.FeedConfig{
		URL:            srv.URL,
		Username:       "feeduser",
		Password:       "feedpass",
		RequestTimeout: 5 * time.Second,
	})

	records, err := client.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ATMID != "SBJ-001" || records[0].Deposit != "Y" {
		t.Fatalf("unexpected first record: %+v", records[0])
	}
}

func TestFeedClientRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewFeedClient(config.FeedConfig{URL: srv.URL, RequestTimeout: 5 * time.Second})
	if _, err := client.Fetch(context.Background()); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestProcessGeocodesNewMachines(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	stub := &stubGeocoder{coord: geo.Coordinate{Lat: 18.0112, Lng: -76.7985}}
	resolver := geocode.NewResolver(mem, stub, discardLogger())
	proc := NewProcessor(mem, resolver, discardLogger(), 2)

	records := []FeedRecord{
		{ATMID: "SBJ-001", Location: "Half Way Tree", Parish: "St Andrew", Deposit: "Y", Status: "WORKING", LastUsed: "00:05:00", Timestamp: "2026-08-29 10:00:00"},
	}
	if err := proc.Process(ctx, records); err != nil {
		t.Fatalf("process: %v", err)
	}

	atms, err := mem.ListATMs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(atms) != 1 {
		t.Fatalf("expected 1 atm, got %d", len(atms))
	}
	atm := atms[0]
	if atm.Location != "sbj_Half Way Tree" {
		t.Fatalf("location prefix missing: %q", atm.Location)
	}
	if !atm.DepositAvailable {
		t.Fatal("deposit flag not set")
	}
	if !atm.HasCoordinates() || *atm.Latitude != 18.0112 {
		t.Fatalf("coordinates not stored: %+v", atm)
	}
	if atm.GeocodingFailed {
		t.Fatal("geocoding should have succeeded")
	}
}

func TestProcessKeepsKnownCoordinates(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	stub := &stubGeocoder{coord: geo.Coordinate{Lat: 18.0112, Lng: -76.7985}}
	resolver := geocode.NewResolver(mem, stub, discardLogger())
	proc := NewProcessor(mem, resolver, discardLogger(), 2)

	records := []FeedRecord{
		{ATMID: "SBJ-001", Location: "Half Way Tree", Parish: "St Andrew", Deposit: "Y", Status: "WORKING", LastUsed: "00:05:00", Timestamp: "2026-08-29 10:00:00"},
	}
	if err := proc.Process(ctx, records); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	// A second pass for an already-geocoded machine must not hit the geocoder
	// again, even with a cold cache.
	records[0].Status = "OUT OF SERVICE"
	if err := proc.Process(ctx, records); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if stub.callCount() != 1 {
		t.Fatalf("expected 1 geocoder call, got %d", stub.callCount())
	}

	atms, _ := mem.ListATMs(ctx)
	if atms[0].Status != "OUT OF SERVICE" {
		t.Fatalf("status not updated: %q", atms[0].Status)
	}
}

func TestProcessRetriesFailedGeocoding(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	stub := &stubGeocoder{err: geocode.ErrNoResults}
	resolver := geocode.NewResolver(mem, stub, discardLogger())
	proc := NewProcessor(mem, resolver, discardLogger(), 2)

	records := []FeedRecord{
		{ATMID: "SBJ-002", Location: "Unknown Plaza", Parish: "St James", Deposit: "N", Status: "WORKING", LastUsed: "00:20:00", Timestamp: "2026-08-29 10:00:00"},
	}
	if err := proc.Process(ctx, records); err != nil {
		t.Fatalf("first pass: %v", err)
	}

	atms, _ := mem.ListATMs(ctx)
	if !atms[0].GeocodingFailed {
		t.Fatal("expected geocoding failure flag")
	}
	if *atms[0].Latitude != geo.ParishCenter("St James").Lat {
		t.Fatalf("expected parish centre fallback, got %+v", atms[0])
	}

	// The geocoder recovers; the next pass should resolve real coordinates.
	stub.mu.Lock()
	stub.err = nil
	stub.coord = geo.Coordinate{Lat: 18.47, Lng: -77.92}
	stub.mu.Unlock()

	if err := proc.Process(ctx, records); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	atms, _ = mem.ListATMs(ctx)
	if atms[0].GeocodingFailed {
		t.Fatal("failure flag should clear after successful geocode")
	}
	if *atms[0].Latitude != 18.47 {
		t.Fatalf("coordinates not refreshed: %+v", atms[0])
	}
}

func TestProcessSkipsRecordsWithoutID(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	stub := &stubGeocoder{coord: geo.Coordinate{Lat: 18, Lng: -77}}
	resolver := geocode.NewResolver(mem, stub, discardLogger())
	proc := NewProcessor(mem, resolver, discardLogger(), 2)

	records := []FeedRecord{
		{Location: "No ID Plaza", Parish: "St Ann"},
		{ATMID: "SBJ-003", Location: "Ocho Rios", Parish: "St Ann", Deposit: "N", Status: "WORKING", Timestamp: "2026-08-29 10:00:00"},
	}
	err := proc.Process(ctx, records)
	if err == nil {
		t.Fatal("expected an error for the record without an id")
	}

	// The valid record must still land.
	atms, _ := mem.ListATMs(ctx)
	if len(atms) != 1 || atms[0].ATMID != "SBJ-003" {
		t.Fatalf("valid record not stored: %+v", atms)
	}
}

func TestSchedulerRunsImmediatelyAndStops(t *testing.T) {
	var mu sync.Mutex
	fetches := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		fetches++
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	mem := store.NewMemoryStore()
	stub := &stubGeocoder{coord: geo.Coordinate{Lat: 18, Lng: -77}}
	resolver := geocode.NewResolver(mem, stub, discardLogger())
	proc := NewProcessor(mem, resolver, discardLogger(), 1)
	feed := NewFeedClient(config.FeedConfig{URL: srv.URL, RequestTimeout: 5 * time.Second})

	sched := NewScheduler(feed, proc, resolver, discardLogger(), time.Hour)
	sched.Start(context.Background())

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := fetches
		mu.Unlock()
		if n >= 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("scheduler never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	sched.Stop()
}
