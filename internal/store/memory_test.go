package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

func TestMemoryStore_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	user := domain.User{
		ID:           "u-1",
		FirstName:    "Jane",
		LastName:     "Doe",
		Email:        "jane@example.com",
		PasswordHash: "hash",
	}
	if err := mem.CreateUser(ctx, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := mem.CreateUser(ctx, user); !errors.Is(err, ErrEmailExists) {
		t.Fatalf("expected ErrEmailExists, got %v", err)
	}

	expires := time.Now().Add(10 * time.Minute)
	if err := mem.SetOTP(ctx, user.Email, "123456", expires); err != nil {
		t.Fatalf("set otp: %v", err)
	}

	got, err := mem.GetUserByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if got.OTPCode != "123456" || got.OTPExpiration == nil {
		t.Fatalf("otp not stored: %+v", got)
	}
	if got.Verified {
		t.Fatal("new user should not be verified")
	}

	if err := mem.MarkVerified(ctx, user.Email); err != nil {
		t.Fatalf("mark verified: %v", err)
	}
	got, _ = mem.GetUserByEmail(ctx, user.Email)
	if !got.Verified || got.OTPCode != "" || got.OTPExpiration != nil {
		t.Fatalf("verification should clear the code: %+v", got)
	}

	byID, err := mem.GetUserByID(ctx, "u-1")
	if err != nil || byID.Email != user.Email {
		t.Fatalf("lookup by id failed: %v %+v", err, byID)
	}

	if _, err := mem.GetUserByEmail(ctx, "nobody@example.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_PreferencesRoundtrip(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	prefs := domain.UserPreferences{
		UserID:            "u-1",
		PreferredBanks:    []string{domain.BankNCB, domain.BankBNS},
		TransactionTypes:  []string{domain.TransactionWithdrawal},
		MaxRadiusKM:       12,
		PreferredCurrency: domain.CurrencyJMD,
	}
	if err := mem.SavePreferences(ctx, prefs); err != nil {
		t.Fatalf("save preferences: %v", err)
	}

	got, err := mem.GetPreferences(ctx, "u-1")
	if err != nil {
		t.Fatalf("get preferences: %v", err)
	}
	if len(got.PreferredBanks) != 2 || got.MaxRadiusKM != 12 {
		t.Fatalf("unexpected preferences: %+v", got)
	}

	if _, err := mem.GetPreferences(ctx, "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpsertATMKeepsIdentity(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	lat, lng := 18.01, -76.81
	atm := domain.ATM{
		ATMID:     "SBJ-001",
		Location:  "sbj_Half Way Tree",
		Parish:    "St Andrew",
		Latitude:  &lat,
		Longitude: &lng,
		Status:    "WORKING",
		Timestamp: time.Now(),
	}
	if err := mem.UpsertATM(ctx, atm); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	atm.Status = "OUT_OF_SERVICE"
	if err := mem.UpsertATM(ctx, atm); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	atms, err := mem.ListATMs(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(atms) != 1 {
		t.Fatalf("expected 1 atm, got %d", len(atms))
	}
	if atms[0].Status != "OUT_OF_SERVICE" {
		t.Fatalf("status not updated: %+v", atms[0])
	}
	if atms[0].ID == 0 {
		t.Fatal("expected a stable row id")
	}
}

func TestMemoryStore_ATMStats(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	records := []domain.ATM{
		{ATMID: "A", Status: "WORKING"},
		{ATMID: "B", Status: "OUT_OF_SERVICE", GeocodingFailed: true},
		{ATMID: "C", Status: ""},
	}
	for _, r := range records {
		if err := mem.UpsertATM(ctx, r); err != nil {
			t.Fatalf("upsert %s: %v", r.ATMID, err)
		}
	}

	stats, err := mem.ATMStats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Working != 2 || stats.NotWorking != 1 || stats.GeocodingFailed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.LastUpdated == nil {
		t.Fatal("expected last-updated timestamp")
	}
}

func TestMemoryStore_GeocodingFailureRetries(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	failure := domain.GeocodingFailure{
		ATMID:    "SBJ-001",
		Location: "Half Way Tree",
		Parish:   "St Andrew",
		ErrorMsg: "no results",
	}
	for i := 0; i < 3; i++ {
		if err := mem.RecordGeocodingFailure(ctx, failure); err != nil {
			t.Fatalf("record failure: %v", err)
		}
	}

	// Retry budget of 3 is exhausted after three attempts.
	failures, err := mem.ListGeocodingFailures(ctx, 3)
	if err != nil {
		t.Fatalf("list failures: %v", err)
	}
	if len(failures) != 0 {
		t.Fatalf("expected no retryable failures, got %d", len(failures))
	}

	failures, err = mem.ListGeocodingFailures(ctx, 5)
	if err != nil {
		t.Fatalf("list failures: %v", err)
	}
	if len(failures) != 1 || failures[0].RetryCount != 3 {
		t.Fatalf("expected retry count 3, got %+v", failures)
	}

	if err := mem.DeleteGeocodingFailure(ctx, "SBJ-001"); err != nil {
		t.Fatalf("delete failure: %v", err)
	}
	failures, _ = mem.ListGeocodingFailures(ctx, 5)
	if len(failures) != 0 {
		t.Fatal("failure should have been deleted")
	}
}

func TestMemoryStore_GeocodeCacheFirstWriteWins(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStore()

	entry := domain.GeocodingCacheEntry{Location: "Half Way Tree", Parish: "St Andrew", Latitude: 18.01, Longitude: -76.79}
	if err := mem.CacheCoordinates(ctx, entry); err != nil {
		t.Fatalf("cache: %v", err)
	}

	entry.Latitude = 0.1
	if err := mem.CacheCoordinates(ctx, entry); err != nil {
		t.Fatalf("second cache: %v", err)
	}

	got, err := mem.CachedCoordinates(ctx, "Half Way Tree", "St Andrew")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got.Latitude != 18.01 {
		t.Fatalf("cache should keep the first entry, got %+v", got)
	}
}
