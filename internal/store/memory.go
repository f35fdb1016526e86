package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

// MemoryStore is an in-memory implementation of Store used for unit testing
// the handlers, the recommendation engine and the ingest pipeline without a
// database file.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]domain.User // keyed by email
	prefs    map[string]domain.UserPreferences
	atms     map[string]domain.ATM // keyed by ATMID
	geoCache map[string]domain.GeocodingCacheEntry
	geoFails map[string]domain.GeocodingFailure
	nextID   int64
	pingErr  error
}

// NewMemoryStore instantiates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]domain.User),
		prefs:    make(map[string]domain.UserPreferences),
		atms:     make(map[string]domain.ATM),
		geoCache: make(map[string]domain.GeocodingCacheEntry),
		geoFails: make(map[string]domain.GeocodingFailure),
	}
}

// WithPingError forces Ping to return the supplied error.
func (m *MemoryStore) WithPingError(err error) *MemoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pingErr = err
	return m
}

func (m *MemoryStore) CreateUser(_ context.Context, user domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.users[user.Email]; exists {
		return ErrEmailExists
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now
	m.users[user.Email] = user
	return nil
}

func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	return user, nil
}

func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return domain.User{}, ErrNotFound
}

func (m *MemoryStore) UpdatePassword(_ context.Context, email, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now().UTC()
	m.users[email] = user
	return nil
}

func (m *MemoryStore) SetOTP(_ context.Context, email, code string, expires time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	user.OTPCode = code
	user.OTPExpiration = &expires
	user.UpdatedAt = time.Now().UTC()
	m.users[email] = user
	return nil
}

func (m *MemoryStore) MarkVerified(_ context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[email]
	if !ok {
		return ErrNotFound
	}
	user.Verified = true
	user.OTPCode = ""
	user.OTPExpiration = nil
	user.UpdatedAt = time.Now().UTC()
	m.users[email] = user
	return nil
}

func (m *MemoryStore) SavePreferences(_ context.Context, prefs domain.UserPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefs.UpdatedAt = time.Now().UTC()
	m.prefs[prefs.UserID] = prefs
	return nil
}

func (m *MemoryStore) GetPreferences(_ context.Context, userID string) (domain.UserPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefs, ok := m.prefs[userID]
	if !ok {
		return domain.UserPreferences{}, ErrNotFound
	}
	return prefs, nil
}

func (m *MemoryStore) UpsertATM(_ context.Context, atm domain.ATM) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.atms[atm.ATMID]; ok {
		atm.ID = existing.ID
		atm.CreatedAt = existing.CreatedAt
	} else {
		m.nextID++
		atm.ID = m.nextID
		atm.CreatedAt = now
	}
	atm.UpdatedAt = now
	m.atms[atm.ATMID] = atm
	return nil
}

func (m *MemoryStore) ListATMs(_ context.Context) ([]domain.ATM, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	atms := make([]domain.ATM, 0, len(m.atms))
	for _, atm := range m.atms {
		atms = append(atms, atm)
	}
	sort.Slice(atms, func(i, j int) bool { return atms[i].ID < atms[j].ID })
	return atms, nil
}

func (m *MemoryStore) ATMStats(_ context.Context) (domain.ATMStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var stats domain.ATMStats
	for _, atm := range m.atms {
		stats.Total++
		if atm.Working() {
			stats.Working++
		} else {
			stats.NotWorking++
		}
		if atm.GeocodingFailed {
			stats.GeocodingFailed++
		}
		if stats.LastUpdated == nil || atm.UpdatedAt.After(*stats.LastUpdated) {
			updated := atm.UpdatedAt
			stats.LastUpdated = &updated
		}
	}
	return stats, nil
}

func (m *MemoryStore) CachedCoordinates(_ context.Context, location, parish string) (domain.GeocodingCacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.geoCache[location+"|"+parish]
	if !ok {
		return domain.GeocodingCacheEntry{}, ErrNotFound
	}
	return entry, nil
}

func (m *MemoryStore) CacheCoordinates(_ context.Context, entry domain.GeocodingCacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := entry.Location + "|" + entry.Parish
	if _, exists := m.geoCache[key]; !exists {
		entry.CreatedAt = time.Now().UTC()
		m.geoCache[key] = entry
	}
	return nil
}

func (m *MemoryStore) RecordGeocodingFailure(_ context.Context, failure domain.GeocodingFailure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	if existing, ok := m.geoFails[failure.ATMID]; ok {
		existing.RetryCount++
		existing.ErrorMsg = failure.ErrorMsg
		existing.LastRetry = now
		m.geoFails[failure.ATMID] = existing
		return nil
	}
	failure.RetryCount = 1
	failure.CreatedAt = now
	failure.LastRetry = now
	m.geoFails[failure.ATMID] = failure
	return nil
}

func (m *MemoryStore) ListGeocodingFailures(_ context.Context, maxRetries int) ([]domain.GeocodingFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failures []domain.GeocodingFailure
	for _, f := range m.geoFails {
		if f.RetryCount < maxRetries {
			failures = append(failures, f)
		}
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].ATMID < failures[j].ATMID })
	return failures, nil
}

func (m *MemoryStore) DeleteGeocodingFailure(_ context.Context, atmID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.geoFails, atmID)
	return nil
}

func (m *MemoryStore) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *MemoryStore) Close() error {
	return nil
}
