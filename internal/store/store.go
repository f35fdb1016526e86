// Package store persists users, preferences and ATM records. The Store
// interface is implemented by a SQLite database for production use and by an
// in-memory store for unit testing the layers above it.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrEmailExists indicates a signup attempt with an already-registered email.
	ErrEmailExists = errors.New("email already exists")
)

// Store defines the persistence contract required by the HTTP handlers, the
// recommendation engine and the feed ingestor.
type Store interface {
	CreateUser(ctx context.Context, user domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	UpdatePassword(ctx context.Context, email, passwordHash string) error
	SetOTP(ctx context.Context, email, code string, expires time.Time) error
	MarkVerified(ctx context.Context, email string) error

	SavePreferences(ctx context.Context, prefs domain.UserPreferences) error
	GetPreferences(ctx context.Context, userID string) (domain.UserPreferences, error)

	UpsertATM(ctx context.Context, atm domain.ATM) error
	ListATMs(ctx context.Context) ([]domain.ATM, error)
	ATMStats(ctx context.Context) (domain.ATMStats, error)

	CachedCoordinates(ctx context.Context, location, parish string) (domain.GeocodingCacheEntry, error)
	CacheCoordinates(ctx context.Context, entry domain.GeocodingCacheEntry) error
	RecordGeocodingFailure(ctx context.Context, failure domain.GeocodingFailure) error
	ListGeocodingFailures(ctx context.Context, maxRetries int) ([]domain.GeocodingFailure, error)
	DeleteGeocodingFailure(ctx context.Context, atmID string) error

	Ping(ctx context.Context) error
	Close() error
}
