package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	first_name TEXT NOT NULL,
	last_name TEXT NOT NULL,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_verified INTEGER NOT NULL DEFAULT 0,
	otp_code TEXT NOT NULL DEFAULT '',
	otp_expiration TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_preferences (
	user_id TEXT PRIMARY KEY REFERENCES users(id),
	preferred_banks TEXT NOT NULL,
	transaction_types TEXT NOT NULL,
	max_radius_km REAL NOT NULL,
	preferred_currency TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS atms (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	atm_id TEXT NOT NULL UNIQUE,
	location TEXT NOT NULL,
	parish TEXT NOT NULL,
	latitude REAL,
	longitude REAL,
	deposit_available INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	last_used TEXT NOT NULL DEFAULT '',
	feed_timestamp TEXT NOT NULL,
	geocoding_failed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS geocoding_cache (
	location TEXT NOT NULL,
	parish TEXT NOT NULL,
	latitude REAL NOT NULL,
	longitude REAL NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (location, parish)
);

CREATE TABLE IF NOT EXISTS geocoding_failures (
	atm_id TEXT PRIMARY KEY,
	location TEXT NOT NULL,
	parish TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_retry TEXT NOT NULL
);
`

// SQLiteStore implements Store on top of a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if necessary) the database at path and ensures
// the schema exists.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// The modernc driver serialises access itself, but a single connection
	// avoids SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user domain.User) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, first_name, last_name, email, password_hash, is_verified, otp_code, otp_expiration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.FirstName, user.LastName, user.Email, user.PasswordHash,
		boolToInt(user.Verified), user.OTPCode, timePtrToString(user.OTPExpiration), now, now,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrEmailExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, password_hash, is_verified, otp_code, otp_expiration, created_at, updated_at
		FROM users WHERE email = ?`, email)
	return scanUser(row)
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, first_name, last_name, email, password_hash, is_verified, otp_code, otp_expiration, created_at, updated_at
		FROM users WHERE id = ?`, id)
	return scanUser(row)
}

func (s *SQLiteStore) UpdatePassword(ctx context.Context, email, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE email = ?`,
		passwordHash, time.Now().UTC().Format(time.RFC3339Nano), email,
	)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SetOTP(ctx context.Context, email, code string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET otp_code = ?, otp_expiration = ?, updated_at = ? WHERE email = ?`,
		code, expires.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano), email,
	)
	if err != nil {
		return fmt.Errorf("set otp: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) MarkVerified(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_verified = 1, otp_code = '', otp_expiration = NULL, updated_at = ? WHERE email = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), email,
	)
	if err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	return requireRow(res)
}

func (s *SQLiteStore) SavePreferences(ctx context.Context, prefs domain.UserPreferences) error {
	banks, err := json.Marshal(prefs.PreferredBanks)
	if err != nil {
		return fmt.Errorf("encode preferred banks: %w", err)
	}
	txTypes, err := json.Marshal(prefs.TransactionTypes)
	if err != nil {
		return fmt.Errorf("encode transaction types: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_preferences (user_id, preferred_banks, transaction_types, max_radius_km, preferred_currency, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			preferred_banks = excluded.preferred_banks,
			transaction_types = excluded.transaction_types,
			max_radius_km = excluded.max_radius_km,
			preferred_currency = excluded.preferred_currency,
			updated_at = excluded.updated_at`,
		prefs.UserID, string(banks), string(txTypes), prefs.MaxRadiusKM, prefs.PreferredCurrency,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPreferences(ctx context.Context, userID string) (domain.UserPreferences, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_id, preferred_banks, transaction_types, max_radius_km, preferred_currency, updated_at
		FROM user_preferences WHERE user_id = ?`, userID)

	var prefs domain.UserPreferences
	var banks, txTypes, updatedAt string
	if err := row.Scan(&prefs.UserID, &banks, &txTypes, &prefs.MaxRadiusKM, &prefs.PreferredCurrency, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.UserPreferences{}, ErrNotFound
		}
		return domain.UserPreferences{}, fmt.Errorf("get preferences: %w", err)
	}
	if err := json.Unmarshal([]byte(banks), &prefs.PreferredBanks); err != nil {
		return domain.UserPreferences{}, fmt.Errorf("decode preferred banks: %w", err)
	}
	if err := json.Unmarshal([]byte(txTypes), &prefs.TransactionTypes); err != nil {
		return domain.UserPreferences{}, fmt.Errorf("decode transaction types: %w", err)
	}
	prefs.UpdatedAt = parseTime(updatedAt)
	return prefs, nil
}

func (s *SQLiteStore) UpsertATM(ctx context.Context, atm domain.ATM) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO atms (atm_id, location, parish, latitude, longitude, deposit_available, status, last_used, feed_timestamp, geocoding_failed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(atm_id) DO UPDATE SET
			location = excluded.location,
			parish = excluded.parish,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			deposit_available = excluded.deposit_available,
			status = excluded.status,
			last_used = excluded.last_used,
			feed_timestamp = excluded.feed_timestamp,
			geocoding_failed = excluded.geocoding_failed,
			updated_at = excluded.updated_at`,
		atm.ATMID, atm.Location, atm.Parish, floatPtrToNull(atm.Latitude), floatPtrToNull(atm.Longitude),
		boolToInt(atm.DepositAvailable), atm.Status, atm.LastUsed,
		atm.Timestamp.UTC().Format(time.RFC3339Nano), boolToInt(atm.GeocodingFailed), now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert atm %s: %w", atm.ATMID, err)
	}
	return nil
}

func (s *SQLiteStore) ListATMs(ctx context.Context) ([]domain.ATM, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, atm_id, location, parish, latitude, longitude, deposit_available, status, last_used, feed_timestamp, geocoding_failed, created_at, updated_at
		FROM atms ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list atms: %w", err)
	}
	defer rows.Close()

	var atms []domain.ATM
	for rows.Next() {
		var (
			atm                  domain.ATM
			lat, lng             sql.NullFloat64
			deposit, geoFailed   int
			feedTS, created, upd string
		)
		if err := rows.Scan(&atm.ID, &atm.ATMID, &atm.Location, &atm.Parish, &lat, &lng,
			&deposit, &atm.Status, &atm.LastUsed, &feedTS, &geoFailed, &created, &upd); err != nil {
			return nil, fmt.Errorf("scan atm: %w", err)
		}
		if lat.Valid {
			v := lat.Float64
			atm.Latitude = &v
		}
		if lng.Valid {
			v := lng.Float64
			atm.Longitude = &v
		}
		atm.DepositAvailable = deposit != 0
		atm.GeocodingFailed = geoFailed != 0
		atm.Timestamp = parseTime(feedTS)
		atm.CreatedAt = parseTime(created)
		atm.UpdatedAt = parseTime(upd)
		atms = append(atms, atm)
	}
	return atms, rows.Err()
}

func (s *SQLiteStore) ATMStats(ctx context.Context) (domain.ATMStats, error) {
	var stats domain.ATMStats
	row := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN status = '' OR UPPER(status) = 'WORKING' THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(geocoding_failed), 0),
		       COALESCE(MAX(updated_at), '')
		FROM atms`)

	var lastUpdated string
	if err := row.Scan(&stats.Total, &stats.Working, &stats.GeocodingFailed, &lastUpdated); err != nil {
		return domain.ATMStats{}, fmt.Errorf("atm stats: %w", err)
	}
	stats.NotWorking = stats.Total - stats.Working
	if lastUpdated != "" {
		t := parseTime(lastUpdated)
		stats.LastUpdated = &t
	}
	return stats, nil
}

func (s *SQLiteStore) CachedCoordinates(ctx context.Context, location, parish string) (domain.GeocodingCacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT location, parish, latitude, longitude, created_at
		FROM geocoding_cache WHERE location = ? AND parish = ?`, location, parish)

	var entry domain.GeocodingCacheEntry
	var created string
	if err := row.Scan(&entry.Location, &entry.Parish, &entry.Latitude, &entry.Longitude, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.GeocodingCacheEntry{}, ErrNotFound
		}
		return domain.GeocodingCacheEntry{}, fmt.Errorf("cached coordinates: %w", err)
	}
	entry.CreatedAt = parseTime(created)
	return entry, nil
}

func (s *SQLiteStore) CacheCoordinates(ctx context.Context, entry domain.GeocodingCacheEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocoding_cache (location, parish, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(location, parish) DO NOTHING`,
		entry.Location, entry.Parish, entry.Latitude, entry.Longitude,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("cache coordinates: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RecordGeocodingFailure(ctx context.Context, failure domain.GeocodingFailure) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO geocoding_failures (atm_id, location, parish, error_message, retry_count, created_at, last_retry)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT(atm_id) DO UPDATE SET
			error_message = excluded.error_message,
			retry_count = geocoding_failures.retry_count + 1,
			last_retry = excluded.last_retry`,
		failure.ATMID, failure.Location, failure.Parish, failure.ErrorMsg, now, now,
	)
	if err != nil {
		return fmt.Errorf("record geocoding failure: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListGeocodingFailures(ctx context.Context, maxRetries int) ([]domain.GeocodingFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT atm_id, location, parish, error_message, retry_count, created_at, last_retry
		FROM geocoding_failures WHERE retry_count < ? ORDER BY atm_id`, maxRetries)
	if err != nil {
		return nil, fmt.Errorf("list geocoding failures: %w", err)
	}
	defer rows.Close()

	var failures []domain.GeocodingFailure
	for rows.Next() {
		var f domain.GeocodingFailure
		var created, lastRetry string
		if err := rows.Scan(&f.ATMID, &f.Location, &f.Parish, &f.ErrorMsg, &f.RetryCount, &created, &lastRetry); err != nil {
			return nil, fmt.Errorf("scan geocoding failure: %w", err)
		}
		f.CreatedAt = parseTime(created)
		f.LastRetry = parseTime(lastRetry)
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func (s *SQLiteStore) DeleteGeocodingFailure(ctx context.Context, atmID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM geocoding_failures WHERE atm_id = ?`, atmID); err != nil {
		return fmt.Errorf("delete geocoding failure: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanUser(row *sql.Row) (domain.User, error) {
	var (
		user              domain.User
		verified          int
		otpExpiration     sql.NullString
		created, updated  string
	)
	err := row.Scan(&user.ID, &user.FirstName, &user.LastName, &user.Email, &user.PasswordHash,
		&verified, &user.OTPCode, &otpExpiration, &created, &updated)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, fmt.Errorf("scan user: %w", err)
	}
	user.Verified = verified != 0
	if otpExpiration.Valid && otpExpiration.String != "" {
		t := parseTime(otpExpiration.String)
		user.OTPExpiration = &t
	}
	user.CreatedAt = parseTime(created)
	user.UpdatedAt = parseTime(updated)
	return user, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func floatPtrToNull(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func timePtrToString(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
