package domain

import "time"

// User is a registered account. Accounts start unverified and become verified
// once the emailed one-time code is confirmed.
type User struct {
	ID            string
	FirstName     string
	LastName      string
	Email         string
	PasswordHash  string
	Verified      bool
	OTPCode       string
	OTPExpiration *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
