package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

var (
	// ErrOTPMissing indicates no code is outstanding for the account.
	ErrOTPMissing = errors.New("no valid otp found")
	// ErrOTPExpired indicates the code's 10-minute window has passed.
	ErrOTPExpired = errors.New("otp expired")
	// ErrOTPMismatch indicates the submitted code does not match.
	ErrOTPMismatch = errors.New("invalid otp")
)

// GenerateOTP produces a random 6-digit verification code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// ValidateOTP checks a submitted code against the stored one. Expiry is
// enforced: once the window has passed the code is rejected until a resend
// issues a fresh one.
func ValidateOTP(user domain.User, code string, now time.Time) error {
	if user.OTPCode == "" {
		return ErrOTPMissing
	}
	if user.OTPExpiration != nil && now.After(*user.OTPExpiration) {
		return ErrOTPExpired
	}
	if user.OTPCode != code {
		return ErrOTPMismatch
	}
	return nil
}
