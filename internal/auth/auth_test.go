package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

func TestPasswordHashRoundtrip(t *testing.T) {
	hash, err := HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPassword("hunter22", hash) {
		t.Fatal("correct password rejected")
	}
	if CheckPassword("hunter23", hash) {
		t.Fatal("wrong password accepted")
	}
}

func TestTokenIssueAndVerify(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)

	token, err := issuer.Issue("u-1", "jane@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := issuer.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u-1" || claims.Email != "jane@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenExpiry(t *testing.T) {
	current := time.Now()
	issuer := NewTokenIssuer("test-secret", time.Hour).WithClock(func() time.Time { return current })

	token, err := issuer.Issue("u-1", "jane@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	current = current.Add(2 * time.Hour)
	if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenRejectsTampering(t *testing.T) {
	issuer := NewTokenIssuer("test-secret", time.Hour)
	other := NewTokenIssuer("other-secret", time.Hour)

	token, err := other.Issue("u-1", "jane@example.com")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := issuer.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if _, err := issuer.Verify("not-a-token"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage, got %v", err)
	}
}

func TestGenerateOTPFormat(t *testing.T) {
	for i := 0; i < 50; i++ {
		code, err := GenerateOTP()
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("non-digit in code %q", code)
			}
		}
	}
}

func TestValidateOTPExpiry(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(10 * time.Minute)
	user := domain.User{Email: "jane@example.com", OTPCode: "123456", OTPExpiration: &expires}

	if err := ValidateOTP(user, "123456", issued.Add(599*time.Second)); err != nil {
		t.Fatalf("code should still be valid at 599s: %v", err)
	}
	if err := ValidateOTP(user, "123456", issued.Add(601*time.Second)); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("expected ErrOTPExpired after 600s, got %v", err)
	}

	// A resend issues a fresh code with a new 10-minute window.
	resendAt := issued.Add(15 * time.Minute)
	newExpires := resendAt.Add(10 * time.Minute)
	user.OTPCode = "654321"
	user.OTPExpiration = &newExpires
	if err := ValidateOTP(user, "654321", resendAt.Add(599*time.Second)); err != nil {
		t.Fatalf("resent code should be valid: %v", err)
	}
}

func TestValidateOTPMismatchAndMissing(t *testing.T) {
	expires := time.Now().Add(10 * time.Minute)
	user := domain.User{OTPCode: "123456", OTPExpiration: &expires}

	if err := ValidateOTP(user, "000000", time.Now()); !errors.Is(err, ErrOTPMismatch) {
		t.Fatalf("expected ErrOTPMismatch, got %v", err)
	}
	if err := ValidateOTP(domain.User{}, "123456", time.Now()); !errors.Is(err, ErrOTPMissing) {
		t.Fatalf("expected ErrOTPMissing, got %v", err)
	}
}
