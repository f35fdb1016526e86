package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

type fakeAuthBackend struct {
	mu          sync.Mutex
	validToken  string
	savedPrefs  *Preferences
	otpAttempts int
}

func (b *fakeAuthBackend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		if payload.Password != "secret123" {
			http.Error(w, `{"error":"Invalid email or password"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": b.token()})
	})
	mux.HandleFunc("/signup", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Signup successful. OTP sent to email."})
	})
	mux.HandleFunc("/confirm_otp_code/", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.otpAttempts++
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"token": b.token()})
	})
	mux.HandleFunc("/resend_otp", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "OTP has been resent to your email"})
	})
	mux.HandleFunc("/verify-token", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.token() {
			http.Error(w, `{"error":"Invalid token"}`, http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"valid": true})
	})
	mux.HandleFunc("/api/user-preferences", func(w http.ResponseWriter, r *http.Request) {
		var prefs Preferences
		_ = json.NewDecoder(r.Body).Decode(&prefs)
		b.mu.Lock()
		b.savedPrefs = &prefs
		b.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"success": "Preferences saved"})
	})
	return mux
}

func (b *fakeAuthBackend) token() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.validToken
}

func TestSessionSignupFlow(t *testing.T) {
	backend := &fakeAuthBackend{validToken: "tok-1"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	s := NewSession(New(srv.URL), discardLogger())
	if s.Screen() != ScreenHome {
		t.Fatalf("expected home, got %s", s.Screen())
	}

	if err := s.GoToSignup(); err != nil {
		t.Fatalf("go to signup: %v", err)
	}
	if err := s.Signup(context.Background(), SignupInput{
		FirstName: "Jane", LastName: "Doe", Email: "jane@example.com", Password: "secret123",
	}); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if s.Screen() != ScreenQuestionnaire {
		t.Fatalf("expected questionnaire, got %s", s.Screen())
	}

	sel := NewPreferenceSelection()
	sel.ToggleBank(domain.BankNCB)
	sel.ToggleTransactionType(domain.TransactionBoth)
	if err := s.CompleteQuestionnaire(sel); err != nil {
		t.Fatalf("questionnaire: %v", err)
	}
	if s.Screen() != ScreenOTP {
		t.Fatalf("expected otp, got %s", s.Screen())
	}

	if err := s.ConfirmOTP(context.Background(), "123456"); err != nil {
		t.Fatalf("confirm otp: %v", err)
	}
	if s.Screen() != ScreenMap {
		t.Fatalf("expected map, got %s", s.Screen())
	}
	if s.Token() != "tok-1" {
		t.Fatalf("token not stored: %q", s.Token())
	}

	// The staged questionnaire selection was synced after verification.
	backend.mu.Lock()
	saved := backend.savedPrefs
	backend.mu.Unlock()
	if saved == nil || len(saved.PreferredBanks) != 1 || saved.PreferredBanks[0] != domain.BankNCB {
		t.Fatalf("preferences not synced: %+v", saved)
	}
	if _, staged := s.Preferences().Staged(); staged {
		t.Fatal("staged preferences should be cleared after sync")
	}
}

func TestSessionRejectsShortOTPLocally(t *testing.T) {
	backend := &fakeAuthBackend{validToken: "tok-1"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	s := NewSession(New(srv.URL), discardLogger())
	_ = s.GoToSignup()
	_ = s.Signup(context.Background(), SignupInput{FirstName: "J", LastName: "D", Email: "j@example.com", Password: "secret123"})
	sel := NewPreferenceSelection()
	sel.ToggleBank(domain.BankAny)
	sel.ToggleTransactionType(domain.TransactionBoth)
	_ = s.CompleteQuestionnaire(sel)

	for _, code := range []string{"123", "", "12345", "abcdef", "1234567"} {
		if err := s.ConfirmOTP(context.Background(), code); err != ErrInvalidOTPInput {
			t.Fatalf("code %q: expected ErrInvalidOTPInput, got %v", code, err)
		}
	}

	backend.mu.Lock()
	attempts := backend.otpAttempts
	backend.mu.Unlock()
	if attempts != 0 {
		t.Fatalf("invalid codes reached the network: %d attempts", attempts)
	}
}

func TestSessionLoginFlow(t *testing.T) {
	backend := &fakeAuthBackend{validToken: "tok-2"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	s := NewSession(New(srv.URL), discardLogger())
	if err := s.GoToLogin(); err != nil {
		t.Fatalf("go to login: %v", err)
	}

	if err := s.Login(context.Background(), "jane@example.com", "wrong"); err == nil {
		t.Fatal("expected login failure")
	}
	if s.Screen() != ScreenLogin {
		t.Fatalf("failed login should stay on login, got %s", s.Screen())
	}

	if err := s.Login(context.Background(), "jane@example.com", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if s.Screen() != ScreenMap {
		t.Fatalf("expected map, got %s", s.Screen())
	}
}

func TestSessionPurgesOnFailedVerification(t *testing.T) {
	backend := &fakeAuthBackend{validToken: "tok-3"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	s := NewSession(New(srv.URL), discardLogger())
	_ = s.GoToLogin()
	if err := s.Login(context.Background(), "jane@example.com", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}
	s.Preferences().Stage(Preferences{PreferredBanks: []string{domain.BankNCB}})

	// The backend rotates its accepted token; the held one is now invalid.
	backend.mu.Lock()
	backend.validToken = "tok-4"
	backend.mu.Unlock()

	if err := s.EnterMap(context.Background()); err != ErrSessionExpired {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if s.Screen() != ScreenLogin {
		t.Fatalf("expected forced login, got %s", s.Screen())
	}
	if s.Token() != "" {
		t.Fatal("token not purged")
	}
	if _, staged := s.Preferences().Staged(); staged {
		t.Fatal("staged preferences not purged")
	}
}

func TestSessionLogout(t *testing.T) {
	backend := &fakeAuthBackend{validToken: "tok-5"}
	srv := httptest.NewServer(backend.handler())
	defer srv.Close()

	s := NewSession(New(srv.URL), discardLogger())
	_ = s.GoToLogin()
	if err := s.Login(context.Background(), "jane@example.com", "secret123"); err != nil {
		t.Fatalf("login: %v", err)
	}

	s.Logout()
	if s.Screen() != ScreenHome {
		t.Fatalf("expected home after logout, got %s", s.Screen())
	}
	if s.Token() != "" {
		t.Fatal("token survived logout")
	}
}
