package client

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Screen names a step in the signup/login flow.
type Screen string

const (
	ScreenHome          Screen = "home"
	ScreenLogin         Screen = "login"
	ScreenSignup        Screen = "signup"
	ScreenQuestionnaire Screen = "questionnaire"
	ScreenOTP           Screen = "otp"
	ScreenMap           Screen = "map"
)

var (
	// ErrInvalidOTPInput rejects a code that is not exactly six digits,
	// locally and before any network call.
	ErrInvalidOTPInput = errors.New("otp must be exactly 6 digits")
	// ErrSessionExpired indicates token verification failed; local session
	// state has been purged.
	ErrSessionExpired = errors.New("session expired")
	// ErrBadTransition indicates a navigation the flow does not allow.
	ErrBadTransition = errors.New("invalid screen transition")
)

// Session drives the screen flow and owns the local session state: token,
// account email and staged preferences. Entering the map always re-verifies
// the token with the backend; any verification failure purges everything.
type Session struct {
	client *Client
	prefs  *PreferenceStore
	logger *slog.Logger

	mu     sync.Mutex
	screen Screen
	token  string
	email  string
}

// NewSession starts a session on the home screen.
func NewSession(c *Client, logger *slog.Logger) *Session {
	return &Session{
		client: c,
		prefs:  NewPreferenceStore(c),
		logger: logger,
		screen: ScreenHome,
	}
}

// Screen returns the current screen.
func (s *Session) Screen() Screen {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.screen
}

// Token returns the session token, empty when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Preferences exposes the staged-preference store.
func (s *Session) Preferences() *PreferenceStore {
	return s.prefs
}

// GoToLogin moves from the home screen to the login form.
func (s *Session) GoToLogin() error {
	return s.transition(ScreenHome, ScreenLogin)
}

// GoToSignup moves from the home screen to the signup form.
func (s *Session) GoToSignup() error {
	return s.transition(ScreenHome, ScreenSignup)
}

// Login authenticates and, on success, verifies the token and enters the map.
func (s *Session) Login(ctx context.Context, email, password string) error {
	if s.Screen() != ScreenLogin {
		return ErrBadTransition
	}

	token, err := s.client.Login(ctx, email, password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.email = email
	s.mu.Unlock()

	return s.EnterMap(ctx)
}

// Signup registers the account and moves on to the questionnaire.
func (s *Session) Signup(ctx context.Context, input SignupInput) error {
	if s.Screen() != ScreenSignup {
		return ErrBadTransition
	}

	if _, err := s.client.Signup(ctx, input); err != nil {
		return err
	}

	s.mu.Lock()
	s.email = input.Email
	s.screen = ScreenQuestionnaire
	s.mu.Unlock()
	return nil
}

// CompleteQuestionnaire stages the selection locally and moves to the OTP
// screen. The selection is synced to the backend after verification.
func (s *Session) CompleteQuestionnaire(sel PreferenceSelection) error {
	if s.Screen() != ScreenQuestionnaire {
		return ErrBadTransition
	}
	if !sel.Complete() {
		return errors.New("questionnaire incomplete")
	}

	s.prefs.Stage(sel.Preferences())

	s.mu.Lock()
	s.screen = ScreenOTP
	s.mu.Unlock()
	return nil
}

// ConfirmOTP verifies the emailed code. Codes that are not six digits are
// rejected locally. On success staged preferences are synced and the session
// enters the map.
func (s *Session) ConfirmOTP(ctx context.Context, code string) error {
	if s.Screen() != ScreenOTP {
		return ErrBadTransition
	}
	if !validOTPInput(code) {
		return ErrInvalidOTPInput
	}

	s.mu.Lock()
	email := s.email
	s.mu.Unlock()

	token, err := s.client.ConfirmOTP(ctx, code, email)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := s.prefs.Sync(ctx, token); err != nil {
		// Preferences stay staged; the account is still verified.
		s.logger.Warn("preference sync failed", "error", err)
	}

	return s.EnterMap(ctx)
}

// ResendOTP requests a fresh code for the account being verified.
func (s *Session) ResendOTP(ctx context.Context) error {
	if s.Screen() != ScreenOTP {
		return ErrBadTransition
	}

	s.mu.Lock()
	email := s.email
	s.mu.Unlock()
	return s.client.ResendOTP(ctx, email)
}

// EnterMap verifies the token with the backend and enters the map screen.
// Verification failure purges all local session state and forces login.
func (s *Session) EnterMap(ctx context.Context) error {
	s.mu.Lock()
	token := s.token
	s.mu.Unlock()

	if token == "" {
		s.forceLogin()
		return ErrSessionExpired
	}

	valid, err := s.client.VerifyToken(ctx, token)
	if err != nil {
		return err
	}
	if !valid {
		s.forceLogin()
		return ErrSessionExpired
	}

	s.mu.Lock()
	s.screen = ScreenMap
	s.mu.Unlock()
	return nil
}

// Logout purges the session and returns to the home screen.
func (s *Session) Logout() {
	s.purge()
	s.mu.Lock()
	s.screen = ScreenHome
	s.mu.Unlock()
}

func (s *Session) forceLogin() {
	s.purge()
	s.mu.Lock()
	s.screen = ScreenLogin
	s.mu.Unlock()
}

// purge clears token, account data and staged preferences together.
func (s *Session) purge() {
	s.mu.Lock()
	s.token = ""
	s.email = ""
	s.mu.Unlock()
	s.prefs.Purge()
}

func (s *Session) transition(from, to Screen) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.screen != from {
		return ErrBadTransition
	}
	s.screen = to
	return nil
}

func validOTPInput(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
