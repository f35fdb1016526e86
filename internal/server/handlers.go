package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/neighbourhood/atmfinder/internal/auth"
	"github.com/neighbourhood/atmfinder/internal/domain"
	"github.com/neighbourhood/atmfinder/internal/mailer"
	"github.com/neighbourhood/atmfinder/internal/recommend"
	"github.com/neighbourhood/atmfinder/internal/store"
)

// APIHandlers exposes HTTP handlers for the REST API.
type APIHandlers struct {
	logger *slog.Logger
	store  store.Store
	issuer *auth.TokenIssuer
	mailer mailer.Mailer
	engine *recommend.Engine
	otpTTL time.Duration
	now    func() time.Time
}

// NewAPIHandlers constructs an APIHandlers instance.
func NewAPIHandlers(logger *slog.Logger, st store.Store, issuer *auth.TokenIssuer, ml mailer.Mailer, engine *recommend.Engine, otpTTL time.Duration) *APIHandlers {
	return &APIHandlers{
		logger: logger,
		store:  st,
		issuer: issuer,
		mailer: ml,
		engine: engine,
		otpTTL: otpTTL,
		now:    time.Now,
	}
}

// WithClock overrides the handlers' time source for tests.
func (h *APIHandlers) WithClock(now func() time.Time) *APIHandlers {
	h.now = now
	return h
}

// requireAuth verifies the bearer token before dispatching to next.
func (h *APIHandlers) requireAuth(next func(http.ResponseWriter, *http.Request, auth.Claims)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, "Token missing")
			return
		}
		claims, err := h.issuer.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrTokenExpired) {
				writeError(w, http.StatusUnauthorized, "Token expired")
				return
			}
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}
		next(w, r, claims)
	}
}

func (h *APIHandlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload loginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	if payload.Email == "" || payload.Password == "" {
		writeError(w, http.StatusBadRequest, "Email and Password are required")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), payload.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "Invalid email or password")
			return
		}
		h.logger.Error("login lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	if !auth.CheckPassword(payload.Password, user.PasswordHash) {
		writeError(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	token, err := h.issuer.Issue(user.ID, user.Email)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *APIHandlers) handleSignup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload signupRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}

	var missing []string
	if payload.FirstName == "" {
		missing = append(missing, "FirstName")
	}
	if payload.LastName == "" {
		missing = append(missing, "LastName")
	}
	if payload.Email == "" {
		missing = append(missing, "Email")
	}
	if payload.Password == "" {
		missing = append(missing, "Password")
	}
	if len(missing) > 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields: "+strings.Join(missing, ", "))
		return
	}

	if !strings.Contains(payload.Email, "@") || !strings.Contains(payload.Email, ".") {
		writeError(w, http.StatusBadRequest, "Invalid email format")
		return
	}
	if len(payload.Password) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		h.logger.Error("password hash failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error occurred")
		return
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		h.logger.Error("otp generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error occurred")
		return
	}
	expiry := h.now().Add(h.otpTTL)

	user := domain.User{
		ID:            uuid.NewString(),
		FirstName:     payload.FirstName,
		LastName:      payload.LastName,
		Email:         payload.Email,
		PasswordHash:  hash,
		OTPCode:       code,
		OTPExpiration: &expiry,
	}
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrEmailExists) {
			writeError(w, http.StatusConflict, "Email already exists")
			return
		}
		h.logger.Error("user creation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Server error occurred")
		return
	}

	if err := h.mailer.SendOTP(r.Context(), user.Email, code); err != nil {
		h.logger.Error("otp email failed", "error", err, "email", user.Email)
		respondJSON(w, http.StatusCreated, map[string]string{
			"message": "User created but email sending failed. Please try again.",
			"email":   user.Email,
		})
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"message":        "Signup successful. OTP sent to email.",
		"email":          user.Email,
		"otp_expires_in": "10 minutes",
	})
}

func (h *APIHandlers) handleConfirmOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/confirm_otp_code/")
	parts := strings.SplitN(strings.Trim(rest, "/"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "OTP and email are required")
		return
	}
	code := parts[0]
	email, err := url.PathUnescape(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid email")
		return
	}

	user, err := h.store.GetUserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("otp lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	if err := auth.ValidateOTP(user, code, h.now()); err != nil {
		switch {
		case errors.Is(err, auth.ErrOTPMissing):
			writeError(w, http.StatusBadRequest, "No valid OTP found. Please request a new one.")
		case errors.Is(err, auth.ErrOTPExpired):
			writeError(w, http.StatusBadRequest, "OTP has expired. Please request a new one.")
		default:
			writeError(w, http.StatusBadRequest, "Invalid OTP")
		}
		return
	}

	if err := h.store.MarkVerified(r.Context(), email); err != nil {
		h.logger.Error("verification update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	token, err := h.issuer.Issue(user.ID, user.Email)
	if err != nil {
		h.logger.Error("token issue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "An unexpected error occurred")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"success": "OTP confirmed",
		"token":   token,
		"user": map[string]string{
			"user_id":    user.ID,
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
		},
	})
}

func (h *APIHandlers) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload emailRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	if payload.Email == "" {
		writeError(w, http.StatusBadRequest, "Email is required")
		return
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		h.logger.Error("otp generation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to resend OTP")
		return
	}

	if err := h.store.SetOTP(r.Context(), payload.Email, code, h.now().Add(h.otpTTL)); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		h.logger.Error("otp update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to resend OTP")
		return
	}

	if err := h.mailer.SendOTP(r.Context(), payload.Email, code); err != nil {
		h.logger.Error("otp email failed", "error", err, "email", payload.Email)
		writeError(w, http.StatusInternalServerError, "Failed to send email")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "OTP has been resent to your email"})
}

func (h *APIHandlers) handleVerifyToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	token := bearerToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "Token missing")
		return
	}

	claims, err := h.issuer.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			writeError(w, http.StatusUnauthorized, "Token expired")
			return
		}
		writeError(w, http.StatusUnauthorized, "Invalid token")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"valid":   true,
		"user_id": claims.UserID,
	})
}

func (h *APIHandlers) handleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var payload updatePasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}
	if payload.Email == "" || payload.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "Missing password or email")
		return
	}
	if len(payload.NewPassword) < 6 {
		writeError(w, http.StatusBadRequest, "Password must be at least 6 characters long")
		return
	}

	hash, err := auth.HashPassword(payload.NewPassword)
	if err != nil {
		h.logger.Error("password hash failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Password update failed")
		return
	}

	if err := h.store.UpdatePassword(r.Context(), payload.Email, hash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No user found with the provided email")
			return
		}
		h.logger.Error("password update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Password update failed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"success": "Password updated successfully"})
}

func (h *APIHandlers) handlePreferences(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	switch r.Method {
	case http.MethodGet:
		h.getPreferences(w, r, claims)
	case http.MethodPost:
		h.savePreferences(w, r, claims)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *APIHandlers) getPreferences(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	prefs, err := h.store.GetPreferences(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondJSON(w, http.StatusOK, toPreferencesResponse(domain.DefaultPreferences(claims.UserID)))
			return
		}
		h.logger.Error("preference lookup failed", "error", err, "userId", claims.UserID)
		writeError(w, http.StatusInternalServerError, "Failed to load preferences")
		return
	}
	respondJSON(w, http.StatusOK, toPreferencesResponse(prefs))
}

func (h *APIHandlers) savePreferences(w http.ResponseWriter, r *http.Request, claims auth.Claims) {
	var payload preferencesRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "No JSON data provided")
		return
	}

	prefs := domain.UserPreferences{
		UserID:            claims.UserID,
		PreferredBanks:    payload.PreferredBanks,
		TransactionTypes:  payload.TransactionTypes,
		MaxRadiusKM:       payload.MaxRadiusKM,
		PreferredCurrency: payload.PreferredCurrency,
	}
	if err := validatePreferences(&prefs); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.store.SavePreferences(r.Context(), prefs); err != nil {
		h.logger.Error("preference save failed", "error", err, "userId", claims.UserID)
		writeError(w, http.StatusInternalServerError, "Failed to save preferences")
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"success": "Preferences saved"})
}

// validatePreferences normalises and checks the questionnaire selections. The
// wildcard selections ("Any", "both") must stand alone.
func validatePreferences(prefs *domain.UserPreferences) error {
	if len(prefs.PreferredBanks) == 0 {
		return errors.New("preferred_banks is required")
	}
	for _, bank := range prefs.PreferredBanks {
		if bank == domain.BankAny {
			if len(prefs.PreferredBanks) != 1 {
				return errors.New("Any cannot be combined with specific banks")
			}
			continue
		}
		if !domain.IsBankCode(bank) {
			return errors.New("unknown bank code: " + bank)
		}
	}

	if len(prefs.TransactionTypes) == 0 {
		return errors.New("transaction_types is required")
	}
	for _, t := range prefs.TransactionTypes {
		switch t {
		case domain.TransactionBoth:
			if len(prefs.TransactionTypes) != 1 {
				return errors.New("both cannot be combined with specific transaction types")
			}
		case domain.TransactionWithdrawal, domain.TransactionDeposit:
		default:
			return errors.New("unknown transaction type: " + t)
		}
	}

	if prefs.MaxRadiusKM <= 0 {
		prefs.MaxRadiusKM = 10
	}
	if prefs.PreferredCurrency == "" {
		prefs.PreferredCurrency = domain.CurrencyJMD
	}
	if prefs.PreferredCurrency != domain.CurrencyJMD && prefs.PreferredCurrency != domain.CurrencyUSD {
		return errors.New("unknown currency: " + prefs.PreferredCurrency)
	}
	return nil
}

// --- Request & Response DTOs ---

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signupRequest struct {
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
	Email     string `json:"Email"`
	Password  string `json:"Password"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type updatePasswordRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"new_password"`
}

type preferencesRequest struct {
	PreferredBanks    []string `json:"preferred_banks"`
	TransactionTypes  []string `json:"transaction_types"`
	MaxRadiusKM       float64  `json:"max_radius_km"`
	PreferredCurrency string   `json:"preferred_currency"`
}

type preferencesResponse struct {
	PreferredBanks    []string `json:"preferred_banks"`
	TransactionTypes  []string `json:"transaction_types"`
	MaxRadiusKM       float64  `json:"max_radius_km"`
	PreferredCurrency string   `json:"preferred_currency"`
}

func toPreferencesResponse(prefs domain.UserPreferences) preferencesResponse {
	return preferencesResponse{
		PreferredBanks:    prefs.PreferredBanks,
		TransactionTypes:  prefs.TransactionTypes,
		MaxRadiusKM:       prefs.MaxRadiusKM,
		PreferredCurrency: prefs.PreferredCurrency,
	}
}

// --- Helpers ---

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{
		"error": msg,
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
}
