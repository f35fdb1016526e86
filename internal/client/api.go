package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/neighbourhood/atmfinder/internal/geo"
)

// APIError carries the backend's {error} body alongside the HTTP status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("api error %d", e.Status)
}

// Client talks to the backend HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds an API client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// SignupInput is the registration payload.
type SignupInput struct {
	FirstName string `json:"FirstName"`
	LastName  string `json:"LastName"`
	Email     string `json:"Email"`
	Password  string `json:"Password"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/login", "", map[string]string{
		"email":    email,
		"password": password,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.Token, nil
}

// Signup registers an account; the backend emails a verification code.
func (c *Client) Signup(ctx context.Context, input SignupInput) (string, error) {
	var resp struct {
		Message string `json:"message"`
		Email   string `json:"email"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/signup", "", input, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}

// ConfirmOTP submits the emailed code and returns the session token.
func (c *Client) ConfirmOTP(ctx context.Context, code, email string) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	path := "/confirm_otp_code/" + url.PathEscape(code) + "/" + url.PathEscape(email)
	if err := c.doJSON(ctx, http.MethodGet, path, "", nil, &resp); err != nil {
		return "", err
	}
	return resp.Token, nil
}

// ResendOTP requests a fresh verification code.
func (c *Client) ResendOTP(ctx context.Context, email string) error {
	return c.doJSON(ctx, http.MethodPost, "/resend_otp", "", map[string]string{"email": email}, nil)
}

// VerifyToken asks the backend whether the token is still valid.
func (c *Client) VerifyToken(ctx context.Context, token string) (bool, error) {
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/verify-token", token, nil, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			return false, nil
		}
		return false, err
	}
	return resp.Valid, nil
}

// UpdatePassword sets a new password for the account.
func (c *Client) UpdatePassword(ctx context.Context, email, newPassword string) error {
	return c.doJSON(ctx, http.MethodPost, "/update_password", "", map[string]string{
		"email":        email,
		"new_password": newPassword,
	}, nil)
}

// GetPreferences fetches the stored questionnaire selections.
func (c *Client) GetPreferences(ctx context.Context, token string) (Preferences, error) {
	var prefs Preferences
	if err := c.doJSON(ctx, http.MethodGet, "/api/user-preferences", token, nil, &prefs); err != nil {
		return Preferences{}, err
	}
	return prefs, nil
}

// SavePreferences persists questionnaire selections to the account.
func (c *Client) SavePreferences(ctx context.Context, token string, prefs Preferences) error {
	return c.doJSON(ctx, http.MethodPost, "/api/user-preferences", token, prefs, nil)
}

// ListATMs fetches the full, unfiltered machine list.
func (c *Client) ListATMs(ctx context.Context) ([]ATM, error) {
	var atms []ATM
	if err := c.doJSON(ctx, http.MethodGet, "/api/atms", "", nil, &atms); err != nil {
		return nil, err
	}
	return atms, nil
}

// ListFilteredATMs fetches the preference-scoped machine list, optionally
// bounded by the user's position.
func (c *Client) ListFilteredATMs(ctx context.Context, token string, loc *geo.Coordinate) ([]ATM, error) {
	path := "/api/atms/filtered"
	if loc != nil {
		path += "?" + coordQuery(*loc)
	}
	var atms []ATM
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &atms); err != nil {
		return nil, err
	}
	return atms, nil
}

// Stats fetches the dataset summary.
func (c *Client) Stats(ctx context.Context) (ATMStats, error) {
	var stats ATMStats
	if err := c.doJSON(ctx, http.MethodGet, "/api/atms/stats", "", nil, &stats); err != nil {
		return ATMStats{}, err
	}
	return stats, nil
}

// Recommendations fetches ranked suggestions for the given position.
func (c *Client) Recommendations(ctx context.Context, token string, loc geo.Coordinate) ([]Recommendation, error) {
	var resp struct {
		Recommendations []Recommendation `json:"recommendations"`
	}
	path := "/api/recommendations?" + coordQuery(loc)
	if err := c.doJSON(ctx, http.MethodGet, path, token, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Recommendations, nil
}

func coordQuery(loc geo.Coordinate) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(loc.Lat, 'f', -1, 64))
	q.Set("lng", strconv.FormatFloat(loc.Lng, 'f', -1, 64))
	return q.Encode()
}

func (c *Client) doJSON(ctx context.Context, method, path, token string, body, dst any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var payload struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&payload) == nil {
			apiErr.Message = payload.Error
		}
		return apiErr
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
