package client

import (
	"context"
	"sync"

	"github.com/neighbourhood/atmfinder/internal/domain"
)

// PreferenceSelection is the questionnaire's in-progress state. The wildcard
// selections are exclusive: picking "Any" clears the concrete banks and
// picking a concrete bank clears "Any"; the same law binds "both" against
// {withdrawal, deposit}.
type PreferenceSelection struct {
	Banks            []string
	TransactionTypes []string
	MaxRadiusKM      float64
	Currency         string
}

// NewPreferenceSelection starts from the defaults the questionnaire shows.
func NewPreferenceSelection() PreferenceSelection {
	return PreferenceSelection{
		MaxRadiusKM: 10,
		Currency:    domain.CurrencyJMD,
	}
}

// ToggleBank flips a bank selection, enforcing the wildcard exclusivity law.
func (s *PreferenceSelection) ToggleBank(code string) {
	if code == domain.BankAny {
		if contains(s.Banks, domain.BankAny) {
			s.Banks = nil
			return
		}
		s.Banks = []string{domain.BankAny}
		return
	}

	s.Banks = remove(s.Banks, domain.BankAny)
	if contains(s.Banks, code) {
		s.Banks = remove(s.Banks, code)
		return
	}
	s.Banks = append(s.Banks, code)
}

// ToggleTransactionType flips a transaction-type selection, enforcing the
// "both" exclusivity law.
func (s *PreferenceSelection) ToggleTransactionType(t string) {
	if t == domain.TransactionBoth {
		if contains(s.TransactionTypes, domain.TransactionBoth) {
			s.TransactionTypes = nil
			return
		}
		s.TransactionTypes = []string{domain.TransactionBoth}
		return
	}

	s.TransactionTypes = remove(s.TransactionTypes, domain.TransactionBoth)
	if contains(s.TransactionTypes, t) {
		s.TransactionTypes = remove(s.TransactionTypes, t)
		return
	}
	s.TransactionTypes = append(s.TransactionTypes, t)
}

// Complete reports whether the selection can be submitted.
func (s PreferenceSelection) Complete() bool {
	return len(s.Banks) > 0 && len(s.TransactionTypes) > 0
}

// Preferences converts the selection to the wire shape.
func (s PreferenceSelection) Preferences() Preferences {
	return Preferences{
		PreferredBanks:    append([]string(nil), s.Banks...),
		TransactionTypes:  append([]string(nil), s.TransactionTypes...),
		MaxRadiusKM:       s.MaxRadiusKM,
		PreferredCurrency: s.Currency,
	}
}

// PreferenceStore stages questionnaire selections made before authentication
// and syncs them to the backend once a token exists.
type PreferenceStore struct {
	client *Client

	mu     sync.Mutex
	staged *Preferences
}

// NewPreferenceStore builds a store over the API client.
func NewPreferenceStore(c *Client) *PreferenceStore {
	return &PreferenceStore{client: c}
}

// Stage holds the selection locally until a sync.
func (p *PreferenceStore) Stage(prefs Preferences) {
	p.mu.Lock()
	p.staged = &prefs
	p.mu.Unlock()
}

// Staged returns the locally held selection, if any.
func (p *PreferenceStore) Staged() (Preferences, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.staged == nil {
		return Preferences{}, false
	}
	return *p.staged, true
}

// Sync pushes staged preferences to the backend and clears the local copy on
// success. A failed sync keeps them staged for the next attempt.
func (p *PreferenceStore) Sync(ctx context.Context, token string) error {
	p.mu.Lock()
	staged := p.staged
	p.mu.Unlock()

	if staged == nil {
		return nil
	}
	if err := p.client.SavePreferences(ctx, token, *staged); err != nil {
		return err
	}

	p.mu.Lock()
	p.staged = nil
	p.mu.Unlock()
	return nil
}

// Purge drops any staged selection.
func (p *PreferenceStore) Purge() {
	p.mu.Lock()
	p.staged = nil
	p.mu.Unlock()
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

func remove(values []string, v string) []string {
	out := values[:0]
	for _, x := range values {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
