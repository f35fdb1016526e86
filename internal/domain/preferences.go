package domain

import "time"

// Transaction type selections collected by the questionnaire.
const (
	TransactionWithdrawal = "withdrawal"
	TransactionDeposit    = "deposit"
	TransactionBoth       = "both"
)

// Supported currencies.
const (
	CurrencyJMD = "JMD"
	CurrencyUSD = "USD"
)

// UserPreferences captures the banking preferences collected by the
// questionnaire flow. PreferredBanks holds either the wildcard "Any" alone or
// one or more concrete bank codes; TransactionTypes holds either "both" alone
// or a subset of {withdrawal, deposit}.
type UserPreferences struct {
	UserID            string
	PreferredBanks    []string
	TransactionTypes  []string
	MaxRadiusKM       float64
	PreferredCurrency string
	UpdatedAt         time.Time
}

// DefaultPreferences is used when a user has not completed the questionnaire.
func DefaultPreferences(userID string) UserPreferences {
	return UserPreferences{
		UserID:            userID,
		PreferredBanks:    []string{BankAny},
		TransactionTypes:  []string{TransactionBoth},
		MaxRadiusKM:       10,
		PreferredCurrency: CurrencyJMD,
	}
}

// AcceptsBank reports whether the preference set admits the given bank code.
func (p UserPreferences) AcceptsBank(code string) bool {
	for _, b := range p.PreferredBanks {
		if b == BankAny || b == code {
			return true
		}
	}
	return len(p.PreferredBanks) == 0
}

// WantsDeposits reports whether the user cares about deposit capability.
func (p UserPreferences) WantsDeposits() bool {
	for _, t := range p.TransactionTypes {
		if t == TransactionDeposit || t == TransactionBoth {
			return true
		}
	}
	return false
}
