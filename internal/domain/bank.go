package domain

import "strings"

// Bank codes recognised across the ATM network.
const (
	BankBNS     = "BNS"
	BankNCB     = "NCB"
	BankJMMB    = "JMMB"
	BankCIBC    = "CIBC"
	BankJN      = "JN"
	BankFCIB    = "FCIB"
	BankSagicor = "Sagicor"
	BankScotia  = "Scotia"
	BankAny     = "Any"
	BankUnknown = "Unknown"
)

// BankCodes lists the concrete (non-wildcard) bank codes.
var BankCodes = []string{
	BankBNS, BankNCB, BankJMMB, BankCIBC, BankJN, BankFCIB, BankSagicor, BankScotia,
}

var bankPatterns = []struct {
	code     string
	patterns []string
}{
	{BankNCB, []string{"NCB", "NATIONAL COMMERCIAL BANK"}},
	{BankBNS, []string{"BNS", "BANK OF NOVA SCOTIA", "SCOTIABANK"}},
	{BankJMMB, []string{"JMMB", "JAMAICA MONEY MARKET"}},
	{BankCIBC, []string{"CIBC", "FIRSTCARIBBEAN"}},
	{BankJN, []string{"JN BANK", "JAMAICA NATIONAL"}},
	{BankFCIB, []string{"FCIB"}},
	{BankSagicor, []string{"SAGICOR", "SBJ"}},
	{BankScotia, []string{"SCOTIA"}},
}

var bankNames = map[string]string{
	BankBNS:     "Bank of Nova Scotia",
	BankNCB:     "National Commercial Bank",
	BankJMMB:    "Jamaica Money Market Brokers",
	BankCIBC:    "CIBC FirstCaribbean",
	BankJN:      "Jamaica National",
	BankFCIB:    "First Caribbean International Bank",
	BankSagicor: "Sagicor Bank",
	BankScotia:  "Scotiabank",
}

// Typical per-transaction fees in JMD, keyed by bank code.
var withdrawalFees = map[string]int{
	BankBNS:     150,
	BankNCB:     100,
	BankJMMB:    200,
	BankCIBC:    175,
	BankJN:      125,
	BankFCIB:    175,
	BankSagicor: 150,
	BankScotia:  150,
}

var depositFees = map[string]int{
	BankBNS:     75,
	BankNCB:     50,
	BankJMMB:    100,
	BankCIBC:    85,
	BankJN:      60,
	BankFCIB:    85,
	BankSagicor: 75,
	BankScotia:  75,
}

// BankFromLocation infers the operating bank from the free-text location the
// status feed provides. Unknown locations map to BankUnknown.
func BankFromLocation(location string) string {
	if location == "" {
		return BankUnknown
	}
	upper := strings.ToUpper(location)
	for _, entry := range bankPatterns {
		for _, pattern := range entry.patterns {
			if strings.Contains(upper, pattern) {
				return entry.code
			}
		}
	}
	return BankUnknown
}

// BankFullName resolves a bank code to its display name.
func BankFullName(code string) string {
	if name, ok := bankNames[code]; ok {
		return name
	}
	return "Unknown Bank"
}

// WithdrawalFee returns the typical withdrawal fee for the bank, in JMD.
func WithdrawalFee(code string) int {
	if fee, ok := withdrawalFees[code]; ok {
		return fee
	}
	return 150
}

// DepositFee returns the typical deposit fee for the bank, in JMD.
func DepositFee(code string) int {
	if fee, ok := depositFees[code]; ok {
		return fee
	}
	return 75
}

// IsBankCode reports whether code names a concrete bank.
func IsBankCode(code string) bool {
	for _, c := range BankCodes {
		if c == code {
			return true
		}
	}
	return false
}
