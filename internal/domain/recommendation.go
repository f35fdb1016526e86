package domain

// ScoreBreakdown itemises the weighted factors behind a recommendation score.
type ScoreBreakdown struct {
	Distance           float64
	BankPreference     float64
	Functionality      float64
	DepositAvail       float64
	WaitTime           float64
}

// Recommendation is a ranked ATM suggestion produced by the scoring engine.
// It is ephemeral: computed on demand and never persisted.
type Recommendation struct {
	ATM                 ATM
	Bank                string
	Score               float64
	DistanceKM          float64
	EstimatedWaitPeople int
	Reasons             []string
	Breakdown           ScoreBreakdown
}
