package generator

// Config drives the synthetic status feed generator.
type Config struct {
	NumMachines   int
	DownChance    float64
	DepositChance float64
	Seed          int64
}

// DefaultConfig returns baseline settings that resemble the live operator feed.
func DefaultConfig() Config {
	return Config{
		NumMachines:   40,
		DownChance:    0.15,
		DepositChance: 0.4,
		Seed:          42,
	}
}
