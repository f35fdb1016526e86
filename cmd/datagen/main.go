package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/neighbourhood/atmfinder/internal/generator"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		machines      = flag.Int("machines", cfg.NumMachines, "number of machines in the fleet")
		downChance    = flag.Float64("down-chance", cfg.DownChance, "probability a machine reports DOWN")
		depositChance = flag.Float64("deposit-chance", cfg.DepositChance, "probability a machine accepts deposits")
		seed          = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir     = flag.String("output-dir", "data", "directory to write records.json")
		writeStdout   = flag.Bool("stdout", false, "write the snapshot to stdout instead of a file")
	)
	flag.Parse()

	genCfg := generator.Config{
		NumMachines:   *machines,
		DownChance:    clampProbability(*downChance),
		DepositChance: clampProbability(*depositChance),
		Seed:          *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen := generator.New(genCfg)
	dataset, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := json.NewEncoder(os.Stdout).Encode(dataset.Records); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write snapshot to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := generator.WriteDataset(dataset, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write snapshot: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d status records into %s\n", len(dataset.Records), *outputDir)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
