// Command finder lists nearby cash machines from the terminal. It mirrors the
// map frontend: it tracks a location (or falls back to Kingston), fetches the
// dataset with preference filtering, applies a view filter and can overlay the
// top recommendations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/neighbourhood/atmfinder/internal/client"
	"github.com/neighbourhood/atmfinder/internal/config"
	"github.com/neighbourhood/atmfinder/internal/logging"
)

var errNoFix = errors.New("no location fix available")

func main() {
	var (
		baseURL   = flag.String("base-url", "http://localhost:8080", "backend API base URL")
		email     = flag.String("email", "", "account email (enables preference filtering)")
		password  = flag.String("password", "", "account password")
		lat       = flag.Float64("lat", 0, "latitude override")
		lng       = flag.Float64("lng", 0, "longitude override")
		filter    = flag.String("filter", string(client.FilterAll), "view filter (ALL, USER_PREFERENCES, LOWEST_FEES, SHORTEST_DISTANCE, ABM_ONLY, USD_ONLY or a bank code)")
		recommend = flag.Bool("recommend", false, "overlay the top recommendations (requires login)")
		stats     = flag.Bool("stats", false, "print dataset statistics and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging).With("component", "finder")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	api := client.New(*baseURL)

	if *stats {
		s, err := api.Stats(ctx)
		if err != nil {
			logger.Error("stats request failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("machines: %d total, %d working, %d down, %d unmapped\n",
			s.Total, s.Working, s.NotWorking, s.GeocodingFailed)
		if s.LastUpdated != nil {
			fmt.Printf("last updated: %s\n", *s.LastUpdated)
		}
		return
	}

	active := client.Filter(*filter)
	if !client.ValidFilter(active) {
		fmt.Fprintf(os.Stderr, "unknown filter %q\n", *filter)
		os.Exit(1)
	}

	var token string
	if *email != "" {
		token, err = api.Login(ctx, *email, *password)
		if err != nil {
			logger.Error("login failed", "error", err)
			os.Exit(1)
		}
	}

	tracker := client.NewTracker(&flagSource{lat: *lat, lng: *lng}, logger)
	tracker.Start(ctx)
	defer tracker.Stop()

	loc, usingFallback := tracker.Location()
	if usingFallback {
		fmt.Fprintf(os.Stderr, "no location given, assuming Kingston (%.4f, %.4f)\n", loc.Lat, loc.Lng)
	}

	fetcher := client.NewFetcher(api, logger)
	atms, err := fetcher.Fetch(ctx, client.FetchOptions{
		UsePreferences: token != "",
		Token:          token,
		Location:       &loc,
	})
	if err != nil {
		logger.Error("fetch failed", "error", err)
		os.Exit(1)
	}

	overlay := client.NewOverlay(api)
	if *recommend {
		if _, err := overlay.Fetch(ctx, token, &loc); err != nil {
			switch {
			case errors.Is(err, client.ErrAuthRequired):
				fmt.Fprintln(os.Stderr, "recommendations require -email and -password")
				os.Exit(1)
			default:
				logger.Error("recommendations failed", "error", err)
				os.Exit(1)
			}
		}
	}

	view := overlay.Apply(client.ApplyFilter(atms, &loc, active))
	printATMs(view)
}

func printATMs(atms []client.ATM) {
	if len(atms) == 0 {
		fmt.Println("no machines match")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BANK\tTYPE\tLOCATION\tDIST\tFEE\tSTATUS")
	for _, atm := range atms {
		dist := "-"
		if atm.DistanceKM != nil {
			dist = fmt.Sprintf("%.1fkm", *atm.DistanceKM)
		}
		status := "working"
		if !atm.Functional {
			status = "down"
		}
		if atm.LowOnCash {
			status += ", low on cash"
		}
		if atm.Score != nil {
			status += fmt.Sprintf(" (score %.2f)", *atm.Score)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t$%d\t%s\n",
			atm.Bank, atm.Type, atm.Address, dist, atm.WithdrawalFee, status)
	}
	w.Flush()
}

// flagSource satisfies the tracker with coordinates from the command line.
// Without an override it reports an error, which sends the tracker to the
// Kingston fallback.
type flagSource struct {
	lat, lng float64
}

func (s *flagSource) Current(context.Context) (client.Position, error) {
	if s.lat == 0 && s.lng == 0 {
		return client.Position{}, errNoFix
	}
	return client.Position{Lat: s.lat, Lng: s.lng}, nil
}

func (s *flagSource) Watch(context.Context) (<-chan client.Position, error) {
	ch := make(chan client.Position)
	close(ch)
	return ch, nil
}
