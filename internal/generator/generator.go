// Package generator synthesises operator status feeds for local development,
// matching the record shape the live feed publishes.
package generator

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/neighbourhood/atmfinder/internal/ingest"
)

// Dataset contains one generated feed snapshot.
type Dataset struct {
	Records []ingest.FeedRecord `json:"records"`
}

// Generator produces synthetic status records for a stable fleet of machines.
type Generator struct {
	cfg       Config
	rand      *rand.Rand
	fragments fleetFragments
	fleet     []machine
}

type machine struct {
	id       string
	location string
	parish   string
	deposit  string
}

// New returns a configured Generator instance. The fleet is derived from the
// seed, so repeated snapshots describe the same machines.
func New(cfg Config) *Generator {
	if cfg.NumMachines <= 0 {
		cfg.NumMachines = DefaultConfig().NumMachines
	}
	if cfg.DownChance <= 0 {
		cfg.DownChance = DefaultConfig().DownChance
	}
	if cfg.DepositChance <= 0 {
		cfg.DepositChance = DefaultConfig().DepositChance
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	g := &Generator{
		cfg:       cfg,
		rand:      rand.New(rand.NewSource(cfg.Seed)),
		fragments: defaultFleetFragments(),
	}
	g.fleet = g.buildFleet()
	return g
}

// Generate synthesises one status snapshot for the fleet. It respects context
// cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	timestamp := time.Now().Format("2006-01-02 15:04:05")
	records := make([]ingest.FeedRecord, 0, len(g.fleet))

	for _, m := range g.fleet {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}

		status := "WORKING"
		if g.rand.Float64() < g.cfg.DownChance {
			status = "DOWN"
		}

		records = append(records, ingest.FeedRecord{
			ATMID:     m.id,
			Location:  m.location,
			Parish:    m.parish,
			Deposit:   m.deposit,
			Status:    status,
			LastUsed:  g.randomLastUsed(),
			Timestamp: timestamp,
		})
	}

	return Dataset{Records: records}, nil
}

func (g *Generator) buildFleet() []machine {
	fleet := make([]machine, 0, g.cfg.NumMachines)
	seen := make(map[string]struct{}, g.cfg.NumMachines)

	for len(fleet) < g.cfg.NumMachines {
		operator := g.fragments.operators[g.rand.Intn(len(g.fragments.operators))]
		place := g.fragments.places[g.rand.Intn(len(g.fragments.places))]
		location := fmt.Sprintf("%s %s", operator, place.name)
		if _, dup := seen[location]; dup {
			continue
		}
		seen[location] = struct{}{}

		deposit := "N"
		if g.rand.Float64() < g.cfg.DepositChance {
			deposit = "Y"
		}

		fleet = append(fleet, machine{
			id:       fmt.Sprintf("%d", 100+len(fleet)),
			location: location,
			parish:   place.parish,
			deposit:  deposit,
		})
	}
	return fleet
}

// randomLastUsed reports an elapsed time between 30 seconds and 6 hours in the
// feed's "H:MM:SS" format.
func (g *Generator) randomLastUsed() string {
	elapsed := time.Duration(30+g.rand.Intn(6*3600-30)) * time.Second
	hours := int(elapsed.Hours())
	minutes := int(elapsed.Minutes()) % 60
	seconds := int(elapsed.Seconds()) % 60
	return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
}

type fleetFragments struct {
	operators []string
	places    []fleetPlace
}

type fleetPlace struct {
	name   string
	parish string
}

func defaultFleetFragments() fleetFragments {
	return fleetFragments{
		operators: []string{"NCB", "Scotiabank", "JMMB", "JN Bank", "CIBC FirstCaribbean", "Sagicor", "FCIB", "FESCO"},
		places: []fleetPlace{
			{"Half Way Tree", "St Andrew"},
			{"Cross Roads", "Kingston"},
			{"Downtown Kingston", "Kingston"},
			{"Liguanea", "St Andrew"},
			{"Portmore", "St Catherine"},
			{"Spanish Town", "St Catherine"},
			{"Worthy Park", "St Catherine"},
			{"May Pen", "Clarendon"},
			{"Chapelton Road", "Clarendon"},
			{"Mandeville", "Manchester"},
			{"Santa Cruz", "St Elizabeth"},
			{"Savanna-la-Mar", "Westmoreland"},
			{"Lucea", "Hanover"},
			{"Montego Bay", "St James"},
			{"Falmouth", "Trelawny"},
			{"Ocho Rios", "St Ann"},
			{"Drax Hall", "St Ann"},
			{"Port Maria", "St Mary"},
			{"Port Antonio", "Portland"},
			{"Morant Bay", "St Thomas"},
		},
	}
}
