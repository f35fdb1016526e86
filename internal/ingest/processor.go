package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/neighbourhood/atmfinder/internal/domain"
	"github.com/neighbourhood/atmfinder/internal/geocode"
	"github.com/neighbourhood/atmfinder/internal/store"
)

const feedTimeLayout = "2006-01-02 15:04:05"

// Machines are stored with the operator prefix so multi-operator feeds can
// coexist in one table.
const locationPrefix = "sbj_"

// TaskError accumulates multiple errors produced during a processing run.
type TaskError struct {
	Errors []error
}

func (e *TaskError) Error() string {
	if len(e.Errors) == 0 {
		return "no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := "multiple errors:"
	for _, err := range e.Errors {
		msg += " " + err.Error() + ";"
	}
	return msg
}

func (e *TaskError) append(err error) {
	if err == nil {
		return
	}
	e.Errors = append(e.Errors, err)
}

func (e *TaskError) asError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Processor turns feed records into stored ATM rows, geocoding where needed.
type Processor struct {
	store    store.Store
	resolver *geocode.Resolver
	logger   *slog.Logger
	workers  int
}

// NewProcessor builds a processor with the given geocoding concurrency.
func NewProcessor(st store.Store, resolver *geocode.Resolver, logger *slog.Logger, workers int) *Processor {
	if workers <= 0 {
		workers = 4
	}
	return &Processor{
		store:    st,
		resolver: resolver,
		logger:   logger,
		workers:  workers,
	}
}

// Process upserts every feed record, geocoding machines that are new or whose
// previous geocoding failed. Records are handled by a bounded worker pool
// because geocoding dominates the run time.
func (p *Processor) Process(ctx context.Context, records []FeedRecord) error {
	if len(records) == 0 {
		p.logger.Warn("no feed records to process")
		return nil
	}

	existing, err := p.store.ListATMs(ctx)
	if err != nil {
		return fmt.Errorf("load existing atms: %w", err)
	}
	known := make(map[string]domain.ATM, len(existing))
	for _, atm := range existing {
		known[atm.ATMID] = atm
	}

	indexCh := make(chan int)
	errCh := make(chan error, len(records))
	var wg sync.WaitGroup

	worker := func() {
		defer wg.Done()
		for idx := range indexCh {
			if err := p.processRecord(ctx, records[idx], known[records[idx].ATMID]); err != nil {
				select {
				case errCh <- err:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go worker()
	}

Loop:
	for i := range records {
		select {
		case indexCh <- i:
		case <-ctx.Done():
			break Loop
		}
	}
	close(indexCh)
	wg.Wait()
	close(errCh)

	var taskErr TaskError
	for err := range errCh {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		taskErr.append(err)
	}
	if err := taskErr.asError(); err != nil {
		return err
	}

	p.logger.Info("processed feed records", "count", len(records))
	return nil
}

func (p *Processor) processRecord(ctx context.Context, record FeedRecord, existing domain.ATM) error {
	if record.ATMID == "" {
		return errors.New("feed record missing ATM_Id")
	}

	timestamp, err := time.Parse(feedTimeLayout, record.Timestamp)
	if err != nil {
		timestamp = time.Now().UTC()
	}

	atm := domain.ATM{
		ATMID:            record.ATMID,
		Location:         locationPrefix + record.Location,
		Parish:           record.Parish,
		DepositAvailable: record.Deposit == "Y",
		Status:           record.Status,
		LastUsed:         record.LastUsed,
		Timestamp:        timestamp,
	}
	if atm.Status == "" {
		atm.Status = "UNKNOWN"
	}

	// Keep known-good coordinates; geocode only new machines and ones whose
	// previous attempt substituted a parish centre.
	if existing.ATMID != "" && existing.HasCoordinates() && !existing.GeocodingFailed {
		atm.Latitude = existing.Latitude
		atm.Longitude = existing.Longitude
	} else {
		coord, failed := p.resolver.Resolve(ctx, record.ATMID, record.Location, record.Parish)
		lat, lng := coord.Lat, coord.Lng
		atm.Latitude = &lat
		atm.Longitude = &lng
		atm.GeocodingFailed = failed
	}

	if err := p.store.UpsertATM(ctx, atm); err != nil {
		return fmt.Errorf("upsert atm %s: %w", record.ATMID, err)
	}
	return nil
}
