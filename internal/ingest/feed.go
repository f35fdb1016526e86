// Package ingest keeps the ATM dataset fresh: it pulls the operator status
// feed, upserts records, geocodes new locations and retries past failures on
// a fixed schedule.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/neighbourhood/atmfinder/internal/config"
)

// FeedRecord is one machine's status as published by the operator feed.
type FeedRecord struct {
	ATMID     string `json:"ATM_Id"`
	Location  string `json:"Location"`
	Parish    string `json:"Parish"`
	Deposit   string `json:"Deposit"` // "Y" or "N"
	Status    string `json:"Status"`
	LastUsed  string `json:"Last_Used"`
	Timestamp string `json:"TimeStamp"` // "2006-01-02 15:04:05"
}

// FeedClient fetches status records from the upstream API.
type FeedClient struct {
	cfg    config.FeedConfig
	client *http.Client
}

// NewFeedClient builds a client for the configured feed.
func NewFeedClient(cfg config.FeedConfig) *FeedClient {
	return &FeedClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
}

// Fetch retrieves the full set of status records.
func (c *FeedClient) Fetch(ctx context.Context) ([]FeedRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.Username != "" {
		req.SetBasicAuth(c.cfg.Username, c.cfg.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}

	var records []FeedRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode feed: %w", err)
	}
	return records, nil
}
