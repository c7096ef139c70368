package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// OptimizedUsageUpdate sets optimized_usage_kwh on one existing record.
type OptimizedUsageUpdate struct {
	RecordID     string
	OptimizedKWh float64
}

// UpdateOutcome reports the result of one item in a batch update.
type UpdateOutcome struct {
	RecordID string
	Err      error
}

// EntityStore is the sole owner of persisted EnergyRecord and
// OptimizationResult data. Workflows hold transient copies only and re-read
// the store on every run. Records are never deleted through this interface.
type EntityStore interface {
	// ListEnergyRecords returns up to limit records, most recent first.
	ListEnergyRecords(ctx context.Context, limit int) ([]EnergyRecord, error)
	// BulkCreateEnergyRecords inserts all drafts in one call and returns the
	// number created. A failure aborts the whole batch.
	BulkCreateEnergyRecords(ctx context.Context, records []EnergyRecord) (int, error)
	// BulkUpdateOptimizedUsage applies each update and reports per-item
	// success or failure. Already-applied updates are kept on later failures.
	BulkUpdateOptimizedUsage(ctx context.Context, updates []OptimizedUsageUpdate) []UpdateOutcome
	CreateOptimizationResult(ctx context.Context, result OptimizationResult) (OptimizationResult, error)
	// ListOptimizationResults returns up to limit results, newest
	// optimization_date first.
	ListOptimizationResults(ctx context.Context, limit int) ([]OptimizationResult, error)
	Close() error
}

// NewEntityStore picks the remote entity API when configured, otherwise the
// local sqlite store.
func NewEntityStore(cfg Config) (EntityStore, error) {
	if cfg.EntityStoreURL != "" {
		return newAPIStore(cfg.EntityStoreURL, cfg.EntityStoreAPIKey), nil
	}
	return InitDB(cfg.DBPath)
}

// apiStore talks to a hosted generic entity-storage API. The service exposes
// one collection per record kind; ordering and limits are query parameters.
type apiStore struct {
	baseURL string
	apiKey  string
}

func newAPIStore(baseURL, apiKey string) *apiStore {
	return &apiStore{baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

func (s *apiStore) Close() error { return nil }

func (s *apiStore) ListEnergyRecords(ctx context.Context, limit int) ([]EnergyRecord, error) {
	var records []EnergyRecord
	if err := s.list(ctx, "EnergyRecord", "-timestamp", limit, &records); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *apiStore) ListOptimizationResults(ctx context.Context, limit int) ([]OptimizationResult, error) {
	var results []OptimizationResult
	if err := s.list(ctx, "OptimizationResult", "-optimization_date", limit, &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (s *apiStore) BulkCreateEnergyRecords(ctx context.Context, records []EnergyRecord) (int, error) {
	var created []EnergyRecord
	if err := s.do(ctx, "POST", "/entities/EnergyRecord/bulk", records, &created); err != nil {
		return 0, err
	}
	// Some deployments return the created documents, some only a count echo.
	if len(created) > 0 {
		return len(created), nil
	}
	return len(records), nil
}

func (s *apiStore) CreateOptimizationResult(ctx context.Context, result OptimizationResult) (OptimizationResult, error) {
	var saved OptimizationResult
	if err := s.do(ctx, "POST", "/entities/OptimizationResult", result, &saved); err != nil {
		return OptimizationResult{}, err
	}
	if saved.ID == "" {
		saved = result
	}
	return saved, nil
}

func (s *apiStore) BulkUpdateOptimizedUsage(ctx context.Context, updates []OptimizedUsageUpdate) []UpdateOutcome {
	outcomes := make([]UpdateOutcome, 0, len(updates))
	for _, u := range updates {
		patch := map[string]float64{"optimized_usage_kwh": u.OptimizedKWh}
		err := s.do(ctx, "PATCH", "/entities/EnergyRecord/"+url.PathEscape(u.RecordID), patch, nil)
		outcomes = append(outcomes, UpdateOutcome{RecordID: u.RecordID, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes
}

func (s *apiStore) list(ctx context.Context, kind, sort string, limit int, out any) error {
	path := fmt.Sprintf("/entities/%s?sort=%s&limit=%d", kind, url.QueryEscape(sort), limit)
	return s.do(ctx, "GET", path, nil, out)
}

func (s *apiStore) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/api"+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := externalHTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling entity store: %w", err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("entity store returned %d: %s", resp.StatusCode, truncateForLog(string(respBody), 256))
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parsing entity store response: %w", err)
	}
	return nil
}

func truncateForLog(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + fmt.Sprintf("... [truncated, total_length=%d]", len(s))
}
