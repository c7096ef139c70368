package main

import (
	"context"
	"errors"
	"sync"
	"time"
)

// fakeStore is an in-memory EntityStore for workflow tests. Error fields
// force specific failures.
type fakeStore struct {
	mu      sync.Mutex
	records []EnergyRecord
	results []OptimizationResult

	listErr       error
	bulkCreateErr error
	createErr     error
	resultsErr    error
	failUpdateIDs map[string]bool

	nextID int
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) ListEnergyRecords(ctx context.Context, limit int) ([]EnergyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	n := len(f.records)
	if n > limit {
		n = limit
	}
	out := make([]EnergyRecord, n)
	copy(out, f.records[:n])
	return out, nil
}

func (f *fakeStore) BulkCreateEnergyRecords(ctx context.Context, records []EnergyRecord) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bulkCreateErr != nil {
		return 0, f.bulkCreateErr
	}
	for _, rec := range records {
		f.nextID++
		rec.ID = "rec-" + time.Now().Format("150405") + "-" + string(rune('a'+f.nextID%26))
		f.records = append(f.records, rec)
	}
	return len(records), nil
}

func (f *fakeStore) BulkUpdateOptimizedUsage(ctx context.Context, updates []OptimizedUsageUpdate) []UpdateOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcomes := make([]UpdateOutcome, 0, len(updates))
	for _, u := range updates {
		if f.failUpdateIDs[u.RecordID] {
			outcomes = append(outcomes, UpdateOutcome{RecordID: u.RecordID, Err: errors.New("update refused")})
			continue
		}
		applied := false
		for i := range f.records {
			if f.records[i].ID == u.RecordID {
				v := u.OptimizedKWh
				f.records[i].OptimizedUsageKWh = &v
				applied = true
				break
			}
		}
		var err error
		if !applied {
			err = errors.New("record not found")
		}
		outcomes = append(outcomes, UpdateOutcome{RecordID: u.RecordID, Err: err})
	}
	return outcomes
}

func (f *fakeStore) CreateOptimizationResult(ctx context.Context, result OptimizationResult) (OptimizationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return OptimizationResult{}, f.createErr
	}
	result.ID = "res-1"
	f.results = append(f.results, result)
	return result, nil
}

func (f *fakeStore) ListOptimizationResults(ctx context.Context, limit int) ([]OptimizationResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resultsErr != nil {
		return nil, f.resultsErr
	}
	n := len(f.results)
	if n > limit {
		n = limit
	}
	out := make([]OptimizationResult, n)
	copy(out, f.results[:n])
	return out, nil
}

// fakeInvoker returns canned responses and counts calls.
type fakeInvoker struct {
	mu         sync.Mutex
	calls      int
	lastSystem string
	lastUser   string
	response   string
	err        error
}

func (f *fakeInvoker) invoke(ctx context.Context, cfg Config, systemPrompt, userPrompt string) (string, LLMUsage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastSystem = systemPrompt
	f.lastUser = userPrompt
	if f.err != nil {
		return "", LLMUsage{}, f.err
	}
	return f.response, LLMUsage{InputTokens: 10, OutputTokens: 5}, nil
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig(t interface{ TempDir() string }) Config {
	return Config{
		LLMProvider:            "anthropic",
		AnthropicAPIKey:        "test-key",
		UploadDir:              t.TempDir(),
		UploadMaxBytes:         1 << 20,
		OptimizeTimeoutSeconds: 30,
		CORSAllowedOrigins:     []string{"*"},
		Location:               time.UTC,
	}
}

func seedRecords(n int, base time.Time) []EnergyRecord {
	records := make([]EnergyRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, EnergyRecord{
			ID:         "rec-" + string(rune('a'+i/26)) + string(rune('a'+i%26)),
			Timestamp:  base.Add(-time.Duration(i) * time.Hour),
			UsageKWh:   1.0 + float64(i%5),
			DeviceType: "heating",
			IsPeakHour: i%3 == 0,
		})
	}
	return records
}
