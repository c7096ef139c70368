package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const analysisResponse = `{
	"optimized_data": [
		{"timestamp": "2024-01-15T08:00:00Z", "original_usage": 2.0, "optimized_usage": 1.5},
		{"timestamp": "2024-01-15T07:00:00Z", "original_usage": 3.0, "optimized_usage": 2.2}
	],
	"total_usage_before": 100,
	"total_usage_after": 80,
	"energy_saved_kwh": 20,
	"energy_saved_percentage": 20,
	"co2_reduced_kg": 44,
	"cost_saved_usd": 2.4,
	"green_score": 70,
	"recommendations": [
		{"title": "Shift laundry off peak", "description": "Run after 9pm", "savings_potential": "2 kWh/week", "difficulty": "easy"}
	]
}`

func TestRunOptimizationNoDataMakesNoAICall(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{}
	invoker := &fakeInvoker{response: analysisResponse}

	_, err := runOptimization(context.Background(), cfg, store, invoker.invoke)
	if !errors.Is(err, ErrNoDataAvailable) {
		t.Fatalf("expected ErrNoDataAvailable, got %v", err)
	}
	if invoker.callCount() != 0 {
		t.Fatalf("expected zero AI calls on empty record set, got %d", invoker.callCount())
	}
}

func TestRunOptimizationRecomputesTreesLocally(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{records: seedRecords(10, time.Now().UTC())}
	// The model claims 999 trees; the stored value must be floor(44/22)=2.
	response := strings.Replace(analysisResponse, `"co2_reduced_kg": 44,`,
		`"co2_reduced_kg": 44, "trees_equivalent": 999,`, 1)
	invoker := &fakeInvoker{response: response}

	outcome, err := runOptimization(context.Background(), cfg, store, invoker.invoke)
	if err != nil {
		t.Fatalf("runOptimization failed: %v", err)
	}
	if outcome.Result.TreesEquivalent != 2 {
		t.Fatalf("expected trees_equivalent recomputed to 2, got %d", outcome.Result.TreesEquivalent)
	}
	if len(store.results) != 1 || store.results[0].TreesEquivalent != 2 {
		t.Fatalf("expected persisted result with trees=2, got %+v", store.results)
	}
	if outcome.Result.OptimizationDate.IsZero() {
		t.Fatal("expected optimization_date set")
	}
}

func TestRunOptimizationAppliesClampedUpdates(t *testing.T) {
	cfg := testConfig(t)
	base := time.Now().UTC()
	records := seedRecords(2, base)
	records[0].UsageKWh = 2.0
	records[1].UsageKWh = 1.0 // model proposes 2.2, must clamp to 1.0
	store := &fakeStore{records: records}
	invoker := &fakeInvoker{response: analysisResponse}

	outcome, err := runOptimization(context.Background(), cfg, store, invoker.invoke)
	if err != nil {
		t.Fatalf("runOptimization failed: %v", err)
	}
	if outcome.UpdatesApplied != 2 || len(outcome.UpdatesFailed) != 0 {
		t.Fatalf("expected 2 applied updates, got %+v", outcome)
	}
	if store.records[0].OptimizedUsageKWh == nil || *store.records[0].OptimizedUsageKWh != 1.5 {
		t.Fatalf("unexpected first optimized usage: %v", store.records[0].OptimizedUsageKWh)
	}
	if store.records[1].OptimizedUsageKWh == nil || *store.records[1].OptimizedUsageKWh != 1.0 {
		t.Fatalf("expected optimized usage clamped to original 1.0, got %v", store.records[1].OptimizedUsageKWh)
	}
}

func TestRunOptimizationReportsPartialUpdateFailures(t *testing.T) {
	cfg := testConfig(t)
	records := seedRecords(2, time.Now().UTC())
	store := &fakeStore{
		records:       records,
		failUpdateIDs: map[string]bool{records[1].ID: true},
	}
	invoker := &fakeInvoker{response: analysisResponse}

	outcome, err := runOptimization(context.Background(), cfg, store, invoker.invoke)
	if err != nil {
		t.Fatalf("runOptimization failed: %v", err)
	}
	if outcome.UpdatesApplied != 1 {
		t.Fatalf("expected 1 applied update, got %d", outcome.UpdatesApplied)
	}
	if len(outcome.UpdatesFailed) != 1 || outcome.UpdatesFailed[0] != records[1].ID {
		t.Fatalf("expected failed update for %s, got %v", records[1].ID, outcome.UpdatesFailed)
	}
	// The run itself still succeeds and the result is persisted.
	if len(store.results) != 1 {
		t.Fatalf("expected result persisted despite partial update failure, got %d", len(store.results))
	}
}

func TestRunOptimizationTimeout(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{records: seedRecords(5, time.Now().UTC())}
	invoker := &fakeInvoker{err: context.DeadlineExceeded}

	_, err := runOptimization(context.Background(), cfg, store, invoker.invoke)
	if !errors.Is(err, ErrOptimizationTimeout) {
		t.Fatalf("expected ErrOptimizationTimeout, got %v", err)
	}
}

func TestRunOptimizationAIFailure(t *testing.T) {
	cfg := testConfig(t)
	store := &fakeStore{records: seedRecords(5, time.Now().UTC())}
	invoker := &fakeInvoker{err: errors.New("provider unavailable")}

	_, err := runOptimization(context.Background(), cfg, store, invoker.invoke)
	if !errors.Is(err, ErrAIInvocationFailed) {
		t.Fatalf("expected ErrAIInvocationFailed, got %v", err)
	}
	if len(store.results) != 0 {
		t.Fatalf("expected no result persisted on AI failure, got %d", len(store.results))
	}
}

func TestAnalysisWindowCapsAtFifty(t *testing.T) {
	records := seedRecords(80, time.Now().UTC())

	points := analysisWindow(records)
	if len(points) != analysisRecordCap {
		t.Fatalf("expected %d analysis points, got %d", analysisRecordCap, len(points))
	}
	// Newest records first, projection keeps only the four analysis fields.
	if !points[0].Timestamp.Equal(records[0].Timestamp) {
		t.Fatalf("expected newest record first in window")
	}

	few := analysisWindow(records[:24])
	if len(few) != 24 {
		t.Fatalf("expected 24 points for 24 records, got %d", len(few))
	}
}

func TestOptimizedUsageUpdatesPairsPositionally(t *testing.T) {
	records := seedRecords(3, time.Now().UTC())
	records[0].UsageKWh = 2.0
	optimized := []optimizedPoint{
		{OptimizedUsage: -0.5},
		{OptimizedUsage: 0.5},
		{OptimizedUsage: 1.0},
		{OptimizedUsage: 9.9}, // extra point beyond the record set is dropped
	}

	updates := optimizedUsageUpdates(records, optimized)
	if len(updates) != 3 {
		t.Fatalf("expected min(len(optimized), len(records)) = 3 updates, got %d", len(updates))
	}
	if updates[0].OptimizedKWh != 0 {
		t.Fatalf("expected negative value clamped to 0, got %f", updates[0].OptimizedKWh)
	}
	if updates[0].RecordID != records[0].ID {
		t.Fatalf("expected positional pairing, got %s", updates[0].RecordID)
	}
}
