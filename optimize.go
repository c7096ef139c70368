package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// OptimizationOutcome is what one successful optimization run produces: the
// persisted result, the session-local recommendations and a per-record
// account of the optimized-usage updates.
type OptimizationOutcome struct {
	Result          OptimizationResult `json:"result"`
	Recommendations []Recommendation   `json:"recommendations"`
	UpdatesApplied  int                `json:"updates_applied"`
	UpdatesFailed   []string           `json:"updates_failed,omitempty"`
}

// runOptimization drives one analysis pass over the most recent records.
// Partial update failures do not roll back applied updates; they are
// reported in the outcome instead.
func runOptimization(ctx context.Context, cfg Config, store EntityStore, invoke llmInvoker) (OptimizationOutcome, error) {
	records, err := store.ListEnergyRecords(ctx, recordLoadLimit)
	if err != nil {
		return OptimizationOutcome{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}
	if len(records) == 0 {
		return OptimizationOutcome{}, ErrNoDataAvailable
	}

	points := analysisWindow(records)

	aiCtx, cancel := context.WithTimeout(ctx, cfg.OptimizeTimeout())
	defer cancel()

	analysis, usage, err := analyzeEnergyUsage(aiCtx, cfg, points, invoke)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(aiCtx.Err(), context.DeadlineExceeded) {
			return OptimizationOutcome{}, ErrOptimizationTimeout
		}
		return OptimizationOutcome{}, fmt.Errorf("%w: %v", ErrAIInvocationFailed, err)
	}
	log.Printf("optimize analyzed records=%d points=%d tokens=%d green_score=%d",
		len(records), len(points), usage.TotalTokens(), analysis.GreenScore)

	result := OptimizationResult{
		TotalUsageBefore:      analysis.TotalUsageBefore,
		TotalUsageAfter:       analysis.TotalUsageAfter,
		EnergySavedKWh:        analysis.EnergySavedKWh,
		EnergySavedPercentage: analysis.EnergySavedPercentage,
		CO2ReducedKg:          analysis.CO2ReducedKg,
		TreesEquivalent:       treesEquivalent(analysis.CO2ReducedKg),
		GreenScore:            analysis.GreenScore,
		CostSavedUSD:          analysis.CostSavedUSD,
		OptimizationDate:      time.Now().UTC(),
	}

	saved, err := store.CreateOptimizationResult(ctx, result)
	if err != nil {
		return OptimizationOutcome{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	outcome := OptimizationOutcome{
		Result:          saved,
		Recommendations: analysis.Recommendations,
	}

	updates := optimizedUsageUpdates(records, analysis.OptimizedData)
	if len(updates) > 0 {
		for _, o := range store.BulkUpdateOptimizedUsage(ctx, updates) {
			if o.Err != nil {
				log.Printf("optimize update failed record=%s err=%v", o.RecordID, o.Err)
				outcome.UpdatesFailed = append(outcome.UpdatesFailed, o.RecordID)
				continue
			}
			outcome.UpdatesApplied++
		}
	}

	log.Printf("optimize complete result=%s saved_kwh=%.2f trees=%d updates_applied=%d updates_failed=%d",
		saved.ID, saved.EnergySavedKWh, saved.TreesEquivalent, outcome.UpdatesApplied, len(outcome.UpdatesFailed))
	return outcome, nil
}

// analysisWindow projects the newest records down to the bounded payload sent
// to the model. At most analysisRecordCap points, regardless of how many
// records exist.
func analysisWindow(records []EnergyRecord) []analysisPoint {
	n := len(records)
	if n > analysisRecordCap {
		n = analysisRecordCap
	}
	points := make([]analysisPoint, 0, n)
	for _, rec := range records[:n] {
		points = append(points, analysisPoint{
			Timestamp:  rec.Timestamp,
			UsageKWh:   rec.UsageKWh,
			DeviceType: rec.DeviceType,
			IsPeakHour: rec.IsPeakHour,
		})
	}
	return points
}

// optimizedUsageUpdates pairs the model's per-point schedule with the records
// positionally, covering min(len(optimized), len(records)) entries. Each
// optimized value is clamped to [0, original usage].
func optimizedUsageUpdates(records []EnergyRecord, optimized []optimizedPoint) []OptimizedUsageUpdate {
	n := len(optimized)
	if len(records) < n {
		n = len(records)
	}
	updates := make([]OptimizedUsageUpdate, 0, n)
	for i := 0; i < n; i++ {
		value := optimized[i].OptimizedUsage
		if value < 0 {
			value = 0
		}
		if value > records[i].UsageKWh {
			value = records[i].UsageKWh
		}
		updates = append(updates, OptimizedUsageUpdate{
			RecordID:     records[i].ID,
			OptimizedKWh: value,
		})
	}
	return updates
}
