package main

import (
	"context"
	"log"
)

// Dashboard is the read-only composition the dashboard page renders: the
// latest records, the latest optimization results and the newest result as
// the current one, plus the summary tiles derived from the records.
type Dashboard struct {
	Records       []EnergyRecord       `json:"records"`
	Results       []OptimizationResult `json:"results"`
	CurrentResult *OptimizationResult  `json:"current_result,omitempty"`

	TotalUsageKWh   float64            `json:"total_usage_kwh"`
	PeakHourShare   float64            `json:"peak_hour_share"`
	DeviceBreakdown map[string]float64 `json:"device_breakdown"`
}

// loadDashboard never fails: a read error on either collection degrades to an
// empty list so browsing is never blocked by a transient store fault.
func loadDashboard(ctx context.Context, store EntityStore) Dashboard {
	dash := Dashboard{DeviceBreakdown: map[string]float64{}}

	records, err := store.ListEnergyRecords(ctx, dashboardRecordCap)
	if err != nil {
		log.Printf("dashboard records load error (degraded to empty): %v", err)
		records = nil
	}
	results, err := store.ListOptimizationResults(ctx, dashboardResultCap)
	if err != nil {
		log.Printf("dashboard results load error (degraded to empty): %v", err)
		results = nil
	}

	dash.Records = records
	dash.Results = results
	if len(results) > 0 {
		current := results[0]
		dash.CurrentResult = &current
	}

	peak := 0
	for _, rec := range records {
		dash.TotalUsageKWh += rec.UsageKWh
		dash.DeviceBreakdown[rec.DeviceType] += rec.UsageKWh
		if rec.IsPeakHour {
			peak++
		}
	}
	if len(records) > 0 {
		dash.PeakHourShare = float64(peak) / float64(len(records))
	}
	return dash
}
