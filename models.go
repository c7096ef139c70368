package main

import (
	"math"
	"strings"
	"time"
)

type EnergyRecord struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	UsageKWh          float64   `json:"usage_kwh"`
	DeviceType        string    `json:"device_type"`
	IsPeakHour        bool      `json:"is_peak_hour"`
	OptimizedUsageKWh *float64  `json:"optimized_usage_kwh,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type OptimizationResult struct {
	ID                    string    `json:"id"`
	TotalUsageBefore      float64   `json:"total_usage_before"`
	TotalUsageAfter       float64   `json:"total_usage_after"`
	EnergySavedKWh        float64   `json:"energy_saved_kwh"`
	EnergySavedPercentage float64   `json:"energy_saved_percentage"`
	CO2ReducedKg          float64   `json:"co2_reduced_kg"`
	TreesEquivalent       int       `json:"trees_equivalent"`
	GreenScore            int       `json:"green_score"`
	CostSavedUSD          float64   `json:"cost_saved_usd"`
	OptimizationDate      time.Time `json:"optimization_date"`
	CreatedAt             time.Time `json:"created_at"`
}

// Recommendation lives only in memory for the duration of one optimization
// session. It is returned to the caller and never persisted.
type Recommendation struct {
	Title            string `json:"title"`
	Description      string `json:"description"`
	SavingsPotential string `json:"savings_potential"`
	Difficulty       string `json:"difficulty"`
}

type UploadSummary struct {
	RecordsCreated int     `json:"records_created"`
	TotalUsage     float64 `json:"total_usage"`
}

// Domain constants baked into the analysis prompt. The AI response is still
// untrusted; these are prompt-level hints, and every derived field is
// recomputed or range-checked locally before use.
const (
	co2KgPerKWhSaved  = 0.5
	electricityUSDKWh = 0.12
	kgCO2PerTreeYear  = 22.0

	analysisRecordCap  = 50
	recordLoadLimit    = 100
	dashboardRecordCap = 50
	dashboardResultCap = 10

	maxRecommendations = 5
	defaultDeviceType  = "other"
)

// treesEquivalent is a pure function of the CO2 reduction. It is always
// computed here, never taken from an AI response.
func treesEquivalent(co2ReducedKg float64) int {
	if co2ReducedKg <= 0 || math.IsNaN(co2ReducedKg) || math.IsInf(co2ReducedKg, 0) {
		return 0
	}
	return int(math.Floor(co2ReducedKg / kgCO2PerTreeYear))
}

func clampGreenScore(score float64) int {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return int(score)
}

// normalizeDifficulty maps free-form AI difficulty labels onto the closed set
// used for display grouping.
func normalizeDifficulty(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easy", "low", "simple":
		return "easy"
	case "hard", "high", "difficult":
		return "hard"
	default:
		return "medium"
	}
}
