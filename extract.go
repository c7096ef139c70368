package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"
)

const maxExtractionChars = 60000

// extractedRow is one parsed line of an uploaded consumption file. Pointer
// fields keep "absent" distinct from zero so the upload workflow can apply
// its documented fallback policy instead of silently writing zeros.
type extractedRow struct {
	Timestamp  *time.Time
	UsageKWh   *float64
	DeviceType string
}

// extractEnergyRows sends the uploaded file content to the model with a
// strict row schema and decodes the result defensively. The actual CSV/XLS
// parsing is entirely delegated to the model; this function only validates
// structure.
func extractEnergyRows(ctx context.Context, cfg Config, filename, content string, invoke llmInvoker) ([]extractedRow, LLMUsage, error) {
	if len(content) > maxExtractionChars {
		content = content[:maxExtractionChars] + "\n...(truncated)"
	}

	systemPrompt := `You extract structured energy consumption rows from a raw data file.
Each row has an optional timestamp, an optional numeric usage_kwh and an optional device_type tag.
Skip header lines and rows that contain no usable data. Leave a field out entirely when the file does not provide it.

Respond with JSON only (no markdown):
{"status": "success", "data": [{"timestamp": "2024-01-15T08:00:00Z", "usage_kwh": 2.5, "device_type": "heating"}, ...]}

If the file contains no energy data at all, respond with {"status": "error", "data": []}.`

	userPrompt := fmt.Sprintf("File name: %s\n\nFile content:\n%s", filename, content)

	log.Printf("llm extract provider=%s file=%s bytes=%d", cfg.LLMProvider, filename, len(content))
	responseText, usage, err := invoke(ctx, cfg, systemPrompt, userPrompt)
	if err != nil {
		return nil, usage, err
	}

	rows, parseErr := parseExtractionResponse(responseText)
	if parseErr != nil {
		return nil, usage, parseErr
	}
	return rows, usage, nil
}

type rawExtractionResponse struct {
	Status string `json:"status"`
	Data   []struct {
		Timestamp  string          `json:"timestamp"`
		UsageKWh   json.RawMessage `json:"usage_kwh"`
		DeviceType string          `json:"device_type"`
	} `json:"data"`
	// Some model outputs nest rows under "output".
	Output *struct {
		Data []struct {
			Timestamp  string          `json:"timestamp"`
			UsageKWh   json.RawMessage `json:"usage_kwh"`
			DeviceType string          `json:"device_type"`
		} `json:"data"`
	} `json:"output"`
}

func parseExtractionResponse(responseText string) ([]extractedRow, error) {
	responseText = stripJSONFences(responseText)

	var raw rawExtractionResponse
	if err := json.Unmarshal([]byte(responseText), &raw); err != nil {
		return nil, fmt.Errorf("parsing extraction response: %w (truncated response: %s)",
			err, truncateForLog(responseText, 512))
	}

	data := raw.Data
	if len(data) == 0 && raw.Output != nil {
		data = raw.Output.Data
	}
	if raw.Status != "success" || len(data) == 0 {
		return nil, ErrExtractionFailed
	}

	rows := make([]extractedRow, 0, len(data))
	for _, item := range data {
		row := extractedRow{DeviceType: strings.TrimSpace(item.DeviceType)}
		if ts := parseRowTimestamp(item.Timestamp); ts != nil {
			row.Timestamp = ts
		}
		if usage := parseRowUsage(item.UsageKWh); usage != nil {
			row.UsageKWh = usage
		}
		rows = append(rows, row)
	}
	return rows, nil
}

var rowTimestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseRowTimestamp(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range rowTimestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

// parseRowUsage accepts the expected number but also tolerates model outputs
// like "2.5" or "2.5 kWh".
func parseRowUsage(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}

	var asNumber float64
	if err := json.Unmarshal(raw, &asNumber); err == nil {
		if asNumber < 0 {
			return nil
		}
		return &asNumber
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		asString = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(asString), "kWh"))
		var parsed float64
		if _, err := fmt.Sscanf(asString, "%f", &parsed); err == nil && parsed >= 0 {
			return &parsed
		}
	}

	return nil
}
