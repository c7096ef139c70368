package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// runUpload drives one ingestion pass: persist the raw file, extract rows,
// fill defaults, bulk-insert, report a summary. The pipeline stops at the
// first failure; records persisted by earlier uploads stay in place.
func runUpload(ctx context.Context, cfg Config, store EntityStore, glossary *DeviceGlossary, invoke llmInvoker, filename string, content []byte) (UploadSummary, error) {
	if strings.TrimSpace(filename) == "" || len(content) == 0 {
		return UploadSummary{}, ErrNoFileSelected
	}

	fileRef, err := saveUploadedFile(cfg.UploadDir, filename, content)
	if err != nil {
		return UploadSummary{}, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	log.Printf("upload stored file=%s ref=%s bytes=%d", filename, fileRef, len(content))

	rows, usage, err := extractEnergyRows(ctx, cfg, filename, string(content), invoke)
	if err != nil {
		if errors.Is(err, ErrExtractionFailed) {
			return UploadSummary{}, err
		}
		return UploadSummary{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}
	log.Printf("upload extracted file=%s rows=%d tokens=%d", filename, len(rows), usage.TotalTokens())

	drafts := draftRecordsFromRows(rows, glossary, time.Now().UTC())

	created, err := store.BulkCreateEnergyRecords(ctx, drafts)
	if err != nil {
		return UploadSummary{}, fmt.Errorf("%w: %v", ErrPersistenceFailed, err)
	}

	summary := UploadSummary{RecordsCreated: created}
	for _, d := range drafts {
		summary.TotalUsage += d.UsageKWh
	}
	log.Printf("upload complete file=%s records=%d total_kwh=%.2f", filename, summary.RecordsCreated, summary.TotalUsage)
	return summary, nil
}

// saveUploadedFile writes the raw upload under the uploads dir and returns a
// stable reference to it.
func saveUploadedFile(dir, filename string, content []byte) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("%s_%s", uuid.NewString(), sanitizeFilename(filepath.Base(filename)))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", err
	}
	return path, nil
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}

// draftRecordsFromRows maps extracted rows to record drafts. Fields the
// extraction could not provide get the documented fallbacks: timestamp ->
// now, usage -> pseudo-random filler in [0,3) kWh, device type -> "other".
func draftRecordsFromRows(rows []extractedRow, glossary *DeviceGlossary, now time.Time) []EnergyRecord {
	drafts := make([]EnergyRecord, 0, len(rows))
	for _, row := range rows {
		rec := EnergyRecord{
			Timestamp:  now,
			DeviceType: defaultDeviceType,
			IsPeakHour: false,
		}
		if row.Timestamp != nil {
			rec.Timestamp = *row.Timestamp
		}
		if row.UsageKWh != nil {
			rec.UsageKWh = *row.UsageKWh
		} else {
			rec.UsageKWh = rand.Float64() * 3
		}
		if row.DeviceType != "" {
			rec.DeviceType = glossary.Normalize(row.DeviceType)
		}
		drafts = append(drafts, rec)
	}
	return drafts
}
