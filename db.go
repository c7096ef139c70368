package main

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// sqliteStore is the local EntityStore used when no remote entity API is
// configured. IDs are UUIDs assigned at insert time.
type sqliteStore struct {
	db *sql.DB
}

func InitDB(path string) (*sqliteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS energy_records (
		id                  TEXT PRIMARY KEY,
		timestamp           DATETIME NOT NULL,
		usage_kwh           REAL NOT NULL,
		device_type         TEXT NOT NULL DEFAULT 'other',
		is_peak_hour        INTEGER NOT NULL DEFAULT 0,
		optimized_usage_kwh REAL,
		created_at          DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_energy_records_timestamp ON energy_records(timestamp);
	CREATE INDEX IF NOT EXISTS idx_energy_records_device ON energy_records(device_type);

	CREATE TABLE IF NOT EXISTS optimization_results (
		id                      TEXT PRIMARY KEY,
		total_usage_before      REAL NOT NULL DEFAULT 0,
		total_usage_after       REAL NOT NULL DEFAULT 0,
		energy_saved_kwh        REAL NOT NULL DEFAULT 0,
		energy_saved_percentage REAL NOT NULL DEFAULT 0,
		co2_reduced_kg          REAL NOT NULL DEFAULT 0,
		trees_equivalent        INTEGER NOT NULL DEFAULT 0,
		green_score             INTEGER NOT NULL DEFAULT 0,
		cost_saved_usd          REAL NOT NULL DEFAULT 0,
		optimization_date       DATETIME NOT NULL,
		created_at              DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_opt_results_date ON optimization_results(optimization_date);
	`
	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) ListEnergyRecords(ctx context.Context, limit int) ([]EnergyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, usage_kwh, device_type, is_peak_hour, optimized_usage_kwh, created_at
		 FROM energy_records ORDER BY timestamp DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EnergyRecord
	for rows.Next() {
		var rec EnergyRecord
		var optimized sql.NullFloat64
		err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.UsageKWh, &rec.DeviceType,
			&rec.IsPeakHour, &optimized, &rec.CreatedAt)
		if err != nil {
			return nil, err
		}
		if optimized.Valid {
			v := optimized.Float64
			rec.OptimizedUsageKWh = &v
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *sqliteStore) BulkCreateEnergyRecords(ctx context.Context, records []EnergyRecord) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO energy_records (id, timestamp, usage_kwh, device_type, is_peak_hour, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	inserted := 0
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err := stmt.ExecContext(ctx, id, rec.Timestamp.UTC(), rec.UsageKWh,
			rec.DeviceType, rec.IsPeakHour, now)
		if err != nil {
			return 0, err
		}
		inserted++
	}

	return inserted, tx.Commit()
}

func (s *sqliteStore) BulkUpdateOptimizedUsage(ctx context.Context, updates []OptimizedUsageUpdate) []UpdateOutcome {
	outcomes := make([]UpdateOutcome, 0, len(updates))
	for _, u := range updates {
		res, err := s.db.ExecContext(ctx,
			`UPDATE energy_records SET optimized_usage_kwh = ? WHERE id = ?`,
			u.OptimizedKWh, u.RecordID)
		if err == nil {
			if n, affErr := res.RowsAffected(); affErr == nil && n == 0 {
				err = sql.ErrNoRows
			}
		}
		outcomes = append(outcomes, UpdateOutcome{RecordID: u.RecordID, Err: err})
		if ctx.Err() != nil {
			break
		}
	}
	return outcomes
}

func (s *sqliteStore) CreateOptimizationResult(ctx context.Context, result OptimizationResult) (OptimizationResult, error) {
	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO optimization_results
		 (id, total_usage_before, total_usage_after, energy_saved_kwh, energy_saved_percentage,
		  co2_reduced_kg, trees_equivalent, green_score, cost_saved_usd, optimization_date, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.ID, result.TotalUsageBefore, result.TotalUsageAfter, result.EnergySavedKWh,
		result.EnergySavedPercentage, result.CO2ReducedKg, result.TreesEquivalent,
		result.GreenScore, result.CostSavedUSD, result.OptimizationDate.UTC(), result.CreatedAt)
	if err != nil {
		return OptimizationResult{}, err
	}
	return result, nil
}

func (s *sqliteStore) ListOptimizationResults(ctx context.Context, limit int) ([]OptimizationResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, total_usage_before, total_usage_after, energy_saved_kwh, energy_saved_percentage,
		        co2_reduced_kg, trees_equivalent, green_score, cost_saved_usd, optimization_date, created_at
		 FROM optimization_results ORDER BY optimization_date DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []OptimizationResult
	for rows.Next() {
		var r OptimizationResult
		err := rows.Scan(&r.ID, &r.TotalUsageBefore, &r.TotalUsageAfter, &r.EnergySavedKWh,
			&r.EnergySavedPercentage, &r.CO2ReducedKg, &r.TreesEquivalent, &r.GreenScore,
			&r.CostSavedUSD, &r.OptimizationDate, &r.CreatedAt)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}
