package telemetry

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// StatsDB stores window and perf stats in a SQLite database so runs can be
// queried after the fact.
type StatsDB struct {
	db         *sql.DB
	insertStat *sql.Stmt
	insertPerf *sql.Stmt
}

// OpenStatsDB opens or creates the stats database at path.
func OpenStatsDB(path string) (*StatsDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening stats db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initStatsSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing stats db: %w", err)
	}

	s := &StatsDB{db: db}
	s.insertStat, err = db.Prepare(`INSERT OR REPLACE INTO windows (
		window_end, window_start, sim_time, organisms,
		output_mean, output_std, output_min, output_p10, output_p50, output_p90, output_max,
		non_finite, neuron_abs_mean
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("preparing window insert: %w", err)
	}
	s.insertPerf, err = db.Prepare(`INSERT OR REPLACE INTO perf (
		window_end, avg_tick_us, min_tick_us, max_tick_us, ticks_per_sec, updates_per_sec,
		inputs_pct, evaluate_pct, readout_pct, telemetry_pct
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = s.insertStat.Close()
		_ = db.Close()
		return nil, fmt.Errorf("preparing perf insert: %w", err)
	}
	return s, nil
}

func initStatsSchema(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS windows (
			window_end INTEGER PRIMARY KEY,
			window_start INTEGER NOT NULL,
			sim_time REAL NOT NULL,
			organisms INTEGER NOT NULL,
			output_mean REAL,
			output_std REAL,
			output_min REAL,
			output_p10 REAL,
			output_p50 REAL,
			output_p90 REAL,
			output_max REAL,
			non_finite INTEGER NOT NULL,
			neuron_abs_mean REAL
		);`,
		`CREATE TABLE IF NOT EXISTS perf (
			window_end INTEGER PRIMARY KEY,
			avg_tick_us INTEGER NOT NULL,
			min_tick_us INTEGER NOT NULL,
			max_tick_us INTEGER NOT NULL,
			ticks_per_sec REAL,
			updates_per_sec REAL,
			inputs_pct REAL,
			evaluate_pct REAL,
			readout_pct REAL,
			telemetry_pct REAL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteWindow inserts one window stats row.
func (s *StatsDB) WriteWindow(w WindowStats) error {
	_, err := s.insertStat.Exec(
		w.WindowEndTick, w.WindowStartTick, w.SimTimeSec, w.Organisms,
		w.OutputMean, w.OutputStd, w.OutputMin, w.OutputP10, w.OutputP50, w.OutputP90, w.OutputMax,
		w.NonFinite, w.NeuronAbsMean,
	)
	if err != nil {
		return fmt.Errorf("inserting window %d: %w", w.WindowEndTick, err)
	}
	return nil
}

// WritePerf inserts one perf stats row.
func (s *StatsDB) WritePerf(p PerfStatsCSV) error {
	_, err := s.insertPerf.Exec(
		p.WindowEnd, p.AvgTickUS, p.MinTickUS, p.MaxTickUS, p.TicksPerSec, p.UpdatesPerSec,
		p.InputsPct, p.EvaluatePct, p.ReadoutPct, p.TelemetryPct,
	)
	if err != nil {
		return fmt.Errorf("inserting perf %d: %w", p.WindowEnd, err)
	}
	return nil
}

// Windows returns every stored window in tick order.
func (s *StatsDB) Windows() ([]WindowStats, error) {
	rows, err := s.db.Query(`SELECT
		window_end, window_start, sim_time, organisms,
		output_mean, output_std, output_min, output_p10, output_p50, output_p90, output_max,
		non_finite, neuron_abs_mean
		FROM windows ORDER BY window_end`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WindowStats
	for rows.Next() {
		var w WindowStats
		if err := rows.Scan(
			&w.WindowEndTick, &w.WindowStartTick, &w.SimTimeSec, &w.Organisms,
			&w.OutputMean, &w.OutputStd, &w.OutputMin, &w.OutputP10, &w.OutputP50, &w.OutputP90, &w.OutputMax,
			&w.NonFinite, &w.NeuronAbsMean,
		); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Close releases the statements and the database.
func (s *StatsDB) Close() error {
	_ = s.insertStat.Close()
	_ = s.insertPerf.Close()
	return s.db.Close()
}
