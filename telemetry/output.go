package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/genesoup/config"
)

// csvLog appends rows to one CSV file. The header goes out with the first row.
type csvLog[T any] struct {
	f       *os.File
	started bool
}

func createCSVLog[T any](dir, name string) (*csvLog[T], error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvLog[T]{f: f}, nil
}

func (l *csvLog[T]) append(row T) error {
	rows := []T{row}
	if l.started {
		return gocsv.MarshalWithoutHeaders(rows, l.f)
	}
	if err := gocsv.Marshal(rows, l.f); err != nil {
		return err
	}
	l.started = true
	return nil
}

// OutputManager writes a run's telemetry.csv, perf.csv, config.yaml and,
// optionally, telemetry.db into one directory. A nil manager discards everything.
type OutputManager struct {
	dir       string
	telemetry *csvLog[WindowStats]
	perf      *csvLog[PerfStatsCSV]
	statsDB   *StatsDB // see EnableStatsDB
}

// NewOutputManager creates dir and the CSV files in it.
// An empty dir disables output and returns a nil manager.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	telemetry, err := createCSVLog[WindowStats](dir, "telemetry.csv")
	if err != nil {
		return nil, err
	}
	perf, err := createCSVLog[PerfStatsCSV](dir, "perf.csv")
	if err != nil {
		telemetry.f.Close()
		return nil, err
	}
	return &OutputManager{dir: dir, telemetry: telemetry, perf: perf}, nil
}

// EnableStatsDB additionally records every row in telemetry.db.
func (om *OutputManager) EnableStatsDB() error {
	if om == nil || om.statsDB != nil {
		return nil
	}
	db, err := OpenStatsDB(filepath.Join(om.dir, "telemetry.db"))
	if err != nil {
		return err
	}
	om.statsDB = db
	return nil
}

// WriteConfig saves cfg as config.yaml.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteTelemetry appends one window to telemetry.csv.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	if err := om.telemetry.append(stats); err != nil {
		return fmt.Errorf("writing telemetry: %w", err)
	}
	if om.statsDB != nil {
		return om.statsDB.WriteWindow(stats)
	}
	return nil
}

// WritePerf appends the perf stats for the window ending at windowEnd to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	row := stats.ToCSV(windowEnd)
	if err := om.perf.append(row); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	if om.statsDB != nil {
		return om.statsDB.WritePerf(row)
	}
	return nil
}

// Create creates an additional file inside the output directory.
func (om *OutputManager) Create(name string) (*os.File, error) {
	if om == nil {
		return nil, fmt.Errorf("creating %s: output disabled", name)
	}
	f, err := os.Create(filepath.Join(om.dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return f, nil
}

// Dir returns the output directory, or "" when output is disabled.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes the CSV files and the stats database.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	errs := []error{om.telemetry.f.Close(), om.perf.f.Close()}
	if om.statsDB != nil {
		errs = append(errs, om.statsDB.Close())
	}
	return errors.Join(errs...)
}
