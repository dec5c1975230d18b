package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pthm-cable/genesoup/config"
)

func TestOutputManagerDisabled(t *testing.T) {
	om, err := NewOutputManager("")
	if err != nil || om != nil {
		t.Fatalf("NewOutputManager(\"\") = %v, %v", om, err)
	}

	// nil manager is a no-op
	if om.Dir() != "" {
		t.Errorf("Dir() = %q, want empty", om.Dir())
	}
	if err := om.WriteTelemetry(WindowStats{}); err != nil {
		t.Error(err)
	}
	if err := om.WritePerf(PerfStats{}, 0); err != nil {
		t.Error(err)
	}
	if err := om.Close(); err != nil {
		t.Error(err)
	}
	if _, err := om.Create("x"); err == nil {
		t.Error("expected error creating file with output disabled")
	}
}

func TestOutputManagerWritesCSV(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatalf("NewOutputManager: %v", err)
	}
	if om.Dir() != dir {
		t.Errorf("Dir() = %q, want %q", om.Dir(), dir)
	}

	for tick := int64(100); tick <= 300; tick += 100 {
		if err := om.WriteTelemetry(WindowStats{WindowEndTick: tick, Organisms: 8}); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.WritePerf(PerfStats{TicksPerSecond: 10}, 300); err != nil {
		t.Fatal(err)
	}
	if err := om.WriteConfig(config.Default()); err != nil {
		t.Fatal(err)
	}
	if err := om.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "telemetry.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("telemetry.csv has %d lines, want header + 3 rows", len(lines))
	}
	if !strings.HasPrefix(lines[0], "window_end,sim_time,organisms,output_mean") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[3], "300,") {
		t.Errorf("last row = %q", lines[3])
	}

	perf, err := os.ReadFile(filepath.Join(dir, "perf.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(perf), "evaluate_pct") {
		t.Errorf("perf.csv header missing phase columns: %s", perf)
	}

	if _, err := config.Load(filepath.Join(dir, "config.yaml")); err != nil {
		t.Errorf("written config does not load: %v", err)
	}
}

func TestStatsDB(t *testing.T) {
	dir := t.TempDir()
	om, err := NewOutputManager(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := om.EnableStatsDB(); err != nil {
		t.Fatalf("EnableStatsDB: %v", err)
	}

	c := NewCollector(10, 0.5)
	for tick := int64(10); tick <= 30; tick += 10 {
		stats := c.Flush(tick, []float32{0.25, 0.75}, 0.1)
		if err := om.WriteTelemetry(stats); err != nil {
			t.Fatal(err)
		}
		if err := om.WritePerf(PerfStats{TicksPerSecond: 100}, tick); err != nil {
			t.Fatal(err)
		}
	}
	if err := om.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := OpenStatsDB(filepath.Join(dir, "telemetry.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	windows, err := db.Windows()
	if err != nil {
		t.Fatalf("Windows: %v", err)
	}
	if len(windows) != 3 {
		t.Fatalf("got %d windows, want 3", len(windows))
	}
	for i, w := range windows {
		end := int64(i+1) * 10
		if w.WindowEndTick != end || w.WindowStartTick != end-10 {
			t.Errorf("window %d = [%d, %d]", i, w.WindowStartTick, w.WindowEndTick)
		}
		if w.OutputMean != 0.5 || w.Organisms != 2 || w.SimTimeSec != float64(end)*0.5 {
			t.Errorf("window %d = %+v", i, w)
		}
	}
}
