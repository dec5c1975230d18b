package trace

import (
	"bytes"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestWriteRead(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 10)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	for tick := int64(1); tick <= 30; tick++ {
		if !w.Due(tick) {
			continue
		}
		if err := w.Record(tick, []float32{float32(tick) / 100, 0.5}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	frames, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, f := range frames {
		tick := int64(i+1) * 10
		if f.Tick != tick {
			t.Errorf("frame %d tick = %d, want %d", i, f.Tick, tick)
		}
		if len(f.Outputs) != 2 || f.Outputs[0] != float32(tick)/100 || f.Outputs[1] != 0.5 {
			t.Errorf("frame %d outputs = %v", i, f.Outputs)
		}
	}
}

func TestNonFiniteOutputs(t *testing.T) {
	var buf bytes.Buffer
	w, err := NewWriter(&buf, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Record(1, []float32{float32(math.Inf(1)), 0.5}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	frames, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(frames) != 1 {
		t.Fatalf("got %d frames", len(frames))
	}
	if out := frames[0].Outputs; !math.IsNaN(float64(out[0])) || out[1] != 0.5 {
		t.Errorf("outputs = %v, want [NaN 0.5]", out)
	}
}

func TestCloseClosesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.jsonl.zst")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w, err := NewWriter(f, 1)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Record(1, []float32{0.75}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if err := w.Record(2, nil); err == nil {
		t.Error("expected error recording after Close")
	}

	r, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	frames, err := Read(r)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(frames) != 1 || frames[0].Outputs[0] != 0.75 {
		t.Errorf("frames = %+v", frames)
	}
}

func TestNewWriterRejectsInterval(t *testing.T) {
	if _, err := NewWriter(&bytes.Buffer{}, 0); err == nil {
		t.Error("expected error for zero interval")
	}
}
