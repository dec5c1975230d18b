// Package trace records published outputs as zstd-compressed JSON lines.
package trace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/pthm-cable/genesoup/neural"
)

// Frame is one traced tick.
type Frame struct {
	Tick    int64         `json:"tick"`
	Outputs neural.Values `json:"outputs"`
}

// Writer appends frames to a zstd stream.
type Writer struct {
	every int64

	mu  sync.Mutex
	dst io.Writer
	enc *zstd.Encoder
	w   *bufio.Writer
}

// NewWriter creates a writer that records every Nth tick to dst.
// If dst is an io.Closer it is closed by Close.
func NewWriter(dst io.Writer, every int) (*Writer, error) {
	if every < 1 {
		return nil, fmt.Errorf("trace interval must be positive, got %d", every)
	}
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	return &Writer{
		every: int64(every),
		dst:   dst,
		enc:   enc,
		w:     bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

// Due reports whether tick should be recorded.
func (w *Writer) Due(tick int64) bool {
	return tick%w.every == 0
}

// Record appends one frame.
func (w *Writer) Record(tick int64, outputs []float32) error {
	b, err := json.Marshal(Frame{Tick: tick, Outputs: outputs})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return errors.New("trace writer closed")
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	return w.w.WriteByte('\n')
}

// Close flushes buffered frames and finishes the zstd stream.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.w == nil {
		return nil
	}

	var errs []error
	errs = append(errs, w.w.Flush())
	errs = append(errs, w.enc.Close())
	if c, ok := w.dst.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	w.w, w.enc = nil, nil
	return errors.Join(errs...)
}

// Read decodes every frame from a trace stream.
func Read(r io.Reader) ([]Frame, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer dec.Close()

	var frames []Frame
	jd := json.NewDecoder(dec)
	for {
		var f Frame
		if err := jd.Decode(&f); err != nil {
			if errors.Is(err, io.EOF) {
				return frames, nil
			}
			return frames, fmt.Errorf("decoding frame %d: %w", len(frames), err)
		}
		frames = append(frames, f)
	}
}
