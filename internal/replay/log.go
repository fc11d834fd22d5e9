// Package replay records and replays per-frame pipeline input as JSONL
// frame logs, so a live session can be re-run through the counting
// pipeline offline with different tuning.
package replay

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/courtvision/repcount/internal/monitoring"
	"github.com/courtvision/repcount/internal/pose"
	"github.com/courtvision/repcount/internal/rep"
	"github.com/courtvision/repcount/internal/vision"
)

// FrameRecord is one logged frame: the normalized detections and pose
// delivered to the pipeline, stamped with the capture time.
type FrameRecord struct {
	UnixNanos int64                   `json:"unix_nanos"`
	Objects   []vision.DetectedObject `json:"objects,omitempty"`
	Pose      *pose.Pose              `json:"pose,omitempty"`
}

// Writer appends frame records to a log, one JSON object per line.
type Writer struct {
	enc *json.Encoder
}

// NewWriter wraps w as a frame-log writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

// Write appends one frame record.
func (w *Writer) Write(rec FrameRecord) error {
	return w.enc.Encode(rec)
}

// Reader reads frame records back in log order.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader wraps r as a frame-log reader.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	// Frame records with a 33-point pose run long; give the scanner
	// headroom over its 64KB default.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{scanner: sc}
}

// Next returns the next record, or io.EOF when the log is exhausted.
// Unparseable lines are skipped with a log message, matching the
// pipeline's policy that malformed frames never become errors.
func (r *Reader) Next() (FrameRecord, error) {
	for r.scanner.Scan() {
		r.line++
		raw := r.scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rec FrameRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			monitoring.Logf("frame log: skipping unparseable line %d: %v", r.line, err)
			continue
		}
		return rec, nil
	}
	if err := r.scanner.Err(); err != nil {
		return FrameRecord{}, fmt.Errorf("read frame log: %w", err)
	}
	return FrameRecord{}, io.EOF
}

// Run replays every record in the log through the pipeline using the
// recorded timestamps, and returns the number of frames delivered.
func Run(r *Reader, p *rep.Pipeline) (int, error) {
	frames := 0
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		p.ProcessFrameAt(rec.Objects, rec.Pose, time.Unix(0, rec.UnixNanos))
		frames++
	}
}
