package tracking

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// MonitorChunkSize is the legacy activity-monitor channel count: ROIs are
// grouped into chunks of 32, one output file per chunk, so the files stay
// readable by software expecting 32-channel monitor hardware.
const MonitorChunkSize = 32

// timestampLayout matches the legacy monitor output: date and time split by
// a tab, e.g. "09 Dec 11\t22:58:00".
const timestampLayout = "02 Jan 06\t15:04:05"

// activityWriter appends aggregated rows to the per-chunk monitor files of
// one area. Files are opened lazily in append mode; there is exactly one
// writer per file and line numbers continue monotonically across calls.
type activityWriter struct {
	params AreaParams
	nrois  int
	chunks int

	files  []*os.File
	lineNo []int
}

func newActivityWriter(p AreaParams, nrois int) *activityWriter {
	chunks := (nrois + MonitorChunkSize - 1) / MonitorChunkSize
	if chunks < 1 {
		chunks = 1
	}
	w := &activityWriter{
		params: p,
		nrois:  nrois,
		chunks: chunks,
		files:  make([]*os.File, chunks),
		lineNo: make([]int, chunks),
	}
	return w
}

// fileName builds the deterministic result file name for a chunk: the area
// index, the chunk index when the area spans more than one file, the
// track-type name and the optional sub-range suffix.
func (w *activityWriter) fileName(chunk int) string {
	name := fmt.Sprintf("Monitor%02d", w.params.Index)
	if w.chunks > 1 {
		name += fmt.Sprintf("-%d", chunk+1)
	}
	name += "-" + w.params.TrackType.Name()
	if w.params.ResultSuffix != "" {
		name += "-" + w.params.ResultSuffix
	}
	return name + ".txt"
}

func (w *activityWriter) file(chunk int) (*os.File, error) {
	if w.files[chunk] != nil {
		return w.files[chunk], nil
	}
	path := filepath.Join(w.params.DataDir, w.fileName(chunk))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open result file %s: %w", path, err)
	}
	w.files[chunk] = f
	return f, nil
}

// write appends one line per chunk per record and returns the number of
// lines written.
func (w *activityWriter) write(recs []*Record) (int, error) {
	lines := 0
	for _, rec := range recs {
		ts := w.params.AcquisitionTime.Add(time.Duration(rec.EndTime * float64(time.Second)))
		for chunk := 0; chunk < w.chunks; chunk++ {
			f, err := w.file(chunk)
			if err != nil {
				return lines, err
			}
			w.lineNo[chunk]++
			line := w.formatLine(w.lineNo[chunk], ts, rec, chunk)
			if _, err := f.WriteString(line + "\n"); err != nil {
				return lines, fmt.Errorf("cannot write to %s: %w", w.fileName(chunk), err)
			}
			lines++
		}
	}
	return lines, nil
}

// formatLine renders one monitor row. Column order is fixed by the legacy
// hardware format: line number, timestamp, active flag, frame rate, track
// type code, sleep-deprivation flag, monitor number, an unused field, the
// light field, then one value (or a coordinate pair in position mode) per
// ROI in the chunk.
func (w *activityWriter) formatLine(lineNo int, ts time.Time, rec *Record, chunk int) string {
	var b strings.Builder
	sd := 0
	if w.params.SleepDeprivation {
		sd = 1
	}
	fmt.Fprintf(&b, "%d\t%s\t1\t%s\t%d\t%d\t%d\t0\t0",
		lineNo,
		ts.Format(timestampLayout),
		formatValue(w.params.Fps),
		int(rec.Kind),
		sd,
		w.params.Index,
	)

	first := chunk * MonitorChunkSize
	last := first + MonitorChunkSize
	if last > w.nrois {
		last = w.nrois
	}
	for roi := first; roi < last; roi++ {
		if rec.Kind == TrackTypePosition {
			b.WriteByte('\t')
			b.WriteString(formatValue(rec.MeanX[roi]))
			b.WriteByte('\t')
			b.WriteString(formatValue(rec.MeanY[roi]))
		} else {
			b.WriteByte('\t')
			b.WriteString(formatValue(rec.Values[roi]))
		}
	}
	if w.params.Extend {
		for pad := last - first; pad < MonitorChunkSize; pad++ {
			if rec.Kind == TrackTypePosition {
				b.WriteString("\t0\t0")
			} else {
				b.WriteString("\t0")
			}
		}
	}
	return b.String()
}

// formatValue renders a metric value without a fixed precision, so whole
// numbers come out as plain integers the legacy readers expect.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Close closes every opened result file.
func (w *activityWriter) Close() error {
	var firstErr error
	for i, f := range w.files {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		w.files[i] = nil
	}
	return firstErr
}
