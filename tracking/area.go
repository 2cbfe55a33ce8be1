package tracking

import (
	"fmt"
	"image"
	"time"

	"github.com/cgoina/pysolo-tools/geometry"
	"github.com/cgoina/pysolo-tools/logger"
	"github.com/cgoina/pysolo-tools/mask"
	"github.com/cgoina/pysolo-tools/metrics"
)

const (
	// MaxWindowFrames caps the per-ROI window buffer so very large
	// aggregation intervals stay within bounded memory. When the buffer
	// fills before the logical interval elapses, a partial aggregate is
	// merged into the pending row instead.
	MaxWindowFrames = 1000

	// rowBufferSize is how many completed rows are held in memory before
	// they are flushed to the monitor files.
	rowBufferSize = 100
)

type areaState int

const (
	stateIdle areaState = iota
	stateLoaded
	stateRunning
	stateFlushed
)

// AreaParams is the validated, immutable configuration of one monitored
// area for the duration of a run.
type AreaParams struct {
	Index            int       // 1-based monitor number, used in file names and rows
	TrackType        TrackType
	SleepDeprivation bool      // metadata only, echoed to the output rows
	AggregationFrames int      // frames per output row
	Extend           bool      // zero-pad chunks to the full 32 columns
	ResultSuffix     string    // e.g. "120-480" when processing a sub-range
	Fps              float64   // source frame rate
	AcquisitionTime  time.Time // wall-clock time of the first frame
	DataDir          string    // directory receiving the monitor files
	Trackable        []int     // ROI allow-list; nil or empty means all
	BeamOrientation  geometry.Orientation

	// ScaleX, ScaleY map mask coordinates into the decoded frame space.
	// Zero values mean identity.
	ScaleX, ScaleY float64
}

// MonitoredArea owns the ROI set of one arena plate, the per-ROI tracking
// state, the aggregation windowing and the output writer. Its life cycle is
// idle -> loaded (LoadROIs) -> running (frames) -> flushed (Flush).
//
// A MonitoredArea is not safe for concurrent use; the pipeline guarantees a
// single goroutine mutates it per frame.
type MonitoredArea struct {
	params AreaParams
	log    *logger.Logger
	met    *metrics.Metrics

	state areaState

	rois          []geometry.Quad
	bounds        []image.Rectangle
	beams         []geometry.Beam
	subjectCounts []int
	trackable     map[int]bool // nil means every ROI is trackable

	lastPoint []image.Point   // last accepted centroid per ROI
	seeded    []bool          // whether the ROI ever produced a detection
	window    [][]image.Point // per-ROI window buffers
	windowCap int

	frameCount int     // logical frames since the last completed row
	pending    *Record // partial aggregate of the current row, if any
	rows       []*Record

	writer *activityWriter
}

// NewMonitoredArea builds an area from validated parameters. log and met
// may be nil.
func NewMonitoredArea(p AreaParams, log *logger.Logger, met *metrics.Metrics) (*MonitoredArea, error) {
	if p.AggregationFrames <= 0 {
		return nil, fmt.Errorf("area %d: aggregation interval must be positive, got %d", p.Index, p.AggregationFrames)
	}
	if p.ScaleX == 0 {
		p.ScaleX = 1
	}
	if p.ScaleY == 0 {
		p.ScaleY = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	windowCap := p.AggregationFrames
	if windowCap > MaxWindowFrames {
		windowCap = MaxWindowFrames
	}
	m := &MonitoredArea{
		params:    p,
		log:       log.WithModule(fmt.Sprintf("area%02d", p.Index)),
		met:       met,
		windowCap: windowCap,
	}
	if len(p.Trackable) > 0 {
		m.trackable = make(map[int]bool, len(p.Trackable))
		for _, roi := range p.Trackable {
			m.trackable[roi] = true
		}
	}
	return m, nil
}

// Params returns the area configuration.
func (m *MonitoredArea) Params() AreaParams { return m.params }

// RoiCount returns the number of loaded ROIs.
func (m *MonitoredArea) RoiCount() int { return len(m.rois) }

// RoiBounds returns the frame-space bounding rectangle of a ROI.
func (m *MonitoredArea) RoiBounds(roi int) image.Rectangle { return m.bounds[roi] }

// Rois returns the frame-space ROI quads.
func (m *MonitoredArea) Rois() []geometry.Quad { return m.rois }

// IsRoiTrackable reports whether the ROI is on the allow-list (or whether
// no list was configured). Untracked ROIs still occupy their output column
// with a constant zero value.
func (m *MonitoredArea) IsRoiTrackable(roi int) bool {
	return m.trackable == nil || m.trackable[roi]
}

// LastPoints returns a copy of the last accepted centroid per ROI.
func (m *MonitoredArea) LastPoints() []image.Point {
	pts := make([]image.Point, len(m.lastPoint))
	copy(pts, m.lastPoint)
	return pts
}

// LoadROIs loads the mask file and installs the ROI set, scaled into frame
// space, with the beam midline of every ROI precomputed. It must be called
// exactly once, before any frame is processed. On failure no partial ROI
// state is installed.
func (m *MonitoredArea) LoadROIs(path string) error {
	if m.state != stateIdle {
		return fmt.Errorf("area %d: rois already loaded", m.params.Index)
	}
	rois, counts, err := mask.Load(path)
	if err != nil {
		return err
	}

	scaled := make([]geometry.Quad, len(rois))
	bounds := make([]image.Rectangle, len(rois))
	beams := make([]geometry.Beam, len(rois))
	for i, q := range rois {
		scaled[i] = geometry.Scale(q, m.params.ScaleX, m.params.ScaleY)
		bounds[i] = geometry.BoundingRect(scaled[i])
		beams[i] = geometry.Midline(scaled[i], m.params.BeamOrientation)
	}

	m.rois = scaled
	m.bounds = bounds
	m.beams = beams
	m.subjectCounts = counts
	m.lastPoint = make([]image.Point, len(rois))
	m.seeded = make([]bool, len(rois))
	m.window = make([][]image.Point, len(rois))
	for i := range m.window {
		if m.IsRoiTrackable(i) {
			m.window[i] = make([]image.Point, 0, m.windowCap+1)
		}
	}
	m.writer = newActivityWriter(m.params, len(rois))
	m.state = stateLoaded
	m.log.Infof("loaded %d rois from %s (window cap %d frames)", len(rois), path, m.windowCap)
	return nil
}

// AddFlyCoords records the blob centroid detected for a ROI this frame.
// When no blob was found, or when the detection did not move at all
// relative to the previous accepted point, the previous point is retained:
// a ROI never loses its subject. It returns the accepted point and the
// distance moved this frame.
//
// The very first detection of a ROI seeds its position without counting a
// step: frames before it carried no real position, so the buffered window
// samples are rewritten to the first centroid rather than leaving a
// phantom move from the zero point in the aggregates.
func (m *MonitoredArea) AddFlyCoords(roi int, pt *image.Point) (image.Point, float64) {
	prev := m.lastPoint[roi]
	if pt == nil {
		return prev, 0
	}
	if !m.seeded[roi] {
		m.seeded[roi] = true
		m.lastPoint[roi] = *pt
		for i := range m.window[roi] {
			m.window[roi][i] = *pt
		}
		return *pt, 0
	}
	d := geometry.Distance(prev, *pt)
	if d == 0 {
		return prev, 0
	}
	m.lastPoint[roi] = *pt
	return *pt, d
}

// UpdateFrameActivity appends the current per-ROI point snapshot to the
// window buffers and runs the aggregation triggers. It is called once per
// area per frame, after every trackable ROI got its AddFlyCoords call.
//
// Two independent triggers fire an aggregation: the logical frame counter
// reaching the configured interval completes an output row; the physical
// buffer reaching its cap merges a partial aggregate into the pending row
// without completing it, bounding memory for very large intervals while
// keeping exact totals.
func (m *MonitoredArea) UpdateFrameActivity(frameTime float64) error {
	switch m.state {
	case stateLoaded:
		m.state = stateRunning
	case stateRunning:
	default:
		return fmt.Errorf("area %d: not ready for frames", m.params.Index)
	}

	filled := 0
	for roi := range m.window {
		if !m.IsRoiTrackable(roi) {
			continue
		}
		m.window[roi] = append(m.window[roi], m.lastPoint[roi])
		if len(m.window[roi]) > filled {
			filled = len(m.window[roi])
		}
	}
	m.frameCount++

	if m.frameCount >= m.params.AggregationFrames {
		m.AggregateActivity(frameTime)
		m.completeRow()
		if len(m.rows) >= rowBufferSize {
			return m.WriteActivity()
		}
		return nil
	}
	if filled > m.windowCap {
		// Partial aggregate: the logical counter keeps running.
		m.AggregateActivity(frameTime)
	}
	return nil
}

// AggregateActivity runs the configured aggregator over the current window
// contents and merges the result into the pending row. The window buffers
// are compacted by the number of frames consumed: pairwise metrics keep the
// last sample as the seed of the next chunk so no inter-frame step is lost
// across chunk boundaries, while position clears the buffer because its
// weighted-mean merge accounts for every sample exactly once.
func (m *MonitoredArea) AggregateActivity(frameTime float64) {
	rec := newRecord(m.params.TrackType, len(m.rois), frameTime)
	for roi := range m.window {
		if !m.IsRoiTrackable(roi) {
			continue // stays a constant zero, keeping column positions stable
		}
		aggregateWindow(rec, roi, m.window[roi], m.beams[roi])
	}

	if m.pending != nil {
		m.pending.Merge(rec)
	} else {
		m.pending = rec
	}

	for roi := range m.window {
		if m.window[roi] == nil {
			continue
		}
		n := len(m.window[roi])
		if m.params.TrackType != TrackTypePosition && n > 0 {
			m.window[roi][0] = m.window[roi][n-1]
			m.window[roi] = m.window[roi][:1]
		} else {
			m.window[roi] = m.window[roi][:0]
		}
	}
}

// completeRow moves the pending aggregate into the output row buffer and
// resets the interval state. Completed rows always start the next window
// from scratch, which is why a full interval of n frames reports n-1 steps.
func (m *MonitoredArea) completeRow() {
	if m.pending == nil {
		return
	}
	m.rows = append(m.rows, m.pending)
	m.pending = nil
	m.frameCount = 0
	for roi := range m.window {
		if m.window[roi] != nil {
			m.window[roi] = m.window[roi][:0]
		}
	}
}

// WriteActivity flushes the buffered rows to the monitor files, one
// tab-delimited line per 32-ROI chunk per row, and truncates the buffer.
func (m *MonitoredArea) WriteActivity() error {
	if m.writer == nil {
		return fmt.Errorf("area %d: rois not loaded", m.params.Index)
	}
	if len(m.rows) == 0 {
		return nil
	}
	n, err := m.writer.write(m.rows)
	if err != nil {
		return err
	}
	m.met.RowsWritten(n)
	m.log.Debugf("wrote %d activity rows", len(m.rows))
	m.rows = m.rows[:0]
	return nil
}

// Flush performs the mandatory end-of-stream aggregation: whatever sits in
// the window, even a short partial interval, becomes a final row, and all
// buffered rows are written. Safe to call on an area that never saw a frame.
func (m *MonitoredArea) Flush(frameTime float64) error {
	if m.state == stateIdle || m.state == stateFlushed {
		return nil
	}
	if m.frameCount > 0 {
		m.AggregateActivity(frameTime)
		m.completeRow()
	}
	err := m.WriteActivity()
	if cerr := m.writer.Close(); err == nil {
		err = cerr
	}
	m.state = stateFlushed
	return err
}
