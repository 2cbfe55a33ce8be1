package pipeline

import (
	"bufio"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/cgoina/pysolo-tools/detection"
	"github.com/cgoina/pysolo-tools/geometry"
	"github.com/cgoina/pysolo-tools/mask"
	"github.com/cgoina/pysolo-tools/tracking"
)

// fakeSource feeds synthetic frames with a bright blob descending through
// the first vial at 2px per frame. The second vial stays empty.
type fakeSource struct {
	fps    float64
	total  int
	next   int
	last   int
	closed bool
}

func (s *fakeSource) Fps() float64                       { return s.fps }
func (s *fakeSource) Size() (int, int)                   { return 160, 120 }
func (s *fakeSource) Scale() (float64, float64)          { return 1, 1 }
func (s *fakeSource) SeekFrame(index int) error          { s.next = index; return nil }
func (s *fakeSource) CurrentFrameTimeInSeconds() float64 { return float64(s.last) / s.fps }
func (s *fakeSource) Close() error                       { s.closed = true; return nil }

func (s *fakeSource) NextFrame() (bool, int, gocv.Mat) {
	if s.closed || s.next >= s.total {
		return false, s.next, gocv.Mat{}
	}
	frame := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	y := 15 + 2*s.next
	gocv.Rectangle(&frame, image.Rect(20, y, 26, y+6), color.RGBA{255, 255, 255, 0}, -1)
	idx := s.next
	s.last = idx
	s.next++
	return true, idx, frame
}

func testMaskFile(t *testing.T, dir string) string {
	t.Helper()
	rois := []geometry.Quad{
		{{10, 10}, {40, 10}, {40, 110}, {10, 110}},
		{{50, 10}, {80, 10}, {80, 110}, {50, 110}},
	}
	path := filepath.Join(dir, "arena.msk")
	require.NoError(t, mask.Save(path, rois, []int{1, 1}))
	return path
}

func newPipelineArea(t *testing.T, dir string, interval int) *tracking.MonitoredArea {
	t.Helper()
	area, err := tracking.NewMonitoredArea(tracking.AreaParams{
		Index:             1,
		TrackType:         tracking.TrackTypeDistance,
		AggregationFrames: interval,
		Fps:               10,
		AcquisitionTime:   time.Date(2018, 3, 5, 9, 30, 0, 0, time.UTC),
		DataDir:           dir,
	}, nil, nil)
	require.NoError(t, err)
	require.NoError(t, area.LoadROIs(testMaskFile(t, dir)))
	return area
}

func readRows(t *testing.T, dir string) []string {
	t.Helper()
	f, err := os.Open(filepath.Join(dir, "Monitor01-distance.txt"))
	require.NoError(t, err)
	defer f.Close()
	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	require.NoError(t, sc.Err())
	return lines
}

func TestRunProducesRowsAndFlushesTail(t *testing.T) {
	dir := t.TempDir()
	area := newPipelineArea(t, dir, 10)

	p, err := New([]*tracking.MonitoredArea{area}, Options{Detection: detection.DefaultParams()}, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	src := &fakeSource{fps: 10, total: 25}
	require.NoError(t, p.Run(src))

	// 25 frames at a 10-frame interval: two full rows plus the flushed tail.
	rows := readRows(t, dir)
	require.Len(t, rows, 3)
	for _, row := range rows {
		assert.Len(t, strings.Split(row, "\t"), 12, "10 header fields + 2 roi columns")
	}

	// The blob moves every frame, so the run must record some distance.
	total := 0.0
	for _, row := range rows {
		fields := strings.Split(row, "\t")
		total += mustFloat(t, fields[10])
	}
	assert.Greater(t, total, 0.0)
	// The empty second vial never moves.
	for _, row := range rows {
		fields := strings.Split(row, "\t")
		assert.Equal(t, "0", fields[11])
	}
}

func TestRunWithWorkerPoolMatchesInline(t *testing.T) {
	dirInline := t.TempDir()
	dirPool := t.TempDir()

	for dir, workers := range map[string]int{dirInline: 1, dirPool: 4} {
		area := newPipelineArea(t, dir, 10)
		p, err := New([]*tracking.MonitoredArea{area},
			Options{Detection: detection.DefaultParams(), Workers: workers}, nil, nil)
		require.NoError(t, err)
		require.NoError(t, p.Run(&fakeSource{fps: 10, total: 20}))
		p.Close()
	}

	assert.Equal(t, readRows(t, dirInline), readRows(t, dirPool))
}

func TestRunStopsCooperatively(t *testing.T) {
	dir := t.TempDir()
	area := newPipelineArea(t, dir, 10)

	var frames atomic.Int64
	p, err := New([]*tracking.MonitoredArea{area}, Options{
		Detection: detection.DefaultParams(),
		KeepGoing: func() bool { return frames.Load() < 5 },
		OnFrame: func(int, float64, gocv.Mat, [][]image.Point) {
			frames.Add(1)
		},
	}, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Run(&fakeSource{fps: 10, total: 1000}))
	assert.EqualValues(t, 5, frames.Load())

	// The partial interval processed before the stop is still flushed.
	rows := readRows(t, dir)
	require.Len(t, rows, 1)
}

func TestOnFrameSeesCentroids(t *testing.T) {
	dir := t.TempDir()
	area := newPipelineArea(t, dir, 100)

	var sawBlob bool
	p, err := New([]*tracking.MonitoredArea{area}, Options{
		Detection: detection.DefaultParams(),
		OnFrame: func(idx int, _ float64, _ gocv.Mat, points [][]image.Point) {
			if idx > 0 && points[0][0].X != 0 {
				sawBlob = true
			}
		},
	}, nil, nil)
	require.NoError(t, err)
	defer p.Close()

	require.NoError(t, p.Run(&fakeSource{fps: 10, total: 10}))
	assert.True(t, sawBlob, "callback should observe the tracked centroid")
}

func TestNewRejectsEmptyAreas(t *testing.T) {
	_, err := New(nil, Options{}, nil, nil)
	assert.Error(t, err)
}

func TestWorkerPoolRunsEveryTask(t *testing.T) {
	pool := newWorkerPool(4)
	defer pool.stop()

	var hits [100]atomic.Int32
	for round := 0; round < 3; round++ {
		pool.runBatch(len(hits), func(i int) { hits[i].Add(1) })
	}
	for i := range hits {
		assert.EqualValues(t, 3, hits[i].Load())
	}
}

func mustFloat(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err)
	return v
}
