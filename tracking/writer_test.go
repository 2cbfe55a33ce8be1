package tracking

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileNaming(t *testing.T) {
	p := AreaParams{Index: 3, TrackType: TrackTypeCrossings, DataDir: t.TempDir()}

	w := newActivityWriter(p, 10)
	assert.Equal(t, "Monitor03-crossings.txt", w.fileName(0))

	p.ResultSuffix = "120-480"
	w = newActivityWriter(p, 10)
	assert.Equal(t, "Monitor03-crossings-120-480.txt", w.fileName(0))

	// An area spanning more than one monitor chunk names each file.
	w = newActivityWriter(p, 40)
	assert.Equal(t, 2, w.chunks)
	assert.Equal(t, "Monitor03-1-crossings-120-480.txt", w.fileName(0))
	assert.Equal(t, "Monitor03-2-crossings-120-480.txt", w.fileName(1))
}

func TestChunkedAreaSpansMultipleFiles(t *testing.T) {
	m := newTestArea(t, AreaParams{AggregationFrames: 2, TrackType: TrackTypeDistance}, 40)

	for i := 0; i < 2; i++ {
		for roi := 0; roi < 40; roi++ {
			pt := image.Point{X: 12 + roi*12, Y: 30 + i*3}
			m.AddFlyCoords(roi, &pt)
		}
		require.NoError(t, m.UpdateFrameActivity(float64(i+1)/10))
	}
	require.NoError(t, m.Flush(0.2))

	first := resultFile(t, m, 0)
	second := resultFile(t, m, 1)
	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Len(t, first[0], 10+32) // full chunk
	assert.Len(t, second[0], 10+8) // remaining 8 ROIs, no extend
	assert.Equal(t, "3", first[0][10])
	assert.Equal(t, "3", second[0][10])
}

func TestExtendPadsToFullChunk(t *testing.T) {
	m := newTestArea(t, AreaParams{AggregationFrames: 2, TrackType: TrackTypeDistance, Extend: true}, 3)

	for i := 0; i < 2; i++ {
		pt := image.Point{X: 14, Y: 30 + i*4}
		m.AddFlyCoords(0, &pt)
		require.NoError(t, m.UpdateFrameActivity(float64(i+1)/10))
	}
	require.NoError(t, m.Flush(0.2))

	rows := resultLines(t, m)
	require.Len(t, rows, 1)
	require.Len(t, rows[0], 10+32)
	assert.Equal(t, "4", rows[0][10])
	for col := 11; col < 42; col++ {
		assert.Equal(t, "0", rows[0][col])
	}
}

func TestExtendPadsPositionPairs(t *testing.T) {
	m := newTestArea(t, AreaParams{AggregationFrames: 1, TrackType: TrackTypePosition, Extend: true}, 2)

	pt := image.Point{X: 14, Y: 30}
	m.AddFlyCoords(0, &pt)
	require.NoError(t, m.UpdateFrameActivity(0.1))
	require.NoError(t, m.Flush(0.1))

	rows := resultLines(t, m)
	require.Len(t, rows, 1)
	assert.Len(t, rows[0], 10+64) // 32 coordinate pairs
}

func TestLineNumbersContinueAcrossWrites(t *testing.T) {
	m := newTestArea(t, AreaParams{AggregationFrames: 1, TrackType: TrackTypeDistance}, 1)

	for i := 0; i < 3; i++ {
		pt := image.Point{X: 14, Y: 30 + i*2}
		m.AddFlyCoords(0, &pt)
		require.NoError(t, m.UpdateFrameActivity(float64(i+1)/10))
		// Flush the row buffer every frame.
		require.NoError(t, m.WriteActivity())
	}
	require.NoError(t, m.Flush(0.3))

	rows := resultLines(t, m)
	require.Len(t, rows, 3)
	for i, row := range rows {
		assert.Equal(t, strings.TrimSpace(row[0]), row[0])
		assert.Equal(t, formatValue(float64(i+1)), row[0])
	}
}

func resultFile(t *testing.T, m *MonitoredArea, chunk int) [][]string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(m.params.DataDir, m.writer.fileName(chunk)))
	require.NoError(t, err)
	var rows [][]string
	for _, line := range strings.Split(strings.TrimRight(string(raw), "\n"), "\n") {
		rows = append(rows, strings.Split(line, "\t"))
	}
	return rows
}
