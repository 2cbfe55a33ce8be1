package mask

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cgoina/pysolo-tools/geometry"
)

func sampleRois() []geometry.Quad {
	return []geometry.Quad{
		{{10, 20}, {10, 70}, {18, 70}, {18, 20}},
		{{22, 20}, {22, 70}, {30, 70}, {30, 20}},
		{{34, 21}, {33, 71}, {42, 72}, {43, 22}},
	}
}

func TestRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.msk")
	rois := sampleRois()
	counts := []int{1, 2, 1}

	require.NoError(t, Save(path, rois, counts))

	gotRois, gotCounts, err := Load(path)
	require.NoError(t, err)
	if diff := cmp.Diff(rois, gotRois); diff != "" {
		t.Errorf("rois mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(counts, gotCounts); diff != "" {
		t.Errorf("subject counts mismatch (-want +got):\n%s", diff)
	}
}

func TestSavePadsSubjectCounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.msk")
	require.NoError(t, Save(path, sampleRois(), []int{3}))

	_, counts, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 1}, counts)
}

func TestLoadMissingFile(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "nope.msk"))
	var derr *DeserializationError
	require.True(t, errors.As(err, &derr))
}

func TestLoadTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "area.msk")
	require.NoError(t, Save(path, sampleRois(), nil))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(raw), 16)
	require.NoError(t, os.WriteFile(path, raw[:len(raw)/2], 0o644))

	_, _, err = Load(path)
	var derr *DeserializationError
	require.True(t, errors.As(err, &derr), "expected DeserializationError, got %v", err)
}

func TestLoadGarbageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "area.msk")
	require.NoError(t, os.WriteFile(path, []byte("not a mask file at all"), 0o644))

	_, _, err := Load(path)
	var derr *DeserializationError
	require.True(t, errors.As(err, &derr))
}

func TestGrid(t *testing.T) {
	rois := Grid(GridParams{
		Rows: 2, Cols: 3,
		X1: 100, XSpan: 8, XGap: 4,
		Y1: 200, YLen: 50, YSep: 2,
	})
	require.Len(t, rois, 6)

	// First vial of the first column.
	assert.Equal(t, geometry.Quad{{100, 200}, {100, 250}, {108, 250}, {108, 200}}, rois[0])
	// Second row continues below the first with the configured gap.
	assert.Equal(t, geometry.Quad{{100, 252}, {100, 302}, {108, 302}, {108, 252}}, rois[1])
	// Second column moves over by span+gap.
	assert.Equal(t, geometry.Quad{{112, 200}, {112, 250}, {120, 250}, {120, 200}}, rois[2])
}
