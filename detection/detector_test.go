package detection

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

// blackFrame returns a dark BGR frame.
func blackFrame(w, h int) gocv.Mat {
	return gocv.NewMatWithSize(h, w, gocv.MatTypeCV8UC3)
}

// withBlob draws a bright square blob onto a copy of frame.
func withBlob(frame gocv.Mat, at image.Point, size int) gocv.Mat {
	out := frame.Clone()
	gocv.Rectangle(&out, image.Rect(at.X, at.Y, at.X+size, at.Y+size),
		color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)
	return out
}

func TestDetectFindsBlobCentroid(t *testing.T) {
	rect := image.Rect(10, 10, 60, 110)
	d := NewRoiDetector(rect, DefaultParams())
	defer d.Close()

	background := blackFrame(200, 200)
	defer background.Close()

	// First frame only seeds the background model.
	assert.Nil(t, d.Detect(background))

	// A bright 6x6 blob against the settled background is detected near
	// its center.
	frame := withBlob(background, image.Pt(30, 50), 6)
	defer frame.Close()
	pt := d.Detect(frame)
	require.NotNil(t, pt)
	assert.InDelta(t, 33, pt.X, 3)
	assert.InDelta(t, 53, pt.Y, 3)
}

func TestDetectRejectsOversizedBlob(t *testing.T) {
	rect := image.Rect(0, 0, 100, 100)
	params := DefaultParams()
	params.MaxSubjectArea = 16
	d := NewRoiDetector(rect, params)
	defer d.Close()

	background := blackFrame(100, 100)
	defer background.Close()
	require.Nil(t, d.Detect(background))

	// A 40x40 blob is far above the 16 px^2 ceiling.
	frame := withBlob(background, image.Pt(20, 20), 40)
	defer frame.Close()
	assert.Nil(t, d.Detect(frame))
}

func TestDetectNothingOnStaticScene(t *testing.T) {
	rect := image.Rect(0, 0, 80, 80)
	d := NewRoiDetector(rect, DefaultParams())
	defer d.Close()

	frame := blackFrame(80, 80)
	defer frame.Close()
	for i := 0; i < 5; i++ {
		assert.Nil(t, d.Detect(frame))
	}
}

// A mask drawn for a larger resolution can place a ROI entirely outside a
// smaller frame; detection must treat it as empty instead of cropping an
// empty region.
func TestDetectRoiOutsideFrameIsEmpty(t *testing.T) {
	d := NewRoiDetector(image.Rect(500, 500, 560, 610), DefaultParams())
	defer d.Close()

	frame := blackFrame(160, 120)
	defer frame.Close()
	for i := 0; i < 3; i++ {
		assert.Nil(t, d.Detect(frame))
	}
}

func TestParamsNormalized(t *testing.T) {
	p := Params{GaussianFilterSize: 4}.normalized()
	assert.Equal(t, 5, p.GaussianFilterSize) // even kernels round up
	assert.Equal(t, 0.05, p.BackgroundAlpha)
	assert.Equal(t, 400.0, p.MaxSubjectArea)
}
