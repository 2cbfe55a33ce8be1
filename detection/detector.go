// Package detection extracts the subject centroid from a ROI crop by
// background subtraction: each ROI keeps an exponential moving-average
// background of its (blurred) crop, and the per-frame difference is
// thresholded, cleaned up morphologically and reduced to the centroid of
// the first fly-sized contour.
package detection

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Params tune the blob extraction. The zero value is not usable; call
// DefaultParams and override as needed.
type Params struct {
	// GaussianFilterSize is the blur kernel applied to every crop before
	// it enters the background model. Even values are rounded up.
	GaussianFilterSize int
	// GaussianSigma is the blur sigma; zero lets OpenCV derive it.
	GaussianSigma float64
	// BackgroundAlpha is the per-frame blend factor of the moving-average
	// background.
	BackgroundAlpha float64
	// DiffThreshold binarizes the background difference.
	DiffThreshold float64
	// MaxSubjectArea rejects contours too large to be the subject, such
	// as lighting changes across the whole vial. The first contour under
	// this ceiling wins; the tie-break is deliberately a constant here
	// rather than derived behavior (historical versions disagreed).
	MaxSubjectArea float64
}

// DefaultParams returns the tuning used by the batch tracker.
func DefaultParams() Params {
	return Params{
		GaussianFilterSize: 3,
		GaussianSigma:      0,
		BackgroundAlpha:    0.05,
		DiffThreshold:      25,
		MaxSubjectArea:     400,
	}
}

func (p Params) normalized() Params {
	if p.GaussianFilterSize < 1 {
		p.GaussianFilterSize = 3
	}
	if p.GaussianFilterSize%2 == 0 {
		p.GaussianFilterSize++
	}
	if p.BackgroundAlpha <= 0 || p.BackgroundAlpha > 1 {
		p.BackgroundAlpha = 0.05
	}
	if p.DiffThreshold <= 0 {
		p.DiffThreshold = 25
	}
	if p.MaxSubjectArea <= 0 {
		p.MaxSubjectArea = 400
	}
	return p
}

// RoiDetector holds the background model of a single ROI. It is exclusively
// owned by the pipeline task processing that ROI; no internal locking.
type RoiDetector struct {
	params Params
	rect   image.Rectangle

	background gocv.Mat // CV32FC3 moving average, empty until the first frame
	kernel     gocv.Mat

	// scratch Mats reused across frames to avoid per-frame allocation
	blurred gocv.Mat
	bg8     gocv.Mat
	diff    gocv.Mat
	gray    gocv.Mat
	thresh  gocv.Mat
}

// NewRoiDetector creates a detector for the ROI bounded by rect in frame
// coordinates.
func NewRoiDetector(rect image.Rectangle, params Params) *RoiDetector {
	return &RoiDetector{
		params:     params.normalized(),
		rect:       rect,
		background: gocv.NewMat(),
		kernel:     gocv.GetStructuringElement(gocv.MorphRect, image.Pt(3, 3)),
		blurred:    gocv.NewMat(),
		bg8:        gocv.NewMat(),
		diff:       gocv.NewMat(),
		gray:       gocv.NewMat(),
		thresh:     gocv.NewMat(),
	}
}

// Detect extracts the subject centroid from the ROI crop of frame and
// updates the background model. It returns nil when no qualifying blob was
// found this frame (the caller retains the previous point). The returned
// point is in frame coordinates.
func (d *RoiDetector) Detect(frame gocv.Mat) *image.Point {
	rect := d.rect.Intersect(image.Rect(0, 0, frame.Cols(), frame.Rows()))
	if rect.Empty() {
		// ROI outside the frame bounds; Region would abort on an empty
		// rectangle.
		return nil
	}
	crop := frame.Region(rect)
	defer crop.Close()

	k := image.Pt(d.params.GaussianFilterSize, d.params.GaussianFilterSize)
	gocv.GaussianBlur(crop, &d.blurred, k, d.params.GaussianSigma, d.params.GaussianSigma, gocv.BorderDefault)

	if d.background.Empty() {
		// First frame seeds the model; nothing to subtract yet.
		d.blurred.ConvertTo(&d.background, gocv.MatTypeCV32FC3)
		return nil
	}
	gocv.AccumulatedWeighted(d.blurred, &d.background, d.params.BackgroundAlpha)

	d.background.ConvertTo(&d.bg8, gocv.MatTypeCV8UC3)
	gocv.AbsDiff(d.blurred, d.bg8, &d.diff)
	gocv.CvtColor(d.diff, &d.gray, gocv.ColorBGRToGray)
	gocv.Threshold(d.gray, &d.thresh, float32(d.params.DiffThreshold), 255, gocv.ThresholdBinary)

	// Dilate then erode to close speckle holes without growing the blob.
	gocv.Dilate(d.thresh, &d.thresh, d.kernel)
	gocv.Erode(d.thresh, &d.thresh, d.kernel)

	contours := gocv.FindContours(d.thresh, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		contour := contours.At(i)
		if gocv.ContourArea(contour) >= d.params.MaxSubjectArea {
			continue // background blob, too large to be the subject
		}
		pt := d.contourCentroid(contours, i)
		pt.X += rect.Min.X
		pt.Y += rect.Min.Y
		return &pt
	}
	return nil
}

// contourCentroid computes the centroid of one contour via image moments,
// falling back to the bounding-box center when the area moment is zero
// (degenerate one-pixel or line contours).
func (d *RoiDetector) contourCentroid(contours gocv.PointsVector, idx int) image.Point {
	mask := gocv.NewMatWithSize(d.thresh.Rows(), d.thresh.Cols(), gocv.MatTypeCV8UC1)
	defer mask.Close()
	gocv.DrawContours(&mask, contours, idx, color.RGBA{R: 255, G: 255, B: 255, A: 255}, -1)

	m := gocv.Moments(mask, true)
	if m["m00"] == 0 {
		r := gocv.BoundingRect(contours.At(idx))
		return image.Pt(r.Min.X+r.Dx()/2, r.Min.Y+r.Dy()/2)
	}
	return image.Pt(int(m["m10"]/m["m00"]), int(m["m01"]/m["m00"]))
}

// Rect returns the frame-space rectangle this detector crops.
func (d *RoiDetector) Rect() image.Rectangle { return d.rect }

// Close releases the detector's Mats.
func (d *RoiDetector) Close() {
	for _, m := range []*gocv.Mat{&d.background, &d.kernel, &d.blurred, &d.bg8, &d.diff, &d.gray, &d.thresh} {
		m.Close()
	}
}
