// Package overlay renders tracking annotations onto frames: ROI outlines,
// beam midlines and the latest accepted centroid per vial. It is wired into
// the pipeline's frame callback for live preview or annotated frame dumps.
package overlay

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"github.com/cgoina/pysolo-tools/geometry"
)

var (
	roiColor      = color.RGBA{0, 255, 0, 255}
	beamColor     = color.RGBA{0, 191, 255, 255}
	centroidColor = color.RGBA{255, 0, 0, 255}
	textColor     = color.RGBA{255, 255, 0, 255}
)

// Renderer draws one monitored area's annotations. The ROI geometry is
// fixed at construction; only the centroids change per frame.
type Renderer struct {
	rois  []geometry.Quad
	beams []geometry.Beam
}

// NewRenderer builds a renderer for scaled ROI quads and their beams.
// beams may be nil when the track type has no crossing beam.
func NewRenderer(rois []geometry.Quad, beams []geometry.Beam) *Renderer {
	return &Renderer{rois: rois, beams: beams}
}

// Draw annotates frame in place with the ROI outlines and the latest
// centroid per ROI. points is indexed like the ROIs; a zero point means no
// subject has been accepted there yet.
func (r *Renderer) Draw(frame *gocv.Mat, points []image.Point, frameTime float64) {
	for i, q := range r.rois {
		for e := 0; e < 4; e++ {
			gocv.Line(frame, q[e], q[(e+1)%4], roiColor, 1)
		}
		if r.beams != nil && i < len(r.beams) {
			r.drawBeam(frame, r.beams[i])
		}
		gocv.PutText(frame, fmt.Sprint(i+1),
			image.Pt(q[0].X+2, q[0].Y+12),
			gocv.FontHersheySimplex, 0.3, textColor, 1)
	}
	for i, pt := range points {
		if pt == (image.Point{}) || i >= len(r.rois) {
			continue
		}
		gocv.Circle(frame, pt, 3, centroidColor, -1)
	}
	gocv.PutText(frame, fmt.Sprintf("t=%.2fs", frameTime),
		image.Pt(5, 15), gocv.FontHersheySimplex, 0.4, textColor, 1)
}

func (r *Renderer) drawBeam(frame *gocv.Mat, b geometry.Beam) {
	gocv.Line(frame, b.P1, b.P2, beamColor, 1)
}

// FrameSaver writes annotated frames to numbered jpg files, at most one
// every Step frames.
type FrameSaver struct {
	Dir  string
	Step int
}

// Save writes frame when frameIndex falls on the saver's step. The file is
// named frame-<index>.jpg under Dir.
func (s *FrameSaver) Save(frameIndex int, frame gocv.Mat) error {
	step := s.Step
	if step < 1 {
		step = 1
	}
	if frameIndex%step != 0 {
		return nil
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(s.Dir, fmt.Sprintf("frame-%06d.jpg", frameIndex))
	if ok := gocv.IMWrite(path, frame); !ok {
		return fmt.Errorf("cannot write %s", path)
	}
	return nil
}
