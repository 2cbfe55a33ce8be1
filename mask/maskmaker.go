package mask

import (
	"image"
	"math"

	"github.com/cgoina/pysolo-tools/geometry"
)

// GridParams describes a regular grid of vial ROIs. Columns advance along X,
// rows along Y; the tilt parameters shear the grid for plates that are not
// perfectly aligned with the camera.
type GridParams struct {
	Rows int
	Cols int

	X1    float64 // left edge of the first column
	XSpan float64 // vial width
	XGap  float64 // horizontal gap between columns
	XTilt float64 // per-row horizontal drift

	Y1    float64 // top edge of the first row
	YLen  float64 // vial height
	YSep  float64 // vertical gap between rows
	YTilt float64 // per-column vertical drift
}

// Grid generates the ROI quads for a regular vial grid. ROIs are emitted
// column by column, top to bottom, matching the historical mask ordering.
func Grid(p GridParams) []geometry.Quad {
	rois := make([]geometry.Quad, 0, p.Rows*p.Cols)
	for col := 0; col < p.Cols; col++ {
		ay := p.Y1 + float64(col)*p.YTilt
		by := ay + p.YLen
		ax := p.X1 + float64(col)*(p.XSpan+p.XGap)
		for row := 0; row < p.Rows; row++ {
			cx := ax + p.XSpan
			rois = append(rois, geometry.Quad{
				pt(ax, ay),
				pt(ax, by),
				pt(cx, by),
				pt(cx, ay),
			})
			ay = by + p.YSep
			by = ay + p.YLen
			ax += p.XTilt
		}
	}
	return rois
}

func pt(x, y float64) image.Point {
	return image.Point{X: int(math.Floor(x)), Y: int(math.Floor(y))}
}
