// Package geometry holds the pure coordinate helpers shared by the mask
// loader and the tracking engine: turning a four point ROI into an axis
// aligned rectangle, scaling a ROI between coordinate spaces, and deriving
// the virtual beam midline used by the crossing counter.
package geometry

import (
	"image"
	"math"
)

// Quad is a ROI outline: four corners in mask coordinate space. The corners
// are not required to form an axis aligned rectangle.
type Quad [4]image.Point

// Orientation selects how the beam midline of a ROI is laid out.
type Orientation int

const (
	// OrientationAuto derives the beam from the ROI shape: a ROI taller
	// than wide gets a horizontal beam and vice versa.
	OrientationAuto Orientation = iota
	OrientationHorizontal
	OrientationVertical
)

// Beam is the virtual midline bisecting a ROI. Horizontal beams split the
// ROI top/bottom, so side-of-beam tests use the Y coordinate; vertical beams
// use X. Mid is the beam position on that axis.
type Beam struct {
	P1, P2     image.Point
	Horizontal bool
	Mid        float64
}

// BoundingRect returns the axis aligned rectangle enclosing the quad.
func BoundingRect(q Quad) image.Rectangle {
	minX, minY := q[0].X, q[0].Y
	maxX, maxY := q[0].X, q[0].Y
	for _, p := range q[1:] {
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}
	}
	return image.Rect(minX, minY, maxX, maxY)
}

// Scale maps a quad from mask space into another coordinate space. The
// factors are applied per axis and the results rounded to the nearest pixel.
func Scale(q Quad, sx, sy float64) Quad {
	var out Quad
	for i, p := range q {
		out[i] = image.Point{
			X: int(math.Round(float64(p.X) * sx)),
			Y: int(math.Round(float64(p.Y) * sy)),
		}
	}
	return out
}

// Midline computes the beam segment for a ROI. With OrientationAuto the
// beam is horizontal when the ROI is taller than wide.
func Midline(q Quad, mode Orientation) Beam {
	r := BoundingRect(q)
	horizontal := false
	switch mode {
	case OrientationHorizontal:
		horizontal = true
	case OrientationVertical:
		horizontal = false
	default:
		horizontal = r.Dx() < r.Dy()
	}
	if horizontal {
		mid := float64(r.Min.Y+r.Max.Y) / 2
		y := int(math.Round(mid))
		return Beam{
			P1:         image.Point{X: r.Min.X, Y: y},
			P2:         image.Point{X: r.Max.X, Y: y},
			Horizontal: true,
			Mid:        mid,
		}
	}
	mid := float64(r.Min.X+r.Max.X) / 2
	x := int(math.Round(mid))
	return Beam{
		P1:  image.Point{X: x, Y: r.Min.Y},
		P2:  image.Point{X: x, Y: r.Max.Y},
		Mid: mid,
	}
}

// Distance is the Euclidean distance between two points.
func Distance(a, b image.Point) float64 {
	return math.Hypot(float64(a.X-b.X), float64(a.Y-b.Y))
}
