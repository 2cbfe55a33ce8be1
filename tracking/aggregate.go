package tracking

import (
	"image"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/cgoina/pysolo-tools/geometry"
)

// Record is one aggregated output row for a monitored area: the values of
// the configured metric for every ROI at the end of an aggregation interval.
// A Record for a partially filled interval can be merged with a later
// Record of the same logical interval.
type Record struct {
	Kind    TrackType
	EndTime float64 // seconds from the start of the video

	// Values holds the per-ROI metric for distance (sum of step lengths)
	// and crossings (beam crossing count). Unused in position mode.
	Values []float64

	// MeanX, MeanY and Samples hold the per-ROI running mean position and
	// its weight. Samples is what makes position merges exact: re-averaging
	// two means without their sample counts would skew the result.
	MeanX   []float64
	MeanY   []float64
	Samples []int
}

func newRecord(kind TrackType, nrois int, endTime float64) *Record {
	return &Record{
		Kind:    kind,
		EndTime: endTime,
		Values:  make([]float64, nrois),
		MeanX:   make([]float64, nrois),
		MeanY:   make([]float64, nrois),
		Samples: make([]int, nrois),
	}
}

// Merge folds a later partial aggregate of the same logical interval into r.
// Distance and crossing values add; position merges as a count-weighted mean.
// The merged record takes the later end time.
func (r *Record) Merge(later *Record) {
	r.EndTime = later.EndTime
	for i := range r.Values {
		switch r.Kind {
		case TrackTypePosition:
			total := r.Samples[i] + later.Samples[i]
			if total > 0 {
				wr := float64(r.Samples[i]) / float64(total)
				wl := float64(later.Samples[i]) / float64(total)
				r.MeanX[i] = r.MeanX[i]*wr + later.MeanX[i]*wl
				r.MeanY[i] = r.MeanY[i]*wr + later.MeanY[i]*wl
			}
			r.Samples[i] = total
		default:
			r.Values[i] += later.Values[i]
			r.Samples[i] += later.Samples[i]
		}
	}
}

// aggregateDistance sums the Euclidean distances between consecutive window
// samples. A window of n samples yields n-1 steps.
func aggregateDistance(window []image.Point) (value float64, samples int) {
	if len(window) < 2 {
		return 0, 0
	}
	steps := make([]float64, len(window)-1)
	for i := 1; i < len(window); i++ {
		steps[i-1] = geometry.Distance(window[i-1], window[i])
	}
	return floats.Sum(steps), len(steps)
}

// aggregateCrossings counts the frames where the position switches sides of
// the ROI beam midline relative to the previous frame. A sample sitting on
// the midline counts as the positive side, so a fly resting on the beam does
// not oscillate the counter.
func aggregateCrossings(window []image.Point, beam geometry.Beam) (value float64, samples int) {
	if len(window) < 2 {
		return 0, 0
	}
	crossings := 0
	prev := beamSide(window[0], beam)
	for _, p := range window[1:] {
		side := beamSide(p, beam)
		if side != prev {
			crossings++
		}
		prev = side
	}
	return float64(crossings), len(window) - 1
}

func beamSide(p image.Point, beam geometry.Beam) bool {
	if beam.Horizontal {
		return float64(p.Y) >= beam.Mid
	}
	return float64(p.X) >= beam.Mid
}

// aggregatePosition computes the arithmetic mean of the window coordinates,
// carrying the sample count needed for weighted merges.
func aggregatePosition(window []image.Point) (meanX, meanY float64, samples int) {
	if len(window) == 0 {
		return 0, 0, 0
	}
	xs := make([]float64, len(window))
	ys := make([]float64, len(window))
	for i, p := range window {
		xs[i] = float64(p.X)
		ys[i] = float64(p.Y)
	}
	return stat.Mean(xs, nil), stat.Mean(ys, nil), len(window)
}

// aggregateWindow runs the configured strategy over one ROI window and
// stores the result in the record slot for that ROI.
func aggregateWindow(rec *Record, roi int, window []image.Point, beam geometry.Beam) {
	switch rec.Kind {
	case TrackTypeDistance:
		rec.Values[roi], rec.Samples[roi] = aggregateDistance(window)
	case TrackTypeCrossings:
		rec.Values[roi], rec.Samples[roi] = aggregateCrossings(window, beam)
	case TrackTypePosition:
		rec.MeanX[roi], rec.MeanY[roi], rec.Samples[roi] = aggregatePosition(window)
	}
}
