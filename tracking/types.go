package tracking

import "fmt"

// TrackType selects the aggregation strategy for a monitored area. The
// numeric values are part of the output format (track-type column) and of
// the configuration files, so they must not be reordered.
type TrackType int

const (
	// TrackTypeDistance sums the per-frame Euclidean distance moved.
	TrackTypeDistance TrackType = iota
	// TrackTypeCrossings counts virtual beam midline crossings.
	TrackTypeCrossings
	// TrackTypePosition reports the mean position over the interval.
	TrackTypePosition
)

// ParseTrackType validates a numeric track-type code from a config file.
func ParseTrackType(code int) (TrackType, error) {
	switch TrackType(code) {
	case TrackTypeDistance, TrackTypeCrossings, TrackTypePosition:
		return TrackType(code), nil
	default:
		return 0, fmt.Errorf("invalid track type code %d", code)
	}
}

// Name returns the track-type name used in result file names.
func (t TrackType) Name() string {
	switch t {
	case TrackTypeDistance:
		return "distance"
	case TrackTypeCrossings:
		return "crossings"
	case TrackTypePosition:
		return "position"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// IntervalUnit is the unit of the configured aggregation interval.
type IntervalUnit int

const (
	UnitFrames IntervalUnit = iota
	UnitSeconds
	UnitMinutes
)

// ParseIntervalUnit parses a unit name from a config file.
func ParseIntervalUnit(s string) (IntervalUnit, error) {
	switch s {
	case "", "frames":
		return UnitFrames, nil
	case "sec", "seconds":
		return UnitSeconds, nil
	case "min", "minutes":
		return UnitMinutes, nil
	default:
		return 0, fmt.Errorf("invalid aggregation interval unit %q", s)
	}
}

// Frames converts an interval in this unit to a frame count at the given
// source frame rate. The result is never below one frame.
func (u IntervalUnit) Frames(interval int, fps float64) int {
	frames := interval
	switch u {
	case UnitSeconds:
		frames = int(float64(interval) * fps)
	case UnitMinutes:
		frames = int(float64(interval) * fps * 60)
	}
	if frames < 1 {
		frames = 1
	}
	return frames
}
