// Package config loads and validates a run configuration from an INI file
// in the classic acquisition-rig shape: a global [Options] section followed
// by one [MonitorN] section per monitored area.
package config

import (
	"fmt"
	"image"
	"os"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/cgoina/pysolo-tools/geometry"
	"github.com/cgoina/pysolo-tools/tracking"
)

// acquisition time as written by the capture rig, e.g. "2018-03-05 09:30:00"
const acqTimeLayout = "2006-01-02 15:04:05"

// Config is the validated, immutable run configuration.
type Config struct {
	// Source is the movie file shared by every monitor.
	Source string
	// Resolution is the frame size the masks were drawn against; zero
	// means the source's native size.
	Resolution image.Point
	// DataDir receives the monitor result files.
	DataDir string
	// AcquisitionTime is the wall-clock time of the first frame.
	AcquisitionTime time.Time

	Monitors []MonitorConfig

	// declared monitor count, kept when sections are missing so Validate
	// can report the gap
	declaredMonitors int
}

// MonitorConfig describes one monitored area. The parsed fields (track
// type, interval unit, beam orientation, ROI filter) are only populated
// once Validate has run clean.
type MonitorConfig struct {
	// Index is the 1-based monitor number used in result file names.
	Index            int
	MaskFile         string
	TrackType        tracking.TrackType
	Track            bool
	SleepDeprivation bool
	Extend           bool
	// TrackedRois restricts tracking to these 1-based ROI numbers;
	// empty means all.
	TrackedRois []int
	// AggregationInterval together with AggregationIntervalUnits sets
	// the output row cadence.
	AggregationInterval      int
	AggregationIntervalUnits tracking.IntervalUnit
	BeamOrientation          geometry.Orientation

	// raw section values, parsed by validate so every bad value is
	// reported alongside the rest of the configuration problems
	trackTypeCode int
	intervalUnits string
	beamName      string
	roisFilter    string
}

// Load reads and parses path. Only unreadable files and malformed global
// options fail here; every per-monitor value problem is collected by
// Validate so a user sees all of them at once.
func Load(path string) (*Config, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		SkipUnrecognizableLines: true,
	}, path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	opts := file.Section("Options")
	cfg := &Config{
		Source:  opts.Key("source").String(),
		DataDir: opts.Key("data_folder").String(),
	}
	if v := opts.Key("fullsize").String(); v != "" {
		if _, err := fmt.Sscanf(v, "%d,%d", &cfg.Resolution.X, &cfg.Resolution.Y); err != nil {
			return nil, fmt.Errorf("config %s: bad fullsize %q: %w", path, v, err)
		}
	}
	if v := opts.Key("acq_time").String(); v != "" {
		t, err := time.ParseInLocation(acqTimeLayout, v, time.Local)
		if err != nil {
			return nil, fmt.Errorf("config %s: bad acq_time %q: %w", path, v, err)
		}
		cfg.AcquisitionTime = t
	}

	nmonitors := opts.Key("monitors").MustInt(0)
	for i := 0; i < nmonitors; i++ {
		sectionName := fmt.Sprintf("Monitor%d", i+1)
		if !file.HasSection(sectionName) {
			// Validate reports the hole; keep loading the rest.
			continue
		}
		cfg.Monitors = append(cfg.Monitors, loadMonitor(file.Section(sectionName), i+1))
	}
	if nmonitors > 0 && len(cfg.Monitors) < nmonitors {
		// Remember the declared count so Validate can flag the gap.
		cfg.declaredMonitors = nmonitors
	}
	return cfg, nil
}

func loadMonitor(sec *ini.Section, index int) MonitorConfig {
	return MonitorConfig{
		Index:               index,
		MaskFile:            sec.Key("maskfile").String(),
		Track:               sec.Key("track").MustBool(true),
		SleepDeprivation:    sec.Key("isSDMonitor").MustBool(false),
		Extend:              sec.Key("extend").MustBool(true),
		AggregationInterval: sec.Key("aggregation_interval").MustInt(60),
		trackTypeCode:       sec.Key("trackType").MustInt(0),
		intervalUnits:       sec.Key("aggregation_interval_units").MustString("frames"),
		beamName:            sec.Key("beam").MustString("auto"),
		roisFilter:          sec.Key("tracked_rois_filter").String(),
	}
}

// Validate checks the whole configuration and returns every problem found,
// so a bad file is reported in one pass rather than one error per run. It
// also installs the parsed per-monitor values when they are valid.
func (c *Config) Validate() []error {
	var errs []error
	if c.Source == "" {
		errs = append(errs, fmt.Errorf("no source movie configured"))
	} else if _, err := os.Stat(c.Source); err != nil {
		errs = append(errs, fmt.Errorf("source movie %s: %w", c.Source, err))
	}
	if c.DataDir == "" {
		errs = append(errs, fmt.Errorf("no data_folder configured"))
	}
	if c.AcquisitionTime.IsZero() {
		errs = append(errs, fmt.Errorf("no acq_time configured"))
	}
	if c.declaredMonitors > len(c.Monitors) {
		errs = append(errs, fmt.Errorf("config declares %d monitors but defines %d sections",
			c.declaredMonitors, len(c.Monitors)))
	}
	if len(c.Monitors) == 0 {
		errs = append(errs, fmt.Errorf("no monitors configured"))
	}
	for i := range c.Monitors {
		errs = append(errs, c.Monitors[i].validate()...)
	}
	return errs
}

func (m *MonitorConfig) validate() []error {
	var errs []error
	if m.MaskFile == "" {
		errs = append(errs, fmt.Errorf("monitor %d: no maskfile configured", m.Index))
	} else if _, err := os.Stat(m.MaskFile); err != nil {
		errs = append(errs, fmt.Errorf("monitor %d: maskfile %s: %w", m.Index, m.MaskFile, err))
	}
	if m.AggregationInterval <= 0 {
		errs = append(errs, fmt.Errorf("monitor %d: aggregation_interval must be positive, got %d",
			m.Index, m.AggregationInterval))
	}

	if tt, err := tracking.ParseTrackType(m.trackTypeCode); err != nil {
		errs = append(errs, fmt.Errorf("monitor %d: %w", m.Index, err))
	} else {
		m.TrackType = tt
	}

	if unit, err := tracking.ParseIntervalUnit(m.intervalUnits); err != nil {
		errs = append(errs, fmt.Errorf("monitor %d: %w", m.Index, err))
	} else {
		m.AggregationIntervalUnits = unit
	}

	switch m.beamName {
	case "auto", "":
		m.BeamOrientation = geometry.OrientationAuto
	case "horizontal":
		m.BeamOrientation = geometry.OrientationHorizontal
	case "vertical":
		m.BeamOrientation = geometry.OrientationVertical
	default:
		errs = append(errs, fmt.Errorf("monitor %d: unknown beam orientation %q", m.Index, m.beamName))
	}

	if m.roisFilter != "" {
		m.TrackedRois = m.TrackedRois[:0]
		for _, field := range strings.Split(m.roisFilter, ",") {
			var roi int
			if _, err := fmt.Sscanf(strings.TrimSpace(field), "%d", &roi); err != nil {
				errs = append(errs, fmt.Errorf("monitor %d: bad tracked_rois_filter entry %q", m.Index, field))
				continue
			}
			if roi < 1 {
				errs = append(errs, fmt.Errorf("monitor %d: tracked_rois_filter entries are 1-based, got %d",
					m.Index, roi))
				continue
			}
			m.TrackedRois = append(m.TrackedRois, roi)
		}
	}
	return errs
}
