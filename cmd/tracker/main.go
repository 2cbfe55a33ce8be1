// Command tracker runs batch activity tracking over a recorded movie: it
// loads the run configuration, tracks every configured monitor and writes
// one activity file per monitor in the legacy acquisition format.
package main

import (
	"flag"
	"fmt"
	"image"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/cgoina/pysolo-tools/config"
	"github.com/cgoina/pysolo-tools/detection"
	"github.com/cgoina/pysolo-tools/geometry"
	"github.com/cgoina/pysolo-tools/logger"
	"github.com/cgoina/pysolo-tools/metrics"
	"github.com/cgoina/pysolo-tools/overlay"
	"github.com/cgoina/pysolo-tools/pipeline"
	"github.com/cgoina/pysolo-tools/segment"
	"github.com/cgoina/pysolo-tools/tracking"
	"github.com/cgoina/pysolo-tools/video"
)

var (
	configFile     = flag.String("config", "", "Path to the run config file (required)")
	startFrameTime = flag.Int64("start-frame-time", -1, "Start position in seconds, -1 for the beginning")
	endFrameTime   = flag.Int64("end-frame-time", -1, "End position in seconds, -1 for the end of the movie")
	filterSize     = flag.Int("smooth-filter-size", 3, "Gaussian smoothing kernel size")
	filterSigma    = flag.Float64("smooth-filter-sigma", 0, "Gaussian smoothing sigma, 0 derives it from the kernel size")
	nthreads       = flag.Int("nthreads", 1, "Worker threads for per-ROI processing within one process")
	nprocesses     = flag.Int("nprocesses", 1, "Split the movie into this many segments, one child process each")
	resultSuffix   = flag.String("result-suffix", "", "Suffix appended to result file names (set by the segment runner)")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error, silent")
	metricsAddr    = flag.String("metrics-addr", "", "Expose Prometheus metrics on this address, e.g. :9090")
	annotatedDir   = flag.String("annotated-frames", "", "Save annotated frames to this directory")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tracker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	runID := uuid.NewString()[:8]
	log := logger.New(os.Stderr, level).WithModule("run-" + runID)

	if *configFile == "" {
		return fmt.Errorf("missing -config")
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			log.Errorf("config: %v", e)
		}
		return fmt.Errorf("config %s has %d problems", *configFile, len(errs))
	}

	if *nprocesses > 1 {
		return runSegmented(cfg, log)
	}
	return runTracker(cfg, log, runID)
}

// runSegmented probes the movie for its real time range, splits it into
// nprocesses windows and re-executes this binary once per window.
func runSegmented(cfg *config.Config, log *logger.Logger) error {
	src, err := video.OpenMovieFile(cfg.Source, video.MovieFileOptions{
		StartMsecs: *startFrameTime * 1000,
		EndMsecs:   endMsecs(),
		Resolution: cfg.Resolution,
	})
	if err != nil {
		return err
	}
	start := int64(src.StartTimeInSeconds())
	end := int64(src.EndTimeInSeconds())
	src.Close()

	windows, err := segment.Windows(start, end, *nprocesses)
	if err != nil {
		return err
	}
	runner := &segment.Runner{
		BaseArgs: []string{
			"-config", *configFile,
			"-smooth-filter-size", fmt.Sprint(*filterSize),
			"-smooth-filter-sigma", fmt.Sprint(*filterSigma),
			"-nthreads", fmt.Sprint(*nthreads),
			"-log-level", *logLevel,
		},
		Log: log,
	}
	return runner.Run(windows)
}

func runTracker(cfg *config.Config, log *logger.Logger, runID string) error {
	met := metrics.New()
	if *metricsAddr != "" {
		go func() {
			if err := http.ListenAndServe(*metricsAddr, met.Handler()); err != nil {
				log.Errorf("metrics endpoint: %v", err)
			}
		}()
	}

	src, err := video.OpenMovieFile(cfg.Source, video.MovieFileOptions{
		StartMsecs: *startFrameTime * 1000,
		EndMsecs:   endMsecs(),
		Resolution: cfg.Resolution,
	})
	if err != nil {
		return err
	}
	defer src.Close()
	scaleX, scaleY := src.Scale()

	suffix := *resultSuffix
	if suffix == "" && (*startFrameTime >= 0 || *endFrameTime >= 0) {
		suffix = segment.Window{
			StartSeconds: int64(src.StartTimeInSeconds()),
			EndSeconds:   windowEnd(src),
		}.Suffix()
	}

	var areas []*tracking.MonitoredArea
	for _, mon := range cfg.Monitors {
		if !mon.Track {
			log.Infof("monitor %d: tracking disabled, skipping", mon.Index)
			continue
		}
		area, err := tracking.NewMonitoredArea(tracking.AreaParams{
			Index:             mon.Index,
			TrackType:         mon.TrackType,
			SleepDeprivation:  mon.SleepDeprivation,
			AggregationFrames: mon.AggregationIntervalUnits.Frames(mon.AggregationInterval, src.Fps()),
			Extend:            mon.Extend,
			ResultSuffix:      suffix,
			Fps:               src.Fps(),
			AcquisitionTime:   cfg.AcquisitionTime,
			DataDir:           cfg.DataDir,
			Trackable:         zeroBased(mon.TrackedRois),
			BeamOrientation:   mon.BeamOrientation,
			ScaleX:            scaleX,
			ScaleY:            scaleY,
		}, log, met)
		if err != nil {
			return fmt.Errorf("monitor %d: %w", mon.Index, err)
		}
		if err := area.LoadROIs(mon.MaskFile); err != nil {
			return fmt.Errorf("monitor %d: %w", mon.Index, err)
		}
		areas = append(areas, area)
	}
	if len(areas) == 0 {
		return fmt.Errorf("no monitor enabled for tracking")
	}

	opts := pipeline.Options{
		Detection: detection.Params{
			GaussianFilterSize: *filterSize,
			GaussianSigma:      *filterSigma,
		},
		Workers:   *nthreads,
		KeepGoing: interruptPredicate(log),
	}
	if *annotatedDir != "" {
		opts.OnFrame = annotationCallback(areas, log)
	}

	p, err := pipeline.New(areas, opts, log, met)
	if err != nil {
		return err
	}
	defer p.Close()

	log.Infof("tracking %s (%d monitors, run %s)", cfg.Source, len(areas), runID)
	return p.Run(src)
}

// interruptPredicate turns SIGINT/SIGTERM into a cooperative stop so the
// already-processed activity still gets flushed.
func interruptPredicate(log *logger.Logger) func() bool {
	var stopped atomic.Bool
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		log.Warnf("interrupted, finishing current frame")
		stopped.Store(true)
	}()
	return func() bool { return !stopped.Load() }
}

func annotationCallback(areas []*tracking.MonitoredArea, log *logger.Logger) pipeline.FrameCallback {
	renderers := make([]*overlay.Renderer, len(areas))
	for i, area := range areas {
		beams := make([]geometry.Beam, area.RoiCount())
		for roi := 0; roi < area.RoiCount(); roi++ {
			beams[roi] = geometry.Midline(area.Rois()[roi], area.Params().BeamOrientation)
		}
		renderers[i] = overlay.NewRenderer(area.Rois(), beams)
	}
	saver := &overlay.FrameSaver{Dir: *annotatedDir, Step: 25}
	return func(frameIndex int, frameTime float64, frame gocv.Mat, points [][]image.Point) {
		for i, r := range renderers {
			r.Draw(&frame, points[i], frameTime)
		}
		if err := saver.Save(frameIndex, frame); err != nil {
			log.Warnf("annotated frame %d: %v", frameIndex, err)
		}
	}
}

func endMsecs() int64 {
	if *endFrameTime < 0 {
		return -1
	}
	return *endFrameTime * 1000
}

func windowEnd(src *video.MovieFile) int64 {
	if *endFrameTime < 0 {
		return -1
	}
	return int64(src.EndTimeInSeconds())
}

// zeroBased converts the config's 1-based ROI numbers to indices.
func zeroBased(rois []int) []int {
	if len(rois) == 0 {
		return nil
	}
	out := make([]int, len(rois))
	for i, roi := range rois {
		out[i] = roi - 1
	}
	return out
}
