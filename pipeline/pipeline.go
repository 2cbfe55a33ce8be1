// Package pipeline drives frame processing: it pulls frames sequentially
// from a video source, farms the per-ROI blob extraction out to a bounded
// worker pool, feeds the accepted centroids into every monitored area's
// aggregation state machine, and guarantees the end-of-stream flush that
// keeps trailing partial intervals from being lost.
package pipeline

import (
	"fmt"
	"image"
	"time"

	"gocv.io/x/gocv"

	"github.com/cgoina/pysolo-tools/detection"
	"github.com/cgoina/pysolo-tools/logger"
	"github.com/cgoina/pysolo-tools/metrics"
	"github.com/cgoina/pysolo-tools/tracking"
	"github.com/cgoina/pysolo-tools/video"
)

// FrameCallback receives every processed frame together with the latest
// accepted centroids per area, for live preview or annotated frame dumps.
// The frame Mat is only valid for the duration of the call.
type FrameCallback func(frameIndex int, frameTime float64, frame gocv.Mat, points [][]image.Point)

// Options configure a pipeline run.
type Options struct {
	// Detection tunes the per-ROI blob extraction.
	Detection detection.Params
	// Workers bounds the per-frame ROI worker pool. Values below 2 run
	// every ROI inline on the decode goroutine, which is usually faster
	// for small ROI counts.
	Workers int
	// KeepGoing is polled once per frame at the top of the loop; when it
	// returns false the run stops cooperatively after the in-flight frame.
	// nil means run to the end of the source.
	KeepGoing func() bool
	// OnFrame, when set, is invoked after every processed frame.
	OnFrame FrameCallback
}

// Pipeline processes one video source against a set of monitored areas.
type Pipeline struct {
	opts Options
	log  *logger.Logger
	met  *metrics.Metrics

	areas     []*tracking.MonitoredArea
	detectors [][]*detection.RoiDetector // parallel to areas/ROIs; nil for untracked
	pool      *workerPool
}

// New builds a pipeline over areas whose ROIs are already loaded. log and
// met may be nil.
func New(areas []*tracking.MonitoredArea, opts Options, log *logger.Logger, met *metrics.Metrics) (*Pipeline, error) {
	if len(areas) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one monitored area")
	}
	if log == nil {
		log = logger.Discard()
	}
	p := &Pipeline{
		opts: opts,
		log:  log.WithModule("pipeline"),
		met:  met,
	}
	p.areas = areas
	p.detectors = make([][]*detection.RoiDetector, len(areas))
	trackableRois := 0
	for i, area := range areas {
		if area.RoiCount() == 0 {
			return nil, fmt.Errorf("area %d has no rois loaded", i+1)
		}
		p.detectors[i] = make([]*detection.RoiDetector, area.RoiCount())
		for roi := 0; roi < area.RoiCount(); roi++ {
			if !area.IsRoiTrackable(roi) {
				continue
			}
			p.detectors[i][roi] = detection.NewRoiDetector(area.RoiBounds(roi), opts.Detection)
			trackableRois++
		}
	}
	if opts.Workers > 1 {
		p.pool = newWorkerPool(opts.Workers)
	}
	p.log.Infof("pipeline ready: %d areas, %d trackable rois, %d workers",
		len(areas), trackableRois, opts.Workers)
	return p, nil
}

// Run processes frames until the source is exhausted or cancelled, then
// performs the mandatory final aggregation and flush for every area.
// Cancellation is not an error: already-processed time is always written.
func (p *Pipeline) Run(src video.Source) error {
	start := time.Now()
	frames := 0
	lastTime := 0.0

	for {
		if p.opts.KeepGoing != nil && !p.opts.KeepGoing() {
			p.log.Infof("cancelled after %d frames", frames)
			break
		}
		ok, frameIndex, frame := src.NextFrame()
		if !ok {
			break
		}
		p.met.FrameRead()
		frameTime := src.CurrentFrameTimeInSeconds()
		lastTime = frameTime

		frameStart := time.Now()
		p.processFrame(frame, frameIndex, frameTime)
		p.met.FrameProcessed(time.Since(frameStart).Seconds())
		frame.Close()
		frames++

		if frames%1000 == 0 {
			p.log.Debugf("processed %d frames (t=%.1fs)", frames, frameTime)
		}
	}

	// End of stream: force a final aggregate over whatever is buffered,
	// even a short partial interval, and write everything out.
	var firstErr error
	for _, area := range p.areas {
		if err := area.Flush(lastTime); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.log.Infof("run finished: %d frames in %v", frames, time.Since(start).Round(time.Millisecond))
	return firstErr
}

// processFrame dispatches the per-ROI work for one frame, joins it, then
// advances every area's aggregation clock exactly once.
func (p *Pipeline) processFrame(frame gocv.Mat, frameIndex int, frameTime float64) {
	type roiTask struct {
		area *tracking.MonitoredArea
		det  *detection.RoiDetector
		roi  int
	}
	var tasks []roiTask
	for i, area := range p.areas {
		for roi, det := range p.detectors[i] {
			if det != nil {
				tasks = append(tasks, roiTask{area: area, det: det, roi: roi})
			}
		}
	}

	// Each ROI's detector and window buffer are touched by exactly one
	// task per frame, so the tasks need no shared locking; the pool joins
	// before the areas' frame clocks advance.
	run := func(t roiTask) {
		pt := t.det.Detect(frame)
		if pt != nil {
			p.met.Detection()
		} else {
			p.met.MissedDetection()
		}
		t.area.AddFlyCoords(t.roi, pt)
	}

	if p.pool == nil {
		for _, t := range tasks {
			run(t)
		}
	} else {
		p.pool.runBatch(len(tasks), func(i int) { run(tasks[i]) })
	}

	for _, area := range p.areas {
		if err := area.UpdateFrameActivity(frameTime); err != nil {
			// Only reachable through a life-cycle bug; surface loudly.
			p.log.Errorf("frame %d: %v", frameIndex, err)
		}
	}

	if p.opts.OnFrame != nil {
		points := make([][]image.Point, len(p.areas))
		for i, area := range p.areas {
			points[i] = area.LastPoints()
		}
		p.opts.OnFrame(frameIndex, frameTime, frame, points)
	}
}

// Close releases the per-ROI detectors and stops the worker pool.
func (p *Pipeline) Close() {
	for _, dets := range p.detectors {
		for _, det := range dets {
			if det != nil {
				det.Close()
			}
		}
	}
	if p.pool != nil {
		p.pool.stop()
	}
}
