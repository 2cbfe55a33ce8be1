// Package video provides sequential, time-addressable access to the frames
// of a movie file through gocv, plus the background estimation helper used
// by the standalone evalbackground tool.
package video

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Source is the narrow sequential-frame-access interface the pipeline
// consumes. MovieFile is the production implementation; tests substitute
// synthetic sources.
type Source interface {
	// Fps returns the decoded frame rate.
	Fps() float64
	// Size returns the native decode resolution.
	Size() (width, height int)
	// Scale returns the target/native resolution ratio per axis, used to
	// map mask-space coordinates into the decoded frame space.
	Scale() (sx, sy float64)
	// NextFrame returns the next frame in sequence. hasFrame is false once
	// the source is past its end bound or exhausted; the returned Mat is
	// owned by the caller and must be closed.
	NextFrame() (hasFrame bool, frameIndex int, frame gocv.Mat)
	// SeekFrame moves the cursor to an absolute frame index, clamped to
	// the configured [start, end) range.
	SeekFrame(index int) error
	// CurrentFrameTimeInSeconds returns the time of the last returned
	// frame relative to the start of the video.
	CurrentFrameTimeInSeconds() float64
	// Close releases the decoder. Idempotent.
	Close() error
}

// SourceOpenError reports a container that could not be opened or decoded.
type SourceOpenError struct {
	Path string
	Err  error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("cannot open video source %s: %v", e.Path, e.Err)
}

func (e *SourceOpenError) Unwrap() error { return e.Err }

// MovieFile decodes a movie sequentially between configurable time bounds.
// Frame decoding is strictly sequential and single threaded; the cursor
// advances by the configured step on every NextFrame call.
type MovieFile struct {
	path string
	step int

	capture *gocv.VideoCapture
	opened  bool
	closed  bool

	fps         float64
	width       int
	height      int
	totalFrames int

	targetWidth  int // 0 means native
	targetHeight int

	start   int // first frame index, inclusive
	end     int // end bound, exclusive
	current int // next frame index to decode
	last    int // index of the last returned frame
}

// MovieFileOptions configure a MovieFile beyond its path.
type MovieFileOptions struct {
	// StartMsecs and EndMsecs bound the processed range; negative values
	// mean "from the beginning" / "to the end". Out-of-range bounds clamp
	// to the actual video length.
	StartMsecs int64
	EndMsecs   int64
	// Step is the distance between consecutively returned frames; values
	// below 1 are treated as 1.
	Step int
	// Resolution is the target mask-space resolution. A zero value means
	// the mask coordinates are already in native frame space.
	Resolution image.Point
}

// OpenMovieFile opens the container and computes the frame bounds from the
// millisecond range. It fails with a *SourceOpenError when the container
// cannot be decoded.
func OpenMovieFile(path string, opts MovieFileOptions) (*MovieFile, error) {
	capture, err := gocv.OpenVideoCapture(path)
	if err != nil {
		return nil, &SourceOpenError{Path: path, Err: err}
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, &SourceOpenError{Path: path, Err: fmt.Errorf("decoder rejected the container")}
	}

	fps := capture.Get(gocv.VideoCaptureFPS)
	total := int(capture.Get(gocv.VideoCaptureFrameCount))
	width := int(capture.Get(gocv.VideoCaptureFrameWidth))
	height := int(capture.Get(gocv.VideoCaptureFrameHeight))
	if fps <= 0 || width <= 0 || height <= 0 {
		capture.Close()
		return nil, &SourceOpenError{Path: path, Err: fmt.Errorf("invalid stream properties (fps=%v size=%dx%d)", fps, width, height)}
	}

	step := opts.Step
	if step < 1 {
		step = 1
	}
	start := clampFrame(frameForMsecs(opts.StartMsecs, fps), total)
	end := total
	if opts.EndMsecs >= 0 {
		end = clampFrame(frameForMsecs(opts.EndMsecs, fps), total)
	}
	if end < start {
		end = start
	}

	m := &MovieFile{
		path:         path,
		step:         step,
		capture:      capture,
		opened:       true,
		fps:          fps,
		width:        width,
		height:       height,
		totalFrames:  total,
		targetWidth:  opts.Resolution.X,
		targetHeight: opts.Resolution.Y,
		start:        start,
		end:          end,
		current:      start,
		last:         start,
	}
	if start > 0 {
		capture.Set(gocv.VideoCapturePosFrames, float64(start))
	}
	return m, nil
}

// frameForMsecs converts a millisecond offset into a frame index; negative
// offsets mean frame zero.
func frameForMsecs(msecs int64, fps float64) int {
	if msecs < 0 {
		return 0
	}
	return int(float64(msecs) / 1000 * fps)
}

func clampFrame(frame, total int) int {
	if frame < 0 {
		return 0
	}
	if frame > total {
		return total
	}
	return frame
}

// IsOpened reports whether the decoder is usable.
func (m *MovieFile) IsOpened() bool { return m.opened && !m.closed }

// Fps returns the decoded frame rate.
func (m *MovieFile) Fps() float64 { return m.fps }

// Size returns the native decode resolution.
func (m *MovieFile) Size() (int, int) { return m.width, m.height }

// Scale returns the target/native resolution ratio per axis. With no target
// resolution configured the scale is identity.
func (m *MovieFile) Scale() (float64, float64) {
	if m.targetWidth <= 0 || m.targetHeight <= 0 {
		return 1, 1
	}
	return float64(m.targetWidth) / float64(m.width), float64(m.targetHeight) / float64(m.height)
}

// StartTimeInSeconds returns the configured start bound.
func (m *MovieFile) StartTimeInSeconds() float64 { return float64(m.start) / m.fps }

// EndTimeInSeconds returns the configured end bound.
func (m *MovieFile) EndTimeInSeconds() float64 { return float64(m.end) / m.fps }

// NextFrame decodes the frame at the cursor and advances it by the step.
// It returns hasFrame=false once the cursor passed the end bound or the
// decoder ran out of frames; decode exhaustion is not an error.
func (m *MovieFile) NextFrame() (bool, int, gocv.Mat) {
	if !m.IsOpened() || m.current >= m.end {
		return false, m.current, gocv.Mat{}
	}

	frame := gocv.NewMat()
	if ok := m.capture.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		return false, m.current, gocv.Mat{}
	}

	index := m.current
	m.last = index
	m.current += m.step
	if m.step > 1 && m.current < m.end {
		// Skip over intermediate frames without decoding them.
		m.capture.Grab(m.step - 1)
	}
	return true, index, frame
}

// SeekFrame positions the cursor at an absolute frame index, clamped to the
// configured range. Used for scrubbing.
func (m *MovieFile) SeekFrame(index int) error {
	if !m.IsOpened() {
		return fmt.Errorf("video source %s is closed", m.path)
	}
	if index < m.start {
		index = m.start
	}
	if index >= m.end {
		index = m.end - 1
	}
	if index < m.start {
		index = m.start
	}
	m.capture.Set(gocv.VideoCapturePosFrames, float64(index))
	m.current = index
	m.last = index
	return nil
}

// CurrentFrameTimeInSeconds returns the time of the last returned frame.
func (m *MovieFile) CurrentFrameTimeInSeconds() float64 {
	return float64(m.last) / m.fps
}

// Close releases the decoder exactly once; further calls are no-ops.
func (m *MovieFile) Close() error {
	if m.closed || !m.opened {
		return nil
	}
	m.closed = true
	return m.capture.Close()
}
