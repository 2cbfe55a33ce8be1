// Package segment splits a long recording into contiguous time windows and
// runs one tracker process per window, so multi-hour acquisitions can use
// every core without sharing decoder state between workers.
package segment

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"sync"

	"github.com/cgoina/pysolo-tools/logger"
)

// Window is one contiguous slice of the source, in seconds from the start
// of the recording. End is exclusive; a negative End means "to the end of
// the source".
type Window struct {
	StartSeconds int64
	EndSeconds   int64
}

// Suffix names the window the way the per-segment result files are tagged.
func (w Window) Suffix() string {
	if w.EndSeconds < 0 {
		return fmt.Sprintf("%d-end", w.StartSeconds)
	}
	return fmt.Sprintf("%d-%d", w.StartSeconds, w.EndSeconds)
}

// Windows splits [startSeconds, endSeconds) into n contiguous windows. The
// last window absorbs the remainder; when endSeconds is negative only the
// final window is open-ended and the preceding ones assume nothing about
// the source length, so n must then divide the known range or be 1.
func Windows(startSeconds, endSeconds int64, n int) ([]Window, error) {
	if n < 1 {
		return nil, fmt.Errorf("segment count must be positive, got %d", n)
	}
	if endSeconds < 0 {
		if n != 1 {
			return nil, fmt.Errorf("cannot split an open-ended range into %d segments", n)
		}
		return []Window{{StartSeconds: startSeconds, EndSeconds: -1}}, nil
	}
	if endSeconds <= startSeconds {
		return nil, fmt.Errorf("empty range [%d, %d)", startSeconds, endSeconds)
	}
	total := endSeconds - startSeconds
	if int64(n) > total {
		n = int(total)
	}
	span := total / int64(n)
	windows := make([]Window, n)
	for i := range windows {
		windows[i].StartSeconds = startSeconds + int64(i)*span
		windows[i].EndSeconds = windows[i].StartSeconds + span
	}
	windows[n-1].EndSeconds = endSeconds
	return windows, nil
}

// Runner spawns one child tracker process per window and waits for all of
// them. The children write their own per-segment result files.
type Runner struct {
	// Binary is the tracker executable; empty means the current binary.
	Binary string
	// BaseArgs are passed to every child before the window flags.
	BaseArgs []string
	Log      *logger.Logger
}

// Run executes all windows concurrently and returns the first child
// failure, after every child has finished.
func (r *Runner) Run(windows []Window) error {
	binary := r.Binary
	if binary == "" {
		exe, err := os.Executable()
		if err != nil {
			return fmt.Errorf("cannot resolve tracker binary: %w", err)
		}
		binary = exe
	}
	log := r.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithModule("segment")

	var wg sync.WaitGroup
	errs := make([]error, len(windows))
	for i, w := range windows {
		wg.Add(1)
		go func(i int, w Window) {
			defer wg.Done()
			errs[i] = r.runOne(binary, w, log)
		}(i, w)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runOne(binary string, w Window, log *logger.Logger) error {
	args := append([]string(nil), r.BaseArgs...)
	args = append(args, "-start-frame-time", fmt.Sprint(w.StartSeconds))
	if w.EndSeconds >= 0 {
		args = append(args, "-end-frame-time", fmt.Sprint(w.EndSeconds))
	}
	// Children must not recurse into further splitting.
	args = append(args, "-nprocesses", "1")

	cmd := exec.Command(binary, args...)
	tail := newTailBuffer(100)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("segment %s: stderr pipe: %w", w.Suffix(), err)
	}

	log.Infof("starting segment %s", w.Suffix())
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("segment %s: start: %w", w.Suffix(), err)
	}

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		tail.add(scanner.Text())
	}

	if err := cmd.Wait(); err != nil {
		for _, line := range tail.recent() {
			log.Errorf("segment %s: %s", w.Suffix(), line)
		}
		return fmt.Errorf("segment %s failed: %w", w.Suffix(), err)
	}
	log.Infof("segment %s finished", w.Suffix())
	return nil
}
