// Command evalbackground estimates the static background of a recording by
// averaging its smoothed frames and writes the result as an image, useful
// for checking lighting and mask alignment before a tracking run.
package main

import (
	"flag"
	"fmt"
	"os"

	"gocv.io/x/gocv"

	"github.com/cgoina/pysolo-tools/config"
	"github.com/cgoina/pysolo-tools/logger"
	"github.com/cgoina/pysolo-tools/video"
)

var (
	configFile     = flag.String("config", "", "Path to the run config file (required)")
	outputFile     = flag.String("background-image-file", "background.jpg", "Where to save the background image")
	startFrameTime = flag.Int64("start-frame-time", -1, "Start position in seconds, -1 for the beginning")
	endFrameTime   = flag.Int64("end-frame-time", -1, "End position in seconds, -1 for the end of the movie")
	filterSize     = flag.Int("smooth-filter-size", 3, "Gaussian smoothing kernel size")
	logLevel       = flag.String("log-level", "info", "Log level: debug, info, warn, error, silent")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "evalbackground: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		return err
	}
	log := logger.New(os.Stderr, level).WithModule("evalbackground")

	if *configFile == "" {
		return fmt.Errorf("missing -config")
	}
	cfg, err := config.Load(*configFile)
	if err != nil {
		return err
	}

	endMsecs := int64(-1)
	if *endFrameTime >= 0 {
		endMsecs = *endFrameTime * 1000
	}
	src, err := video.OpenMovieFile(cfg.Source, video.MovieFileOptions{
		StartMsecs: *startFrameTime * 1000,
		EndMsecs:   endMsecs,
		Resolution: cfg.Resolution,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	log.Infof("estimating background of %s", cfg.Source)
	background, err := video.EstimateBackground(src, *filterSize, 0)
	if err != nil {
		return err
	}
	defer background.Close()

	if ok := gocv.IMWrite(*outputFile, background); !ok {
		return fmt.Errorf("cannot write %s", *outputFile)
	}
	log.Infof("background saved to %s", *outputFile)
	return nil
}
