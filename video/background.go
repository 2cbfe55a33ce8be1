package video

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// EstimateBackground computes a background image for a source as the
// running mean of all its frames, each lightly Gaussian blurred first. The
// caller owns the returned Mat.
func EstimateBackground(src Source, filterSize int, sigma float64) (gocv.Mat, error) {
	if filterSize < 1 {
		filterSize = 3
	}
	if filterSize%2 == 0 {
		filterSize++
	}

	acc := gocv.NewMat()
	defer acc.Close()
	blurred := gocv.NewMat()
	defer blurred.Close()

	frames := 0
	for {
		ok, _, frame := src.NextFrame()
		if !ok {
			break
		}
		gocv.GaussianBlur(frame, &blurred, image.Pt(filterSize, filterSize), sigma, sigma, gocv.BorderDefault)
		frame.Close()

		frames++
		if frames == 1 {
			blurred.ConvertTo(&acc, gocv.MatTypeCV32FC3)
			continue
		}
		// Running mean: each frame contributes 1/n once n frames are seen.
		gocv.AccumulatedWeighted(blurred, &acc, 1/float64(frames))
	}
	if frames == 0 {
		return gocv.Mat{}, fmt.Errorf("background estimation: source produced no frames")
	}

	background := gocv.NewMat()
	acc.ConvertTo(&background, gocv.MatTypeCV8UC3)
	return background, nil
}
