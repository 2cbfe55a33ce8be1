// Command maskmaker generates a vial-grid mask file for one of the four
// canonical plate regions of the standard acquisition rig.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/cgoina/pysolo-tools/mask"
)

var (
	maskFile = flag.String("mask-file", "", "Output mask file (required)")
	region   = flag.String("region", "", "Plate region: upper_left, lower_left, upper_right, lower_right")
)

// Measured vial grids of the four plate regions, one row of 14 vials each.
var regions = map[string]mask.GridParams{
	"upper_left": {
		Rows: 1, Cols: 14,
		X1: 191.5, XSpan: 8, XGap: 3.75,
		Y1: 205, YLen: 50, YSep: 2,
	},
	"lower_left": {
		Rows: 1, Cols: 14,
		X1: 194, XSpan: 8, XGap: 3.75,
		Y1: 298, YLen: 50, YSep: 2,
	},
	"upper_right": {
		Rows: 1, Cols: 14,
		X1: 376, XSpan: 7.75, XGap: 4.2,
		Y1: 206, YLen: 50, YSep: 2,
	},
	"lower_right": {
		Rows: 1, Cols: 14,
		X1: 379, XSpan: 7.7, XGap: 4.1,
		Y1: 300, YLen: 50, YSep: 2,
	},
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "maskmaker: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if *maskFile == "" {
		return fmt.Errorf("missing -mask-file")
	}
	params, ok := regions[*region]
	if !ok {
		return fmt.Errorf("unknown region %q, expected one of upper_left, lower_left, upper_right, lower_right", *region)
	}
	rois := mask.Grid(params)
	counts := make([]int, len(rois))
	for i := range counts {
		counts[i] = 1
	}
	if err := mask.Save(*maskFile, rois, counts); err != nil {
		return err
	}
	fmt.Printf("wrote %d rois to %s\n", len(rois), *maskFile)
	return nil
}
