// Package mask persists ROI definitions. A mask file is the ordered list of
// ROI quads for one monitored area together with a parallel list of subject
// counts per ROI. The on-disk format is private to this tool: a gzip
// compressed gob stream with a small header for format detection.
package mask

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"os"

	"github.com/cgoina/pysolo-tools/geometry"
)

// magic identifies a mask file; version gates future format changes.
const (
	magic   = "PSLMASK"
	version = 1
)

// DeserializationError reports a mask file that is missing, truncated or
// structurally invalid. Loading never partially populates the caller's ROI
// list: on error nothing is returned.
type DeserializationError struct {
	Path string
	Err  error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("cannot deserialize mask file %s: %v", e.Path, e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// payload is the serialized form. Field names are part of the format.
type payload struct {
	Magic         string
	Version       int
	Rois          []geometry.Quad
	SubjectCounts []int
}

// Save writes the ordered ROI list and the parallel subject-count list to
// path. A short subjectCounts list is padded with ones, matching the
// historical "one fly per vial" default.
func Save(path string, rois []geometry.Quad, subjectCounts []int) error {
	counts := make([]int, len(rois))
	for i := range counts {
		if i < len(subjectCounts) {
			counts[i] = subjectCounts[i]
		} else {
			counts[i] = 1
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create mask file %s: %w", path, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(payload{
		Magic:         magic,
		Version:       version,
		Rois:          rois,
		SubjectCounts: counts,
	}); err != nil {
		return fmt.Errorf("cannot encode mask file %s: %w", path, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("cannot finish mask file %s: %w", path, err)
	}
	return f.Close()
}

// Load reads a mask file and returns its ROI list and subject counts.
// It fails with a *DeserializationError on any structural problem.
func Load(path string) ([]geometry.Quad, []int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, &DeserializationError{Path: path, Err: err}
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, nil, &DeserializationError{Path: path, Err: err}
	}
	defer gz.Close()

	var p payload
	if err := gob.NewDecoder(gz).Decode(&p); err != nil {
		return nil, nil, &DeserializationError{Path: path, Err: err}
	}
	// gob tolerates trailing truncation inside gzip only rarely; the gzip
	// checksum read catches the rest.
	if _, err := io.Copy(io.Discard, gz); err != nil {
		return nil, nil, &DeserializationError{Path: path, Err: err}
	}
	if p.Magic != magic {
		return nil, nil, &DeserializationError{Path: path, Err: fmt.Errorf("bad magic %q", p.Magic)}
	}
	if p.Version != version {
		return nil, nil, &DeserializationError{Path: path, Err: fmt.Errorf("unsupported version %d", p.Version)}
	}
	if len(p.SubjectCounts) != len(p.Rois) {
		return nil, nil, &DeserializationError{
			Path: path,
			Err:  fmt.Errorf("subject counts (%d) do not match rois (%d)", len(p.SubjectCounts), len(p.Rois)),
		}
	}
	return p.Rois, p.SubjectCounts, nil
}
