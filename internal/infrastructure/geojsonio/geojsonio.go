// Package geojsonio provides the file-backed FeatureIterator/FeatureWriter
// implementations cmd/processor wires into the usecase layer. The
// clustering engine itself only ever depends on the function-shaped
// contracts in internal/usecase (FeatureIterator, FeatureWriter); this
// package is the thin adapter between those and the filesystem.
package geojsonio

import (
	"bufio"
	"encoding/json"
	"os"

	"github.com/paulmach/orb/geojson"

	"github.com/russellporter/openskidata-processor/internal/usecase"
)

// OpenNDJSON opens path and returns a usecase.FeatureIterator reading one
// GeoJSON feature per line, plus a close func the caller must defer.
func OpenNDJSON(path string) (usecase.FeatureIterator, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	next := func() (*geojson.Feature, bool, error) {
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return nil, false, err
			}
			return nil, false, nil
		}
		line := scanner.Bytes()
		for len(line) == 0 {
			if !scanner.Scan() {
				return nil, false, scanner.Err()
			}
			line = scanner.Bytes()
		}
		feature, err := geojson.UnmarshalFeature(line)
		if err != nil {
			return nil, true, err
		}
		return feature, true, nil
	}

	return next, f.Close, nil
}

// CreateNDJSONWriter opens path for writing and returns a
// usecase.FeatureWriter that appends one feature per line, plus a close
// func the caller must defer.
func CreateNDJSONWriter(path string) (usecase.FeatureWriter, func() error, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	w := bufio.NewWriter(f)

	write := func(feature *geojson.Feature) error {
		encoded, err := json.Marshal(feature)
		if err != nil {
			return err
		}
		if _, err := w.Write(encoded); err != nil {
			return err
		}
		return w.WriteByte('\n')
	}

	close := func() error {
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	}

	return write, close, nil
}
