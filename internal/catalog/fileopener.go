package catalog

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/peatlab/peatwatch/internal/grid"
)

// FileOpener is a CubeOpener over local JSON cube documents: the plain
// interchange format the pipeline consumes when real format readers
// (GeoTIFF, Zarr) have already dumped a site's data to disk. It treats the
// asset href as a filesystem path.
type FileOpener struct{}

// cubeDoc is the on-disk document. Missing samples are JSON nulls, decoded
// to NaN, since JSON has no NaN literal.
type cubeDoc struct {
	Width     int          `json:"width"`
	Height    int          `json:"height"`
	EPSG      int          `json:"epsg"`
	Transform [6]float64   `json:"transform"`
	Times     []string     `json:"times"`
	Layers    [][]*float64 `json:"layers"`
	Values    []*float64   `json:"values"`
}

func toFloats(in []*float64) []float64 {
	out := make([]float64, len(in))
	for i, p := range in {
		if p == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *p
		}
	}
	return out
}

func (FileOpener) OpenCube(href string, _ Layout) (*grid.Cube, error) {
	doc, err := readDoc(href)
	if err != nil {
		return nil, err
	}
	layers := make([][]float64, len(doc.Layers))
	for i, l := range doc.Layers {
		layers[i] = toFloats(l)
	}
	times := make([]time.Time, len(doc.Times))
	for i, s := range doc.Times {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("cube %s: parse time %q: %w", href, s, err)
		}
		times[i] = t
	}
	c := &grid.Cube{
		Width:     doc.Width,
		Height:    doc.Height,
		EPSG:      doc.EPSG,
		Transform: grid.Transform(doc.Transform),
		Times:     times,
		Layers:    layers,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("cube %s: %w", href, err)
	}
	return c, nil
}

func (FileOpener) OpenBand(href string, _ Layout) (*grid.Grid, error) {
	doc, err := readDoc(href)
	if err != nil {
		return nil, err
	}
	if len(doc.Values) != doc.Width*doc.Height {
		return nil, fmt.Errorf("band %s: %d samples for %dx%d grid", href, len(doc.Values), doc.Width, doc.Height)
	}
	return &grid.Grid{
		Width:     doc.Width,
		Height:    doc.Height,
		EPSG:      doc.EPSG,
		Transform: grid.Transform(doc.Transform),
		Values:    toFloats(doc.Values),
	}, nil
}

func readDoc(href string) (*cubeDoc, error) {
	data, err := os.ReadFile(href)
	if err != nil {
		return nil, fmt.Errorf("open asset %s: %w", href, err)
	}
	var doc cubeDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse asset %s: %w", href, err)
	}
	return &doc, nil
}
