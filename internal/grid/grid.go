// Package grid holds the in-memory raster types shared by the mask resolver
// and the zonal aggregator. Samples are float64 with NaN as nodata.
package grid

import (
	"fmt"
	"math"
	"time"
)

// Transform is a GDAL-style affine geotransform:
// x = t[0] + col*t[1] + row*t[2]
// y = t[3] + col*t[4] + row*t[5]
type Transform [6]float64

// PixelOrigin returns the map coordinates of the upper-left corner of the
// pixel at (row, col).
func (t Transform) PixelOrigin(row, col int) (x, y float64) {
	x = t[0] + float64(col)*t[1] + float64(row)*t[2]
	y = t[3] + float64(col)*t[4] + float64(row)*t[5]
	return x, y
}

// PixelCenter returns the map coordinates of the centre of the pixel at
// (row, col). Assumes a north-up transform (no rotation terms).
func (t Transform) PixelCenter(row, col int) (x, y float64) {
	x = t[0] + (float64(col)+0.5)*t[1]
	y = t[3] + (float64(row)+0.5)*t[5]
	return x, y
}

// Index maps a map coordinate to the (row, col) of the pixel containing it.
// Assumes a north-up transform.
func (t Transform) Index(x, y float64) (row, col int) {
	col = int(math.Floor((x - t[0]) / t[1]))
	row = int(math.Floor((y - t[3]) / t[5]))
	return row, col
}

// Grid is a single 2-D band of float64 samples in row-major order.
type Grid struct {
	Width     int
	Height    int
	EPSG      int
	Transform Transform
	Values    []float64
}

// New allocates a Grid of the given shape filled with NaN.
func New(width, height, epsg int, tr Transform) *Grid {
	values := make([]float64, width*height)
	for i := range values {
		values[i] = math.NaN()
	}
	return &Grid{Width: width, Height: height, EPSG: epsg, Transform: tr, Values: values}
}

func (g *Grid) At(row, col int) float64 {
	return g.Values[row*g.Width+col]
}

func (g *Grid) Set(row, col int, v float64) {
	g.Values[row*g.Width+col] = v
}

// SameShape reports whether two grids have identical (y, x) dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// AlignedWith reports whether two grids share shape, CRS and geotransform.
func (g *Grid) AlignedWith(o *Grid) bool {
	return g.SameShape(o) && g.EPSG == o.EPSG && g.Transform == o.Transform
}

// Cube is a (time, y, x) stack of bands sharing one grid definition.
// Layers[i] is the row-major band observed at Times[i].
type Cube struct {
	Width     int
	Height    int
	EPSG      int
	Transform Transform
	Times     []time.Time
	Layers    [][]float64
}

// NewCube allocates a cube with NaN-filled layers, one per timestamp.
func NewCube(width, height, epsg int, tr Transform, times []time.Time) *Cube {
	layers := make([][]float64, len(times))
	for i := range layers {
		layer := make([]float64, width*height)
		for j := range layer {
			layer[j] = math.NaN()
		}
		layers[i] = layer
	}
	ts := make([]time.Time, len(times))
	copy(ts, times)
	return &Cube{Width: width, Height: height, EPSG: epsg, Transform: tr, Times: ts, Layers: layers}
}

func (c *Cube) At(step, row, col int) float64 {
	return c.Layers[step][row*c.Width+col]
}

func (c *Cube) Set(step, row, col int, v float64) {
	c.Layers[step][row*c.Width+col] = v
}

// GridDef returns the cube's spatial definition as a Grid with no samples,
// for alignment checks against masks and single bands.
func (c *Cube) GridDef() *Grid {
	return &Grid{Width: c.Width, Height: c.Height, EPSG: c.EPSG, Transform: c.Transform}
}

// Validate checks the cube invariants: layer count matches timestamps and
// every layer matches the declared shape.
func (c *Cube) Validate() error {
	if len(c.Layers) != len(c.Times) {
		return fmt.Errorf("cube has %d layers but %d timestamps", len(c.Layers), len(c.Times))
	}
	want := c.Width * c.Height
	for i, layer := range c.Layers {
		if len(layer) != want {
			return fmt.Errorf("layer %d has %d samples, want %d", i, len(layer), want)
		}
	}
	return nil
}
