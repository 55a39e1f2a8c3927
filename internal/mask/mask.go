// Package mask resolves a peat-extent pixel mask from either a categorical
// classification raster or a vector geometry, aligned to a target grid.
package mask

import (
	"errors"
	"fmt"
	"math"

	"github.com/peatlab/peatwatch/internal/grid"
)

// Class code marking an in-zone (peatland) pixel in classification rasters.
const insideClass = 1.0

var (
	// ErrShapeMismatch is returned when a mask and a data grid disagree on
	// (y, x) shape or alignment. This is a caller error, never coerced.
	ErrShapeMismatch = errors.New("mask: shape mismatch with target grid")

	// ErrCRSMismatch is returned when a geometry cannot be placed on the
	// target grid because their coordinate reference systems differ.
	ErrCRSMismatch = errors.New("mask: geometry CRS does not match grid CRS")
)

// Mask marks the pixels that belong to the zone of interest. It is derived
// once per (source, target-grid) pair and immutable afterwards.
type Mask struct {
	Width  int
	Height int
	Inside []bool
}

// At reports whether the pixel at (row, col) is inside the zone.
func (m *Mask) At(row, col int) bool {
	return m.Inside[row*m.Width+col]
}

// Count returns the number of in-zone pixels.
func (m *Mask) Count() int {
	n := 0
	for _, in := range m.Inside {
		if in {
			n++
		}
	}
	return n
}

// CheckShape verifies the mask matches a cube's (y, x) shape.
func (m *Mask) CheckShape(c *grid.Cube) error {
	if m.Width != c.Width || m.Height != c.Height {
		return fmt.Errorf("%w: mask %dx%d, cube %dx%d",
			ErrShapeMismatch, m.Width, m.Height, c.Width, c.Height)
	}
	return nil
}

// FromClassification builds a mask from a categorical classification raster.
// A pixel is in-zone iff its class value equals 1; nodata and every other
// class are excluded.
//
// When resample is true the classification is snapped onto the target grid
// with nearest-neighbour sampling. Nearest-neighbour is required here: any
// interpolating method would blend category codes into meaningless values.
// When resample is false the classification must already be aligned with the
// target grid.
func FromClassification(class, target *grid.Grid, resample bool) (*Mask, error) {
	m := &Mask{
		Width:  target.Width,
		Height: target.Height,
		Inside: make([]bool, target.Width*target.Height),
	}

	if !resample {
		if !class.AlignedWith(target) {
			return nil, fmt.Errorf("%w: classification not aligned and resample disabled", ErrShapeMismatch)
		}
		for i, v := range class.Values {
			m.Inside[i] = v == insideClass
		}
		return m, nil
	}

	if class.EPSG != target.EPSG {
		return nil, fmt.Errorf("%w: classification EPSG %d, target EPSG %d (reproject first)",
			ErrCRSMismatch, class.EPSG, target.EPSG)
	}

	for row := 0; row < target.Height; row++ {
		for col := 0; col < target.Width; col++ {
			x, y := target.Transform.PixelCenter(row, col)
			srow, scol := class.Transform.Index(x, y)
			if srow < 0 || srow >= class.Height || scol < 0 || scol >= class.Width {
				continue
			}
			if class.At(srow, scol) == insideClass {
				m.Inside[row*m.Width+col] = true
			}
		}
	}
	return m, nil
}

// Point is a map coordinate in the geometry's CRS.
type Point struct {
	X float64
	Y float64
}

// Geometry is one or more closed polygon rings in a single CRS. Rings need
// not repeat their first vertex.
type Geometry struct {
	EPSG  int
	Rings [][]Point
}

// FromGeometry rasterizes a geometry onto the target grid. Every pixel
// touched by the geometry counts as in-zone, not just pixels whose centre
// falls inside it; small zones keep their edge pixels this way.
//
// The geometry must already be in the grid's CRS; reprojection belongs to an
// upstream collaborator and a mismatch is ErrCRSMismatch.
func FromGeometry(target *grid.Grid, geom Geometry) (*Mask, error) {
	if geom.EPSG != target.EPSG {
		return nil, fmt.Errorf("%w: geometry EPSG %d, grid EPSG %d", ErrCRSMismatch, geom.EPSG, target.EPSG)
	}
	if len(geom.Rings) == 0 {
		return nil, errors.New("mask: geometry has no rings")
	}

	m := &Mask{
		Width:  target.Width,
		Height: target.Height,
		Inside: make([]bool, target.Width*target.Height),
	}

	for row := 0; row < target.Height; row++ {
		for col := 0; col < target.Width; col++ {
			x0, y0 := target.Transform.PixelOrigin(row, col)
			x1, y1 := target.Transform.PixelOrigin(row+1, col+1)
			if pixelTouched(geom.Rings, x0, y0, x1, y1) {
				m.Inside[row*m.Width+col] = true
			}
		}
	}
	return m, nil
}

// pixelTouched reports whether the pixel rectangle spanning the two corners
// touches any ring: either its centre lies inside a ring, or a ring edge
// crosses the rectangle.
func pixelTouched(rings [][]Point, x0, y0, x1, y1 float64) bool {
	minX, maxX := math.Min(x0, x1), math.Max(x0, x1)
	minY, maxY := math.Min(y0, y1), math.Max(y0, y1)

	cx := (minX + maxX) / 2
	cy := (minY + maxY) / 2

	for _, ring := range rings {
		if len(ring) < 3 {
			continue
		}
		if pointInRing(ring, cx, cy) {
			return true
		}
		for i := range ring {
			a := ring[i]
			b := ring[(i+1)%len(ring)]
			if segmentIntersectsRect(a, b, minX, minY, maxX, maxY) {
				return true
			}
		}
	}
	return false
}

// pointInRing is the even-odd ray-casting test.
func pointInRing(ring []Point, x, y float64) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		pi, pj := ring[i], ring[j]
		if (pi.Y > y) != (pj.Y > y) {
			xCross := (pj.X-pi.X)*(y-pi.Y)/(pj.Y-pi.Y) + pi.X
			if x < xCross {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

func segmentIntersectsRect(a, b Point, minX, minY, maxX, maxY float64) bool {
	if pointInRect(a, minX, minY, maxX, maxY) || pointInRect(b, minX, minY, maxX, maxY) {
		return true
	}
	corners := [4]Point{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}}
	for i := 0; i < 4; i++ {
		if segmentsCross(a, b, corners[i], corners[(i+1)%4]) {
			return true
		}
	}
	return false
}

func pointInRect(p Point, minX, minY, maxX, maxY float64) bool {
	return p.X >= minX && p.X <= maxX && p.Y >= minY && p.Y <= maxY
}

func segmentsCross(p1, p2, p3, p4 Point) bool {
	d1 := cross(p3, p4, p1)
	d2 := cross(p3, p4, p2)
	d3 := cross(p1, p2, p3)
	d4 := cross(p1, p2, p4)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	return d1 == 0 && onSegment(p3, p4, p1) ||
		d2 == 0 && onSegment(p3, p4, p2) ||
		d3 == 0 && onSegment(p1, p2, p3) ||
		d4 == 0 && onSegment(p1, p2, p4)
}

func cross(a, b, c Point) float64 {
	return (b.X-a.X)*(c.Y-a.Y) - (b.Y-a.Y)*(c.X-a.X)
}

func onSegment(a, b, p Point) bool {
	return math.Min(a.X, b.X) <= p.X && p.X <= math.Max(a.X, b.X) &&
		math.Min(a.Y, b.Y) <= p.Y && p.Y <= math.Max(a.Y, b.Y)
}
