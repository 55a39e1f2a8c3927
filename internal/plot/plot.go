// Package plot renders a zonal time series to a PNG: the weighted-mean
// curve over a one-standard-deviation band, for quick visual inspection of
// an extraction run.
package plot

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/peatlab/peatwatch/internal/timeseries"
)

const (
	plotWidth  = 1000
	plotHeight = 500

	marginLeft   = 70
	marginRight  = 20
	marginTop    = 40
	marginBottom = 50
)

var (
	background = color.RGBA{255, 255, 255, 255}
	axisColour = color.RGBA{60, 60, 60, 255}
	lineColour = color.RGBA{31, 119, 180, 255}
	bandColour = color.RGBA{31, 119, 180, 70}
	textColour = color.RGBA{30, 30, 30, 255}
)

// Render draws the weighted-mean series with a band of ±1 standard
// deviation (sqrt of the variance series) and returns PNG bytes.
func Render(title string, mean, variance *timeseries.Series) ([]byte, error) {
	if mean.Len() == 0 {
		return nil, errors.New("plot: empty series")
	}
	if mean.Len() != variance.Len() {
		return nil, fmt.Errorf("plot: mean has %d entries, variance %d", mean.Len(), variance.Len())
	}

	img := image.NewRGBA(image.Rect(0, 0, plotWidth, plotHeight))
	fill(img, background)

	lo, hi := valueRange(mean, variance)
	if math.IsNaN(lo) {
		return nil, errors.New("plot: no finite values to draw")
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}

	t0 := mean.Times[0].Unix()
	t1 := mean.Times[mean.Len()-1].Unix()
	if t0 == t1 {
		t1 = t0 + 1
	}

	toX := func(unix int64) int {
		frac := float64(unix-t0) / float64(t1-t0)
		return marginLeft + int(frac*float64(plotWidth-marginLeft-marginRight))
	}
	toY := func(v float64) int {
		frac := (v - lo) / (hi - lo)
		return plotHeight - marginBottom - int(frac*float64(plotHeight-marginTop-marginBottom))
	}

	// ±1σ band first so the mean curve draws on top of it.
	for i := 0; i < mean.Len(); i++ {
		m, vv := mean.Values[i], variance.Values[i]
		if math.IsNaN(m) || math.IsNaN(vv) || vv < 0 {
			continue
		}
		std := math.Sqrt(vv)
		x := toX(mean.Times[i].Unix())
		yTop, yBot := toY(m+std), toY(m-std)
		for y := yTop; y <= yBot; y++ {
			blend(img, x, y, bandColour)
		}
	}

	prevSet := false
	var prevX, prevY int
	for i := 0; i < mean.Len(); i++ {
		m := mean.Values[i]
		if math.IsNaN(m) {
			prevSet = false
			continue
		}
		x, y := toX(mean.Times[i].Unix()), toY(m)
		if prevSet {
			drawLine(img, prevX, prevY, x, y, lineColour)
		}
		prevX, prevY = x, y
		prevSet = true
	}

	drawAxes(img)
	drawText(img, title, marginLeft, marginTop-15, textColour)
	drawText(img, fmt.Sprintf("%.3g", hi), 8, marginTop+6, textColour)
	drawText(img, fmt.Sprintf("%.3g", lo), 8, plotHeight-marginBottom, textColour)
	drawText(img, mean.Times[0].Format("2006-01-02"), marginLeft, plotHeight-marginBottom+20, textColour)
	end := mean.Times[mean.Len()-1].Format("2006-01-02")
	drawText(img, end, plotWidth-marginRight-7*len(end), plotHeight-marginBottom+20, textColour)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode plot: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile renders the plot and writes it to path.
func WriteFile(path, title string, mean, variance *timeseries.Series) error {
	data, err := Render(title, mean, variance)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func valueRange(mean, variance *timeseries.Series) (lo, hi float64) {
	lo, hi = math.NaN(), math.NaN()
	for i, m := range mean.Values {
		if math.IsNaN(m) {
			continue
		}
		std := 0.0
		if vv := variance.Values[i]; !math.IsNaN(vv) && vv > 0 {
			std = math.Sqrt(vv)
		}
		if math.IsNaN(lo) || m-std < lo {
			lo = m - std
		}
		if math.IsNaN(hi) || m+std > hi {
			hi = m + std
		}
	}
	return lo, hi
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// blend alpha-composites c over the existing pixel.
func blend(img *image.RGBA, x, y int, c color.RGBA) {
	if !(image.Point{x, y}).In(img.Bounds()) {
		return
	}
	orig := img.RGBAAt(x, y)
	a := float64(c.A) / 255
	orig.R = uint8(float64(c.R)*a + float64(orig.R)*(1-a))
	orig.G = uint8(float64(c.G)*a + float64(orig.G)*(1-a))
	orig.B = uint8(float64(c.B)*a + float64(orig.B)*(1-a))
	img.SetRGBA(x, y, orig)
}

func drawAxes(img *image.RGBA) {
	for x := marginLeft; x <= plotWidth-marginRight; x++ {
		img.SetRGBA(x, plotHeight-marginBottom, axisColour)
	}
	for y := marginTop; y <= plotHeight-marginBottom; y++ {
		img.SetRGBA(marginLeft, y, axisColour)
	}
}

// drawLine is Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.RGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy
	for {
		if (image.Point{x0, y0}).In(img.Bounds()) {
			img.SetRGBA(x0, y0, c)
		}
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func drawText(img *image.RGBA, text string, x, y int, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
