package plot

import (
	"bytes"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peatlab/peatwatch/internal/timeseries"
)

func testSeries(t *testing.T, values, variances []float64) (*timeseries.Series, *timeseries.Series) {
	t.Helper()
	times := make([]time.Time, len(values))
	for i := range times {
		times[i] = time.Date(2021, 1, 1+i, 0, 0, 0, 0, time.UTC)
	}
	mean, err := timeseries.New(times, values)
	if err != nil {
		t.Fatalf("mean series: %v", err)
	}
	variance, err := timeseries.New(times, variances)
	if err != nil {
		t.Fatalf("variance series: %v", err)
	}
	return mean, variance
}

func TestRender(t *testing.T) {
	mean, variance := testSeries(t,
		[]float64{1, 2, math.NaN(), 4, 3},
		[]float64{0.1, 0.2, math.NaN(), 0.1, 0.3},
	)

	data, err := Render("lai", mean, variance)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode rendered PNG: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 1000 || b.Dy() != 500 {
		t.Errorf("image is %dx%d, want 1000x500", b.Dx(), b.Dy())
	}
}

func TestRender_FlatSeries(t *testing.T) {
	// A constant series would give a degenerate value range; Render must
	// still produce an image.
	mean, variance := testSeries(t, []float64{2, 2, 2}, []float64{0, 0, 0})
	if _, err := Render("flat", mean, variance); err != nil {
		t.Fatalf("Render: %v", err)
	}
}

func TestRender_Errors(t *testing.T) {
	empty := &timeseries.Series{}
	if _, err := Render("x", empty, empty); err == nil {
		t.Error("expected error for empty series")
	}

	mean, _ := testSeries(t, []float64{1, 2}, []float64{1, 1})
	short, _ := testSeries(t, []float64{1}, []float64{1})
	if _, err := Render("x", mean, short); err == nil {
		t.Error("expected error for length mismatch")
	}

	nan := math.NaN()
	allNaN, allNaNVar := testSeries(t, []float64{nan, nan}, []float64{nan, nan})
	if _, err := Render("x", allNaN, allNaNVar); err == nil {
		t.Error("expected error for all-NaN series")
	}
}

func TestWriteFile(t *testing.T) {
	mean, variance := testSeries(t, []float64{1, 2, 3}, []float64{0.1, 0.1, 0.1})
	path := filepath.Join(t.TempDir(), "lai.png")

	if err := WriteFile(path, "lai", mean, variance); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() == 0 {
		t.Error("wrote an empty file")
	}
}
