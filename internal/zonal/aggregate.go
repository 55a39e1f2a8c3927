// Package zonal computes uncertainty-weighted zonal statistics over a pixel
// mask: one inverse-variance-weighted mean and one propagated variance per
// time step, accounting for the fact that fine analysis pixels resampled
// from a coarser native product are not independent samples.
package zonal

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/peatlab/peatwatch/internal/grid"
	"github.com/peatlab/peatwatch/internal/mask"
	"github.com/peatlab/peatwatch/internal/metrics"
	"github.com/peatlab/peatwatch/internal/models"
	"github.com/peatlab/peatwatch/internal/timeseries"
)

// ErrConfiguration marks invalid variable metadata or missing uncertainty
// inputs. It aborts the affected variable only; other variables in a batch
// continue.
var ErrConfiguration = errors.New("zonal: configuration error")

// Input is everything needed to aggregate one variable over a mask.
type Input struct {
	Meta models.VariableMetadata
	Data *grid.Cube
	// Uncertainty carries the per-time-step uncertainty layers; nil for
	// variables whose rule does not read a layer.
	Uncertainty *grid.Cube
	// StaticUncertainty is a single time-invariant uncertainty band, used
	// by rules flagged Static (e.g. the water-level confidence interval).
	StaticUncertainty []float64
}

// Result is the zonal time series for one variable: a weighted mean and its
// propagated variance per source time step. Both share one strictly-ordered
// index covering every time step in the cube, with NaN at degenerate steps.
type Result struct {
	Mean     *timeseries.Series
	Variance *timeseries.Series
}

// Aggregator reduces masked cubes to zonal time series. The same aggregator
// may be reused across variables sharing one mask.
type Aggregator struct {
	Mask *mask.Mask
	// MaxSteps bounds the number of time steps processed; 0 processes all.
	MaxSteps int
}

// Aggregate runs the weighted reduction over every time step of the cube.
//
// Per step: select masked pixels, derive per-pixel uncertainty via the
// variable's rule, weight by 1/sigma^2, discard non-finite or non-positive
// weights, then combine. A step with no surviving pixels or zero total
// weight yields (NaN, NaN) and stays in the index.
func (a *Aggregator) Aggregate(in Input) (*Result, error) {
	if err := in.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := in.Data.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := a.Mask.CheckShape(in.Data); err != nil {
		return nil, err
	}

	rule := RuleFor(in.Meta.VariableName)
	if rule.NeedsLayer() {
		lr, _ := rule.(LayerRule)
		switch {
		case lr.Static && in.StaticUncertainty == nil:
			return nil, fmt.Errorf("%w: variable %s needs a static uncertainty band", ErrConfiguration, in.Meta.VariableName)
		case !lr.Static && in.Uncertainty == nil:
			return nil, fmt.Errorf("%w: variable %s needs uncertainty layers", ErrConfiguration, in.Meta.VariableName)
		}
	}
	if in.Uncertainty != nil {
		if err := a.Mask.CheckShape(in.Uncertainty); err != nil {
			return nil, err
		}
		if len(in.Uncertainty.Times) != len(in.Data.Times) {
			return nil, fmt.Errorf("%w: variable %s: %d data steps but %d uncertainty steps",
				ErrConfiguration, in.Meta.VariableName, len(in.Data.Times), len(in.Uncertainty.Times))
		}
	}
	if in.StaticUncertainty != nil && len(in.StaticUncertainty) != in.Data.Width*in.Data.Height {
		return nil, fmt.Errorf("%w: variable %s: static uncertainty band has wrong shape", ErrConfiguration, in.Meta.VariableName)
	}

	steps := len(in.Data.Times)
	if a.MaxSteps > 0 && a.MaxSteps < steps {
		steps = a.MaxSteps
	}

	// Masked flat indices, computed once and shared by every step.
	var pixels []int
	for i, inside := range a.Mask.Inside {
		if inside {
			pixels = append(pixels, i)
		}
	}

	means := make([]float64, steps)
	variances := make([]float64, steps)

	for step := 0; step < steps; step++ {
		var layer []float64
		if in.Uncertainty != nil {
			layer = in.Uncertainty.Layers[step]
		}
		mean, variance, valid := aggregateStep(
			in.Data.Layers[step], layer, in.StaticUncertainty,
			pixels, rule, in.Meta.SpatialRatio,
		)
		means[step] = mean
		variances[step] = variance

		metrics.TimeStepsProcessed.WithLabelValues(in.Meta.VariableName).Inc()
		metrics.ValidPixelsPerStep.WithLabelValues(in.Meta.VariableName).Observe(float64(valid))
		if math.IsNaN(mean) {
			metrics.DegenerateTimeSteps.WithLabelValues(in.Meta.VariableName).Inc()
		}
	}

	meanSeries, err := timeseries.New(in.Data.Times[:steps], means)
	if err != nil {
		return nil, err
	}
	varSeries, err := timeseries.New(in.Data.Times[:steps], variances)
	if err != nil {
		return nil, err
	}
	return &Result{Mean: meanSeries, Variance: varSeries}, nil
}

// aggregateStep reduces one time step. Returns the weighted mean, the
// propagated variance and the surviving pixel count.
func aggregateStep(data, uncLayer, uncStatic []float64, pixels []int, rule Rule, spatialRatio float64) (float64, float64, int) {
	var vals, weights []float64
	for _, idx := range pixels {
		v := data[idx]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sigma := rule.PixelUncertainty(v, uncLayer, uncStatic, idx)
		w := 1.0 / (sigma * sigma)
		if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			continue
		}
		vals = append(vals, v)
		weights = append(weights, w)
	}

	if len(vals) == 0 {
		return math.NaN(), math.NaN(), 0
	}

	sumW := floats.Sum(weights)
	if sumW == 0 {
		return math.NaN(), math.NaN(), len(vals)
	}
	mean := floats.Dot(vals, weights) / sumW

	uw, counts := uniqueWeights(weights)

	if len(uw) == 1 {
		// Homogeneous: all fine pixels share one native observation
		// level, so only count/spatialRatio native pixels are
		// independent.
		variance := (1.0 / uw[0]) / (float64(counts[0]) * spatialRatio)
		return mean, variance, len(vals)
	}

	// Heterogeneous: per weight group, split the represented native-pixel
	// area into fully covered native pixels (m) and the residual partially
	// covered one (c). The partial pixel's noise enters at its fractional
	// area squared, not linearly.
	ratio2 := spatialRatio * spatialRatio
	var numerator float64
	for i, w := range uw {
		n := float64(counts[i]) / ratio2
		m := math.Floor(n) * ratio2
		c := math.Mod(n, 1) * ratio2
		numerator += (m*m + c*c) * w
	}
	variance := numerator / (sumW * sumW)
	return mean, variance, len(vals)
}

// uniqueWeights partitions weights into distinct values with counts. Pixels
// sharing a bit-identical weight are presumed to originate from the same
// coarser native pixel after resampling.
func uniqueWeights(weights []float64) ([]float64, []int) {
	sorted := make([]float64, len(weights))
	copy(sorted, weights)
	sort.Float64s(sorted)

	var uw []float64
	var counts []int
	for _, w := range sorted {
		if n := len(uw); n > 0 && uw[n-1] == w {
			counts[n-1]++
			continue
		}
		uw = append(uw, w)
		counts = append(counts, 1)
	}
	return uw, counts
}
