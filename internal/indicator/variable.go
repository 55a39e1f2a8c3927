// Package indicator combines per-variable standard anomalies into the
// composite peat health indicator (PHI) under user-adjustable signed
// loadings, with named preset configurations applied as atomic batches.
package indicator

import (
	"fmt"
	"math"

	"github.com/peatlab/peatwatch/internal/climatology"
	"github.com/peatlab/peatwatch/internal/timeseries"
)

// Mode selects the climatology form a variable is scored against.
type Mode int

const (
	ModeDaily Mode = iota
	ModeAnnual
)

// Variable is one site-level aggregated time series with its variance and
// derived products: the (optionally transformed) working series, its
// climatology envelope and its z-score.
//
// When Transform is on, the working series is |data - optimal|, which makes
// variables that are not monotonically correlated with peat health usable in
// the composite.
type Variable struct {
	Name  string
	Units string

	data     *timeseries.Series
	variance *timeseries.Series
	mode     Mode

	transform bool
	optimal   float64

	series  *timeseries.Series
	zScore  *timeseries.Series
	bounds  *climatology.Bounds
}

// NewVariable validates the input pair and derives the initial z-score and
// bounds. A zero anywhere in the variance is rejected here so later
// transform changes can never fail mid-update.
func NewVariable(name, units string, mode Mode, data, variance *timeseries.Series) (*Variable, error) {
	if data.Len() != variance.Len() {
		return nil, fmt.Errorf("indicator: variable %s: data has %d entries, variance %d", name, data.Len(), variance.Len())
	}
	for _, v := range variance.Values {
		if v == 0 {
			return nil, fmt.Errorf("indicator: variable %s: %w", name, climatology.ErrZeroVariance)
		}
	}
	v := &Variable{Name: name, Units: units, mode: mode, data: data, variance: variance}
	if err := v.recompute(); err != nil {
		return nil, err
	}
	return v, nil
}

// Transform reports the current transform state and optimal value.
func (v *Variable) Transform() (bool, float64) { return v.transform, v.optimal }

// Series returns the working time series, transformed if requested.
func (v *Variable) Series() *timeseries.Series { return v.series }

// ZScore returns the standard anomaly of the working series.
func (v *Variable) ZScore() *timeseries.Series { return v.zScore }

// ClimatologyBounds returns the mean and one-sigma envelope on the working
// series' own timestamps.
func (v *Variable) ClimatologyBounds() *climatology.Bounds { return v.bounds }

// setTransform updates the transform state and re-derives the working
// series, climatology envelope and z-score in one pass.
func (v *Variable) setTransform(on bool, optimal float64) error {
	v.transform = on
	v.optimal = optimal
	return v.recompute()
}

func (v *Variable) recompute() error {
	ts := v.data
	if v.transform {
		values := make([]float64, ts.Len())
		for i, x := range ts.Values {
			values[i] = math.Abs(x - v.optimal)
		}
		ts = &timeseries.Series{Times: ts.Times, Values: values}
	}

	switch v.mode {
	case ModeAnnual:
		clim, err := climatology.BuildAnnual(ts, v.variance)
		if err != nil {
			return fmt.Errorf("indicator: variable %s: %w", v.Name, err)
		}
		v.series = ts
		v.zScore = climatology.StandardAnomalyAnnual(ts, clim)
		v.bounds = climatology.BoundsAnnual(ts.Times, clim)
	default:
		clim, err := climatology.BuildDaily(ts, v.variance)
		if err != nil {
			return fmt.Errorf("indicator: variable %s: %w", v.Name, err)
		}
		v.series = ts
		v.zScore = climatology.StandardAnomalyDaily(ts, clim)
		v.bounds = climatology.BoundsDaily(ts.Times, clim)
	}
	return nil
}
