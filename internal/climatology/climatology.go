// Package climatology builds long-term expected cycles from daily or annual
// zonal series and derives standard anomalies and envelope bounds.
//
// The daily form bins by a leap-insensitive day-of-year in [1, 365]: 29
// February folds into day 59 and is dropped from climatology inputs, and
// later days of leap years shift back by one so that 1 March is always day
// 60. The group mean is inverse-variance weighted while the spread is the
// plain sample standard deviation of the raw values; the mismatch is the
// published behaviour and is kept as-is.
package climatology

import (
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/peatlab/peatwatch/internal/timeseries"
)

// ErrZeroVariance is returned when a climatology input contains a zero
// variance, which would divide by zero in the weighting.
var ErrZeroVariance = errors.New("climatology: variance cannot contain zeros")

// Days in the folded climatological year.
const YearDays = 365

// DayOfYear returns the leap-insensitive day of year in [1, 365].
// Both 28 and 29 February map to day 59.
func DayOfYear(t time.Time) int {
	t = t.UTC()
	doy := t.YearDay()
	if !isLeapYear(t.Year()) {
		return doy
	}
	if t.Month() > time.February {
		return doy - 1
	}
	if t.Month() == time.February && t.Day() == 29 {
		return 59
	}
	return doy
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

// Drop29Feb removes exactly the entries falling on 29 February.
func Drop29Feb(s *timeseries.Series) *timeseries.Series {
	out := &timeseries.Series{}
	for i, t := range s.Times {
		u := t.UTC()
		if u.Month() == time.February && u.Day() == 29 {
			continue
		}
		out.Times = append(out.Times, t)
		out.Values = append(out.Values, s.Values[i])
	}
	return out
}

// Daily is a 365-entry expected cycle: Mean[d-1] and Std[d-1] hold the
// statistics for day-of-year d. Days never observed hold NaN.
type Daily struct {
	Mean [YearDays]float64
	Std  [YearDays]float64
}

// Annual is the single-group form: one (mean, std) pair over all years.
type Annual struct {
	Mean float64
	Std  float64
}

// BuildDaily groups the series by leap-insensitive day-of-year and computes,
// per group, the inverse-variance-weighted mean and the sample standard
// deviation of the raw values. Entries whose value or variance is NaN are
// left out of their group. A zero anywhere in variance is ErrZeroVariance.
func BuildDaily(ts, variance *timeseries.Series) (*Daily, error) {
	if ts.Len() != variance.Len() {
		return nil, fmt.Errorf("climatology: series has %d entries, variance %d", ts.Len(), variance.Len())
	}
	for _, v := range variance.Values {
		if v == 0 {
			return nil, ErrZeroVariance
		}
	}

	ts = Drop29Feb(ts)
	variance = Drop29Feb(variance)

	groups := make([][]float64, YearDays)
	groupVars := make([][]float64, YearDays)
	for i, t := range ts.Times {
		v, vv := ts.Values[i], variance.Values[i]
		if math.IsNaN(v) || math.IsNaN(vv) {
			continue
		}
		d := DayOfYear(t) - 1
		groups[d] = append(groups[d], v)
		groupVars[d] = append(groupVars[d], vv)
	}

	c := &Daily{}
	for d := 0; d < YearDays; d++ {
		c.Mean[d], c.Std[d] = groupStats(groups[d], groupVars[d])
	}
	return c, nil
}

// BuildAnnual pools all entries into one group with the same mean and std
// formulas as the daily form.
func BuildAnnual(ts, variance *timeseries.Series) (*Annual, error) {
	if ts.Len() != variance.Len() {
		return nil, fmt.Errorf("climatology: series has %d entries, variance %d", ts.Len(), variance.Len())
	}
	for _, v := range variance.Values {
		if v == 0 {
			return nil, ErrZeroVariance
		}
	}

	var vals, vars []float64
	for i := range ts.Values {
		v, vv := ts.Values[i], variance.Values[i]
		if math.IsNaN(v) || math.IsNaN(vv) {
			continue
		}
		vals = append(vals, v)
		vars = append(vars, vv)
	}
	mean, std := groupStats(vals, vars)
	return &Annual{Mean: mean, Std: std}, nil
}

// groupStats computes the inverse-variance-weighted mean and the unweighted
// sample standard deviation of one group.
func groupStats(vals, vars []float64) (mean, std float64) {
	if len(vals) == 0 {
		return math.NaN(), math.NaN()
	}
	var num, den float64
	for i, v := range vals {
		w := 1.0 / vars[i]
		num += v * w
		den += w
	}
	mean = num / den
	if len(vals) < 2 {
		return mean, math.NaN()
	}
	return mean, stat.StdDev(vals, nil)
}

// lookup returns a group's (mean, std) for a timestamp.
func (c *Daily) lookup(t time.Time) (float64, float64) {
	d := DayOfYear(t) - 1
	return c.Mean[d], c.Std[d]
}

// StandardAnomalyDaily maps each entry to (value - mean) / std using its
// day-of-year group. Groups with NaN statistics propagate NaN.
func StandardAnomalyDaily(ts *timeseries.Series, c *Daily) *timeseries.Series {
	out := &timeseries.Series{
		Times:  append([]time.Time(nil), ts.Times...),
		Values: make([]float64, ts.Len()),
	}
	for i, t := range ts.Times {
		mean, std := c.lookup(t)
		out.Values[i] = (ts.Values[i] - mean) / std
	}
	return out
}

// StandardAnomalyAnnual maps each entry to (value - mean) / std with the
// pooled statistics.
func StandardAnomalyAnnual(ts *timeseries.Series, c *Annual) *timeseries.Series {
	out := &timeseries.Series{
		Times:  append([]time.Time(nil), ts.Times...),
		Values: make([]float64, ts.Len()),
	}
	for i := range ts.Values {
		out.Values[i] = (ts.Values[i] - c.Mean) / c.Std
	}
	return out
}

// Bounds is the mean and one-standard-deviation envelope re-indexed onto
// query timestamps.
type Bounds struct {
	Times []time.Time
	Mean  []float64
	Lower []float64
	Upper []float64
}

// BoundsDaily evaluates the climatology envelope at each query timestamp via
// its day-of-year.
func BoundsDaily(times []time.Time, c *Daily) *Bounds {
	b := newBounds(times)
	for i, t := range times {
		mean, std := c.lookup(t)
		b.Mean[i] = mean
		b.Lower[i] = mean - std
		b.Upper[i] = mean + std
	}
	return b
}

// BoundsAnnual evaluates the pooled envelope at each query timestamp.
func BoundsAnnual(times []time.Time, c *Annual) *Bounds {
	b := newBounds(times)
	for i := range times {
		b.Mean[i] = c.Mean
		b.Lower[i] = c.Mean - c.Std
		b.Upper[i] = c.Mean + c.Std
	}
	return b
}

func newBounds(times []time.Time) *Bounds {
	return &Bounds{
		Times: append([]time.Time(nil), times...),
		Mean:  make([]float64, len(times)),
		Lower: make([]float64, len(times)),
		Upper: make([]float64, len(times)),
	}
}
