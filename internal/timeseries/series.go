// Package timeseries provides the timestamp-indexed series and frame types
// used between the zonal aggregator, the persisted store and the climatology
// engine, plus daily and annual resampling.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Series is a pair of aligned slices: strictly-increasing unique timestamps
// and their values. NaN marks missing observations and is carried, never
// dropped.
type Series struct {
	Times  []time.Time
	Values []float64
}

// New builds a Series from parallel slices, sorting by time. Duplicate
// timestamps keep the first occurrence.
func New(times []time.Time, values []float64) (*Series, error) {
	if len(times) != len(values) {
		return nil, fmt.Errorf("timeseries: %d timestamps but %d values", len(times), len(values))
	}
	idx := make([]int, len(times))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return times[idx[a]].Before(times[idx[b]]) })

	s := &Series{}
	for _, i := range idx {
		n := len(s.Times)
		if n > 0 && s.Times[n-1].Equal(times[i]) {
			continue
		}
		s.Times = append(s.Times, times[i])
		s.Values = append(s.Values, values[i])
	}
	return s, nil
}

// Len returns the number of entries.
func (s *Series) Len() int { return len(s.Times) }

// Date truncates a timestamp to midnight UTC.
func Date(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Normalize truncates every timestamp to its calendar date so that sub-day
// acquisition jitter cannot fragment the daily index. Duplicate dates keep
// the first observation.
func (s *Series) Normalize() *Series {
	out := &Series{}
	for i, t := range s.Times {
		d := Date(t)
		n := len(out.Times)
		if n > 0 && out.Times[n-1].Equal(d) {
			continue
		}
		out.Times = append(out.Times, d)
		out.Values = append(out.Values, s.Values[i])
	}
	return out
}

// Daily linearly interpolates the series onto a contiguous daily calendar
// index spanning the observed extent. Gaps between finite observations are
// bridged; the series is never extrapolated, so days before the first or
// after the last finite observation stay NaN.
func (s *Series) Daily() *Series {
	if s.Len() == 0 {
		return &Series{}
	}
	start := Date(s.Times[0])
	end := Date(s.Times[s.Len()-1])

	var dates []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return s.interpolateOn(dates)
}

// interpolateOn evaluates the series at the given dates by linear
// interpolation between its finite observations.
func (s *Series) interpolateOn(dates []time.Time) *Series {
	var obsT []float64
	var obsV []float64
	for i, v := range s.Values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			obsT = append(obsT, float64(s.Times[i].Unix()))
			obsV = append(obsV, v)
		}
	}

	values := make([]float64, len(dates))
	for i, d := range dates {
		values[i] = interp(obsT, obsV, float64(d.Unix()))
	}
	return &Series{Times: dates, Values: values}
}

// interp evaluates piecewise-linear interpolation of (xs, ys) at x. Outside
// the observed range the result is NaN.
func interp(xs, ys []float64, x float64) float64 {
	if len(xs) == 0 || x < xs[0] || x > xs[len(xs)-1] {
		return math.NaN()
	}
	j := sort.SearchFloat64s(xs, x)
	if j < len(xs) && xs[j] == x {
		return ys[j]
	}
	lo, hi := j-1, j
	frac := (x - xs[lo]) / (xs[hi] - xs[lo])
	return ys[lo] + frac*(ys[hi]-ys[lo])
}

// AnnualDaily aggregates the series to one arithmetic-mean value per
// calendar year, anchored at 31 December, and linearly re-interpolates the
// annual anchors back onto a daily index. The annual value is a plain mean
// of the year's finite entries; it is not re-weighted by variance, matching
// the published behaviour of the reference time series.
func (s *Series) AnnualDaily() *Series {
	if s.Len() == 0 {
		return &Series{}
	}

	type acc struct {
		sum   float64
		count int
	}
	byYear := map[int]*acc{}
	minYear, maxYear := s.Times[0].UTC().Year(), s.Times[s.Len()-1].UTC().Year()
	for i, t := range s.Times {
		y := t.UTC().Year()
		a := byYear[y]
		if a == nil {
			a = &acc{}
			byYear[y] = a
		}
		if v := s.Values[i]; !math.IsNaN(v) {
			a.sum += v
			a.count++
		}
	}

	annual := &Series{}
	for y := minYear; y <= maxYear; y++ {
		anchor := time.Date(y, 12, 31, 0, 0, 0, 0, time.UTC)
		v := math.NaN()
		if a := byYear[y]; a != nil && a.count > 0 {
			v = a.sum / float64(a.count)
		}
		annual.Times = append(annual.Times, anchor)
		annual.Values = append(annual.Values, v)
	}
	return annual.Daily()
}

// UnionIndex returns the sorted union of the date indices of all series.
func UnionIndex(series ...*Series) []time.Time {
	seen := map[time.Time]bool{}
	var dates []time.Time
	for _, s := range series {
		if s == nil {
			continue
		}
		for _, t := range s.Times {
			if !seen[t] {
				seen[t] = true
				dates = append(dates, t)
			}
		}
	}
	sort.Slice(dates, func(a, b int) bool { return dates[a].Before(dates[b]) })
	return dates
}

// Reindex places the series onto a new index. Dates the series did not
// observe become NaN; no values are dropped or interpolated.
func (s *Series) Reindex(dates []time.Time) *Series {
	lookup := make(map[time.Time]float64, s.Len())
	for i, t := range s.Times {
		lookup[t] = s.Values[i]
	}
	values := make([]float64, len(dates))
	for i, d := range dates {
		if v, ok := lookup[d]; ok {
			values[i] = v
		} else {
			values[i] = math.NaN()
		}
	}
	out := make([]time.Time, len(dates))
	copy(out, dates)
	return &Series{Times: out, Values: values}
}
