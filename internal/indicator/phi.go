package indicator

import (
	"math"
	"time"

	"github.com/peatlab/peatwatch/internal/timeseries"
)

// loadingEpsilon is the tolerance under which a loading counts as zero. A
// zero loading excludes its variable from both the weighted sum and the
// normalizer, so a disabled variable's NaNs cannot leak into the composite.
const loadingEpsilon = 0.001

// PresetLoading is a named, versioned loading configuration. A variable
// present in OptimalValues is scored on its absolute deviation from that
// value; a variable absent from VariableLoadings gets loading 0.
type PresetLoading struct {
	Name             string             `json:"name"`
	Description      string             `json:"description"`
	OptimalValues    map[string]float64 `json:"optimal_values"`
	VariableLoadings map[string]float64 `json:"variable_loadings"`
}

// PHI holds the per-variable z-scores and loadings and keeps the composite
// indicator series current. Every mutation recomputes downstream values
// synchronously in the same call; multi-field updates (preset application)
// recompute exactly once.
type PHI struct {
	variables map[string]*Variable
	order     []string
	loadings  map[string]float64
	presets   map[string]PresetLoading

	composite   *timeseries.Series
	subscribers []func(*timeseries.Series)
}

// NewPHI builds the indicator over the given variables. Initial loadings for
// keys without a variable are discarded; variables without a loading start
// at 0. The composite is computed once before returning.
func NewPHI(variables []*Variable, loadings map[string]float64, presets map[string]PresetLoading) *PHI {
	p := &PHI{
		variables: map[string]*Variable{},
		loadings:  map[string]float64{},
		presets:   presets,
	}
	for _, v := range variables {
		p.variables[v.Name] = v
		p.order = append(p.order, v.Name)
		p.loadings[v.Name] = 0
	}
	for id, l := range loadings {
		if _, ok := p.variables[id]; ok {
			p.loadings[id] = clampLoading(l)
		}
	}
	p.recompute()
	return p
}

func clampLoading(l float64) float64 {
	return math.Max(-1, math.Min(1, l))
}

// Variable returns the named variable, or nil.
func (p *PHI) Variable(id string) *Variable { return p.variables[id] }

// Loading returns the current loading for a variable id (0 for unknown ids).
func (p *PHI) Loading(id string) float64 { return p.loadings[id] }

// Composite returns the current indicator series.
func (p *PHI) Composite() *timeseries.Series { return p.composite }

// Subscribe registers an observer called after every recompute with the new
// composite series.
func (p *PHI) Subscribe(fn func(*timeseries.Series)) {
	p.subscribers = append(p.subscribers, fn)
}

// SetLoading updates one variable's loading, clamped to [-1, 1], and
// recomputes the composite. Unknown variable ids are a no-op.
func (p *PHI) SetLoading(id string, loading float64) {
	if _, ok := p.variables[id]; !ok {
		return
	}
	p.loadings[id] = clampLoading(loading)
	p.recompute()
}

// SetTransform updates one variable's optimal-value transform and recomputes
// its z-score and the composite. Unknown variable ids are a no-op.
func (p *PHI) SetTransform(id string, on bool, optimal float64) error {
	v, ok := p.variables[id]
	if !ok {
		return nil
	}
	if err := v.setTransform(on, optimal); err != nil {
		return err
	}
	p.recompute()
	return nil
}

// ApplyPreset applies a named preset as one atomic batch: every variable's
// transform state and loading is updated first, then the composite is
// recomputed exactly once. Observers never see a partially-applied preset.
// An unknown preset name is a silent no-op.
func (p *PHI) ApplyPreset(name string) error {
	preset, ok := p.presets[name]
	if !ok {
		return nil
	}

	for _, id := range p.order {
		v := p.variables[id]
		if optimal, ok := preset.OptimalValues[id]; ok {
			if err := v.setTransform(true, optimal); err != nil {
				return err
			}
		} else if v.transform {
			if err := v.setTransform(false, v.optimal); err != nil {
				return err
			}
		}

		if l, ok := preset.VariableLoadings[id]; ok {
			p.loadings[id] = clampLoading(l)
		} else {
			p.loadings[id] = 0
		}
	}

	p.recompute()
	return nil
}

// Presets returns the known preset names.
func (p *PHI) Presets() map[string]PresetLoading { return p.presets }

// recompute rebuilds the composite from current z-scores and loadings and
// notifies subscribers.
//
// composite[t] = sum(loading_v * z_v[t]) / sum(|loading_v|) over variables
// whose |loading| exceeds the epsilon. A date missing from any included
// variable's z-score yields NaN at that date. With every variable excluded
// the composite is an all-NaN series over a reference variable's index.
func (p *PHI) recompute() {
	var included []string
	var total float64
	for _, id := range p.order {
		if l := p.loadings[id]; math.Abs(l) > loadingEpsilon {
			included = append(included, id)
			total += math.Abs(l)
		}
	}

	if len(included) == 0 {
		p.composite = allNaN(p.referenceIndex())
		p.notify()
		return
	}

	var zs []*timeseries.Series
	for _, id := range included {
		zs = append(zs, p.variables[id].ZScore())
	}
	index := timeseries.UnionIndex(zs...)

	aligned := make([][]float64, len(zs))
	for j, z := range zs {
		aligned[j] = z.Reindex(index).Values
	}

	values := make([]float64, len(index))
	for i := range values {
		var sum float64
		for j, id := range included {
			sum += p.loadings[id] * aligned[j][i]
		}
		values[i] = sum / total
	}

	p.composite = &timeseries.Series{Times: index, Values: values}
	p.notify()
}

func (p *PHI) referenceIndex() []time.Time {
	if len(p.order) == 0 {
		return nil
	}
	return p.variables[p.order[0]].Series().Times
}

func allNaN(times []time.Time) *timeseries.Series {
	values := make([]float64, len(times))
	for i := range values {
		values[i] = math.NaN()
	}
	return &timeseries.Series{Times: append([]time.Time(nil), times...), Values: values}
}

func (p *PHI) notify() {
	for _, fn := range p.subscribers {
		fn(p.composite)
	}
}
