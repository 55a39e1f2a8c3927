package zonal

import (
	"fmt"
	"math"
	"strings"
)

const (
	// ciScale95 converts a published 95% confidence-interval half-width
	// into a 1-sigma standard deviation.
	ciScale95 = 1.96

	// displacementSigma is the assumed 1-sigma uncertainty, in the
	// variable's own units, for the InSAR-derived surface displacement
	// variable, which ships without a native uncertainty product.
	displacementSigma = 2.0

	// crossRatioFraction is the assumed relative uncertainty for the
	// Sentinel-1 VH/VV cross-pol ratio: roughly 30% of the measured value
	// at 3-sigma.
	crossRatioFraction = 0.3
)

// Rule derives the per-pixel 1-sigma uncertainty for one masked pixel at one
// time step. value is the primary variable's pixel value; layer and static
// are the temporal and static uncertainty layers (either may be nil when the
// rule does not read them).
type Rule interface {
	PixelUncertainty(value float64, layer, static []float64, idx int) float64
	// NeedsLayer reports whether the rule reads a published uncertainty
	// layer, so the aggregator can fail fast when none was provided.
	NeedsLayer() bool
}

// LayerRule reads a published per-pixel uncertainty layer, optionally scaled
// by an a-priori factor. When Static is set the layer has no time dimension
// and the same band is used for every step.
type LayerRule struct {
	Scale  float64
	Static bool
}

func (r LayerRule) PixelUncertainty(_ float64, layer, static []float64, idx int) float64 {
	src := layer
	if r.Static {
		src = static
	}
	if src == nil {
		return math.NaN()
	}
	return src[idx] * r.Scale
}

func (r LayerRule) NeedsLayer() bool { return true }

// ConstantRule assumes one fixed uncertainty for every valid pixel.
type ConstantRule struct {
	Sigma float64
}

func (r ConstantRule) PixelUncertainty(value float64, _, _ []float64, _ int) float64 {
	if math.IsNaN(value) {
		return math.NaN()
	}
	return r.Sigma
}

func (r ConstantRule) NeedsLayer() bool { return false }

// FractionalRule assumes an uncertainty proportional to the pixel's own
// value.
type FractionalRule struct {
	Fraction float64
}

func (r FractionalRule) PixelUncertainty(value float64, _, _ []float64, _ int) float64 {
	return value * r.Fraction
}

func (r FractionalRule) NeedsLayer() bool { return false }

// rules is the closed per-variable uncertainty derivation table. Variables
// not listed here fall through to the cross-ratio name test and then to the
// default rule, which reads the named uncertainty layer unscaled.
var rules = map[string]Rule{
	// The published water-level confidence variable is a 95% CI half-width
	// on a static band.
	"water_level": LayerRule{Scale: ciScale95, Static: true},
	// No native uncertainty product exists for the InSAR displacement.
	"displacement": ConstantRule{Sigma: displacementSigma},
}

var defaultRule Rule = LayerRule{Scale: 1}

// RuleFor returns the uncertainty derivation rule for a variable name. The
// table is total: unknown names get the default layer-reading rule.
func RuleFor(variableName string) Rule {
	if r, ok := rules[variableName]; ok {
		return r
	}
	if strings.Contains(variableName, "cross_ratio") {
		return FractionalRule{Fraction: crossRatioFraction}
	}
	return defaultRule
}

// DescribeRule names the rule applied to a variable, for progress logging.
func DescribeRule(variableName string) string {
	switch r := RuleFor(variableName).(type) {
	case ConstantRule:
		return fmt.Sprintf("constant sigma %g", r.Sigma)
	case FractionalRule:
		return fmt.Sprintf("%g%% of pixel value", r.Fraction*100)
	case LayerRule:
		if r.Scale != 1 {
			return fmt.Sprintf("uncertainty layer scaled by %g", r.Scale)
		}
		return "uncertainty layer"
	default:
		return "unknown"
	}
}
