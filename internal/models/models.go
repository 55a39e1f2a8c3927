package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// ReferenceResolution is the ground sample distance, in metres, of the shared
// analysis grid that every product is resampled onto.
const ReferenceResolution = 20.0

// VariableMetadata describes one satellite-derived variable: the catalog
// asset holding the data, the asset holding its per-pixel uncertainty, the
// output column name, and the spatial ratio between the product's native
// resolution and the analysis grid.
//
// SpatialRatio is the linear scale factor: native GSD / 20 m. A ratio of 1
// means the product was never resampled, so every analysis pixel is an
// independent native observation.
type VariableMetadata struct {
	AssetName        string
	UncertaintyAsset string
	VariableName     string
	SpatialRatio     float64
}

// Validate checks the metadata invariants.
func (v VariableMetadata) Validate() error {
	if v.VariableName == "" {
		return fmt.Errorf("variable metadata for asset %q has no variable name", v.AssetName)
	}
	if v.SpatialRatio <= 0 {
		return fmt.Errorf("variable %s: spatial ratio must be positive, got %g", v.VariableName, v.SpatialRatio)
	}
	return nil
}

// DefaultVariables is the standard multi-sensor variable set processed for
// every site. Spatial ratios are native spatial resolution / 20 m.
func DefaultVariables() []VariableMetadata {
	return []VariableMetadata{
		{"lai", "lai_std_dev", "lai", 25},
		{"fpar", "fpar_std_dev", "fpar", 25},
		{"albedo", "albedo_std_dev", "albedo", 25},
		{"evi", "evi_std_dev", "evi", 50},
		{"lst-day", "lst_day_std_dev", "lst_day", 50},
		{"lst-night", "lst_night_std_dev", "lst_night", 50},
		{"lst-diurnal-range", "lst_diurnal_range_std_dev", "lst_diurnal_range", 50},
		{"surface-displacement", "surface_displacement_dev", "displacement", 0.75},
		{"water-level", "confidence_interval", "water_level", 5},
	}
}

// CrossRatioVariable returns the metadata for the Sentinel-1 cross-ratio
// variable for the given orbit direction ("ascending" or "descending").
func CrossRatioVariable(direction string) VariableMetadata {
	return VariableMetadata{
		AssetName:        fmt.Sprintf("cross-ratio-%s", direction),
		UncertaintyAsset: fmt.Sprintf("cross-ratio-%s_std_dev", direction),
		VariableName:     fmt.Sprintf("cross_ratio_%s", direction),
		SpatialRatio:     1.0,
	}
}

// SiteInfo is the human-readable sidecar descriptor persisted alongside the
// time-series store and consumed by downstream dashboards.
type SiteInfo struct {
	Name              string            `json:"name"`
	Description       string            `json:"description"`
	SiteID            string            `json:"site_id"`
	DefaultPresetName string            `json:"default_variable_loading_name"`
	Units             map[string]string `json:"units"`
}

// LoadSiteInfo reads a site descriptor sidecar file (info.json).
func LoadSiteInfo(path string) (SiteInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SiteInfo{}, fmt.Errorf("read site info %s: %w", path, err)
	}
	var info SiteInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return SiteInfo{}, fmt.Errorf("parse site info %s: %w", path, err)
	}
	if info.SiteID == "" {
		return SiteInfo{}, fmt.Errorf("site info %s has no site_id", path)
	}
	return info, nil
}
