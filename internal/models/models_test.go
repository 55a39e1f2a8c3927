package models

import (
	"os"
	"path/filepath"
	"testing"
)

func TestVariableMetadata_Validate(t *testing.T) {
	tests := []struct {
		name    string
		meta    VariableMetadata
		wantErr bool
	}{
		{"valid", VariableMetadata{AssetName: "lai", VariableName: "lai", SpatialRatio: 25}, false},
		{"sub-unit ratio", VariableMetadata{VariableName: "displacement", SpatialRatio: 0.75}, false},
		{"no variable name", VariableMetadata{AssetName: "lai", SpatialRatio: 25}, true},
		{"zero ratio", VariableMetadata{VariableName: "lai"}, true},
		{"negative ratio", VariableMetadata{VariableName: "lai", SpatialRatio: -1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.meta.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultVariables(t *testing.T) {
	vars := DefaultVariables()
	if len(vars) == 0 {
		t.Fatal("no default variables")
	}
	seen := map[string]bool{}
	for _, v := range vars {
		if err := v.Validate(); err != nil {
			t.Errorf("default variable %s invalid: %v", v.VariableName, err)
		}
		if seen[v.VariableName] {
			t.Errorf("duplicate variable name %s", v.VariableName)
		}
		seen[v.VariableName] = true
	}
	for _, name := range []string{"lai", "water_level", "displacement"} {
		if !seen[name] {
			t.Errorf("default set missing %s", name)
		}
	}
}

func TestLoadSiteInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "info.json")
	content := `{
		"name": "Wandilla Swamp",
		"description": "restored peatland",
		"site_id": "wandilla",
		"default_variable_loading_name": "pristine_bog",
		"units": {"water_level": "m"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	info, err := LoadSiteInfo(path)
	if err != nil {
		t.Fatalf("LoadSiteInfo: %v", err)
	}
	if info.SiteID != "wandilla" || info.DefaultPresetName != "pristine_bog" {
		t.Errorf("info = %+v", info)
	}
	if info.Units["water_level"] != "m" {
		t.Errorf("units = %v", info.Units)
	}
}

func TestLoadSiteInfo_Invalid(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "no_id.json")
	if err := os.WriteFile(path, []byte(`{"name": "x"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadSiteInfo(path); err == nil {
		t.Error("expected error for missing site_id")
	}

	if _, err := LoadSiteInfo(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCrossRatioVariable(t *testing.T) {
	v := CrossRatioVariable("ascending")
	if v.VariableName != "cross_ratio_ascending" {
		t.Errorf("variable name = %q", v.VariableName)
	}
	if v.AssetName != "cross-ratio-ascending" {
		t.Errorf("asset name = %q", v.AssetName)
	}
	if v.SpatialRatio != 1 {
		t.Errorf("spatial ratio = %g, want 1", v.SpatialRatio)
	}
	if err := v.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
