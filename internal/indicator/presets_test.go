package indicator

import (
	"os"
	"path/filepath"
	"testing"
)

func writePreset(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write preset file: %v", err)
	}
}

func TestLoadPresetDir(t *testing.T) {
	dir := t.TempDir()
	writePreset(t, dir, "bog.json", `{
		"name": "pristine_bog",
		"description": "intact raised bog",
		"optimal_values": {"water_level": -0.05},
		"variable_loadings": {"lai": 0.8, "water_level": 1}
	}`)
	writePreset(t, dir, "fen.json", `{
		"name": "drained_fen",
		"variable_loadings": {"displacement": -0.6}
	}`)
	writePreset(t, dir, "notes.txt", "not a preset")

	presets, err := LoadPresetDir(dir)
	if err != nil {
		t.Fatalf("LoadPresetDir: %v", err)
	}
	if len(presets) != 2 {
		t.Fatalf("loaded %d presets, want 2", len(presets))
	}

	bog, ok := presets["pristine_bog"]
	if !ok {
		t.Fatal("pristine_bog not loaded")
	}
	if bog.OptimalValues["water_level"] != -0.05 {
		t.Errorf("optimal water_level = %v, want -0.05", bog.OptimalValues["water_level"])
	}
	if bog.VariableLoadings["lai"] != 0.8 {
		t.Errorf("lai loading = %v, want 0.8", bog.VariableLoadings["lai"])
	}
	if _, ok := presets["drained_fen"]; !ok {
		t.Error("drained_fen not loaded")
	}
}

func TestLoadPreset_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", `{"variable_loadings": {"lai": 0.5}}`},
		{"loading out of range", `{"name": "x", "variable_loadings": {"lai": 1.5}}`},
		{"malformed json", `{"name": `},
	}

	dir := t.TempDir()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, "preset.json")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := LoadPreset(path); err == nil {
				t.Error("expected error")
			}
		})
	}
}
