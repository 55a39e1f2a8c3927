package indicator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadPresetDir reads every *.json preset loading file in a directory and
// returns them keyed by preset name. Loadings outside [-1, 1] are rejected.
func LoadPresetDir(dir string) (map[string]PresetLoading, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read preset dir: %w", err)
	}

	presets := map[string]PresetLoading{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		preset, err := LoadPreset(path)
		if err != nil {
			return nil, err
		}
		presets[preset.Name] = preset
	}
	return presets, nil
}

// LoadPreset reads and validates one preset loading file.
func LoadPreset(path string) (PresetLoading, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PresetLoading{}, fmt.Errorf("read preset %s: %w", path, err)
	}
	var preset PresetLoading
	if err := json.Unmarshal(data, &preset); err != nil {
		return PresetLoading{}, fmt.Errorf("parse preset %s: %w", path, err)
	}
	if preset.Name == "" {
		return PresetLoading{}, fmt.Errorf("preset %s has no name", path)
	}
	for id, l := range preset.VariableLoadings {
		if l < -1 || l > 1 {
			return PresetLoading{}, fmt.Errorf("preset %s: loading for %s is %g, want [-1, 1]", preset.Name, id, l)
		}
	}
	return preset, nil
}
