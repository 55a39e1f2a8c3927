package catalog

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeAsset(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write asset: %v", err)
	}
	return path
}

func TestFileOpener_OpenCube(t *testing.T) {
	path := writeAsset(t, "lai.json", `{
		"width": 2, "height": 1, "epsg": 32748,
		"transform": [0, 20, 0, 80, 0, -20],
		"times": ["2021-01-01T00:00:00Z", "2021-01-02T00:00:00Z"],
		"layers": [[0.5, null], [null, 1.5]]
	}`)

	c, err := FileOpener{}.OpenCube(path, LayoutSpatialChunk)
	if err != nil {
		t.Fatalf("OpenCube: %v", err)
	}
	if c.Width != 2 || c.Height != 1 || c.EPSG != 32748 {
		t.Errorf("shape = %dx%d epsg %d", c.Width, c.Height, c.EPSG)
	}
	if !c.Times[0].Equal(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("times = %v", c.Times)
	}
	if c.At(0, 0, 0) != 0.5 || !math.IsNaN(c.At(0, 0, 1)) {
		t.Errorf("layer 0 = %v", c.Layers[0])
	}
	if !math.IsNaN(c.At(1, 0, 0)) || c.At(1, 0, 1) != 1.5 {
		t.Errorf("layer 1 = %v", c.Layers[1])
	}
}

func TestFileOpener_OpenCubeInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"layer shape mismatch", `{
			"width": 2, "height": 1,
			"times": ["2021-01-01T00:00:00Z"],
			"layers": [[1]]
		}`},
		{"layer count mismatch", `{
			"width": 1, "height": 1,
			"times": ["2021-01-01T00:00:00Z", "2021-01-02T00:00:00Z"],
			"layers": [[1]]
		}`},
		{"bad timestamp", `{
			"width": 1, "height": 1,
			"times": ["yesterday"],
			"layers": [[1]]
		}`},
		{"malformed json", `{"width": `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeAsset(t, "bad.json", tt.content)
			if _, err := (FileOpener{}).OpenCube(path, LayoutSpatialChunk); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFileOpener_OpenBand(t *testing.T) {
	path := writeAsset(t, "class.json", `{
		"width": 2, "height": 2, "epsg": 32748,
		"transform": [0, 20, 0, 80, 0, -20],
		"values": [1, 0, null, 1]
	}`)

	g, err := FileOpener{}.OpenBand(path, LayoutCOG)
	if err != nil {
		t.Fatalf("OpenBand: %v", err)
	}
	if g.At(0, 0) != 1 || g.At(0, 1) != 0 {
		t.Errorf("row 0 = %v", g.Values[:2])
	}
	if !math.IsNaN(g.At(1, 0)) || g.At(1, 1) != 1 {
		t.Errorf("row 1 = %v", g.Values[2:])
	}
}

func TestFileOpener_OpenBandWrongShape(t *testing.T) {
	path := writeAsset(t, "short.json", `{
		"width": 2, "height": 2,
		"values": [1, 0]
	}`)
	if _, err := (FileOpener{}).OpenBand(path, LayoutCOG); err == nil {
		t.Fatal("expected error for undersized band")
	}
}

func TestFileOpener_MissingFile(t *testing.T) {
	if _, err := (FileOpener{}).OpenCube(filepath.Join(t.TempDir(), "absent.json"), LayoutCOG); err == nil {
		t.Fatal("expected error for missing file")
	}
}
