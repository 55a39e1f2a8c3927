package pipeline

import (
	"database/sql"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/peatlab/peatwatch/internal/catalog"
	"github.com/peatlab/peatwatch/internal/grid"
	"github.com/peatlab/peatwatch/internal/models"
	"github.com/peatlab/peatwatch/internal/store"
)

// writeCube dumps a 2x2 two-step cube asset with the given layers.
func writeCube(t *testing.T, dir, name string, layers [2][4]float64) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := fmt.Sprintf(`{
		"width": 2, "height": 2, "epsg": 32748,
		"transform": [0, 20, 0, 80, 0, -20],
		"times": ["2021-01-01T00:00:00Z", "2021-01-03T00:00:00Z"],
		"layers": [[%g, %g, %g, %g], [%g, %g, %g, %g]]
	}`,
		layers[0][0], layers[0][1], layers[0][2], layers[0][3],
		layers[1][0], layers[1][1], layers[1][2], layers[1][3])
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write cube: %v", err)
	}
	return path
}

// testCatalogServer serves one site with a single lai collection whose asset
// hrefs are local file paths.
func testCatalogServer(t *testing.T, dataPath, uncPath string) *httptest.Server {
	t.Helper()
	doc := fmt.Sprintf(`{
		"sites": {
			"wandilla": {
				"collections": {
					"lai": {
						"layout": "spatial-chunk",
						"assets": {
							"data": {"href": %q},
							"lai_std_dev": {"href": %q}
						}
					}
				}
			}
		}
	}`, dataPath, uncPath)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(doc))
	}))
	t.Cleanup(srv.Close)
	return srv
}

// fullClassification marks every pixel of the 2x2 analysis grid as peat.
func fullClassification() *grid.Grid {
	class := grid.New(2, 2, 32748, grid.Transform{0, 20, 0, 80, 0, -20})
	for i := range class.Values {
		class.Values[i] = 1
	}
	return class
}

func laiMeta() models.VariableMetadata {
	return models.VariableMetadata{
		AssetName:        "lai",
		UncertaintyAsset: "lai_std_dev",
		VariableName:     "lai",
		SpatialRatio:     1,
	}
}

func setupStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	st := store.New(db)
	if err := st.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return st
}

func TestExtractVariable(t *testing.T) {
	dir := t.TempDir()
	dataPath := writeCube(t, dir, "lai.json", [2][4]float64{{1, 2, 3, 4}, {3, 4, 5, 6}})
	uncPath := writeCube(t, dir, "lai_std.json", [2][4]float64{{0.5, 0.5, 0.5, 0.5}, {0.5, 0.5, 0.5, 0.5}})
	srv := testCatalogServer(t, dataPath, uncPath)

	e := &Extractor{Catalog: catalog.NewClient(srv.URL), Opener: catalog.FileOpener{}}
	result, err := e.ExtractVariable("wandilla", laiMeta(), fullClassification())
	if err != nil {
		t.Fatalf("ExtractVariable: %v", err)
	}

	// Two observations on 1 and 3 January: the daily series covers the gap
	// day by interpolation.
	if result.Daily.Len() != 3 {
		t.Fatalf("daily series has %d entries, want 3", result.Daily.Len())
	}
	want := []float64{2.5, 3.5, 4.5}
	for i, w := range want {
		if math.Abs(result.Daily.Values[i]-w) > 1e-9 {
			t.Errorf("daily[%d] = %v, want %v", i, result.Daily.Values[i], w)
		}
	}
	// Homogeneous weights at ratio 1: variance = (1/4) / 4 per step.
	if got := result.DailyVariance.Values[0]; math.Abs(got-1.0/16) > 1e-12 {
		t.Errorf("daily variance[0] = %v, want %v", got, 1.0/16)
	}

	// One observed year collapses to a single anchor at 31 December.
	if result.Annual.Len() != 1 {
		t.Fatalf("annual series has %d entries, want 1", result.Annual.Len())
	}
	if !result.Annual.Times[0].Equal(time.Date(2021, 12, 31, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("annual anchor = %v", result.Annual.Times[0])
	}
	if got := result.Annual.Values[0]; math.Abs(got-3.5) > 1e-9 {
		t.Errorf("annual mean = %v, want 3.5", got)
	}
}

func TestExtractVariable_UnknownCollection(t *testing.T) {
	dir := t.TempDir()
	dataPath := writeCube(t, dir, "lai.json", [2][4]float64{{1, 2, 3, 4}, {3, 4, 5, 6}})
	srv := testCatalogServer(t, dataPath, dataPath)

	e := &Extractor{Catalog: catalog.NewClient(srv.URL), Opener: catalog.FileOpener{}}
	meta := laiMeta()
	meta.AssetName = "evi"
	meta.VariableName = "evi"

	if _, err := e.ExtractVariable("wandilla", meta, fullClassification()); err == nil {
		t.Fatal("expected error for unknown collection")
	}
}

func TestRun_PersistsAndPlots(t *testing.T) {
	dir := t.TempDir()
	dataPath := writeCube(t, dir, "lai.json", [2][4]float64{{1, 2, 3, 4}, {3, 4, 5, 6}})
	uncPath := writeCube(t, dir, "lai_std.json", [2][4]float64{{0.5, 0.5, 0.5, 0.5}, {0.5, 0.5, 0.5, 0.5}})
	srv := testCatalogServer(t, dataPath, uncPath)

	plotDir := t.TempDir()
	e := &Extractor{
		Catalog: catalog.NewClient(srv.URL),
		Opener:  catalog.FileOpener{},
		PlotDir: plotDir,
	}
	st := setupStore(t)

	// The second variable has no collection in the catalog: it is skipped
	// and the run still completes.
	variables := []models.VariableMetadata{laiMeta(), models.CrossRatioVariable("ascending")}
	if err := e.Run("wandilla", "core_zone", variables, fullClassification(), st); err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := st.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	lai := data.Data.Column("lai")
	if lai == nil {
		t.Fatal("lai column not persisted")
	}
	if lai.Len() != 3 {
		t.Errorf("persisted %d daily entries, want 3", lai.Len())
	}
	if data.Data.Column("cross_ratio_ascending") != nil {
		t.Error("failed variable should not be persisted")
	}

	info, err := st.GetSite("wandilla", "core_zone")
	if err != nil {
		t.Fatalf("GetSite: %v", err)
	}
	if info == nil || info.SiteID != "wandilla" {
		t.Errorf("site descriptor = %+v", info)
	}

	plotPath := filepath.Join(plotDir, "lai_weighted_mean_and_uncert_wandilla_core_zone.png")
	if _, err := os.Stat(plotPath); err != nil {
		t.Errorf("expected plot at %s: %v", plotPath, err)
	}
}

func TestRun_AllVariablesFailed(t *testing.T) {
	dir := t.TempDir()
	dataPath := writeCube(t, dir, "lai.json", [2][4]float64{{1, 2, 3, 4}, {3, 4, 5, 6}})
	srv := testCatalogServer(t, dataPath, dataPath)

	e := &Extractor{Catalog: catalog.NewClient(srv.URL), Opener: catalog.FileOpener{}}
	st := setupStore(t)

	variables := []models.VariableMetadata{models.CrossRatioVariable("descending")}
	if err := e.Run("wandilla", "x", variables, fullClassification(), st); err == nil {
		t.Fatal("expected error when every variable fails")
	}
}

func TestAOIName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/masks/core_zone.json", "core_zone"},
		{"buffer.tif", "buffer"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		if got := AOIName(tt.path); got != tt.want {
			t.Errorf("AOIName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStoreFilename(t *testing.T) {
	if got := StoreFilename("wandilla", "core_zone"); got != "time_series_wandilla_core_zone.db" {
		t.Errorf("StoreFilename = %q", got)
	}
}
