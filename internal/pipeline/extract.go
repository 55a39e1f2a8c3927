// Package pipeline drives the full extraction for a site: resolve the peat
// mask once per variable grid, aggregate every variable to a zonal series,
// resample to daily and annual form and persist the four aligned tables.
package pipeline

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/peatlab/peatwatch/internal/catalog"
	"github.com/peatlab/peatwatch/internal/grid"
	"github.com/peatlab/peatwatch/internal/mask"
	"github.com/peatlab/peatwatch/internal/models"
	"github.com/peatlab/peatwatch/internal/plot"
	"github.com/peatlab/peatwatch/internal/store"
	"github.com/peatlab/peatwatch/internal/timeseries"
	"github.com/peatlab/peatwatch/internal/zonal"
)

// Asset keys every variable collection exposes in the catalog.
const (
	assetData = "data"
)

// Extractor runs zonal extraction for one site against one classification
// raster.
type Extractor struct {
	Catalog  *catalog.Client
	Opener   catalog.CubeOpener
	MaxSteps int
	// PlotDir, when set, receives one PNG per variable.
	PlotDir string
	// Info, when set, replaces the generated site descriptor.
	Info *models.SiteInfo
}

// VariableResult is one variable reduced to its four persisted series.
type VariableResult struct {
	Daily          *timeseries.Series
	DailyVariance  *timeseries.Series
	Annual         *timeseries.Series
	AnnualVariance *timeseries.Series
}

// ExtractVariable opens one variable's cube, aggregates it over the
// classification mask and resamples the result.
func (e *Extractor) ExtractVariable(site string, meta models.VariableMetadata, class *grid.Grid) (*VariableResult, error) {
	href, layout, err := e.Catalog.Asset(site, meta.AssetName, assetData)
	if err != nil {
		return nil, err
	}
	data, err := e.Opener.OpenCube(href, layout)
	if err != nil {
		return nil, err
	}

	in := zonal.Input{Meta: meta, Data: data}
	rule := zonal.RuleFor(meta.VariableName)
	if rule.NeedsLayer() {
		uncHref, uncLayout, err := e.Catalog.Asset(site, meta.AssetName, meta.UncertaintyAsset)
		if err != nil {
			return nil, err
		}
		if lr, ok := rule.(zonal.LayerRule); ok && lr.Static {
			band, err := e.Opener.OpenBand(uncHref, uncLayout)
			if err != nil {
				return nil, err
			}
			in.StaticUncertainty = band.Values
		} else {
			unc, err := e.Opener.OpenCube(uncHref, uncLayout)
			if err != nil {
				return nil, err
			}
			in.Uncertainty = unc
		}
	}

	m, err := mask.FromClassification(class, data.GridDef(), true)
	if err != nil {
		return nil, err
	}

	agg := &zonal.Aggregator{Mask: m, MaxSteps: e.MaxSteps}
	result, err := agg.Aggregate(in)
	if err != nil {
		return nil, err
	}

	// Normalize acquisition timestamps to calendar dates before any
	// interpolation so sub-day jitter cannot fragment the daily index.
	mean := result.Mean.Normalize()
	variance := result.Variance.Normalize()

	return &VariableResult{
		Daily:          mean.Daily(),
		DailyVariance:  variance.Daily(),
		Annual:         mean.AnnualDaily(),
		AnnualVariance: variance.AnnualDaily(),
	}, nil
}

// Run extracts every variable, merges the per-variable series onto the union
// date index and persists the four tables plus the site descriptor. A
// variable that fails is logged and skipped; the remaining variables still
// complete.
func (e *Extractor) Run(site, aoi string, variables []models.VariableMetadata, class *grid.Grid, st *store.Store) error {
	dailyData := timeseries.NewFrame()
	dailyVariance := timeseries.NewFrame()
	annualData := timeseries.NewFrame()
	annualVariance := timeseries.NewFrame()

	processed := 0
	for _, meta := range variables {
		log.Printf("processing %s (uncertainty: %s)...", meta.AssetName, zonal.DescribeRule(meta.VariableName))

		result, err := e.ExtractVariable(site, meta, class)
		if err != nil {
			log.Printf("variable %s failed: %v", meta.VariableName, err)
			continue
		}

		dailyData.AddColumn(meta.VariableName, result.Daily)
		dailyVariance.AddColumn(meta.VariableName, result.DailyVariance)
		annualData.AddColumn(meta.VariableName, result.Annual)
		annualVariance.AddColumn(meta.VariableName, result.AnnualVariance)
		processed++

		if e.PlotDir != "" {
			name := fmt.Sprintf("%s_weighted_mean_and_uncert_%s_%s.png", meta.VariableName, site, aoi)
			path := filepath.Join(e.PlotDir, name)
			if err := plot.WriteFile(path, meta.VariableName, result.Daily, result.DailyVariance); err != nil {
				log.Printf("plot %s: %v", meta.VariableName, err)
			}
		}
	}

	if processed == 0 {
		return fmt.Errorf("pipeline: no variable produced output for site %s", site)
	}

	for table, frame := range map[string]*timeseries.Frame{
		store.TableDailyData:      dailyData,
		store.TableDailyVariance:  dailyVariance,
		store.TableAnnualData:     annualData,
		store.TableAnnualVariance: annualVariance,
	} {
		if err := st.WriteFrame(table, frame); err != nil {
			return fmt.Errorf("persist %s: %w", table, err)
		}
	}

	info := models.SiteInfo{
		Name:   fmt.Sprintf("%s (%s)", site, aoi),
		SiteID: site,
	}
	if e.Info != nil {
		info = *e.Info
	}
	if err := st.SaveSite(info, aoi); err != nil {
		return fmt.Errorf("save site descriptor: %w", err)
	}
	return nil
}

// AOIName derives the area-of-interest name from the classification raster
// path: the base filename without its extension.
func AOIName(classificationPath string) string {
	base := filepath.Base(classificationPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StoreFilename is the deterministic database name for a (site, AOI) pair.
func StoreFilename(site, aoi string) string {
	return fmt.Sprintf("time_series_%s_%s.db", site, aoi)
}
