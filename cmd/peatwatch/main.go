package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net/http"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "modernc.org/sqlite"

	"github.com/peatlab/peatwatch/internal/catalog"
	"github.com/peatlab/peatwatch/internal/models"
	"github.com/peatlab/peatwatch/internal/pipeline"
	"github.com/peatlab/peatwatch/internal/store"
)

const defaultCatalogURL = "https://s3.waw3-2.cloudferro.com/swift/v1/wpl-stac/stac/catalog.json"

func usage() {
	fmt.Printf("Usage: peatwatch [flags] <site> <classification-raster> <ascending|descending|''>\n")
	flag.PrintDefaults()
}

func main() {
	dbDir := flag.String("db-dir", ".", "directory for the output time-series database")
	plotDir := flag.String("plot-dir", "", "write per-variable PNG plots to this directory")
	maxSteps := flag.Int("max-steps", 0, "bound the number of time steps per variable (0 = all)")
	catalogURL := flag.String("catalog", defaultCatalogURL, "catalog root URL")
	siteInfoPath := flag.String("site-info", "", "site descriptor JSON to persist alongside the series")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address (empty = disabled)")
	flag.Parse()

	args := flag.Args()
	if len(args) != 2 && len(args) != 3 {
		usage()
		return
	}

	site := args[0]
	classificationPath := args[1]
	crossRatio := ""
	if len(args) == 3 {
		crossRatio = args[2]
	}
	if crossRatio != "" && crossRatio != "ascending" && crossRatio != "descending" {
		usage()
		return
	}

	if *metricsAddr != "" {
		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(*metricsAddr, nil); err != nil {
				log.Printf("metrics server: %v", err)
			}
		}()
	}

	variables := models.DefaultVariables()
	if crossRatio != "" {
		variables = append(variables, models.CrossRatioVariable(crossRatio))
	}

	opener := catalog.FileOpener{}
	class, err := opener.OpenBand(classificationPath, catalog.LayoutCOG)
	if err != nil {
		log.Fatalf("open classification raster: %v", err)
	}

	aoi := pipeline.AOIName(classificationPath)
	dbPath := filepath.Join(*dbDir, pipeline.StoreFilename(site, aoi))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	extractor := &pipeline.Extractor{
		Catalog:  catalog.NewClient(*catalogURL),
		Opener:   opener,
		MaxSteps: *maxSteps,
		PlotDir:  *plotDir,
	}
	if *siteInfoPath != "" {
		info, err := models.LoadSiteInfo(*siteInfoPath)
		if err != nil {
			log.Fatalf("load site info: %v", err)
		}
		extractor.Info = &info
	}

	log.Printf("extracting %d variables for site %s (aoi %s)", len(variables), site, aoi)
	if err := extractor.Run(site, aoi, variables, class, st); err != nil {
		log.Fatalf("extract: %v", err)
	}
	log.Printf("wrote %s", dbPath)
}
