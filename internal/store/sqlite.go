// Package store persists the zonal time series as four column-aligned
// tables in SQLite: daily means, daily variances, annual means and annual
// variances, all sharing one variable set and one daily date index. One
// database file corresponds to one (site, AOI) pair.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/peatlab/peatwatch/internal/models"
	"github.com/peatlab/peatwatch/internal/timeseries"
)

// Logical table names of the four aligned series tables.
const (
	TableDailyData      = "daily_data"
	TableDailyVariance  = "daily_variance"
	TableAnnualData     = "annual_data"
	TableAnnualVariance = "annual_variance"
)

var seriesTables = []string{TableDailyData, TableDailyVariance, TableAnnualData, TableAnnualVariance}

const dateLayout = "2006-01-02"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// SaveSite upserts the human-readable site descriptor.
func (s *Store) SaveSite(info models.SiteInfo, aoi string) error {
	units, err := json.Marshal(info.Units)
	if err != nil {
		return fmt.Errorf("marshal units: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO sites (site_id, aoi, name, description, default_preset, units_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(site_id, aoi) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			default_preset = excluded.default_preset,
			units_json = excluded.units_json
	`, info.SiteID, aoi, info.Name, info.Description, info.DefaultPresetName, string(units))
	return err
}

// GetSite reads the descriptor for a (site, AOI) pair. Returns nil when the
// pair is unknown.
func (s *Store) GetSite(siteID, aoi string) (*models.SiteInfo, error) {
	row := s.db.QueryRow(`
		SELECT name, description, default_preset, units_json
		FROM sites WHERE site_id = ? AND aoi = ?
	`, siteID, aoi)

	var info models.SiteInfo
	var unitsJSON string
	err := row.Scan(&info.Name, &info.Description, &info.DefaultPresetName, &unitsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	info.SiteID = siteID
	if err := json.Unmarshal([]byte(unitsJSON), &info.Units); err != nil {
		return nil, fmt.Errorf("unmarshal units: %w", err)
	}
	return &info, nil
}

// WriteFrame upserts every (date, variable) cell of a frame into one of the
// four series tables. NaN persists as NULL so missing variable-date
// combinations survive the round trip instead of being dropped.
func (s *Store) WriteFrame(table string, frame *timeseries.Frame) error {
	if err := checkTable(table); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT INTO %s (date, variable, value)
		VALUES (?, ?, ?)
		ON CONFLICT(date, variable) DO UPDATE SET value = excluded.value
	`, table))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, col := range frame.Columns {
		series := frame.Column(col)
		for i, t := range series.Times {
			var value sql.NullFloat64
			if v := series.Values[i]; !math.IsNaN(v) {
				value = sql.NullFloat64{Float64: v, Valid: true}
			}
			if _, err := stmt.Exec(t.UTC().Format(dateLayout), col, value); err != nil {
				tx.Rollback()
				return fmt.Errorf("insert %s %s %s: %w", table, col, t.Format(dateLayout), err)
			}
		}
	}

	return tx.Commit()
}

// ReadFrame reconstructs one series table as a frame on the union of its
// stored dates, NULL read back as NaN.
func (s *Store) ReadFrame(table string) (*timeseries.Frame, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(fmt.Sprintf(
		"SELECT date, variable, value FROM %s ORDER BY variable, date", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byVar := map[string]*timeseries.Series{}
	var order []string
	for rows.Next() {
		var dateStr, variable string
		var value sql.NullFloat64
		if err := rows.Scan(&dateStr, &variable, &value); err != nil {
			return nil, err
		}
		date, err := time.ParseInLocation(dateLayout, dateStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", dateStr, err)
		}
		series, ok := byVar[variable]
		if !ok {
			series = &timeseries.Series{}
			byVar[variable] = series
			order = append(order, variable)
		}
		v := math.NaN()
		if value.Valid {
			v = value.Float64
		}
		series.Times = append(series.Times, date)
		series.Values = append(series.Values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	frame := timeseries.NewFrame()
	for _, variable := range order {
		frame.AddColumn(variable, byVar[variable])
	}
	return frame, nil
}

// SiteData is the full persisted dataset for one (site, AOI) pair.
type SiteData struct {
	Data           *timeseries.Frame
	Variance       *timeseries.Frame
	AnnualData     *timeseries.Frame
	AnnualVariance *timeseries.Frame
}

// ReadAll loads and cross-validates the four series tables: all four must
// share one variable set, each data/variance pair must share one date index,
// and stored variances must be positive wherever present.
func (s *Store) ReadAll() (*SiteData, error) {
	data, err := s.ReadFrame(TableDailyData)
	if err != nil {
		return nil, err
	}
	variance, err := s.ReadFrame(TableDailyVariance)
	if err != nil {
		return nil, err
	}
	annualData, err := s.ReadFrame(TableAnnualData)
	if err != nil {
		return nil, err
	}
	annualVariance, err := s.ReadFrame(TableAnnualVariance)
	if err != nil {
		return nil, err
	}

	frames := []*timeseries.Frame{variance, annualData, annualVariance}
	for i, f := range frames {
		if !sameColumns(data.Columns, f.Columns) {
			return nil, fmt.Errorf("store: %s columns differ from %s", seriesTables[i+1], TableDailyData)
		}
	}
	if !sameDates(data.Dates, variance.Dates) {
		return nil, fmt.Errorf("store: %s and %s have different date indices", TableDailyData, TableDailyVariance)
	}
	if !sameDates(annualData.Dates, annualVariance.Dates) {
		return nil, fmt.Errorf("store: %s and %s have different date indices", TableAnnualData, TableAnnualVariance)
	}
	for _, f := range []*timeseries.Frame{variance, annualVariance} {
		for _, col := range f.Columns {
			for _, v := range f.Column(col).Values {
				if !math.IsNaN(v) && v <= 0 {
					return nil, fmt.Errorf("store: variance for %s contains non-positive value %g", col, v)
				}
			}
		}
	}

	return &SiteData{
		Data:           data,
		Variance:       variance,
		AnnualData:     annualData,
		AnnualVariance: annualVariance,
	}, nil
}

func checkTable(table string) error {
	for _, t := range seriesTables {
		if t == table {
			return nil
		}
	}
	return fmt.Errorf("store: unknown series table %q", table)
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, col := range a {
		set[col] = true
	}
	for _, col := range b {
		if !set[col] {
			return false
		}
	}
	return true
}

func sameDates(a, b []time.Time) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
