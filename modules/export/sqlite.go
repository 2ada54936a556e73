package export

import (
	"fmt"
	"os"

	"gorm.io/driver/sqlite" // Sqlite driver based on CGO
	"gorm.io/gorm"

	"github.com/kathiravelulab/atlastrace/modules/metrics"
)

// ProbeMetricRecord is one exported per-probe metric row. Nullable metrics
// stay pointers so a zero-round probe exports as NULLs, not zeros.
type ProbeMetricRecord struct {
	gorm.Model
	ProbeID        int
	Country        string
	Continent      string
	Rounds         int
	MeanFinalHop   *float64
	MedianFinalHop *float64
	Reachability   *float64
	DistinctPaths  *int
	PathChanges    *int
}

// HopStatRecord is one exported per-hop RTT summary row.
type HopStatRecord struct {
	gorm.Model
	ProbeID   int
	HopIndex  int
	Samples   int
	MinRTT    float64
	MedianRTT float64
	MaxRTT    float64
}

// SummaryRecord is the single cross-probe row of a run.
type SummaryRecord struct {
	gorm.Model
	Probes           int
	ProbesWithRounds int
	TotalRounds      int
	MeanReachability *float64
	MeanPathChanges  *float64
}

// SQLiteExporter writes metric records into a SQLite database.
type SQLiteExporter struct {
	DbPath string
	db     *gorm.DB
}

func NewSQLiteExporter(dbPath string) *SQLiteExporter {
	return &SQLiteExporter{DbPath: dbPath}
}

func (e *SQLiteExporter) Init() error {
	// Create the sqlite file if it's not available
	if _, err := os.Stat(e.DbPath); err != nil {
		if _, err = os.Create(e.DbPath); err != nil {
			return fmt.Errorf("failed to create metrics database %s: %w", e.DbPath, err)
		}
	}

	db, err := gorm.Open(sqlite.Open(e.DbPath), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open metrics database %s: %w", e.DbPath, err)
	}

	if err := db.AutoMigrate(&ProbeMetricRecord{}, &HopStatRecord{}, &SummaryRecord{}); err != nil {
		return fmt.Errorf("failed to migrate metrics schema: %w", err)
	}

	sqlDb, err := db.DB()
	if err != nil {
		return err
	}
	// The pipeline is single-threaded; one connection avoids driver-level
	// locking entirely.
	sqlDb.SetMaxOpenConns(1)

	e.db = db
	return nil
}

func (e *SQLiteExporter) Close() error {
	sqlDb, err := e.db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}

func (e *SQLiteExporter) WriteProbeMetrics(m metrics.ProbeMetrics) error {
	record := ProbeMetricRecord{
		ProbeID:        m.ProbeID,
		Country:        m.Country,
		Continent:      m.Continent,
		Rounds:         m.Rounds,
		MeanFinalHop:   m.MeanFinalHop,
		MedianFinalHop: m.MedianFinalHop,
		Reachability:   m.Reachability,
		DistinctPaths:  m.DistinctPaths,
		PathChanges:    m.PathChanges,
	}
	if result := e.db.Create(&record); result.Error != nil {
		return result.Error
	}

	for _, hop := range m.HopRTT {
		hopRecord := HopStatRecord{
			ProbeID:   m.ProbeID,
			HopIndex:  hop.HopIndex,
			Samples:   hop.Samples,
			MinRTT:    hop.Min,
			MedianRTT: hop.Median,
			MaxRTT:    hop.Max,
		}
		if result := e.db.Create(&hopRecord); result.Error != nil {
			return result.Error
		}
	}
	return nil
}

func (e *SQLiteExporter) WriteSummary(s metrics.Summary) error {
	record := SummaryRecord{
		Probes:           s.Probes,
		ProbesWithRounds: s.ProbesWithRounds,
		TotalRounds:      s.TotalRounds,
		MeanReachability: s.MeanReachability,
		MeanPathChanges:  s.MeanPathChanges,
	}
	if result := e.db.Create(&record); result.Error != nil {
		return result.Error
	}
	return nil
}
