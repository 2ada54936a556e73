// Package pipeline runs the batch analysis end to end: normalize raw
// records, build the table, persist or reuse the snapshot, aggregate
// metrics. All stages execute sequentially; the table is read-only once
// built.
package pipeline

import (
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/modules/metrics"
	"github.com/kathiravelulab/atlastrace/modules/normalize"
	"github.com/kathiravelulab/atlastrace/modules/snapshot"
	"github.com/kathiravelulab/atlastrace/modules/table"
	"github.com/kathiravelulab/atlastrace/types"
)

// RawSource supplies the already-fetched raw records. Results is only
// called when the normalized table actually has to be (re)built, so a
// reused snapshot skips the raw result parse entirely.
type RawSource interface {
	Results() ([]types.TracerouteResult, error)
	ProbeHistory() ([]types.ProbeMetadata, error)
}

// Result is everything a pipeline run derives. Consumed read-only by
// visualization and export.
type Result struct {
	Table       *table.Table
	Records     []metrics.ProbeMetrics
	Summary     metrics.Summary
	Connections []metrics.ConnectionBreakdown
}

type Pipeline struct {
	cfg *types.PipelineConfig
	log *zap.SugaredLogger
}

func New(cfg *types.PipelineConfig, log *zap.SugaredLogger) *Pipeline {
	return &Pipeline{cfg: cfg, log: log}
}

// Run executes the full pipeline over the window [start, stop).
func (p *Pipeline) Run(src RawSource, start, stop int64) (*Result, error) {
	meta, err := src.ProbeHistory()
	if err != nil {
		return nil, fmt.Errorf("failed to load probe history: %w", err)
	}

	tbl, err := p.buildTable(src, meta)
	if err != nil {
		return nil, err
	}

	aggregator := metrics.NewAggregator(p.cfg.TargetAddress, p.log)
	records, summary := aggregator.Aggregate(tbl)

	return &Result{
		Table:       tbl,
		Records:     records,
		Summary:     summary,
		Connections: metrics.ConnectionAnalysis(tbl, p.cfg.TargetASN, start, stop),
	}, nil
}

// buildTable either restores the table from the snapshot or rebuilds it
// from raw records. A corrupt snapshot fails only the load path: the
// pipeline falls back to recomputation when raw records are available.
func (p *Pipeline) buildTable(src RawSource, meta []types.ProbeMetadata) (*table.Table, error) {
	store := snapshot.New(p.cfg.Snapshot.Path, p.log)

	if p.cfg.Snapshot.Reuse {
		tbl, err := p.loadSnapshot(store, meta)
		if err == nil {
			return tbl, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			p.log.Infow("no snapshot present, building table from raw records",
				"path", store.Path())
		} else {
			p.log.Warnw("snapshot unusable, rebuilding from raw records",
				"path", store.Path(),
				"error", err)
		}
	}

	results, err := src.Results()
	if err != nil {
		return nil, fmt.Errorf("failed to load raw results: %w", err)
	}

	builder := table.NewBuilder(normalize.New(p.cfg.PacketsPerHop, p.log), p.log)
	tbl := builder.Build(results, meta)

	if err := store.Save(tbl.Rows); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}
	return tbl, nil
}

func (p *Pipeline) loadSnapshot(store *snapshot.Store, meta []types.ProbeMetadata) (*table.Table, error) {
	rows, err := store.Load()
	if err != nil {
		return nil, err
	}
	tbl, err := table.FromRows(rows, meta)
	if err != nil {
		return nil, err
	}
	return tbl, nil
}
