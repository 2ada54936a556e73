// Package table assembles normalized rows from every probe and round into
// one ordered dataset joined with probe metadata.
package table

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/modules/normalize"
	"github.com/kathiravelulab/atlastrace/types"
)

// Table is the normalized dataset handed to the aggregator and the snapshot
// store. Rows are grouped by probe ID, then round time ascending, then hop
// and packet order as produced by the normalizer. Meta is the probe roster:
// it also lists probes that contributed no rows, so downstream consumers
// always see the complete probe set. Read-only once built.
type Table struct {
	Rows []normalize.Row
	Meta map[int]types.ProbeMetadata
}

// ProbeIDs returns the roster in ascending order: every probe that appears
// in the rows or in the metadata.
func (t *Table) ProbeIDs() []int {
	seen := make(map[int]struct{}, len(t.Meta))
	for id := range t.Meta {
		seen[id] = struct{}{}
	}
	for _, row := range t.Rows {
		seen[row.ProbeID] = struct{}{}
	}

	ids := make([]int, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// MetaFor returns the metadata joined to a probe, substituting "unknown"
// location fields when none was supplied. Incomplete metadata never shrinks
// the dataset.
func (t *Table) MetaFor(probeID int) types.ProbeMetadata {
	if meta, ok := t.Meta[probeID]; ok {
		if meta.Country == "" {
			meta.Country = types.UnknownLocation
		}
		if meta.Continent == "" {
			meta.Continent = types.UnknownLocation
		}
		return meta
	}
	return types.ProbeMetadata{
		ID:        probeID,
		Country:   types.UnknownLocation,
		Continent: types.UnknownLocation,
	}
}

// RowsFor returns the contiguous row slice of one probe. Rows are grouped
// by probe, so a single scan suffices.
func (t *Table) RowsFor(probeID int) []normalize.Row {
	start := sort.Search(len(t.Rows), func(i int) bool { return t.Rows[i].ProbeID >= probeID })
	end := start
	for end < len(t.Rows) && t.Rows[end].ProbeID == probeID {
		end++
	}
	return t.Rows[start:end]
}

// Builder collects traceroute results, resolves duplicate rounds and builds
// the final ordered table.
type Builder struct {
	normalizer *normalize.Normalizer
	log        *zap.SugaredLogger
}

func NewBuilder(normalizer *normalize.Normalizer, log *zap.SugaredLogger) *Builder {
	return &Builder{normalizer: normalizer, log: log}
}

type roundKey struct {
	probeID   int
	roundTime int64
}

// Build normalizes every result, joins the probe metadata and returns the
// ordered table. Duplicate (probe, round time) pairs keep the later
// supplied result; each duplicate is logged exactly once. An empty result
// set is not an error and yields a table with an empty row section.
func (b *Builder) Build(results []types.TracerouteResult, meta []types.ProbeMetadata) *Table {
	deduped := make(map[roundKey]types.TracerouteResult, len(results))
	order := make([]roundKey, 0, len(results))
	for _, result := range results {
		key := roundKey{probeID: result.ProbeID, roundTime: result.Timestamp}
		if _, ok := deduped[key]; ok {
			b.log.Warnw("duplicate round, keeping the later result",
				"probe_id", result.ProbeID,
				"round_time", result.Timestamp)
		} else {
			order = append(order, key)
		}
		deduped[key] = result
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].probeID != order[j].probeID {
			return order[i].probeID < order[j].probeID
		}
		return order[i].roundTime < order[j].roundTime
	})

	table := &Table{Meta: make(map[int]types.ProbeMetadata, len(meta))}
	for _, m := range meta {
		table.Meta[m.ID] = m
	}

	warned := make(map[int]struct{})
	for _, key := range order {
		result := deduped[key]
		if _, ok := table.Meta[result.ProbeID]; !ok {
			if _, done := warned[result.ProbeID]; !done {
				b.log.Warnw("no metadata for probe, joining as unknown",
					"probe_id", result.ProbeID)
				warned[result.ProbeID] = struct{}{}
			}
		}
		rows := b.normalizer.Rows(result)
		if len(rows) == 0 {
			// Keep the probe on the roster even when its whole record was
			// malformed; it must surface with null metrics, not disappear.
			if _, ok := table.Meta[result.ProbeID]; !ok {
				table.Meta[result.ProbeID] = types.ProbeMetadata{ID: result.ProbeID}
			}
		}
		table.Rows = append(table.Rows, rows...)
	}
	return table
}

// FromRows rebuilds a table around rows restored from a snapshot. The rows
// must already carry the build ordering; the snapshot store preserves it.
func FromRows(rows []normalize.Row, meta []types.ProbeMetadata) (*Table, error) {
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1], rows[i]
		if cur.ProbeID < prev.ProbeID ||
			(cur.ProbeID == prev.ProbeID && cur.RoundTime < prev.RoundTime) {
			return nil, fmt.Errorf("snapshot rows out of order at row %d: probe %d time %d after probe %d time %d",
				i+1, cur.ProbeID, cur.RoundTime, prev.ProbeID, prev.RoundTime)
		}
	}

	table := &Table{Rows: rows, Meta: make(map[int]types.ProbeMetadata, len(meta))}
	for _, m := range meta {
		table.Meta[m.ID] = m
	}
	return table, nil
}
