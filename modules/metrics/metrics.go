// Package metrics derives per-probe and cross-probe path and latency
// metrics from the normalized measurement table.
package metrics

import (
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/modules/normalize"
	"github.com/kathiravelulab/atlastrace/modules/table"
)

// HopStats summarizes the round-trip times observed at one hop index.
// Values are milliseconds. Hop indices without a single answered packet
// are not listed at all, which keeps "no data" distinct from a zero RTT.
type HopStats struct {
	HopIndex int
	Samples  int
	Min      float64
	Median   float64
	Max      float64
}

// ProbeMetrics is the derived record for one probe. Nil pointers mean the
// metric could not be computed because the probe contributed no rounds;
// such probes stay in the output roster rather than being dropped.
type ProbeMetrics struct {
	ProbeID        int
	Country        string
	Continent      string
	Rounds         int
	MeanFinalHop   *float64
	MedianFinalHop *float64
	Reachability   *float64
	DistinctPaths  *int
	PathChanges    *int
	HopRTT         []HopStats
}

// Summary aggregates across probes. Averages cover only probes that
// contributed at least one round.
type Summary struct {
	Probes           int
	ProbesWithRounds int
	TotalRounds      int
	MeanReachability *float64
	MeanPathChanges  *float64
}

// Aggregator computes metric records from a built table. The target
// address decides whether a round counted as reached.
type Aggregator struct {
	target string
	log    *zap.SugaredLogger
}

func NewAggregator(target string, log *zap.SugaredLogger) *Aggregator {
	return &Aggregator{target: target, log: log}
}

// round is one reconstructed traceroute attempt: the path identity, the
// final hop index and whether the target answered. Rounds are built in
// chronological order because the table rows arrive time-sorted per probe.
type round struct {
	path     []string
	finalHop int
	reached  bool
}

// Aggregate produces one ProbeMetrics per probe in the table roster, in
// ascending probe ID order, plus the cross-probe summary. An empty table
// yields an empty record set and a zero summary.
func (a *Aggregator) Aggregate(tbl *table.Table) ([]ProbeMetrics, Summary) {
	ids := tbl.ProbeIDs()
	records := make([]ProbeMetrics, 0, len(ids))

	summary := Summary{Probes: len(ids)}
	var reachSum, changeSum float64
	for _, id := range ids {
		record := a.aggregateProbe(tbl, id)
		records = append(records, record)

		summary.TotalRounds += record.Rounds
		if record.Rounds > 0 {
			summary.ProbesWithRounds++
			reachSum += *record.Reachability
			changeSum += float64(*record.PathChanges)
		}
	}

	if summary.ProbesWithRounds > 0 {
		meanReach := reachSum / float64(summary.ProbesWithRounds)
		meanChanges := changeSum / float64(summary.ProbesWithRounds)
		summary.MeanReachability = &meanReach
		summary.MeanPathChanges = &meanChanges
	}
	return records, summary
}

func (a *Aggregator) aggregateProbe(tbl *table.Table, probeID int) ProbeMetrics {
	meta := tbl.MetaFor(probeID)
	record := ProbeMetrics{
		ProbeID:   probeID,
		Country:   meta.Country,
		Continent: meta.Continent,
	}

	rounds := a.rounds(tbl.RowsFor(probeID))
	record.Rounds = len(rounds)
	if len(rounds) == 0 {
		a.log.Debugw("probe contributed no rounds, emitting null metrics",
			"probe_id", probeID)
		return record
	}

	finalHops := make(stats.Float64Data, 0, len(rounds))
	reached := 0
	paths := make(map[string]struct{}, len(rounds))
	changes := 0
	for i, r := range rounds {
		finalHops = append(finalHops, float64(r.finalHop))
		if r.reached {
			reached++
		}
		paths[strings.Join(r.path, "|")] = struct{}{}
		if i > 0 && !samePath(rounds[i-1].path, r.path) {
			changes++
		}
	}

	mean, _ := stats.Mean(finalHops)     // nolint: errcheck
	median, _ := stats.Median(finalHops) // nolint: errcheck
	record.MeanFinalHop = &mean
	record.MedianFinalHop = &median

	reachability := float64(reached) / float64(len(rounds))
	record.Reachability = &reachability

	distinct := len(paths)
	record.DistinctPaths = &distinct
	record.PathChanges = &changes

	record.HopRTT = a.hopStats(tbl.RowsFor(probeID))
	return record
}

// rounds reconstructs the probe's rounds from its row slice. Rows arrive
// ordered by round time, hop index, packet index, so each round is one
// contiguous run.
func (a *Aggregator) rounds(rows []normalize.Row) []round {
	var out []round
	for start := 0; start < len(rows); {
		end := start
		for end < len(rows) && rows[end].RoundTime == rows[start].RoundTime {
			end++
		}
		out = append(out, a.buildRound(rows[start:end]))
		start = end
	}
	return out
}

func (a *Aggregator) buildRound(rows []normalize.Row) round {
	var r round

	maxHop := 0
	for _, row := range rows {
		if row.HopIndex > maxHop {
			maxHop = row.HopIndex
		}
	}

	r.path = make([]string, maxHop)
	for hop := 1; hop <= maxHop; hop++ {
		r.path[hop-1] = firstReplier(rows, hop)
	}

	for _, row := range rows {
		if row.ReplyAddr != a.target {
			continue
		}
		r.reached = true
		if row.HopIndex > r.finalHop {
			r.finalHop = row.HopIndex
		}
	}
	if !r.reached {
		r.finalHop = maxHop
	}
	return r
}

// firstReplier picks the address that characterizes a hop for path
// identity: the answer at the lowest packet index, lexicographically
// smallest if a slot somehow carries several. Empty when the hop timed out.
func firstReplier(rows []normalize.Row, hop int) string {
	best := ""
	bestPacket := 0
	for _, row := range rows {
		if row.HopIndex != hop || row.ReplyAddr == "" {
			continue
		}
		if best == "" || row.PacketIndex < bestPacket ||
			(row.PacketIndex == bestPacket && row.ReplyAddr < best) {
			best = row.ReplyAddr
			bestPacket = row.PacketIndex
		}
	}
	return best
}

// samePath reports whether two rounds took the same route. Sequences are
// compared element-wise up to the shorter one, so a round that simply got
// further than its predecessor does not count as a route change.
func samePath(a, b []string) bool {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (a *Aggregator) hopStats(rows []normalize.Row) []HopStats {
	samples := make(map[int]stats.Float64Data)
	for _, row := range rows {
		if row.RTT == nil {
			continue
		}
		samples[row.HopIndex] = append(samples[row.HopIndex], *row.RTT)
	}

	hops := make([]int, 0, len(samples))
	for hop := range samples {
		hops = append(hops, hop)
	}
	sort.Ints(hops)

	out := make([]HopStats, 0, len(hops))
	for _, hop := range hops {
		data := samples[hop]
		min, _ := stats.Min(data)       // nolint: errcheck
		median, _ := stats.Median(data) // nolint: errcheck
		max, _ := stats.Max(data)       // nolint: errcheck
		out = append(out, HopStats{
			HopIndex: hop,
			Samples:  len(data),
			Min:      min,
			Median:   median,
			Max:      max,
		})
	}
	return out
}
