package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/modules/normalize"
	"github.com/kathiravelulab/atlastrace/modules/table"
	"github.com/kathiravelulab/atlastrace/types"
)

const target = "100.64.0.1"

func nopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func rtt(v float64) *float64 { return &v }

// pathResult builds a one-packet-per-hop round whose hop i replies from
// addrs[i-1]; an empty entry is a timed-out hop.
func pathResult(probeID int, ts int64, addrs ...string) types.TracerouteResult {
	result := types.TracerouteResult{ProbeID: probeID, Timestamp: ts}
	for i, addr := range addrs {
		hop := types.Hop{Index: i + 1}
		if addr != "" {
			hop.Replies = []types.Reply{{From: addr, RTT: rtt(10.0 + float64(i))}}
		}
		result.Hops = append(result.Hops, hop)
	}
	return result
}

func buildTable(t *testing.T, packets int, results []types.TracerouteResult, meta []types.ProbeMetadata) *table.Table {
	t.Helper()
	log := nopLogger()
	return table.NewBuilder(normalize.New(packets, log), log).Build(results, meta)
}

func TestAggregateStablePathsNoChanges(t *testing.T) {
	results := []types.TracerouteResult{
		pathResult(101, 100, "10.0.0.1", "10.0.0.2", target),
		pathResult(101, 200, "10.0.0.1", "10.0.0.2", target),
		pathResult(101, 300, "10.0.0.1", "10.0.0.2", target),
	}
	tbl := buildTable(t, 1, results, nil)

	records, _ := NewAggregator(target, nopLogger()).Aggregate(tbl)
	require.Len(t, records, 1)
	r := records[0]

	require.NotNil(t, r.PathChanges)
	assert.Equal(t, 0, *r.PathChanges)
	require.NotNil(t, r.DistinctPaths)
	assert.Equal(t, 1, *r.DistinctPaths)
	require.NotNil(t, r.Reachability)
	assert.Equal(t, 1.0, *r.Reachability)
}

func TestAggregateAlternatingPaths(t *testing.T) {
	// Paths strictly alternate A,B,A,B: every transition is a change.
	results := []types.TracerouteResult{
		pathResult(101, 100, "10.0.0.1", target),
		pathResult(101, 200, "10.0.0.9", target),
		pathResult(101, 300, "10.0.0.1", target),
		pathResult(101, 400, "10.0.0.9", target),
	}
	tbl := buildTable(t, 1, results, nil)

	records, _ := NewAggregator(target, nopLogger()).Aggregate(tbl)
	require.Len(t, records, 1)
	require.NotNil(t, records[0].PathChanges)
	assert.Equal(t, 3, *records[0].PathChanges)
	assert.Equal(t, 2, *records[0].DistinctPaths)
}

func TestAggregatePrefixEqualPathsAreSame(t *testing.T) {
	// The second round got one hop further along the same route; that is
	// not a route change.
	results := []types.TracerouteResult{
		pathResult(101, 100, "10.0.0.1", "10.0.0.2"),
		pathResult(101, 200, "10.0.0.1", "10.0.0.2", target),
	}
	tbl := buildTable(t, 1, results, nil)

	records, _ := NewAggregator(target, nopLogger()).Aggregate(tbl)
	require.Len(t, records, 1)
	assert.Equal(t, 0, *records[0].PathChanges)
	assert.Equal(t, 2, *records[0].DistinctPaths, "full sequences still differ")
}

func TestAggregateUnreachableRounds(t *testing.T) {
	results := []types.TracerouteResult{
		pathResult(101, 100, "10.0.0.1", "10.0.0.2", ""),
		pathResult(101, 200, "10.0.0.1", "", ""),
	}
	tbl := buildTable(t, 1, results, nil)

	records, _ := NewAggregator(target, nopLogger()).Aggregate(tbl)
	require.Len(t, records, 1)
	r := records[0]

	require.NotNil(t, r.Reachability)
	assert.Equal(t, 0.0, *r.Reachability)
	require.NotNil(t, r.MeanFinalHop)
	assert.Equal(t, 3.0, *r.MeanFinalHop, "unreachable rounds use the highest observed hop")
}

func TestAggregateWorkedExample(t *testing.T) {
	// Three reached rounds with final hop counts 5, 5, 7; the hop-2
	// address flips on the second round.
	results := []types.TracerouteResult{
		pathResult(101, 100, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", target),
		pathResult(101, 200, "10.0.0.1", "10.9.9.9", "10.0.0.3", "10.0.0.4", target),
		pathResult(101, 300, "10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4", "10.0.0.5", "10.0.0.6", target),
	}
	tbl := buildTable(t, 1, results, nil)

	records, _ := NewAggregator(target, nopLogger()).Aggregate(tbl)
	require.Len(t, records, 1)
	r := records[0]

	assert.Equal(t, 3, r.Rounds)
	assert.Equal(t, 1.0, *r.Reachability)
	assert.Equal(t, 5.0, *r.MedianFinalHop)
	assert.InDelta(t, 17.0/3.0, *r.MeanFinalHop, 1e-9)
	assert.Equal(t, 2, *r.PathChanges, "hop 2 differs on rounds 2 and 3")
}

func TestAggregateZeroRoundProbeKept(t *testing.T) {
	meta := []types.ProbeMetadata{
		{ID: 101, Country: "Germany", Continent: "Europe"},
		{ID: 303, Country: "Chile", Continent: "South America"},
	}
	results := []types.TracerouteResult{pathResult(101, 100, target)}
	tbl := buildTable(t, 1, results, meta)

	records, summary := NewAggregator(target, nopLogger()).Aggregate(tbl)
	require.Len(t, records, 2)

	idle := records[1]
	assert.Equal(t, 303, idle.ProbeID)
	assert.Equal(t, "Chile", idle.Country)
	assert.Equal(t, 0, idle.Rounds)
	assert.Nil(t, idle.Reachability)
	assert.Nil(t, idle.MeanFinalHop)
	assert.Nil(t, idle.MedianFinalHop)
	assert.Nil(t, idle.PathChanges)
	assert.Nil(t, idle.DistinctPaths)
	assert.Empty(t, idle.HopRTT)

	assert.Equal(t, 2, summary.Probes)
	assert.Equal(t, 1, summary.ProbesWithRounds)
	require.NotNil(t, summary.MeanReachability)
	assert.Equal(t, 1.0, *summary.MeanReachability, "zero-round probes excluded from averages")
}

func TestAggregateEmptyTable(t *testing.T) {
	tbl := buildTable(t, 1, nil, nil)
	records, summary := NewAggregator(target, nopLogger()).Aggregate(tbl)
	assert.Empty(t, records)
	assert.Equal(t, Summary{}, summary)
}

func TestHopStatsIgnoreNullsAndOmitEmptyHops(t *testing.T) {
	mk := func(ts int64, hop2 *float64) types.TracerouteResult {
		result := types.TracerouteResult{
			ProbeID:   101,
			Timestamp: ts,
			Hops: []types.Hop{
				{Index: 1, Replies: []types.Reply{{From: "10.0.0.1", RTT: rtt(float64(ts % 100))}}},
				{Index: 2},
			},
		}
		if hop2 != nil {
			result.Hops[1].Replies = []types.Reply{{From: target, RTT: hop2}}
		}
		return result
	}

	results := []types.TracerouteResult{
		mk(110, rtt(20)),
		mk(220, rtt(30)),
		mk(330, rtt(40)),
		mk(440, nil), // hop 2 timed out, contributes no sample
	}
	tbl := buildTable(t, 1, results, nil)

	records, _ := NewAggregator(target, nopLogger()).Aggregate(tbl)
	require.Len(t, records, 1)
	hopRTT := records[0].HopRTT
	require.Len(t, hopRTT, 2)

	hop1 := hopRTT[0]
	assert.Equal(t, 1, hop1.HopIndex)
	assert.Equal(t, 4, hop1.Samples)
	assert.Equal(t, 10.0, hop1.Min)
	assert.Equal(t, 25.0, hop1.Median, "even count medians average the middle pair")
	assert.Equal(t, 40.0, hop1.Max)

	hop2 := hopRTT[1]
	assert.Equal(t, 2, hop2.HopIndex)
	assert.Equal(t, 3, hop2.Samples)
	assert.Equal(t, 30.0, hop2.Median)
}

func TestConnectionAnalysis(t *testing.T) {
	meta := []types.ProbeMetadata{{
		ID: 101,
		History: []types.ConnectionEvent{
			// Starts before the window: clipped to start.
			{Status: types.StatusConnected, ASN: 14593, Address: "100.70.0.1", Since: 0},
			{Status: types.StatusDisconnected, Since: 400},
			{Status: types.StatusConnected, ASN: 7018, Address: "203.0.113.5", Since: 600},
			{Status: types.StatusConnected, ASN: 14593, Address: "100.70.0.2", Since: 800},
		},
	}, {
		ID: 202, // no history at all
	}}
	tbl := buildTable(t, 1, nil, meta)

	breakdowns := ConnectionAnalysis(tbl, 14593, 100, 1100)
	require.Len(t, breakdowns, 2)

	b := breakdowns[0]
	assert.Equal(t, 101, b.ProbeID)
	assert.InDelta(t, 0.6, b.TargetFraction, 1e-9)       // [100,400) + [800,1100)
	assert.InDelta(t, 0.2, b.OtherFraction, 1e-9)        // [600,800)
	assert.InDelta(t, 0.2, b.DisconnectedFraction, 1e-9) // [400,600)
	assert.Equal(t, []string{"100.70.0.1", "100.70.0.2"}, b.GatewayAddrs)
	assert.LessOrEqual(t, b.TargetFraction+b.OtherFraction+b.DisconnectedFraction, 1.0+1e-9)

	idle := breakdowns[1]
	assert.Zero(t, idle.TargetFraction)
	assert.Zero(t, idle.OtherFraction)
	assert.Zero(t, idle.DisconnectedFraction)
	assert.Empty(t, idle.GatewayAddrs)
}
