package metrics

import (
	"sort"

	"github.com/kathiravelulab/atlastrace/modules/table"
	"github.com/kathiravelulab/atlastrace/types"
)

// ConnectionBreakdown splits a probe's measurement window into the time it
// spent connected through the target network, connected elsewhere, and
// disconnected, each as a fraction of the window length. GatewayAddrs are
// the distinct addresses the probe used while on the target network.
type ConnectionBreakdown struct {
	ProbeID              int
	TargetFraction       float64
	OtherFraction        float64
	DisconnectedFraction float64
	GatewayAddrs         []string
}

// ConnectionAnalysis computes a breakdown for every probe in the table
// roster from its connection-history events, clipped to [start, stop).
// Probes without history yield an all-zero breakdown. A history event spans
// from its own timestamp to the next event's, the last one to the window
// end.
func ConnectionAnalysis(tbl *table.Table, targetASN int, start, stop int64) []ConnectionBreakdown {
	out := make([]ConnectionBreakdown, 0, len(tbl.Meta))
	window := float64(stop - start)

	for _, id := range tbl.ProbeIDs() {
		breakdown := ConnectionBreakdown{ProbeID: id}
		meta := tbl.MetaFor(id)

		if window > 0 && len(meta.History) > 0 {
			events := make([]types.ConnectionEvent, len(meta.History))
			copy(events, meta.History)
			sort.SliceStable(events, func(i, j int) bool { return events[i].Since < events[j].Since })

			addrs := make(map[string]struct{})
			for i, ev := range events {
				until := stop
				if i+1 < len(events) {
					until = events[i+1].Since
				}
				since := ev.Since

				if ev.Status == types.StatusConnected && ev.ASN == targetASN && ev.Address != "" {
					addrs[ev.Address] = struct{}{}
				}

				// Clip the interval to the window.
				if since < start {
					since = start
				}
				if until > stop {
					until = stop
				}
				if until <= since {
					continue
				}

				span := float64(until - since)
				switch {
				case ev.Status == types.StatusConnected && ev.ASN == targetASN:
					breakdown.TargetFraction += span / window
				case ev.Status == types.StatusConnected:
					breakdown.OtherFraction += span / window
				case ev.Status == types.StatusDisconnected:
					breakdown.DisconnectedFraction += span / window
				}
			}

			breakdown.GatewayAddrs = make([]string, 0, len(addrs))
			for addr := range addrs {
				breakdown.GatewayAddrs = append(breakdown.GatewayAddrs, addr)
			}
			sort.Strings(breakdown.GatewayAddrs)
		}

		out = append(out, breakdown)
	}
	return out
}
