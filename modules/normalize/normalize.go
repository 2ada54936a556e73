// Package normalize flattens nested traceroute results into one row per
// (probe, round, hop, packet).
package normalize

import (
	"sort"

	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/types"
)

// Row is the flat table unit used by every downstream stage. ReplyAddr ==
// "" and RTT == nil mark an unanswered packet slot; the two are always set
// or unset together.
type Row struct {
	ProbeID     int      `csv:"probe_id"`
	RoundTime   int64    `csv:"round_time"`
	HopIndex    int      `csv:"hop_index"`
	PacketIndex int      `csv:"packet_index"`
	ReplyAddr   string   `csv:"reply_address"`
	RTT         *float64 `csv:"rtt"`
}

// Normalizer converts one TracerouteResult into its flat rows. Packets is
// the configured packets-per-hop count; every hop yields exactly that many
// rows regardless of how many replies came back.
type Normalizer struct {
	packets int
	log     *zap.SugaredLogger
}

func New(packets int, log *zap.SugaredLogger) *Normalizer {
	return &Normalizer{packets: packets, log: log}
}

// Rows emits the normalized rows for one result, ordered by hop index then
// packet index. Malformed hops are skipped with a warning; the remaining
// hops of the result are still processed.
func (n *Normalizer) Rows(result types.TracerouteResult) []Row {
	hops := make([]types.Hop, len(result.Hops))
	copy(hops, result.Hops)
	sort.SliceStable(hops, func(i, j int) bool { return hops[i].Index < hops[j].Index })

	rows := make([]Row, 0, len(hops)*n.packets)
	next := 1
	for _, hop := range hops {
		if hop.Index != next {
			n.log.Warnw("skipping hop with non-contiguous index",
				"probe_id", result.ProbeID,
				"round_time", result.Timestamp,
				"hop_index", hop.Index,
				"expected", next)
			if hop.Index > next {
				// Resync so the hops after a gap are still emitted.
				next = hop.Index + 1
			}
			continue
		}
		next++

		slots, ok := n.packetSlots(result, hop)
		if !ok {
			continue
		}
		for p := 1; p <= n.packets; p++ {
			row := Row{
				ProbeID:     result.ProbeID,
				RoundTime:   result.Timestamp,
				HopIndex:    hop.Index,
				PacketIndex: p,
			}
			if reply := slots[p-1]; reply != nil {
				row.ReplyAddr = reply.From
				row.RTT = reply.RTT
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// packetSlots assigns a hop's replies to its packet slots positionally.
// Surplus replies wrap onto earlier slots; a wrapped reply must repeat the
// slot's address, otherwise the record claims two distinct addresses for
// one packet slot and the hop is malformed.
func (n *Normalizer) packetSlots(result types.TracerouteResult, hop types.Hop) ([]*types.Reply, bool) {
	slots := make([]*types.Reply, n.packets)
	for i := range hop.Replies {
		reply := hop.Replies[i]
		if reply.From == "" && reply.RTT == nil {
			continue
		}
		slot := i % n.packets
		if slots[slot] == nil {
			slots[slot] = &reply
			continue
		}
		if slots[slot].From != reply.From {
			n.log.Warnw("skipping malformed hop: distinct reply addresses for one packet slot",
				"probe_id", result.ProbeID,
				"round_time", result.Timestamp,
				"hop_index", hop.Index,
				"packet_index", slot+1,
				"addresses", []string{slots[slot].From, reply.From})
			return nil, false
		}
		// Duplicate answer from the same address, keep the first.
	}
	return slots, true
}
