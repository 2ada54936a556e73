package retrieval

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/kathiravelulab/atlastrace/types"
)

// rawResult mirrors one NDJSON line of an Atlas traceroute result. A line
// carrying only a count is the download footer, not a record.
type rawResult struct {
	PrbID     int      `json:"prb_id"`
	Timestamp int64    `json:"timestamp"`
	DstAddr   string   `json:"dst_addr"`
	Result    []rawHop `json:"result"`
	Count     *int     `json:"count"`
}

type rawHop struct {
	Hop    int        `json:"hop"`
	Error  string     `json:"error"`
	Result []rawReply `json:"result"`
}

type rawReply struct {
	From string   `json:"from"`
	RTT  *float64 `json:"rtt"`
	X    string   `json:"x"`
}

// rawArchiveEntry mirrors one NDJSON line of the probe archive: the state
// of one probe on one day.
type rawArchiveEntry struct {
	ID        int    `json:"id"`
	AddressV4 string `json:"address_v4"`
	ASNv4     int    `json:"asn_v4"`
	Status    struct {
		Name  string `json:"name"`
		Since int64  `json:"since"`
	} `json:"status"`
	Count *int `json:"count"`
}

// ParseResults decodes a stream of NDJSON traceroute result lines. An
// unparseable line fails the whole parse: a truncated download should be
// refetched, not silently shortened. The trailing count footer is checked
// against the number of parsed records.
func (s *Service) ParseResults(r io.Reader) ([]types.TracerouteResult, error) {
	var results []types.TracerouteResult

	scanner := newLineScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var raw rawResult
		if err := json.Unmarshal(text, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse result line %d: %w", line, err)
		}

		if raw.Count != nil && raw.PrbID == 0 {
			if *raw.Count != len(results) {
				s.log.Warnw("result count footer does not match parsed records",
					"footer", *raw.Count,
					"parsed", len(results))
			}
			continue
		}

		results = append(results, convertResult(raw))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read result stream: %w", err)
	}

	return results, nil
}

func convertResult(raw rawResult) types.TracerouteResult {
	result := types.TracerouteResult{
		ProbeID:   raw.PrbID,
		Timestamp: raw.Timestamp,
		DstAddr:   raw.DstAddr,
	}
	for _, hop := range raw.Result {
		converted := types.Hop{Index: hop.Hop}
		// A hop-level error ("network unreachable" and friends) keeps the
		// hop in the record with zero replies.
		if hop.Error == "" {
			for _, reply := range hop.Result {
				if reply.X != "" || reply.From == "" {
					// Timeout marker: an unanswered packet slot.
					converted.Replies = append(converted.Replies, types.Reply{})
					continue
				}
				converted.Replies = append(converted.Replies, types.Reply{
					From: reply.From,
					RTT:  reply.RTT,
				})
			}
		}
		result.Hops = append(result.Hops, converted)
	}
	return result
}

// ParseProbeHistory decodes a probe-archive stream into per-probe
// metadata. Location facts come from the configured probe list; probes
// configured but absent from the archive still get a metadata entry, so
// the roster never shrinks.
func (s *Service) ParseProbeHistory(r io.Reader, locations map[int]types.ProbeEntry) ([]types.ProbeMetadata, error) {
	events := make(map[int][]types.ConnectionEvent)
	latest := make(map[int]rawArchiveEntry)

	scanner := newLineScanner(r)
	line := 0
	entries := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}

		var raw rawArchiveEntry
		if err := json.Unmarshal(text, &raw); err != nil {
			return nil, fmt.Errorf("failed to parse probe archive line %d: %w", line, err)
		}

		if raw.Count != nil && raw.ID == 0 {
			if *raw.Count != entries {
				s.log.Warnw("probe archive count footer does not match parsed records",
					"footer", *raw.Count,
					"parsed", entries)
			}
			continue
		}
		entries++

		events[raw.ID] = append(events[raw.ID], types.ConnectionEvent{
			Status:  raw.Status.Name,
			ASN:     raw.ASNv4,
			Address: raw.AddressV4,
			Since:   raw.Status.Since,
		})
		if prev, ok := latest[raw.ID]; !ok || raw.Status.Since >= prev.Status.Since {
			latest[raw.ID] = raw
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read probe archive stream: %w", err)
	}

	ids := make(map[int]struct{}, len(locations)+len(events))
	for id := range locations {
		ids[id] = struct{}{}
	}
	for id := range events {
		ids[id] = struct{}{}
	}

	sorted := make([]int, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Ints(sorted)

	metadata := make([]types.ProbeMetadata, 0, len(sorted))
	for _, id := range sorted {
		meta := types.ProbeMetadata{ID: id}
		if loc, ok := locations[id]; ok {
			meta.Country = loc.Country
			meta.Continent = loc.Continent
		}
		if history, ok := events[id]; ok {
			sort.SliceStable(history, func(i, j int) bool { return history[i].Since < history[j].Since })
			meta.History = history
			meta.ASN = latest[id].ASNv4
			meta.Address = latest[id].AddressV4
		}
		metadata = append(metadata, meta)
	}
	return metadata, nil
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	// Result lines for long paths can exceed the default token size.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return scanner
}
