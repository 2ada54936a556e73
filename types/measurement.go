package types

// Reply is one answered or unanswered packet slot of a hop. An empty From
// together with a nil RTT marks a packet that got no reply; the slot is
// still counted so per-packet cardinality survives normalization.
type Reply struct {
	From string
	RTT  *float64
}

// Hop is one step along a traceroute path. Replies may be empty (full
// timeout) or hold several answers (load-balanced paths); neither case is
// collapsed.
type Hop struct {
	Index   int
	Replies []Reply
}

// TracerouteResult is one probe's traceroute attempt at one round.
// Immutable once fetched.
type TracerouteResult struct {
	ProbeID   int
	Timestamp int64
	DstAddr   string
	Hops      []Hop
}

// ConnectionEvent is one entry of a probe's connection history: the probe
// entered Status (via ASN, using Address) at the Since timestamp and stayed
// there until the next event.
type ConnectionEvent struct {
	Status  string
	ASN     int
	Address string
	Since   int64
}

// StatusConnected and StatusDisconnected are the history states the
// connection analysis classifies on.
const (
	StatusConnected    = "Connected"
	StatusDisconnected = "Disconnected"
)

// ProbeMetadata holds the static and slowly-changing facts about a probe,
// joined to measurement results by probe ID.
type ProbeMetadata struct {
	ID        int
	Country   string
	Continent string
	ASN       int
	Address   string
	History   []ConnectionEvent
}

// UnknownLocation is substituted when a result's probe has no metadata.
const UnknownLocation = "unknown"
