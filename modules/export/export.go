// Package export persists derived metric records for later inspection.
package export

import (
	"github.com/kathiravelulab/atlastrace/modules/metrics"
)

// Exporter is the sink for derived metrics. Implementations must tolerate
// being handed nil metric fields (zero-round probes).
type Exporter interface {
	Init() error
	WriteProbeMetrics(metrics.ProbeMetrics) error
	WriteSummary(metrics.Summary) error
	Close() error
}
