// Package retrieval fetches raw measurement results and probe history from
// the platform, caching them as files in the data directory so repeated
// runs do not refetch.
package retrieval

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kathiravelulab/atlastrace/modules/retrieval/client"
	"github.com/kathiravelulab/atlastrace/types"
)

// Service is the pipeline's seam to the measurement platform. Everything
// downstream of it works on in-memory records only.
type Service struct {
	client  *client.AtlasClient
	dataDir string
	log     *zap.SugaredLogger
}

func NewService(c *client.AtlasClient, dataDir string, log *zap.SugaredLogger) *Service {
	return &Service{client: c, dataDir: dataDir, log: log}
}

// Window resolves the measurement time window: configured overrides win,
// otherwise the platform's measurement info supplies start and stop.
func (s *Service) Window(cfg *types.PipelineConfig) (int64, int64, error) {
	if cfg.WindowStart != 0 && cfg.WindowStop != 0 {
		return cfg.WindowStart, cfg.WindowStop, nil
	}

	info, err := s.client.FetchMeasurementInfo(cfg.MeasurementID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch measurement info: %w", err)
	}

	start, stop := info.StartTime, info.StopTime
	if cfg.WindowStart != 0 {
		start = cfg.WindowStart
	}
	if cfg.WindowStop != 0 {
		stop = cfg.WindowStop
	}
	if stop == 0 {
		// Still-running measurement: analyze up to now.
		stop = time.Now().Unix()
	}
	return start, stop, nil
}

// MeasurementFile is the cached raw result path for a measurement.
func (s *Service) MeasurementFile(measurementID int) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("measurement_%d.json", measurementID))
}

// ProbeHistoryFile names the cached probe-archive file the same way for
// any ordering of the same probe set.
func (s *Service) ProbeHistoryFile(probeIDs []int) string {
	if len(probeIDs) == 0 {
		return filepath.Join(s.dataDir, "probes_history.json")
	}
	sorted := make([]int, len(probeIDs))
	copy(sorted, probeIDs)
	sort.Ints(sorted)
	if len(sorted) == 1 {
		return filepath.Join(s.dataDir, fmt.Sprintf("probes_history_%d.json", sorted[0]))
	}
	return filepath.Join(s.dataDir, fmt.Sprintf("probes_history_%d_to_%d.json", sorted[0], sorted[len(sorted)-1]))
}

// Results returns the measurement's traceroute records, downloading the
// raw file first unless a cached copy exists.
func (s *Service) Results(cfg *types.PipelineConfig, start, stop int64) ([]types.TracerouteResult, error) {
	path := s.MeasurementFile(cfg.MeasurementID)
	if _, err := os.Stat(path); err != nil {
		s.log.Infow("downloading measurement results", "measurement_id", cfg.MeasurementID, "path", path)
		stream, err := s.client.FetchResults(cfg.MeasurementID, start, stop)
		if err != nil {
			return nil, err
		}
		if err := s.cache(path, stream); err != nil {
			return nil, err
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open measurement file %s: %w", path, err)
	}
	defer file.Close()

	results, err := s.ParseResults(file)
	if err != nil {
		return nil, err
	}

	if cfg.ExpectedProbes > 0 {
		probes := make(map[int]struct{})
		for _, r := range results {
			probes[r.ProbeID] = struct{}{}
		}
		if len(probes) != cfg.ExpectedProbes {
			s.log.Warnw("probe count differs from configuration",
				"expected", cfg.ExpectedProbes,
				"observed", len(probes))
		}
	}
	return results, nil
}

// ProbeHistory returns per-probe metadata for the configured probes,
// downloading the archive first unless a cached copy exists.
func (s *Service) ProbeHistory(cfg *types.PipelineConfig, start, stop int64) ([]types.ProbeMetadata, error) {
	ids := cfg.ProbeIDs()
	path := s.ProbeHistoryFile(ids)
	if _, err := os.Stat(path); err != nil {
		s.log.Infow("downloading probe history", "probes", len(ids), "path", path)
		stream, err := s.client.FetchProbeArchive(ids, isoDate(start), isoDate(stop))
		if err != nil {
			return nil, err
		}
		if err := s.cache(path, stream); err != nil {
			return nil, err
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open probe history file %s: %w", path, err)
	}
	defer file.Close()

	return s.ParseProbeHistory(file, cfg.ProbeLocations())
}

func (s *Service) cache(path string, stream io.ReadCloser) error {
	defer stream.Close()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer file.Close()

	if _, err := io.Copy(file, stream); err != nil {
		return fmt.Errorf("failed to download into %s: %w", path, err)
	}
	return nil
}

func isoDate(unix int64) string {
	return time.Unix(unix, 0).UTC().Format("2006-01-02")
}
