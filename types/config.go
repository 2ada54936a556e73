package types

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// MeasurementDefinition describes a measurement to be scheduled on the
// platform. It is an opaque one-shot submission; the analysis pipeline
// never reads it back.
type MeasurementDefinition struct {
	ProbeIDs        []int  `yaml:"probe_ids"`
	Target          string `yaml:"target"`
	MeasurementType string `yaml:"measurement_type"`
	IntervalSeconds int    `yaml:"interval_seconds"`
	Packets         int    `yaml:"packets,omitempty"`
}

// ProbeEntry maps a probe ID to the location facts the analysis groups by.
type ProbeEntry struct {
	ID        int    `yaml:"id"`
	Country   string `yaml:"country"`
	Continent string `yaml:"continent"`
}

type SnapshotConfig struct {
	Path  string `yaml:"path,omitempty"`
	Reuse bool   `yaml:"reuse"`
}

type ExportConfig struct {
	SQLitePath string `yaml:"sqlite_path,omitempty"`
}

// PipelineConfig is the immutable configuration threaded through every
// pipeline component. It is read once from AtlasTraceConfig.yml and never
// mutated afterwards.
type PipelineConfig struct {
	MeasurementID  int            `yaml:"measurement_id"`
	TargetAddress  string         `yaml:"target_address"`
	TargetASN      int            `yaml:"target_asn,omitempty"`
	PacketsPerHop  int            `yaml:"packets_per_hop"`
	ExpectedProbes int            `yaml:"expected_probes,omitempty"`
	WindowStart    int64          `yaml:"window_start,omitempty"`
	WindowStop     int64          `yaml:"window_stop,omitempty"`
	DataDir        string         `yaml:"data_dir"`
	Snapshot       SnapshotConfig `yaml:"snapshot"`
	Export         ExportConfig   `yaml:"export,omitempty"`
	Probes         []ProbeEntry   `yaml:"probes"`

	Definitions []MeasurementDefinition `yaml:"measurement_definitions,omitempty"`
}

func LoadConfig(path string) (*PipelineConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg PipelineConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *PipelineConfig) Validate() error {
	if c.TargetAddress == "" {
		return fmt.Errorf("target_address cannot be empty")
	}
	if c.PacketsPerHop <= 0 {
		return fmt.Errorf("packets_per_hop must be positive, got %d", c.PacketsPerHop)
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = filepath.Join(c.DataDir, fmt.Sprintf("measurement_%d.csv", c.MeasurementID))
	}
	return nil
}

// ProbeLocations indexes the configured probe list by ID.
func (c *PipelineConfig) ProbeLocations() map[int]ProbeEntry {
	locations := make(map[int]ProbeEntry, len(c.Probes))
	for _, p := range c.Probes {
		locations[p.ID] = p
	}
	return locations
}

// ProbeIDs returns the configured probe IDs in listing order.
func (c *PipelineConfig) ProbeIDs() []int {
	ids := make([]int, 0, len(c.Probes))
	for _, p := range c.Probes {
		ids = append(ids, p.ID)
	}
	return ids
}
