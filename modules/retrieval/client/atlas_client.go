// Package client talks to the RIPE Atlas API: one-shot measurement
// creation, measurement info and the raw result / probe-archive downloads.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kathiravelulab/atlastrace/types"
)

const defaultBaseURL = "https://atlas.ripe.net/api/v2"

type AtlasClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

type MeasurementDefinition struct {
	Target      string `json:"target"`
	Description string `json:"description"`
	Type        string `json:"type"`
	AF          int    `json:"af"`
	Interval    int    `json:"interval"`
	Packets     int    `json:"packets,omitempty"`
}

type ProbeSet struct {
	Type      string `json:"type"`
	Value     string `json:"value"`
	Requested int    `json:"requested"`
}

type CreateMeasurementRequest struct {
	Definitions []MeasurementDefinition `json:"definitions"`
	Probes      []ProbeSet              `json:"probes"`
}

type CreateMeasurementResponse struct {
	Measurements []int `json:"measurements"`
}

// MeasurementInfo is the platform's description of a measurement; the
// pipeline reads the time window from it.
type MeasurementInfo struct {
	ID          int    `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Target      string `json:"target"`
	Description string `json:"description"`
	StartTime   int64  `json:"start_time"`
	StopTime    int64  `json:"stop_time"`
}

// Option overrides client defaults; used by tests to point at a stub
// server.
type Option func(*AtlasClient)

func WithBaseURL(baseURL string) Option {
	return func(c *AtlasClient) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

func NewAtlasClient(apiKey string, options ...Option) *AtlasClient {
	c := &AtlasClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *AtlasClient) CreateMeasurement(def types.MeasurementDefinition) (int, error) {
	measurementDef := MeasurementDefinition{
		Target:      def.Target,
		Description: fmt.Sprintf("atlastrace measurement for %s", def.Target),
		Type:        def.MeasurementType,
		AF:          4, // IPv4
		Interval:    def.IntervalSeconds,
		Packets:     def.Packets,
	}

	probeSet := ProbeSet{
		Type:      "probes",
		Value:     c.probesToString(def.ProbeIDs),
		Requested: len(def.ProbeIDs),
	}

	request := CreateMeasurementRequest{
		Definitions: []MeasurementDefinition{measurementDef},
		Probes:      []ProbeSet{probeSet},
	}

	jsonData, err := json.Marshal(request)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", c.baseURL+"/measurements/", bytes.NewBuffer(jsonData))
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Key "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusCreated {
		return 0, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	var response CreateMeasurementResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return 0, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(response.Measurements) == 0 {
		return 0, fmt.Errorf("no measurement ID returned")
	}

	return response.Measurements[0], nil
}

func (c *AtlasClient) FetchMeasurementInfo(measurementID int) (*MeasurementInfo, error) {
	url := fmt.Sprintf("%s/measurements/%d/", c.baseURL, measurementID)

	body, err := c.get(url)
	if err != nil {
		return nil, err
	}

	var info MeasurementInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal measurement info: %w", err)
	}

	return &info, nil
}

// FetchResults streams the NDJSON result lines of a measurement between
// start and stop. The caller owns the returned reader.
func (c *AtlasClient) FetchResults(measurementID int, start, stop int64) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/measurements/%d/results/?start=%d&stop=%d&format=txt",
		c.baseURL, measurementID, start, stop)
	return c.getStream(url)
}

// FetchProbeArchive streams the NDJSON probe-archive lines covering the
// given probes between two dates (YYYY-MM-DD).
func (c *AtlasClient) FetchProbeArchive(probeIDs []int, dateFrom, dateTo string) (io.ReadCloser, error) {
	url := fmt.Sprintf("%s/probes/archive/?probe=%s&date__gte=%s&date__lte=%s&format=txt",
		c.baseURL, c.probesToString(probeIDs), dateFrom, dateTo)
	return c.getStream(url)
}

func (c *AtlasClient) get(url string) ([]byte, error) {
	stream, err := c.getStream(url)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	body, err := io.ReadAll(stream)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return body, nil
}

func (c *AtlasClient) getStream(url string) (io.ReadCloser, error) {
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.apiKey != "" {
		req.Header.Set("Authorization", "Key "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return resp.Body, nil
}

func (c *AtlasClient) probesToString(probeIDs []int) string {
	var strIDs []string
	for _, id := range probeIDs {
		strIDs = append(strIDs, strconv.Itoa(id))
	}
	return strings.Join(strIDs, ",")
}
