// Package cli implements the mujina-cli status command: a thin HTTP client
// for the daemon's /v0 API and a one-shot rendered summary of the result.
package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// MinerState mirrors api.MinerState; kept as a separate type so this
// package has no import dependency on the daemon's internals.
type MinerState struct {
	UptimeSecs      float64         `json:"uptime_secs"`
	HashRate        float64         `json:"hashrate"`
	SharesSubmitted uint64          `json:"shares_submitted"`
	Paused          bool            `json:"paused"`
	Boards          []BoardSummary  `json:"boards"`
	Sources         []SourceSummary `json:"sources"`
}

type BoardSummary struct {
	Name        string        `json:"name"`
	Serial      string        `json:"serial"`
	Model       string        `json:"model"`
	HashRate    float64       `json:"hashrate"`
	Fans        []FanSummary  `json:"fans"`
	Sensors     []TempSummary `json:"sensors"`
	ThreadNames []string      `json:"thread_names"`
}

type FanSummary struct {
	Name    string `json:"name"`
	DutyPct int    `json:"duty_pct"`
	RPM     int    `json:"rpm"`
}

type TempSummary struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

type SourceSummary struct {
	Name            string  `json:"name"`
	Connected       bool    `json:"connected"`
	CurrentJobID    string  `json:"current_job_id"`
	ShareDifficulty float64 `json:"share_difficulty"`
	SharesAccepted  uint64  `json:"shares_accepted"`
	SharesRejected  uint64  `json:"shares_rejected"`
}

// APIClient talks to a running mujina daemon's /v0 HTTP surface.
type APIClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewAPIClient builds a client against baseURL (typically config.APIURL()).
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// GetMiner fetches GET /v0/miner.
func (c *APIClient) GetMiner() (*MinerState, error) {
	body, err := c.get("/v0/miner")
	if err != nil {
		return nil, err
	}
	var state MinerState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode /v0/miner response: %w", err)
	}
	return &state, nil
}

// PatchMiner sends PATCH /v0/miner with a paused field, returning the
// resulting state.
func (c *APIClient) PatchMiner(paused bool) (*MinerState, error) {
	reqBody, _ := json.Marshal(map[string]bool{"paused": paused})
	body, err := c.patch("/v0/miner", reqBody)
	if err != nil {
		return nil, err
	}
	var state MinerState
	if err := json.Unmarshal(body, &state); err != nil {
		return nil, fmt.Errorf("decode /v0/miner response: %w", err)
	}
	return &state, nil
}

func (c *APIClient) get(path string) ([]byte, error) {
	resp, err := c.HTTPClient.Get(c.BaseURL + path)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return c.readBody(path, resp)
}

func (c *APIClient) patch(path string, body []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPatch, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()
	return c.readBody(path, resp)
}

func (c *APIClient) readBody(path string, resp *http.Response) ([]byte, error) {
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body for %s: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, errResp.Error)
		}
		preview := string(respBody)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		return nil, fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, preview)
	}
	return respBody, nil
}
