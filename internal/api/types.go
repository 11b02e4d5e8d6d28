package api

// MinerState is the top-level snapshot returned by GET/PATCH /v0/miner.
type MinerState struct {
	UptimeSecs      float64        `json:"uptime_secs"`
	HashRate        float64        `json:"hashrate"`
	SharesSubmitted uint64         `json:"shares_submitted"`
	Paused          bool           `json:"paused"`
	Boards          []BoardSummary `json:"boards"`
	Sources         []SourceSummary `json:"sources"`
}

// BoardSummary is the board.BoardState fields the API exposes, plus the
// board's current aggregate hashrate (not part of BoardState itself, since
// it's read live off the board's attached hash threads).
type BoardSummary struct {
	Name        string         `json:"name"`
	Serial      string         `json:"serial"`
	Model       string         `json:"model"`
	HashRate    float64        `json:"hashrate"`
	Fans        []FanSummary   `json:"fans"`
	Sensors     []TempSummary  `json:"sensors"`
	ThreadNames []string       `json:"thread_names"`
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

// SourceSummary mirrors stratum.SourceStatus with its registry name, the
// only piece the stratum package doesn't itself track.
type SourceSummary struct {
	Name            string  `json:"name"`
	Connected       bool    `json:"connected"`
	CurrentJobID    string  `json:"current_job_id"`
	ShareDifficulty float64 `json:"share_difficulty"`
	SharesAccepted  uint64  `json:"shares_accepted"`
	SharesRejected  uint64  `json:"shares_rejected"`
}

// PatchMinerRequest is PATCH /v0/miner's request body.
type PatchMinerRequest struct {
	Paused *bool `json:"paused,omitempty"`
}
