package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIClient_GetMiner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v0/miner", r.URL.Path)
		_ = json.NewEncoder(w).Encode(MinerState{HashRate: 1.5e12, SharesSubmitted: 42})
	}))
	defer srv.Close()

	state, err := NewAPIClient(srv.URL).GetMiner()
	require.NoError(t, err)
	assert.Equal(t, 1.5e12, state.HashRate)
	assert.Equal(t, uint64(42), state.SharesSubmitted)
}

func TestAPIClient_GetMiner_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
	}))
	defer srv.Close()

	_, err := NewAPIClient(srv.URL).GetMiner()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestAPIClient_PatchMiner(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		_ = json.NewEncoder(w).Encode(MinerState{Paused: true})
	}))
	defer srv.Close()

	state, err := NewAPIClient(srv.URL).PatchMiner(true)
	require.NoError(t, err)
	assert.True(t, state.Paused)
}

func TestRunStatus_TransportErrorExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := RunStatus(nil, "http://127.0.0.1:1", &stdout, &stderr)
	assert.Equal(t, ExitTransport, code)
	assert.NotEmpty(t, stderr.String())
}

func TestRunStatus_ArgvErrorExitCode(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := RunStatus([]string{"extra-arg"}, "http://127.0.0.1:1", &stdout, &stderr)
	assert.Equal(t, ExitArgvError, code)
}

func TestRunStatus_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(MinerState{HashRate: 1e9})
	}))
	defer srv.Close()

	var stdout, stderr bytes.Buffer
	code := RunStatus(nil, srv.URL, &stdout, &stderr)
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout.String(), "MUJINA")
}

func TestRender_EmptyState(t *testing.T) {
	out := Render(&MinerState{})
	assert.Contains(t, out, "none attached")
	assert.Contains(t, out, "none configured")
}

func TestFormatHashRate(t *testing.T) {
	assert.Equal(t, "1.00 TH/s", formatHashRate(1e12))
	assert.Equal(t, "500.00 H/s", formatHashRate(500))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1h01m05s", formatDuration(3665))
}
