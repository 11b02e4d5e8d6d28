package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mujina-miner/mujina/internal/board"
	"github.com/mujina-miner/mujina/internal/thermal"
)

type fakeScheduler struct {
	pauseOK, resumeOK   bool
	pauseCalls, resumeCalls int
}

func (f *fakeScheduler) Pause(ctx context.Context) bool  { f.pauseCalls++; return f.pauseOK }
func (f *fakeScheduler) Resume(ctx context.Context) bool { f.resumeCalls++; return f.resumeOK }

func newTestServer(sched PauseResumer) (*Server, *Registry) {
	reg := NewRegistry()
	return NewServer(sched, reg, nil), reg
}

func do(t *testing.T, s *Server, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(&fakeScheduler{})
	rec := do(t, s, http.MethodGet, "/v0/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"OK"`, rec.Body.String())
}

func TestGetMiner_EmptyRegistry(t *testing.T) {
	s, _ := newTestServer(&fakeScheduler{})
	rec := do(t, s, http.MethodGet, "/v0/miner", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var state MinerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, uint64(0), state.SharesSubmitted)
	assert.Empty(t, state.Boards)
	assert.Empty(t, state.Sources)
}

func TestPatchMiner_Pause(t *testing.T) {
	sched := &fakeScheduler{pauseOK: true}
	s, _ := newTestServer(sched)

	rec := do(t, s, http.MethodPatch, "/v0/miner", []byte(`{"paused":true}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, sched.pauseCalls)

	var state MinerState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.True(t, state.Paused)
}

func TestPatchMiner_TimeoutIs500(t *testing.T) {
	sched := &fakeScheduler{pauseOK: false}
	s, _ := newTestServer(sched)

	rec := do(t, s, http.MethodPatch, "/v0/miner", []byte(`{"paused":true}`))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPatchMiner_NoFieldIsNoOp(t *testing.T) {
	sched := &fakeScheduler{}
	s, _ := newTestServer(sched)

	rec := do(t, s, http.MethodPatch, "/v0/miner", []byte(`{}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, sched.pauseCalls)
	assert.Equal(t, 0, sched.resumeCalls)
}

func TestBoards_NotFoundIs404(t *testing.T) {
	s, _ := newTestServer(&fakeScheduler{})
	rec := do(t, s, http.MethodGet, "/v0/boards/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSources_NotFoundIs404(t *testing.T) {
	s, _ := newTestServer(&fakeScheduler{})
	rec := do(t, s, http.MethodGet, "/v0/sources/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBoards_ListAndGet(t *testing.T) {
	s, reg := newTestServer(&fakeScheduler{})

	ctrl := thermal.NewController(thermal.DefaultConfig())
	b, _ := board.NewBoard("serial-1", "virtual-cpu", board.BoardState{
		Name: "virtual-cpu", Serial: "serial-1", Model: "CPU SHA-256d miner",
	}, ctrl, nil)
	reg.AddBoard(b, board.BoardState{Name: "virtual-cpu", Serial: "serial-1", Model: "CPU SHA-256d miner"})

	rec := do(t, s, http.MethodGet, "/v0/boards", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []BoardSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "virtual-cpu", list[0].Name)

	rec = do(t, s, http.MethodGet, "/v0/boards/virtual-cpu", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
