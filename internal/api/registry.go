package api

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mujina-miner/mujina/internal/board"
	"github.com/mujina-miner/mujina/internal/stratum"
)

// Registry is the API layer's read side: cmd/mujina registers boards as
// they're hotplugged in and sources as they're configured, and unregisters
// them on disconnect. Handlers only ever read through the snapshot methods
// below, never touch board/source internals directly.
type Registry struct {
	mu      sync.RWMutex
	boards  map[string]*boardEntry
	sources map[string]*stratum.Source
}

type boardEntry struct {
	board *board.Board
	state board.BoardState
}

func NewRegistry() *Registry {
	return &Registry{
		boards:  make(map[string]*boardEntry),
		sources: make(map[string]*stratum.Source),
	}
}

// AddBoard registers a board under its Board.Name(), seeded with its initial
// state. Call UpdateBoardState as further snapshots arrive on its watch
// channel.
func (r *Registry) AddBoard(b *board.Board, initial board.BoardState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.boards[b.Name()] = &boardEntry{board: b, state: initial}
}

// UpdateBoardState replaces the cached snapshot for a registered board.
// A name with no registered board is ignored (board removed mid-update).
func (r *Registry) UpdateBoardState(name string, state board.BoardState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.boards[name]; ok {
		e.state = state
	}
}

// RemoveBoard drops a board from the registry (disconnect).
func (r *Registry) RemoveBoard(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.boards, name)
}

// AddSource registers a job source under its handle name.
func (r *Registry) AddSource(name string, s *stratum.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources[name] = s
}

// RemoveSource drops a job source from the registry.
func (r *Registry) RemoveSource(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sources, name)
}

func summarizeBoard(e *boardEntry) BoardSummary {
	var hashrate float64
	threads := e.board.Threads()
	threadNames := make([]string, 0, len(threads))
	for _, t := range threads {
		status := t.Status()
		hashrate += status.HashRateEstimate
		threadNames = append(threadNames, fmt.Sprintf("thread-%d", t.ID()))
	}

	fans := make([]FanSummary, len(e.state.Fans))
	for i, f := range e.state.Fans {
		fans[i] = FanSummary{Name: f.Name, DutyPct: f.DutyPct, RPM: f.RPM}
	}
	sensors := make([]TempSummary, len(e.state.Sensors))
	for i, s := range e.state.Sensors {
		sensors[i] = TempSummary{Name: s.Name, Value: s.Value}
	}

	return BoardSummary{
		Name:        e.state.Name,
		Serial:      e.state.Serial,
		Model:       e.state.Model,
		HashRate:    hashrate,
		Fans:        fans,
		Sensors:     sensors,
		ThreadNames: threadNames,
	}
}

func summarizeSource(name string, s *stratum.Source) SourceSummary {
	st := s.Status()
	return SourceSummary{
		Name:            name,
		Connected:       st.Connected,
		CurrentJobID:    st.CurrentJobID,
		ShareDifficulty: st.ShareDifficulty,
		SharesAccepted:  st.SharesAccepted,
		SharesRejected:  st.SharesRejected,
	}
}

// Boards returns a snapshot of every registered board, ordered by name.
func (r *Registry) Boards() []BoardSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]BoardSummary, 0, len(r.boards))
	for _, e := range r.boards {
		out = append(out, summarizeBoard(e))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Board looks up one board by name.
func (r *Registry) Board(name string) (BoardSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.boards[name]
	if !ok {
		return BoardSummary{}, false
	}
	return summarizeBoard(e), true
}

// Sources returns a snapshot of every registered job source.
func (r *Registry) Sources() []SourceSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SourceSummary, 0, len(r.sources))
	for name, s := range r.sources {
		out = append(out, summarizeSource(name, s))
	}
	return out
}

// Source looks up one job source by name.
func (r *Registry) Source(name string) (SourceSummary, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sources[name]
	if !ok {
		return SourceSummary{}, false
	}
	return summarizeSource(name, s), true
}

// TotalHashRate sums every registered board's live hashrate.
func (r *Registry) TotalHashRate() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total float64
	for _, e := range r.boards {
		total += summarizeBoard(e).HashRate
	}
	return total
}

// TotalSharesSubmitted sums accepted shares across every registered source.
func (r *Registry) TotalSharesSubmitted() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var total uint64
	for _, s := range r.sources {
		total += s.Status().SharesAccepted
	}
	return total
}
