package job

import "github.com/mujina-miner/mujina/internal/types"

// HashTask binds a JobTemplate to a source handle and the sub-range of
// extranonce2 values a single hash thread is responsible for searching. A
// thread has at most one active task; no task means idle.
type HashTask struct {
	Template JobTemplate
	Source   SourceHandle
	Range    types.Extranonce2Range
}

// SourceID returns the identity of the task's originating source, used by
// the scheduler to route ShareFound events without holding onto the full
// handle.
func (t HashTask) SourceID() uint64 {
	return t.Source.ID()
}
