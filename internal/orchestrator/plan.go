package orchestrator

import (
	"sync"
	"time"
)

// planRecorder accumulates plan steps across branches. Parallel branches
// append concurrently, so entries land in completion order.
type planRecorder struct {
	mu    sync.Mutex
	steps []PlanStep
}

func newPlanRecorder() *planRecorder {
	return &planRecorder{}
}

// add appends one step with its elapsed time since start.
func (p *planRecorder) add(step string, start time.Time, fields PlanStep) {
	entry := PlanStep{"step": step, "latency_ms": time.Since(start).Milliseconds()}
	for k, v := range fields {
		entry[k] = v
	}
	p.mu.Lock()
	p.steps = append(p.steps, entry)
	p.mu.Unlock()
}

func (p *planRecorder) list() []PlanStep {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PlanStep, len(p.steps))
	copy(out, p.steps)
	return out
}
