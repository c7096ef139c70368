package main

import (
	"context"
	"sync"
	"time"
)

type workflowState string

const (
	workflowIdle       workflowState = "idle"
	workflowInProgress workflowState = "in_progress"
	workflowSucceeded  workflowState = "succeeded"
	workflowFailed     workflowState = "failed"
)

// workflowGuard serializes runs of one workflow type. TryStart rejects a
// second run while one is in flight; Finish records the terminal state.
// Progress is a simulated heuristic (ticks toward a 90% cap while running,
// 100% on completion), not a real measurement.
type workflowGuard struct {
	mu       sync.Mutex
	state    workflowState
	progress int
	cancel   context.CancelFunc
	stopTick chan struct{}
	lastErr  string
}

func newWorkflowGuard() *workflowGuard {
	return &workflowGuard{state: workflowIdle}
}

// TryStart transitions Idle/Succeeded/Failed -> InProgress and returns a
// context derived from parent that Cancel aborts. ErrWorkflowBusy when a run
// is already in flight.
func (g *workflowGuard) TryStart(parent context.Context) (context.Context, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == workflowInProgress {
		return nil, ErrWorkflowBusy
	}

	ctx, cancel := context.WithCancel(parent)
	g.state = workflowInProgress
	g.progress = 0
	g.cancel = cancel
	g.lastErr = ""
	g.stopTick = make(chan struct{})

	go g.tickProgress(g.stopTick)
	return ctx, nil
}

func (g *workflowGuard) tickProgress(stop chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.mu.Lock()
			if g.state == workflowInProgress && g.progress < 90 {
				g.progress += 10
				if g.progress > 90 {
					g.progress = 90
				}
			}
			g.mu.Unlock()
		}
	}
}

// Finish records the outcome and releases the progress timer.
func (g *workflowGuard) Finish(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state != workflowInProgress {
		return
	}
	close(g.stopTick)
	g.stopTick = nil
	g.cancel()
	g.cancel = nil

	if err != nil {
		g.state = workflowFailed
		g.lastErr = err.Error()
		return
	}
	g.state = workflowSucceeded
	g.progress = 100
}

// Cancel aborts an in-flight run, releasing its context and timer. The
// running goroutine still calls Finish with the context error.
func (g *workflowGuard) Cancel() {
	g.mu.Lock()
	cancel := g.cancel
	g.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

type workflowStatus struct {
	State    workflowState `json:"state"`
	Progress int           `json:"progress"`
	LastErr  string        `json:"last_error,omitempty"`
}

func (g *workflowGuard) Status() workflowStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return workflowStatus{State: g.state, Progress: g.progress, LastErr: g.lastErr}
}
