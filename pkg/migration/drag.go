package migration

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// DragState is the phase of a drag session.
type DragState string

const (
	DragIdle     DragState = "idle"
	DragActive   DragState = "dragging"
	DragFinished DragState = "finished"
)

// Drag tracks one drag session from pickup to drop. Over previews the
// operation a drop would run; Drop classifies again against the current graph
// before executing.
type Drag struct {
	r      *Resolver
	source []string

	mu    sync.Mutex
	state DragState
	instr *domain.Instruction
}

// StartDrag begins a drag of the node at sourcePath.
func (r *Resolver) StartDrag(sourcePath []string) *Drag {
	return &Drag{
		r:      r,
		source: append([]string(nil), sourcePath...),
		state:  DragActive,
	}
}

// State returns the phase of the session.
func (d *Drag) State() DragState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Over records the current drop target and returns the plan a drop would run.
func (d *Drag) Over(targetPath []string, t domain.InstructionType) Plan {
	instr := domain.Instruction{
		Type:       t,
		SourcePath: d.source,
		TargetPath: append([]string(nil), targetPath...),
	}
	d.mu.Lock()
	if d.state != DragActive {
		d.mu.Unlock()
		return Plan{Operation: domain.OpReject, Instruction: instr, Reason: "drag is over"}
	}
	d.instr = &instr
	d.mu.Unlock()
	return d.r.Classify(instr)
}

// Leave clears the drop target.
func (d *Drag) Leave() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.instr = nil
}

// Drop ends the session and executes the last target. Dropping outside any
// target rejects.
func (d *Drag) Drop(ctx context.Context) Result {
	d.mu.Lock()
	instr, active := d.instr, d.state == DragActive
	d.state = DragFinished
	d.instr = nil
	d.mu.Unlock()

	if !active || instr == nil {
		return Result{Plan: Plan{Operation: domain.OpReject, Reason: "no drop target"}}
	}
	return d.r.Drop(ctx, *instr)
}

// Cancel ends the session without dropping.
func (d *Drag) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = DragIdle
	d.instr = nil
}
