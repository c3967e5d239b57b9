package migration

import (
	"github.com/aretw0/arbor/pkg/domain"
)

// Classify turns an instruction into exactly one operation. It never calls
// contributor code and never mutates the graph.
func (r *Resolver) Classify(instr domain.Instruction) Plan {
	plan := Plan{Operation: domain.OpReject, Instruction: instr}
	if instr.Type == domain.Blocked {
		plan.Reason = "blocked"
		return plan
	}
	if len(instr.SourcePath) < 2 || len(instr.TargetPath) == 0 {
		plan.Reason = "source has no parent"
		return plan
	}

	source, ok := r.graph.Node(domain.LastID(instr.SourcePath))
	if !ok {
		return r.notFound(plan, domain.LastID(instr.SourcePath))
	}
	target, ok := r.graph.Node(domain.LastID(instr.TargetPath))
	if !ok {
		return r.notFound(plan, domain.LastID(instr.TargetPath))
	}
	sourceParentPath := domain.ParentPath(instr.SourcePath)
	targetParentPath := domain.ParentPath(instr.TargetPath)
	sourceParent, ok := r.graph.Node(domain.LastID(sourceParentPath))
	if !ok {
		return r.notFound(plan, domain.LastID(sourceParentPath))
	}
	plan.Source = source
	plan.SourceParent = sourceParent

	if instr.Type != domain.MakeChild && domain.SamePath(sourceParentPath, targetParentPath) {
		return r.rearrangePlan(plan, target)
	}

	searchPath := targetParentPath
	if instr.Type == domain.MakeChild {
		searchPath = instr.TargetPath
	}
	destPath, dest := r.acceptingAncestor(searchPath, source.Persistence.Class)
	if dest == nil {
		plan.Reason = "no ancestor accepts class " + source.Persistence.Class
		return plan
	}
	plan.Destination = dest

	key := source.Persistence.Key
	switch {
	case key != "" && dest.Persistence.AcceptKey.Has(key) &&
		dest.Handlers.OnTransferStart != nil && sourceParent.Handlers.OnTransferEnd != nil:
		plan.Operation = domain.OpTransfer
	case dest.Handlers.OnCopy != nil:
		plan.Operation = domain.OpCopy
	default:
		plan.Reason = "destination " + dest.ID + " cannot copy or transfer"
		return plan
	}
	plan.Index = r.insertionIndex(dest.ID, destPath, instr)
	return plan
}

func (r *Resolver) notFound(plan Plan, id string) Plan {
	r.logger.Warn("Drop references an unknown node", "id", id, "type", plan.Instruction.Type)
	plan.Reason = "node not found: " + id
	return plan
}

// rearrangePlan moves the source next to the target among their shared
// parent's plain children.
func (r *Resolver) rearrangePlan(plan Plan, target *domain.Node) Plan {
	siblings := r.plainChildren(plan.SourceParent.ID)
	src, dst := -1, -1
	for i, id := range siblings {
		switch id {
		case plan.Source.ID:
			src = i
		case target.ID:
			dst = i
		}
	}
	if src < 0 || dst < 0 {
		plan.Reason = "source and target are not siblings"
		return plan
	}

	at := dst
	if plan.Instruction.Type == domain.ReorderBelow {
		at++
	}
	if src < at {
		at--
	}
	order := make([]string, 0, len(siblings))
	order = append(order, siblings[:src]...)
	order = append(order, siblings[src+1:]...)
	order = append(order[:at], append([]string{plan.Source.ID}, order[at:]...)...)

	plan.Operation = domain.OpRearrange
	plan.Destination = plan.SourceParent
	plan.Index = at
	plan.Order = order
	return plan
}

// acceptingAncestor walks up path and returns the first node accepting class.
func (r *Resolver) acceptingAncestor(path []string, class string) ([]string, *domain.Node) {
	if class == "" {
		return nil, nil
	}
	for p := path; len(p) > 0; p = domain.ParentPath(p) {
		n, ok := r.graph.Node(domain.LastID(p))
		if !ok {
			continue
		}
		if n.Persistence.Accepts(class) {
			return p, n
		}
	}
	return nil, nil
}

// insertionIndex locates the drop among the destination's children. Reorders
// are relative to the path element directly under the destination; anything
// else appends.
func (r *Resolver) insertionIndex(destID string, destPath []string, instr domain.Instruction) int {
	children := r.plainChildren(destID)
	if instr.Type == domain.MakeChild || len(instr.TargetPath) <= len(destPath) {
		return len(children)
	}
	anchor := instr.TargetPath[len(destPath)]
	for i, id := range children {
		if id != anchor {
			continue
		}
		if instr.Type == domain.ReorderBelow {
			return i + 1
		}
		return i
	}
	return len(children)
}

func (r *Resolver) plainChildren(id string) []string {
	var ids []string
	for _, n := range r.graph.Connections(id, domain.Outbound) {
		if !n.Kind.IsAction() {
			ids = append(ids, n.ID)
		}
	}
	return ids
}
