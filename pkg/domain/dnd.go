package domain

// InstructionType is the kind of drop the UI computed from pointer position.
type InstructionType string

const (
	ReorderAbove InstructionType = "reorder-above"
	ReorderBelow InstructionType = "reorder-below"
	MakeChild    InstructionType = "make-child"
	Blocked      InstructionType = "instruction-blocked"
)

// Instruction is a drag-and-drop gesture: drop the node at SourcePath onto TargetPath.
type Instruction struct {
	Type       InstructionType `json:"type"`
	SourcePath []string        `json:"source_path"`
	TargetPath []string        `json:"target_path"`
}

// Operation is the outcome of classifying an instruction.
type Operation string

const (
	OpRearrange Operation = "rearrange"
	OpCopy      Operation = "copy"
	OpTransfer  Operation = "transfer"
	OpReject    Operation = "reject"
)
