package models

type NodeKind string

const (
	NodeKindFocus  NodeKind = "focus"
	NodeKindTable  NodeKind = "table"
	NodeKindExpand NodeKind = "expand"
)

type EdgeStyle string

const (
	EdgeStyleOutgoing EdgeStyle = "outgoing"
	EdgeStyleIncoming EdgeStyle = "incoming"
	EdgeStyleExpand   EdgeStyle = "expand"
)

// NodeSpec is a diagram node. Expand nodes carry the key of the table they
// expand so a click can be resolved without any renderer-side state.
type NodeSpec struct {
	ID         string   `json:"id"`
	Key        NodeKey  `json:"key"`
	Label      string   `json:"label"`
	Schema     string   `json:"schema"`
	Table      string   `json:"table"`
	Kind       NodeKind `json:"kind"`
	Loading    bool     `json:"loading,omitempty"`
	Expandable bool     `json:"expandable,omitempty"`
}

type EdgeSpec struct {
	From           string    `json:"from"`
	To             string    `json:"to"`
	Label          string    `json:"label,omitempty"`
	ConstraintName string    `json:"constraintName,omitempty"`
	Style          EdgeStyle `json:"style"`
}

// DiagramIR is the renderer-agnostic output of the diagram compiler.
type DiagramIR struct {
	Nodes []NodeSpec `json:"nodes"`
	Edges []EdgeSpec `json:"edges"`
}
