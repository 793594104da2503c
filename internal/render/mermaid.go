// Package render serializes a compiled topology diagram to Mermaid flowchart
// text for the front-end renderer.
package render

import (
	"errors"
	"fmt"
	"strings"

	"github.com/KilluaDB/topology/internal/models"
)

// RenderError means the diagram could not be turned into renderer input.
// Retrying should re-render the existing tree rather than fetch again.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("failed to render diagram: %v", e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// Result is a rendered diagram. ClickTable maps the id of every expandable
// node to the key it expands.
type Result struct {
	Source     string                    `json:"source"`
	ClickTable map[string]models.NodeKey `json:"clickTable"`
}

// Lookup resolves a clicked node id.
func (r *Result) Lookup(nodeID string) (models.NodeKey, bool) {
	if r == nil {
		return "", false
	}
	key, ok := r.ClickTable[nodeID]
	return key, ok
}

type Renderer interface {
	Render(ir models.DiagramIR) (*Result, error)
}

type Mermaid struct {
	// Direction is the flowchart orientation: LR, RL, TB or BT.
	Direction string
}

func NewMermaid() *Mermaid {
	return &Mermaid{Direction: "LR"}
}

var classDefs = []string{
	"classDef focus fill:#FF6D00,stroke:#AA00FF,color:#FFFFFF",
	"classDef table fill:#ECEFF1,stroke:#546E7A,color:#263238",
	"classDef loading fill:#FFF8E1,stroke:#FFB300,stroke-dasharray:4 2",
	"classDef expand fill:#E3F2FD,stroke:#1E88E5,color:#1E88E5",
}

func (m *Mermaid) Render(ir models.DiagramIR) (*Result, error) {
	if err := validate(ir); err != nil {
		return nil, &RenderError{Err: err}
	}

	direction := m.Direction
	if direction == "" {
		direction = "LR"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("flowchart %s\n", direction))
	for _, def := range classDefs {
		sb.WriteString("    " + def + "\n")
	}
	sb.WriteString("\n")

	clicks := make(map[string]models.NodeKey)
	for _, n := range ir.Nodes {
		sb.WriteString("    " + nodeLine(n) + "\n")
		if n.Expandable {
			clicks[n.ID] = n.Key
		}
	}

	if len(ir.Edges) > 0 {
		sb.WriteString("\n")
	}
	for _, e := range ir.Edges {
		sb.WriteString("    " + edgeLine(e) + "\n")
	}

	return &Result{Source: sb.String(), ClickTable: clicks}, nil
}

func nodeLine(n models.NodeSpec) string {
	switch n.Kind {
	case models.NodeKindExpand:
		return fmt.Sprintf("%s((\"%s\")):::expand", n.ID, n.Label)
	case models.NodeKindFocus:
		return fmt.Sprintf("%s[\"%s\"]:::focus", n.ID, n.Label)
	default:
		class := "table"
		if n.Loading {
			class = "loading"
		}
		return fmt.Sprintf("%s[\"%s\"]:::%s", n.ID, n.Label, class)
	}
}

func edgeLine(e models.EdgeSpec) string {
	switch e.Style {
	case models.EdgeStyleExpand:
		return fmt.Sprintf("%s -.- %s", e.From, e.To)
	case models.EdgeStyleIncoming:
		return fmt.Sprintf("%s -.->|\"%s\"| %s", e.From, e.Label, e.To)
	default:
		return fmt.Sprintf("%s -->|\"%s\"| %s", e.From, e.Label, e.To)
	}
}

// validate rejects diagrams a renderer would choke on: empty or duplicate
// ids and edges to nodes that were never emitted.
func validate(ir models.DiagramIR) error {
	ids := make(map[string]struct{}, len(ir.Nodes))
	for _, n := range ir.Nodes {
		if n.ID == "" {
			return fmt.Errorf("node %q has an empty id", n.Key)
		}
		if _, dup := ids[n.ID]; dup {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		ids[n.ID] = struct{}{}
	}
	for _, e := range ir.Edges {
		if _, ok := ids[e.From]; !ok {
			return fmt.Errorf("edge references unknown node %q", e.From)
		}
		if _, ok := ids[e.To]; !ok {
			return fmt.Errorf("edge references unknown node %q", e.To)
		}
	}
	if len(ir.Nodes) == 0 {
		return errors.New("diagram has no nodes")
	}
	return nil
}
