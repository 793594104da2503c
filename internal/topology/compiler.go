package topology

import (
	"github.com/KilluaDB/topology/internal/models"
)

const expandIDPrefix = "expand__"

// ExpandNodeID is the diagram id of the expand affordance attached to key.
func ExpandNodeID(key models.NodeKey) string {
	return expandIDPrefix + SanitizeID(string(key))
}

// Compile turns a relationship tree and its expansion state into a diagram.
//
// The walk is depth first with one visited set seeded with the root, so each
// table is emitted once and cyclic foreign keys terminate. Edges are always
// oriented source -> target; a constraint reached from both of its ends is
// emitted once, while distinct constraints between the same two tables stay
// separate edges. The root always shows its relationships and never gets an
// expand affordance.
func Compile(root *models.RelationshipNode, expanded, loading KeySet) models.DiagramIR {
	ir := models.DiagramIR{
		Nodes: []models.NodeSpec{},
		Edges: []models.EdgeSpec{},
	}
	if root == nil {
		return ir
	}
	if expanded == nil {
		expanded = NewKeySet()
	}
	if loading == nil {
		loading = NewKeySet()
	}

	c := &compiler{
		ir:          &ir,
		expanded:    expanded,
		loading:     loading,
		focusSchema: root.Schema,
		rootKey:     KeyOf(root),
		visited:     NewKeySet(),
		walked:      NewKeySet(),
		affordances: NewKeySet(),
		edges:       make(map[string]struct{}),
	}

	rootKey := c.rootKey
	c.visited.Add(rootKey)
	c.ir.Nodes = append(c.ir.Nodes, models.NodeSpec{
		ID:      SanitizeID(string(rootKey)),
		Key:     rootKey,
		Label:   SanitizeLabel(root.Name),
		Schema:  root.Schema,
		Table:   root.Name,
		Kind:    models.NodeKindFocus,
		Loading: loading.Has(rootKey),
	})
	c.walk(root)
	return ir
}

type compiler struct {
	ir          *models.DiagramIR
	expanded    KeySet
	loading     KeySet
	focusSchema string
	rootKey     models.NodeKey
	visited     KeySet
	walked      KeySet
	affordances KeySet
	edges       map[string]struct{}
}

func (c *compiler) walk(n *models.RelationshipNode) {
	c.walked.Add(KeyOf(n))

	for i := range n.Relationships {
		rel := &n.Relationships[i]
		far := rel.FarKey()
		farSchema, farTable := rel.FarSide()

		if !c.visited.Has(far) {
			c.ir.Nodes = append(c.ir.Nodes, models.NodeSpec{
				ID:      SanitizeID(string(far)),
				Key:     far,
				Label:   SanitizeLabel(c.tableLabel(farSchema, farTable)),
				Schema:  farSchema,
				Table:   farTable,
				Kind:    models.NodeKindTable,
				Loading: c.loading.Has(far),
			})
		}
		c.visited.Add(far)

		c.edge(rel)

		if rel.HasMore && far != c.rootKey && !c.expanded.Has(far) && !c.loading.Has(far) && !c.affordances.Has(far) {
			c.affordances.Add(far)
			id := ExpandNodeID(far)
			c.ir.Nodes = append(c.ir.Nodes, models.NodeSpec{
				ID:         id,
				Key:        far,
				Label:      "+",
				Schema:     farSchema,
				Table:      farTable,
				Kind:       models.NodeKindExpand,
				Expandable: true,
			})
			c.ir.Edges = append(c.ir.Edges, models.EdgeSpec{
				From:  SanitizeID(string(far)),
				To:    id,
				Style: models.EdgeStyleExpand,
			})
		}

		if rel.Children != nil && c.expanded.Has(far) && !c.walked.Has(far) {
			c.walk(rel.Children)
		}
	}
}

func (c *compiler) edge(rel *models.Relationship) {
	source := rel.SourceKey()
	id := string(source) + "|" + rel.ConstraintName
	if _, seen := c.edges[id]; seen {
		return
	}
	c.edges[id] = struct{}{}

	style := models.EdgeStyleOutgoing
	if rel.Direction == models.DirectionIncoming {
		style = models.EdgeStyleIncoming
	}
	c.ir.Edges = append(c.ir.Edges, models.EdgeSpec{
		From:           SanitizeID(string(source)),
		To:             SanitizeID(string(rel.TargetKey())),
		Label:          SanitizeLabel(rel.SourceColumn + " → " + rel.TargetColumn),
		ConstraintName: rel.ConstraintName,
		Style:          style,
	})
}

// tableLabel shows the bare table name for tables in the focus schema and
// the qualified name otherwise.
func (c *compiler) tableLabel(schema, table string) string {
	if schema == c.focusSchema {
		return table
	}
	return schema + "." + table
}
