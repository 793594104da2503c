package models

import "strings"

// NodeKey identifies a table as "schema.table".
type NodeKey string

func NewNodeKey(schema, table string) NodeKey {
	return NodeKey(schema + "." + table)
}

// Split returns the schema and table parts. Table names may contain dots,
// so only the first one separates the schema.
func (k NodeKey) Split() (string, string) {
	schema, table, ok := strings.Cut(string(k), ".")
	if !ok {
		return "", string(k)
	}
	return schema, table
}

func (k NodeKey) String() string {
	return string(k)
}

type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Relationship is one foreign key seen from the node it was fetched for.
type Relationship struct {
	Direction      Direction         `json:"direction"`
	ConstraintName string            `json:"constraintName"`
	SourceSchema   string            `json:"sourceSchema"`
	SourceTable    string            `json:"sourceTable"`
	SourceColumn   string            `json:"sourceColumn"`
	TargetSchema   string            `json:"targetSchema"`
	TargetTable    string            `json:"targetTable"`
	TargetColumn   string            `json:"targetColumn"`
	HasMore        bool              `json:"hasMore"`
	Children       *RelationshipNode `json:"children,omitempty"`
}

func (r *Relationship) SourceKey() NodeKey {
	return NewNodeKey(r.SourceSchema, r.SourceTable)
}

func (r *Relationship) TargetKey() NodeKey {
	return NewNodeKey(r.TargetSchema, r.TargetTable)
}

// FarKey is the key of the table on the other end of the foreign key.
func (r *Relationship) FarKey() NodeKey {
	if r.Direction == DirectionIncoming {
		return r.SourceKey()
	}
	return r.TargetKey()
}

// FarSide returns the schema and table of the other end.
func (r *Relationship) FarSide() (string, string) {
	if r.Direction == DirectionIncoming {
		return r.SourceSchema, r.SourceTable
	}
	return r.TargetSchema, r.TargetTable
}

// RelationshipNode is a table together with the relationships known for it.
type RelationshipNode struct {
	Table         NodeKey        `json:"table"`
	Schema        string         `json:"schema"`
	Name          string         `json:"name"`
	Relationships []Relationship `json:"relationships"`
}

func NewRelationshipNode(schema, table string) *RelationshipNode {
	return &RelationshipNode{
		Table:         NewNodeKey(schema, table),
		Schema:        schema,
		Name:          table,
		Relationships: []Relationship{},
	}
}

// Clone returns a deep copy of the node and everything below it.
func (n *RelationshipNode) Clone() *RelationshipNode {
	if n == nil {
		return nil
	}
	out := &RelationshipNode{
		Table:         n.Table,
		Schema:        n.Schema,
		Name:          n.Name,
		Relationships: make([]Relationship, len(n.Relationships)),
	}
	for i, rel := range n.Relationships {
		rel.Children = rel.Children.Clone()
		out.Relationships[i] = rel
	}
	return out
}
