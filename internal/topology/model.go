// Package topology holds the relationship topology engine: tree merge,
// diagram compilation, the expansion controller and the viewport.
package topology

import (
	"sort"

	"github.com/KilluaDB/topology/internal/models"
)

func KeyOf(node *models.RelationshipNode) models.NodeKey {
	if node == nil {
		return ""
	}
	if node.Table != "" {
		return node.Table
	}
	return models.NewNodeKey(node.Schema, node.Name)
}

func SameKey(a, b models.NodeKey) bool {
	return a == b
}

// KeySet is a set of node keys. The zero value is not usable; use NewKeySet.
type KeySet map[models.NodeKey]struct{}

func NewKeySet(keys ...models.NodeKey) KeySet {
	s := make(KeySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

func (s KeySet) Has(k models.NodeKey) bool {
	_, ok := s[k]
	return ok
}

func (s KeySet) Add(k models.NodeKey) {
	s[k] = struct{}{}
}

func (s KeySet) Remove(k models.NodeKey) {
	delete(s, k)
}

func (s KeySet) Clone() KeySet {
	out := make(KeySet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Sorted returns the keys in lexical order.
func (s KeySet) Sorted() []models.NodeKey {
	keys := make([]models.NodeKey, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// MaterializedKeys returns the far-side keys of every relationship in the
// tree that carries children.
func MaterializedKeys(root *models.RelationshipNode) KeySet {
	out := NewKeySet()
	var walk func(n *models.RelationshipNode)
	walk = func(n *models.RelationshipNode) {
		if n == nil {
			return
		}
		for i := range n.Relationships {
			rel := &n.Relationships[i]
			if rel.Children == nil {
				continue
			}
			out.Add(rel.FarKey())
			walk(rel.Children)
		}
	}
	walk(root)
	return out
}
