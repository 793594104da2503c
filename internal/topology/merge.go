package topology

import (
	"github.com/KilluaDB/topology/internal/models"
)

// Merge splices a freshly fetched node into the tree at every location of
// target and returns the new root.
//
// The input tree is never mutated. Only the nodes on a path from the root to
// a match are copied; every other branch is shared with the old tree, so a
// caller holding the old root keeps a valid, unchanged value. When target is
// not present, the input root is returned together with ErrStaleTarget.
func Merge(root *models.RelationshipNode, target models.NodeKey, fetched *models.RelationshipNode) (*models.RelationshipNode, error) {
	if root == nil || fetched == nil {
		return root, ErrStaleTarget
	}
	merged, found := mergeNode(root, target, fetched)
	if !found {
		return root, ErrStaleTarget
	}
	return merged, nil
}

func mergeNode(n *models.RelationshipNode, target models.NodeKey, fetched *models.RelationshipNode) (*models.RelationshipNode, bool) {
	if SameKey(KeyOf(n), target) {
		out := *n
		out.Relationships = fetched.Clone().Relationships
		return &out, true
	}

	var rels []models.Relationship
	for i := range n.Relationships {
		rel := n.Relationships[i]
		changed := false

		switch {
		case SameKey(rel.FarKey(), target):
			rel.Children = attach(rel.Children, target, fetched)
			changed = true
		case rel.Children != nil:
			if child, ok := mergeNode(rel.Children, target, fetched); ok {
				rel.Children = child
				changed = true
			}
		}

		if !changed {
			continue
		}
		if rels == nil {
			rels = make([]models.Relationship, len(n.Relationships))
			copy(rels, n.Relationships)
		}
		rels[i] = rel
	}

	if rels == nil {
		return n, false
	}
	out := *n
	out.Relationships = rels
	return &out, true
}

// attach returns the children node for a relationship whose far side is
// target, keeping the existing node identity fields when there is one.
func attach(existing *models.RelationshipNode, target models.NodeKey, fetched *models.RelationshipNode) *models.RelationshipNode {
	if existing != nil {
		out := *existing
		out.Relationships = fetched.Clone().Relationships
		return &out
	}
	child := fetched.Clone()
	if child.Table == "" {
		child.Table = target
	}
	return child
}
