package ontology

import (
	"errors"
	"fmt"
	"slices"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

var (
	ErrCycle         = errors.New("ontology: move would create a cycle")
	ErrDuplicateNode = errors.New("ontology: node already exists")
)

// AddNode inserts node under node.ParentID, or as a root when ParentID is empty.
func AddNode(tree *models.OntologyTree, node models.OntologyNode) error {
	if node.ID == "" || Normalize(node.Label) == "" {
		return fmt.Errorf("ontology: add node: %w: id and label are required", apperr.ErrValidation)
	}
	if _, ok := tree.Nodes[node.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, node.ID)
	}
	if node.ParentID != "" {
		parent, ok := tree.Nodes[node.ParentID]
		if !ok {
			return fmt.Errorf("ontology: parent %s: %w", node.ParentID, apperr.ErrNotFound)
		}
		parent.Children = append(parent.Children, node.ID)
	} else {
		tree.RootIDs = append(tree.RootIDs, node.ID)
	}
	n := node
	n.Children = nil
	tree.Nodes[n.ID] = &n
	return nil
}

// MoveNode reparents id under newParentID, or makes it a root when
// newParentID is empty. Moving a node below itself is rejected.
func MoveNode(tree *models.OntologyTree, id, newParentID string) error {
	node, ok := tree.Nodes[id]
	if !ok {
		return fmt.Errorf("ontology: node %s: %w", id, apperr.ErrNotFound)
	}
	if newParentID != "" {
		if _, ok := tree.Nodes[newParentID]; !ok {
			return fmt.Errorf("ontology: parent %s: %w", newParentID, apperr.ErrNotFound)
		}
		seen := map[string]bool{}
		for cur := newParentID; cur != "" && !seen[cur]; {
			if cur == id {
				return ErrCycle
			}
			seen[cur] = true
			n, ok := tree.Nodes[cur]
			if !ok {
				break
			}
			cur = n.ParentID
		}
	}
	detach(tree, node)
	node.ParentID = newParentID
	if newParentID == "" {
		tree.RootIDs = append(tree.RootIDs, id)
	} else {
		parent := tree.Nodes[newParentID]
		parent.Children = append(parent.Children, id)
	}
	return nil
}

// RemoveNode deletes id. Its children are attached to its parent, or become
// roots when id was a root.
func RemoveNode(tree *models.OntologyTree, id string) error {
	node, ok := tree.Nodes[id]
	if !ok {
		return fmt.Errorf("ontology: node %s: %w", id, apperr.ErrNotFound)
	}
	detach(tree, node)
	for _, childID := range node.Children {
		child, ok := tree.Nodes[childID]
		if !ok {
			continue
		}
		child.ParentID = node.ParentID
		if node.ParentID == "" {
			tree.RootIDs = append(tree.RootIDs, childID)
		} else {
			parent := tree.Nodes[node.ParentID]
			parent.Children = append(parent.Children, childID)
		}
	}
	delete(tree.Nodes, id)
	return nil
}

// RenameNode changes the label of id.
func RenameNode(tree *models.OntologyTree, id, label string) error {
	node, ok := tree.Nodes[id]
	if !ok {
		return fmt.Errorf("ontology: node %s: %w", id, apperr.ErrNotFound)
	}
	if Normalize(label) == "" {
		return fmt.Errorf("ontology: rename: %w: label is required", apperr.ErrValidation)
	}
	node.Label = label
	return nil
}

// Validate checks the forest invariants: roots have no parent, every other
// node appears in exactly one parent's children, and there are no cycles.
func Validate(tree *models.OntologyTree) error {
	listed := make(map[string]int)
	for _, n := range tree.Nodes {
		for _, c := range n.Children {
			child, ok := tree.Nodes[c]
			if !ok {
				return fmt.Errorf("ontology: %s lists unknown child %s", n.ID, c)
			}
			if child.ParentID != n.ID {
				return fmt.Errorf("ontology: %s lists %s whose parent is %q", n.ID, c, child.ParentID)
			}
			listed[c]++
		}
	}
	roots := make(map[string]bool, len(tree.RootIDs))
	for _, r := range tree.RootIDs {
		n, ok := tree.Nodes[r]
		if !ok {
			return fmt.Errorf("ontology: unknown root %s", r)
		}
		if n.ParentID != "" {
			return fmt.Errorf("ontology: root %s has parent %s", r, n.ParentID)
		}
		roots[r] = true
	}
	for id, n := range tree.Nodes {
		if n.ParentID == "" {
			if !roots[id] {
				return fmt.Errorf("ontology: parentless node %s is not a root", id)
			}
			continue
		}
		if listed[id] != 1 {
			return fmt.Errorf("ontology: node %s listed by %d parents", id, listed[id])
		}
	}
	// With single listing enforced, a cycle is a chain that never reaches a root.
	for id := range tree.Nodes {
		seen := map[string]bool{}
		for cur := id; cur != ""; cur = tree.Nodes[cur].ParentID {
			if seen[cur] {
				return fmt.Errorf("%w at %s", ErrCycle, id)
			}
			seen[cur] = true
			if _, ok := tree.Nodes[cur]; !ok {
				return fmt.Errorf("ontology: node %s has unknown ancestor %s", id, cur)
			}
		}
	}
	return nil
}

// FindByLabel returns the nodes whose label normalizes to tag.
func FindByLabel(tree *models.OntologyTree, tag string) []*models.OntologyNode {
	norm := Normalize(tag)
	var out []*models.OntologyNode
	for _, n := range tree.Nodes {
		if Normalize(n.Label) == norm {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b *models.OntologyNode) int {
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return out
}

func detach(tree *models.OntologyTree, node *models.OntologyNode) {
	if node.ParentID == "" {
		tree.RootIDs = slices.DeleteFunc(tree.RootIDs, func(s string) bool { return s == node.ID })
		return
	}
	if parent, ok := tree.Nodes[node.ParentID]; ok {
		parent.Children = slices.DeleteFunc(parent.Children, func(s string) bool { return s == node.ID })
	}
}
