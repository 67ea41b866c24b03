// Package ontology maintains the tag forest and expands tags through it.
package ontology

import (
	"strings"

	"github.com/starford/relaynote/internal/models"
)

// Normalize lower-cases a tag and strips surrounding whitespace and a leading '#'.
func Normalize(tag string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(tag), "#"))
}

// Expand returns the semantic closure of tag: the normalized tag itself plus,
// for every node whose label normalizes to the same value, the labels of its
// full ancestor chain and full descendant subtree.
func Expand(tree *models.OntologyTree, tag string) map[string]struct{} {
	norm := Normalize(tag)
	out := make(map[string]struct{})
	if norm == "" {
		return out
	}
	out[norm] = struct{}{}
	if tree == nil {
		return out
	}

	for _, node := range tree.Nodes {
		if Normalize(node.Label) != norm {
			continue
		}
		addAncestors(tree, node, out)
		addDescendants(tree, node, out)
	}
	return out
}

// ExpandAll returns the union of Expand over tags.
func ExpandAll(tree *models.OntologyTree, tags []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tag := range tags {
		for t := range Expand(tree, tag) {
			out[t] = struct{}{}
		}
	}
	return out
}

func addAncestors(tree *models.OntologyTree, node *models.OntologyNode, out map[string]struct{}) {
	seen := map[string]bool{node.ID: true}
	for id := node.ParentID; id != "" && !seen[id]; {
		seen[id] = true
		parent, ok := tree.Nodes[id]
		if !ok {
			return
		}
		if l := Normalize(parent.Label); l != "" {
			out[l] = struct{}{}
		}
		id = parent.ParentID
	}
}

func addDescendants(tree *models.OntologyTree, node *models.OntologyNode, out map[string]struct{}) {
	seen := map[string]bool{node.ID: true}
	stack := append([]string(nil), node.Children...)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[id] {
			continue
		}
		seen[id] = true
		child, ok := tree.Nodes[id]
		if !ok {
			continue
		}
		if l := Normalize(child.Label); l != "" {
			out[l] = struct{}{}
		}
		stack = append(stack, child.Children...)
	}
}
