package models

import "time"

// AttributeDef describes one attribute suggested for notes carrying a node's tag.
type AttributeDef struct {
	Key      string `json:"key" yaml:"key"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	Required bool   `json:"required,omitempty" yaml:"required,omitempty"`
}

// OntologyNode is a tag in the user's ontology.
type OntologyNode struct {
	ID       string         `json:"id"`
	Label    string         `json:"label"`
	ParentID string         `json:"parent_id,omitempty"`
	Children []string       `json:"children"`
	Schema   []AttributeDef `json:"schema,omitempty"`
}

// OntologyTree is a forest of ontology nodes.
type OntologyTree struct {
	Nodes     map[string]*OntologyNode `json:"nodes"`
	RootIDs   []string                 `json:"root_ids"`
	UpdatedAt time.Time                `json:"updated_at"`
}

// NewOntologyTree returns an empty tree.
func NewOntologyTree() *OntologyTree {
	return &OntologyTree{Nodes: make(map[string]*OntologyNode)}
}

// Version returns the last-write-wins timestamp.
func (t OntologyTree) Version() time.Time {
	return t.UpdatedAt
}

// Clone returns a deep copy of t.
func (t *OntologyTree) Clone() *OntologyTree {
	if t == nil {
		return nil
	}
	c := &OntologyTree{
		Nodes:     make(map[string]*OntologyNode, len(t.Nodes)),
		RootIDs:   append([]string(nil), t.RootIDs...),
		UpdatedAt: t.UpdatedAt,
	}
	for id, n := range t.Nodes {
		nn := *n
		nn.Children = append([]string(nil), n.Children...)
		nn.Schema = append([]AttributeDef(nil), n.Schema...)
		c.Nodes[id] = &nn
	}
	return c
}
