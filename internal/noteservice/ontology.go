package noteservice

import (
	"context"
	"errors"
	"fmt"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/ontology"
)

func (s *Service) ontologyOrNil() (*models.OntologyTree, error) {
	tree, err := s.store.GetOntology()
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return tree, err
}

// GetOntology returns the ontology, empty when none was ever saved.
func (s *Service) GetOntology(_ context.Context) (*models.OntologyTree, error) {
	tree, err := s.ontologyOrNil()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		return models.NewOntologyTree(), nil
	}
	return tree, nil
}

// editOntology applies fn to the current tree, bumps its version, persists it
// and flags it for publication.
func (s *Service) editOntology(fn func(tree *models.OntologyTree) error) (*models.OntologyTree, error) {
	tree, err := s.ontologyOrNil()
	if err != nil {
		return nil, err
	}
	if tree == nil {
		tree = models.NewOntologyTree()
	}
	prev := tree.UpdatedAt
	if err := fn(tree); err != nil {
		switch {
		case errors.Is(err, ontology.ErrCycle):
			return nil, apperr.Validation("noteservice: ontology", err)
		case errors.Is(err, ontology.ErrDuplicateNode):
			return nil, fmt.Errorf("noteservice: ontology: %w: %w", apperr.ErrAlreadyExists, err)
		}
		return nil, err
	}
	if err := ontology.Validate(tree); err != nil {
		return nil, apperr.Validation("noteservice: ontology", err)
	}
	tree.UpdatedAt = s.now().UTC()
	if !tree.UpdatedAt.After(prev) {
		tree.UpdatedAt = prev.Add(1)
	}
	if err := s.store.SaveOntology(tree); err != nil {
		return nil, err
	}
	if err := s.store.SetOntologyNeedsSync(true); err != nil {
		return nil, err
	}
	return tree, nil
}

// AddOntologyNode inserts a tag into the ontology. A missing id is generated.
func (s *Service) AddOntologyNode(_ context.Context, node models.OntologyNode) (*models.OntologyTree, error) {
	if node.ID == "" {
		node.ID = s.newID()
	}
	return s.editOntology(func(tree *models.OntologyTree) error {
		return ontology.AddNode(tree, node)
	})
}

// MoveOntologyNode reparents a tag.
func (s *Service) MoveOntologyNode(_ context.Context, id, parentID string) (*models.OntologyTree, error) {
	return s.editOntology(func(tree *models.OntologyTree) error {
		return ontology.MoveNode(tree, id, parentID)
	})
}

// RenameOntologyNode changes a tag's label.
func (s *Service) RenameOntologyNode(_ context.Context, id, label string) (*models.OntologyTree, error) {
	return s.editOntology(func(tree *models.OntologyTree) error {
		return ontology.RenameNode(tree, id, label)
	})
}

// RemoveOntologyNode deletes a tag; its children move up to its parent.
func (s *Service) RemoveOntologyNode(_ context.Context, id string) (*models.OntologyTree, error) {
	return s.editOntology(func(tree *models.OntologyTree) error {
		return ontology.RemoveNode(tree, id)
	})
}
