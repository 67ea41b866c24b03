package noteservice

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// ErrFolderCycle is returned when a folder would become its own ancestor.
var ErrFolderCycle = errors.New("folder would become its own ancestor")

// ListFolders returns every folder ordered by name.
func (s *Service) ListFolders(_ context.Context) ([]models.Folder, error) {
	folders, err := s.store.ListFolders()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(folders), nil
}

// GetFolder returns a folder by id.
func (s *Service) GetFolder(_ context.Context, id string) (models.Folder, error) {
	return s.store.GetFolder(id)
}

// CreateFolder creates a folder under parentID, or at the top level when
// parentID is empty.
func (s *Service) CreateFolder(_ context.Context, name, parentID string) (models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Folder{}, apperr.Validation("noteservice: create folder", errors.New("name is required"))
	}
	now := s.now().UTC()
	f := models.Folder{
		ID:        s.newID(),
		Name:      name,
		ParentID:  parentID,
		Children:  []string{},
		NoteIDs:   []string{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if parentID == "" {
		if err := s.store.SaveFolder(f); err != nil {
			return models.Folder{}, err
		}
		return f, nil
	}

	parent, err := s.store.GetFolder(parentID)
	if err != nil {
		return models.Folder{}, err
	}
	parent.Children = append(parent.Children, f.ID)
	parent.UpdatedAt = now
	if err := s.store.SaveFolders(parent, f); err != nil {
		return models.Folder{}, err
	}
	return f, nil
}

// RenameFolder changes a folder's name.
func (s *Service) RenameFolder(_ context.Context, id, name string) (models.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Folder{}, apperr.Validation("noteservice: rename folder", errors.New("name is required"))
	}
	f, err := s.store.GetFolder(id)
	if err != nil {
		return models.Folder{}, err
	}
	f.Name = name
	f.UpdatedAt = s.now().UTC()
	if err := s.store.SaveFolder(f); err != nil {
		return models.Folder{}, err
	}
	return f, nil
}

// MoveFolder reparents a folder. An empty newParentID moves it to the top level.
func (s *Service) MoveFolder(_ context.Context, id, newParentID string) (models.Folder, error) {
	f, err := s.store.GetFolder(id)
	if err != nil {
		return models.Folder{}, err
	}
	if f.ParentID == newParentID {
		return f, nil
	}

	now := s.now().UTC()
	touched := map[string]models.Folder{}

	if newParentID != "" {
		// Walk up from the new parent; meeting id means a cycle.
		cur := newParentID
		seen := map[string]struct{}{}
		for cur != "" {
			if cur == id {
				return models.Folder{}, fmt.Errorf("noteservice: move folder %s: %w: %w", id, apperr.ErrValidation, ErrFolderCycle)
			}
			if _, ok := seen[cur]; ok {
				break
			}
			seen[cur] = struct{}{}
			anc, err := s.store.GetFolder(cur)
			if err != nil {
				return models.Folder{}, err
			}
			if cur == newParentID {
				touched[cur] = anc
			}
			cur = anc.ParentID
		}
	}

	if f.ParentID != "" {
		old, err := s.store.GetFolder(f.ParentID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return models.Folder{}, err
		}
		if err == nil {
			old.Children = slices.DeleteFunc(old.Children, func(c string) bool { return c == id })
			old.UpdatedAt = now
			touched[old.ID] = old
		}
	}
	if newParentID != "" {
		np := touched[newParentID]
		if !slices.Contains(np.Children, id) {
			np.Children = append(np.Children, id)
		}
		np.UpdatedAt = now
		touched[newParentID] = np
	}

	f.ParentID = newParentID
	f.UpdatedAt = now
	batch := []models.Folder{f}
	for _, t := range touched {
		batch = append(batch, t)
	}
	if err := s.store.SaveFolders(batch...); err != nil {
		return models.Folder{}, err
	}
	return f, nil
}

// DeleteFolder removes a folder. Its subfolders and notes move to its parent.
func (s *Service) DeleteFolder(_ context.Context, id string) error {
	f, err := s.store.GetFolder(id)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	var batch []models.Folder
	var parent *models.Folder
	if f.ParentID != "" {
		p, err := s.store.GetFolder(f.ParentID)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
		if err == nil {
			p.Children = slices.DeleteFunc(p.Children, func(c string) bool { return c == id })
			parent = &p
		}
	}
	newParentID := ""
	if parent != nil {
		newParentID = parent.ID
	}

	for _, childID := range f.Children {
		child, err := s.store.GetFolder(childID)
		if errors.Is(err, apperr.ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		child.ParentID = newParentID
		child.UpdatedAt = now
		batch = append(batch, child)
		if parent != nil {
			parent.Children = append(parent.Children, childID)
		}
	}
	if parent != nil {
		for _, nid := range f.NoteIDs {
			if !slices.Contains(parent.NoteIDs, nid) {
				parent.NoteIDs = append(parent.NoteIDs, nid)
			}
		}
		parent.UpdatedAt = now
		batch = append(batch, *parent)
	}

	for _, nid := range f.NoteIDs {
		if err := s.setNoteFolder(nid, newParentID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	if len(batch) > 0 {
		if err := s.store.SaveFolders(batch...); err != nil {
			return err
		}
	}
	return s.store.DeleteFolder(id)
}

// MoveNote files a note under folderID, or takes it out of any folder when
// folderID is empty. Folder membership is local and does not change the
// note's version.
func (s *Service) MoveNote(_ context.Context, noteID, folderID string) (models.Note, error) {
	n, err := s.store.GetNote(noteID)
	if err != nil {
		return models.Note{}, err
	}
	if n.FolderID == folderID {
		return n, nil
	}
	if folderID != "" {
		if _, err := s.store.GetFolder(folderID); err != nil {
			return models.Note{}, err
		}
	}
	old := n.FolderID
	n.FolderID = folderID
	if err := s.store.SaveNote(n); err != nil {
		return models.Note{}, err
	}
	if err := s.moveBetweenFolders(noteID, old, folderID); err != nil {
		return models.Note{}, err
	}
	s.notify(EventSaved, noteID)
	return n, nil
}

func (s *Service) setNoteFolder(noteID, folderID string) error {
	n, err := s.store.GetNote(noteID)
	if err != nil {
		return err
	}
	n.FolderID = folderID
	return s.store.SaveNote(n)
}

func (s *Service) moveBetweenFolders(noteID, from, to string) error {
	if from != "" {
		if err := s.removeFromFolder(from, noteID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return err
		}
	}
	if to != "" {
		return s.addToFolder(to, noteID)
	}
	return nil
}

func (s *Service) addToFolder(folderID, noteID string) error {
	f, err := s.store.GetFolder(folderID)
	if err != nil {
		return err
	}
	if slices.Contains(f.NoteIDs, noteID) {
		return nil
	}
	f.NoteIDs = append(f.NoteIDs, noteID)
	f.UpdatedAt = s.now().UTC()
	return s.store.SaveFolder(f)
}

func (s *Service) removeFromFolder(folderID, noteID string) error {
	f, err := s.store.GetFolder(folderID)
	if err != nil {
		return err
	}
	if !slices.Contains(f.NoteIDs, noteID) {
		return nil
	}
	f.NoteIDs = slices.DeleteFunc(f.NoteIDs, func(id string) bool { return id == noteID })
	f.UpdatedAt = s.now().UTC()
	return s.store.SaveFolder(f)
}
