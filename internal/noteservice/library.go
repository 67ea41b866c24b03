package noteservice

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

// TemplateInput holds the editable fields of a template.
type TemplateInput struct {
	Name    string       `json:"name"`
	Title   string       `json:"title"`
	Content string       `json:"content"`
	Tags    []string     `json:"tags"`
	Fields  models.Attrs `json:"fields,omitempty"`
}

// Validate checks the input.
func (in TemplateInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 128)),
	)
}

// ListTemplates returns every template ordered by name.
func (s *Service) ListTemplates(_ context.Context) ([]models.Template, error) {
	tpls, err := s.store.ListTemplates()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(tpls), nil
}

// GetTemplate returns a template by id.
func (s *Service) GetTemplate(_ context.Context, id string) (models.Template, error) {
	return s.store.GetTemplate(id)
}

// CreateTemplate stores a new template.
func (s *Service) CreateTemplate(_ context.Context, in TemplateInput) (models.Template, error) {
	if err := in.Validate(); err != nil {
		return models.Template{}, apperr.Validation("noteservice: create template", err)
	}
	now := s.now().UTC()
	tpl := models.Template{
		ID:        s.newID(),
		Name:      strings.TrimSpace(in.Name),
		Title:     in.Title,
		Content:   in.Content,
		Tags:      cleanTags(in.Tags),
		Fields:    in.Fields.Clone(),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.SaveTemplate(tpl); err != nil {
		return models.Template{}, err
	}
	return tpl, nil
}

// UpdateTemplate replaces the editable fields of a template.
func (s *Service) UpdateTemplate(_ context.Context, id string, in TemplateInput) (models.Template, error) {
	if err := in.Validate(); err != nil {
		return models.Template{}, apperr.Validation("noteservice: update template", err)
	}
	tpl, err := s.store.GetTemplate(id)
	if err != nil {
		return models.Template{}, err
	}
	tpl.Name = strings.TrimSpace(in.Name)
	tpl.Title = in.Title
	tpl.Content = in.Content
	tpl.Tags = cleanTags(in.Tags)
	tpl.Fields = in.Fields.Clone()
	tpl.UpdatedAt = s.now().UTC()
	if err := s.store.SaveTemplate(tpl); err != nil {
		return models.Template{}, err
	}
	return tpl, nil
}

// DeleteTemplate removes a template.
func (s *Service) DeleteTemplate(_ context.Context, id string) error {
	if _, err := s.store.GetTemplate(id); err != nil {
		return err
	}
	return s.store.DeleteTemplate(id)
}

// CreateNoteFromTemplate creates a note seeded from a template. Non-empty
// fields of in override the template; tags and fields are merged.
func (s *Service) CreateNoteFromTemplate(ctx context.Context, templateID string, in NoteInput) (models.Note, error) {
	tpl, err := s.store.GetTemplate(templateID)
	if err != nil {
		return models.Note{}, err
	}
	seeded := in
	if seeded.Title == "" {
		seeded.Title = tpl.Title
	}
	if seeded.Content == "" {
		seeded.Content = tpl.Content
	}
	seeded.Tags = append(append([]string{}, tpl.Tags...), in.Tags...)
	fields := tpl.Fields.Clone()
	for _, kv := range in.Fields {
		fields = fields.Set(kv.Key, kv.Value)
	}
	seeded.Fields = fields
	return s.CreateNote(ctx, seeded)
}

// ListContacts returns the known contacts, oldest first.
func (s *Service) ListContacts(_ context.Context) ([]models.Contact, error) {
	contacts, err := s.store.ListContacts()
	if err != nil {
		return nil, err
	}
	return nonNilSlice(contacts), nil
}

// AddContact stores a contact, or updates the alias of a known one.
func (s *Service) AddContact(_ context.Context, pubkey, alias string) (models.Contact, error) {
	pubkey = strings.TrimSpace(pubkey)
	if pubkey == "" {
		return models.Contact{}, apperr.Validation("noteservice: add contact", errors.New("public key is required"))
	}
	contacts, err := s.store.ListContacts()
	if err != nil {
		return models.Contact{}, err
	}
	c := models.Contact{PubKey: pubkey, Alias: strings.TrimSpace(alias), AddedAt: s.now().UTC()}
	for _, known := range contacts {
		if known.PubKey == pubkey {
			c.AddedAt = known.AddedAt
			break
		}
	}
	if err := s.store.SaveContact(c); err != nil {
		return models.Contact{}, err
	}
	return c, nil
}

// RemoveContact forgets a contact locally.
func (s *Service) RemoveContact(_ context.Context, pubkey string) error {
	return s.store.DeleteContact(pubkey)
}
