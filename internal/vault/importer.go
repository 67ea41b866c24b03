package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/checksum"
	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/noteservice"
)

// flagPrefix namespaces the per-file sync flags holding "<checksum> <note id>".
const flagPrefix = "vault:"

// Notes is the part of the note service the importer writes through.
type Notes interface {
	GetNote(ctx context.Context, id string) (models.Note, error)
	CreateNoteWithID(ctx context.Context, id string, in noteservice.NoteInput) (models.Note, error)
	UpdateNote(ctx context.Context, id string, in noteservice.NoteInput) (models.Note, error)
	DeleteNote(ctx context.Context, id string) error
	ListFolders(ctx context.Context) ([]models.Folder, error)
	CreateFolder(ctx context.Context, name, parentID string) (models.Folder, error)
}

// Flags persists what was last imported from each file.
type Flags interface {
	Flag(key string) (string, error)
	SetFlag(key, value string) error
	DeleteFlag(key string) error
	FlagsWithPrefix(prefix string) (map[string]string, error)
}

// Result counts the outcome of a full import.
type Result struct {
	Imported  int `json:"imported"`
	Unchanged int `json:"unchanged"`
	Removed   int `json:"removed"`
	Failed    int `json:"failed"`
}

// Importer mirrors vault files into notes.
type Importer struct {
	fs     *FS
	notes  Notes
	flags  Flags
	logger *slog.Logger
	mu     sync.Mutex
}

// NewImporter creates an importer reading from fs.
func NewImporter(fs *FS, notes Notes, flags Flags, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{fs: fs, notes: notes, flags: flags, logger: logger}
}

// Root returns the vault directory.
func (im *Importer) Root() string {
	return im.fs.Root()
}

// Sync imports every new or changed file and deletes the notes of files that
// disappeared. Failures of single files are logged and counted.
func (im *Importer) Sync(ctx context.Context) (Result, error) {
	im.mu.Lock()
	defer im.mu.Unlock()

	var res Result
	files, err := im.fs.List()
	if err != nil {
		return res, err
	}
	known, err := im.flags.FlagsWithPrefix(flagPrefix)
	if err != nil {
		return res, err
	}

	onDisk := make(map[string]struct{}, len(files))
	for _, f := range files {
		onDisk[f.Path] = struct{}{}
		changed, err := im.importFile(ctx, f.Path)
		switch {
		case err != nil:
			res.Failed++
			im.logger.Warn("vault: import failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		case changed:
			res.Imported++
		default:
			res.Unchanged++
		}
	}

	for key := range known {
		p := strings.TrimPrefix(key, flagPrefix)
		if _, ok := onDisk[p]; ok {
			continue
		}
		if err := im.removePath(ctx, p); err != nil {
			res.Failed++
			im.logger.Warn("vault: remove failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		res.Removed++
	}
	return res, nil
}

// ImportFile imports a single file. It reports false when the file is
// unchanged since the last import.
func (im *Importer) ImportFile(ctx context.Context, relPath string) (bool, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.importFile(ctx, relPath)
}

// RemovePath deletes the note imported from relPath, if any.
func (im *Importer) RemovePath(ctx context.Context, relPath string) error {
	im.mu.Lock()
	defer im.mu.Unlock()
	return im.removePath(ctx, relPath)
}

func (im *Importer) importFile(ctx context.Context, relPath string) (bool, error) {
	data, err := im.fs.Read(relPath)
	if err != nil {
		return false, err
	}
	sum := checksum.Sum(data)
	prevSum, prevID, err := im.record(relPath)
	if err != nil {
		return false, err
	}
	if prevSum == sum {
		return false, nil
	}

	doc := Parse(relPath, data)
	folderID, err := im.ensureFolder(ctx, doc.Folder)
	if err != nil {
		return false, err
	}
	in := noteservice.NoteInput{
		Title:    doc.Title,
		Content:  doc.Body,
		Tags:     doc.Tags,
		Values:   doc.Values,
		Fields:   doc.Fields,
		Status:   doc.Status,
		FolderID: folderID,
	}

	if prevID != "" && prevID != doc.ID {
		if err := im.notes.DeleteNote(ctx, prevID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return false, err
		}
	}
	_, err = im.notes.GetNote(ctx, doc.ID)
	switch {
	case err == nil:
		_, err = im.notes.UpdateNote(ctx, doc.ID, in)
	case errors.Is(err, apperr.ErrNotFound):
		_, err = im.notes.CreateNoteWithID(ctx, doc.ID, in)
	}
	if err != nil {
		return false, fmt.Errorf("vault: import %s: %w", relPath, err)
	}
	if err := im.flags.SetFlag(flagPrefix+relPath, sum+" "+doc.ID); err != nil {
		return false, err
	}
	im.logger.Debug("vault: imported", slog.String("path", relPath), slog.String("note_id", doc.ID))
	return true, nil
}

func (im *Importer) removePath(ctx context.Context, relPath string) error {
	_, id, err := im.record(relPath)
	if err != nil {
		return err
	}
	if id == "" {
		return nil
	}
	if err := im.notes.DeleteNote(ctx, id); err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return err
	}
	if err := im.flags.DeleteFlag(flagPrefix + relPath); err != nil {
		return err
	}
	im.logger.Debug("vault: removed", slog.String("path", relPath), slog.String("note_id", id))
	return nil
}

func (im *Importer) record(relPath string) (sum, id string, err error) {
	v, err := im.flags.Flag(flagPrefix + relPath)
	if err != nil || v == "" {
		return "", "", err
	}
	sum, id, _ = strings.Cut(v, " ")
	return sum, id, nil
}

// ensureFolder resolves a slash separated folder path by name, creating the
// missing levels. An empty path means no folder.
func (im *Importer) ensureFolder(ctx context.Context, folderPath string) (string, error) {
	if folderPath == "" {
		return "", nil
	}
	folders, err := im.notes.ListFolders(ctx)
	if err != nil {
		return "", err
	}
	parentID := ""
	for _, name := range strings.Split(folderPath, "/") {
		if name = strings.TrimSpace(name); name == "" {
			continue
		}
		id := ""
		for _, f := range folders {
			if f.ParentID == parentID && strings.EqualFold(f.Name, name) {
				id = f.ID
				break
			}
		}
		if id == "" {
			created, err := im.notes.CreateFolder(ctx, name, parentID)
			if err != nil {
				return "", err
			}
			folders = append(folders, created)
			id = created.ID
		}
		parentID = id
	}
	return parentID, nil
}
