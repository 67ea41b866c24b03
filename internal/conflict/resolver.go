// Package conflict decides between local and remote versions of an entity
// using last-write-wins on updatedAt.
package conflict

import (
	"time"

	"github.com/starford/relaynote/internal/models"
)

// Decision is the outcome of a resolution.
type Decision int

const (
	KeepLocal Decision = iota
	KeepRemote
)

func (d Decision) String() string {
	if d == KeepRemote {
		return "keep_remote"
	}
	return "keep_local"
}

// Versioned is anything carrying a last-write-wins timestamp.
type Versioned interface {
	Version() time.Time
}

// Resolve keeps whichever side has the strictly greater timestamp.
// An exact tie keeps local.
func Resolve[T Versioned](local, remote T) Decision {
	if remote.Version().After(local.Version()) {
		return KeepRemote
	}
	return KeepLocal
}

// Sanitizer cleans untrusted rich text before it is stored.
type Sanitizer interface {
	Sanitize(content string) string
}

// NoteResult is the outcome of ResolveNote. Note holds the winning version,
// already sanitized when the remote side won.
type NoteResult struct {
	Decision Decision
	Note     models.Note
}

// ResolveNote resolves a remote note against its local copy. A nil local
// counts as the remote winning.
func ResolveNote(local *models.Note, remote models.Note, s Sanitizer) NoteResult {
	if local != nil && Resolve(*local, remote) == KeepLocal {
		return NoteResult{Decision: KeepLocal, Note: *local}
	}
	winner := remote.Clone()
	if s != nil {
		winner.Content = s.Sanitize(winner.Content)
	}
	return NoteResult{Decision: KeepRemote, Note: winner}
}

// ResolveOntology resolves a remote ontology against the local one. A nil
// local counts as the remote winning.
func ResolveOntology(local, remote *models.OntologyTree) Decision {
	if local == nil {
		return KeepRemote
	}
	return Resolve(*local, *remote)
}
