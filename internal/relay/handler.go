package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
)

// Handler serves the relay protocol over websockets, backed by any Client.
// It is what `app relay` runs for local development.
type Handler struct {
	backend Client
	logger  *slog.Logger
}

// NewHandler returns a websocket handler dispatching to backend.
func NewHandler(backend Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{backend: backend, logger: logger}
}

// ServeHTTP upgrades the connection and answers requests until the peer leaves.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("relay: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(readLimit)

	ctx := r.Context()
	h.logger.Debug("relay: peer connected", slog.String("remote", r.RemoteAddr))

	for {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 && !errors.Is(err, context.Canceled) {
				h.logger.Debug("relay: read failed", slog.String("error", err.Error()))
			}
			return
		}

		var req request
		resp := response{}
		if err := json.Unmarshal(msg, &req); err != nil {
			resp.Error = "malformed request"
		} else {
			resp.ID = req.ID
			result, err := h.dispatch(ctx, req)
			if err != nil {
				resp.Error = err.Error()
			} else if result != nil {
				raw, err := json.Marshal(result)
				if err != nil {
					resp.Error = "encode result: " + err.Error()
				} else {
					resp.Result = raw
				}
			}
		}

		data, _ := json.Marshal(resp)
		writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = conn.Write(writeCtx, websocket.MessageText, data)
		cancel()
		if err != nil {
			h.logger.Debug("relay: write failed", slog.String("error", err.Error()))
			return
		}
	}
}

func (h *Handler) dispatch(ctx context.Context, req request) (any, error) {
	decode := func(v any) error {
		if len(req.Params) == 0 {
			return fmt.Errorf("%s: params required", req.Method)
		}
		return json.Unmarshal(req.Params, v)
	}

	switch req.Method {
	case MethodPing:
		if p, ok := h.backend.(Pinger); ok {
			return nil, p.Ping(ctx)
		}
		return nil, nil

	case MethodPublishNote:
		var p publishNoteParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		id, err := h.backend.PublishNote(ctx, p.Author, p.Note)
		return eventIDResult{EventID: id}, err

	case MethodPublishDeletion:
		var p publishDeletionParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		id, err := h.backend.PublishDeletion(ctx, p.Author, p.RemoteID)
		return eventIDResult{EventID: id}, err

	case MethodPublishOntology:
		var p publishOntologyParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		if p.Tree == nil {
			return nil, errors.New("publish_ontology: tree required")
		}
		id, err := h.backend.PublishOntology(ctx, p.Author, p.Tree)
		return eventIDResult{EventID: id}, err

	case MethodPublishContacts:
		var p publishContactsParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		id, err := h.backend.PublishContactList(ctx, p.Author, p.Contacts)
		return eventIDResult{EventID: id}, err

	case MethodFetchNotes:
		var p fetchParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return h.backend.FetchNotesSince(ctx, p.Since)

	case MethodFetchOntology:
		var p fetchParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return h.backend.FetchOntology(ctx, p.Author)

	case MethodFetchContacts:
		var p fetchParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return h.backend.FetchContacts(ctx, p.Author)

	case MethodFetchDeletions:
		var p fetchParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return h.backend.FetchDeletionsSince(ctx, p.Author, p.Since)
	}
	return nil, fmt.Errorf("unknown method %q", req.Method)
}
