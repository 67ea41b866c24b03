package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/starford/relaynote/internal/apperr"
	"github.com/starford/relaynote/internal/models"
)

const readLimit = 16 << 20

// WSClient speaks the JSON request/response protocol to one relay over a
// websocket. The connection is dialed lazily and re-dialed after any failure.
// Calls are serialized on the connection.
type WSClient struct {
	url     string
	timeout time.Duration
	logger  *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	seq  uint64
}

// NewWSClient returns a client for the relay at url. Each call is bounded by timeout.
func NewWSClient(url string, timeout time.Duration, logger *slog.Logger) *WSClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSClient{url: url, timeout: timeout, logger: logger}
}

// URL returns the relay address.
func (c *WSClient) URL() string {
	return c.url
}

// Close closes the connection if one is open.
func (c *WSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close(websocket.StatusNormalClosure, "")
	c.conn = nil
	return err
}

func (c *WSClient) call(ctx context.Context, method string, params, result any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.conn == nil {
		conn, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			return apperr.Transport("relay: dial "+c.url, err)
		}
		conn.SetReadLimit(readLimit)
		c.conn = conn
		c.logger.Debug("relay: connected", slog.String("url", c.url))
	}

	c.seq++
	req := request{ID: strconv.FormatUint(c.seq, 10), Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("relay: encode %s: %w", method, err)
		}
		req.Params = raw
	}
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("relay: encode %s: %w", method, err)
	}

	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.reset()
		return apperr.Transport("relay: "+method, err)
	}

	var resp response
	for {
		_, msg, err := c.conn.Read(ctx)
		if err != nil {
			c.reset()
			return apperr.Transport("relay: "+method, err)
		}
		if err := json.Unmarshal(msg, &resp); err != nil {
			c.reset()
			return apperr.Transport("relay: "+method, fmt.Errorf("decode response: %w", err))
		}
		// Responses to calls abandoned after a timeout are skipped.
		if resp.ID == req.ID {
			break
		}
	}

	if resp.Error != "" {
		return apperr.Transport("relay: "+method, errors.New(resp.Error))
	}
	if result == nil || len(resp.Result) == 0 || string(resp.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Result, result); err != nil {
		return apperr.Validation("relay: decode "+method, err)
	}
	return nil
}

func (c *WSClient) reset() {
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusGoingAway, "")
		c.conn = nil
	}
}

// Ping checks the relay answers.
func (c *WSClient) Ping(ctx context.Context) error {
	return c.call(ctx, MethodPing, nil, nil)
}

func (c *WSClient) PublishNote(ctx context.Context, author string, note models.Note) (string, error) {
	var res eventIDResult
	err := c.call(ctx, MethodPublishNote, publishNoteParams{Author: author, Note: note}, &res)
	return res.EventID, err
}

func (c *WSClient) PublishDeletion(ctx context.Context, author, remoteID string) (string, error) {
	var res eventIDResult
	err := c.call(ctx, MethodPublishDeletion, publishDeletionParams{Author: author, RemoteID: remoteID}, &res)
	return res.EventID, err
}

func (c *WSClient) PublishOntology(ctx context.Context, author string, tree *models.OntologyTree) (string, error) {
	var res eventIDResult
	err := c.call(ctx, MethodPublishOntology, publishOntologyParams{Author: author, Tree: tree}, &res)
	return res.EventID, err
}

func (c *WSClient) PublishContactList(ctx context.Context, author string, contacts []models.Contact) (string, error) {
	var res eventIDResult
	err := c.call(ctx, MethodPublishContacts, publishContactsParams{Author: author, Contacts: contacts}, &res)
	return res.EventID, err
}

func (c *WSClient) FetchNotesSince(ctx context.Context, since time.Time) ([]RemoteNote, error) {
	var out []RemoteNote
	err := c.call(ctx, MethodFetchNotes, fetchParams{Since: since}, &out)
	return out, err
}

func (c *WSClient) FetchOntology(ctx context.Context, author string) (*RemoteOntology, error) {
	var out *RemoteOntology
	err := c.call(ctx, MethodFetchOntology, fetchParams{Author: author}, &out)
	return out, err
}

func (c *WSClient) FetchContacts(ctx context.Context, author string) (*ContactList, error) {
	var out *ContactList
	err := c.call(ctx, MethodFetchContacts, fetchParams{Author: author}, &out)
	return out, err
}

func (c *WSClient) FetchDeletionsSince(ctx context.Context, author string, since time.Time) ([]Deletion, error) {
	var out []Deletion
	err := c.call(ctx, MethodFetchDeletions, fetchParams{Author: author, Since: since}, &out)
	return out, err
}

var (
	_ Client = (*WSClient)(nil)
	_ Pinger = (*WSClient)(nil)
)
