// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes relaynote tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/relaynote/internal/models"
	"github.com/starford/relaynote/internal/noteservice"
	"github.com/starford/relaynote/internal/search"
	"github.com/starford/relaynote/internal/syncer"
)

const contractURI = "relaynote://note-format"

// Server wraps the MCP server with relaynote tools.
type Server struct {
	mcp  *server.MCPServer
	svc  *noteservice.Service
	sync syncer.Runner
}

// New creates a new MCP server with all tools registered. runner may be nil,
// in which case run_sync reports that sync is not configured.
func New(svc *noteservice.Service, runner syncer.Runner) *Server {
	s := &Server{svc: svc, sync: runner}

	s.mcp = server.NewMCPServer(
		"relaynote",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Ranked search over local notes. Tags are expanded through the ontology."),
		mcp.WithString("query", mcp.Description("Search query; empty lists every note passing the filters")),
		mcp.WithString("tag", mcp.Description("Optional tag filter")),
		mcp.WithString("status", mcp.Description("Optional status filter: draft, published or private")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read a note with all its fields."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Note id")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a note and queue it for publication unless it is private. "+
			"Read the contract first via the get_note_contract tool or the "+contractURI+" resource."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Note title")),
		mcp.WithString("content", mcp.Description("Note body")),
		mcp.WithString("tags", mcp.Description("Comma separated tags")),
		mcp.WithString("status", mcp.Description("draft (default), published or private")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("get_note_contract",
		mcp.WithDescription("Returns the relaynote note contract. "+
			"Call this before creating notes to ensure correct structure."),
	), s.getNoteContract)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, most recently updated first."),
		mcp.WithString("folder", mcp.Description("Optional folder id to list (empty for all)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("find_matches",
		mcp.WithDescription("List notes of other authors related to a local note, most similar first."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Local note id")),
	), s.findMatches)

	s.mcp.AddTool(mcp.NewTool("run_sync",
		mcp.WithDescription("Run one sync pass against the configured relays and return its report."),
		mcp.WithBoolean("full", mcp.Description("Ignore the last sync time and fetch everything")),
	), s.runSync)

	s.mcp.AddResource(
		mcp.NewResource(contractURI, "Note Contract",
			mcp.WithResourceDescription("Fields and rules for notes created through the tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNoteFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := search.Filters{
		Tag:    req.GetString("tag", ""),
		Status: models.Status(req.GetString("status", "")),
	}
	results, err := s.svc.Search(ctx, req.GetString("query", ""), f)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	n, err := s.svc.GetNote(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	return jsonResult(n)
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := noteservice.NoteInput{
		Title:   title,
		Content: req.GetString("content", ""),
		Status:  models.Status(req.GetString("status", "")),
	}
	for _, t := range strings.Split(req.GetString("tags", ""), ",") {
		if t = strings.TrimSpace(t); t != "" {
			in.Tags = append(in.Tags, t)
		}
	}
	n, err := s.svc.CreateNote(ctx, in)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", n.ID)), nil
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	notes, err := s.svc.Search(ctx, "", search.Filters{FolderID: req.GetString("folder", "")})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(notes) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	lines := make([]string, 0, len(notes))
	for _, n := range notes {
		lines = append(lines, fmt.Sprintf("%s\t%s\t%s", n.ID, n.Status, n.Title))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) findMatches(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	matches, err := s.svc.FindMatches(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(matches) == 0 {
		return mcp.NewToolResultText("no matches found"), nil
	}
	return jsonResult(matches)
}

func (s *Server) runSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.sync == nil {
		return mcp.NewToolResultError("sync is not configured"), nil
	}
	rep, err := s.sync.RunPass(ctx, syncer.PassOptions{Full: req.GetBool("full", false)})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(rep)
}

func (s *Server) getNoteContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NoteFormatContract), nil
}

func (s *Server) readNoteFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      contractURI,
			MIMEType: "text/markdown",
			Text:     NoteFormatContract,
		},
	}, nil
}
