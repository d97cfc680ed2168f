// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes the context cache to LLM clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/docservice"
)

const (
	serverName    = "context"
	serverVersion = "1.0.0"
	formatURI     = "context://document-format"
)

// Server wraps the MCP server with the context cache tools.
type Server struct {
	mcp *server.MCPServer
	svc *docservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *docservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		serverName,
		serverVersion,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Context documentation cache server. Use context_status to check "+
			"document validity, context_find to locate documents referencing source files, and "+
			"context_sync to update fingerprints after reviewing documentation."),
	)

	s.mcp.AddTool(mcp.NewTool("context_status",
		mcp.WithDescription("Validate all context documents and return their status (valid, stale, or orphaned)."),
		mcp.WithBoolean("invalid_only", mcp.Description("If true, only return stale or orphaned documents")),
	), s.contextStatus)

	s.mcp.AddTool(mcp.NewTool("context_sync",
		mcp.WithDescription("Update reference fingerprints for context documents, marking them as reviewed. "+
			"Fails without writing anything if any document mentions an invalid path."),
		mcp.WithString("path", mcp.Description("Path to a specific document to sync. If omitted, syncs all documents.")),
	), s.contextSync)

	s.mcp.AddTool(mcp.NewTool("context_find",
		mcp.WithDescription("Find all context documents that reference the given source file path(s)."),
		mcp.WithArray("paths", mcp.Required(), mcp.WithStringItems(),
			mcp.Description(`Source file paths to search for (e.g. ["internal/api/router.go"])`)),
	), s.contextFind)

	s.mcp.AddTool(mcp.NewTool("context_search",
		mcp.WithDescription("Search context documents by slug, title, description and body."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
	), s.contextSearch)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the full content of a context document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Document path relative to .context (e.g. guides/setup.md)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the context document format. Call this before writing documents."),
	), s.getDocumentContract)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Context Document Format",
			mcp.WithResourceDescription("Format and sync rules of context documents."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server.
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

func (s *Server) contextStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.svc.Status(ctx, req.GetBool("invalid_only", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(docs)
}

func (s *Server) contextSync(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := s.svc.Sync(ctx, req.GetString("path", ""))
	var ire *apperr.InvalidReferencesError
	switch {
	case errors.As(err, &ire):
		return mcp.NewToolResultError(ire.Detail()), nil
	case err != nil:
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(result)
}

func (s *Server) contextFind(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	paths, err := req.RequireStringSlice("paths")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Find(ctx, paths)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) contextSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, 20)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := s.svc.GetDocument(ctx, path)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return mcp.NewToolResultError("not found: " + path), nil
		}
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(doc.Content), nil
}

func (s *Server) getDocumentContract(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readFormatResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
