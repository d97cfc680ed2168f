package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/ctxcache/internal/cache"
	"github.com/starford/ctxcache/internal/docservice"
	"github.com/starford/ctxcache/internal/index"
	"github.com/starford/ctxcache/internal/models"
	"github.com/starford/ctxcache/internal/testutil"
)

func testServer(t *testing.T) (*Server, *testutil.Project) {
	t.Helper()
	p := testutil.NewProject(t)
	c, err := cache.New(p.ContextDir)
	if err != nil {
		t.Fatal(err)
	}
	db, err := index.Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	svc, err := docservice.New(c, db)
	if err != nil {
		t.Fatal(err)
	}
	return New(svc), p
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"context_status":        srv.contextStatus,
		"context_sync":          srv.contextSync,
		"context_find":          srv.contextFind,
		"context_search":        srv.contextSearch,
		"read_document":         srv.readDocument,
		"get_document_contract": srv.getDocumentContract,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestSyncStatusFind(t *testing.T) {
	srv, p := testServer(t)
	p.WriteSource("src/a.go", "a")
	p.WriteDoc("a.md", testutil.Doc("a", nil, "`src/a.go`"))

	r := callTool(t, srv, "context_sync", map[string]any{})
	if r.IsError {
		t.Fatalf("sync error: %s", resultText(r))
	}
	var sync models.SyncResult
	if err := json.Unmarshal([]byte(resultText(r)), &sync); err != nil {
		t.Fatal(err)
	}
	if sync.Count != 1 {
		t.Errorf("sync = %+v", sync)
	}

	p.RemoveSource("src/a.go")
	r = callTool(t, srv, "context_status", map[string]any{"invalid_only": true})
	var docs []models.Validation
	if err := json.Unmarshal([]byte(resultText(r)), &docs); err != nil {
		t.Fatal(err)
	}
	if len(docs) != 1 || docs[0].Status != models.StatusOrphaned {
		t.Errorf("status = %+v", docs)
	}

	r = callTool(t, srv, "context_find", map[string]any{"paths": []any{"src/a.go"}})
	var found []models.FindResult
	if err := json.Unmarshal([]byte(resultText(r)), &found); err != nil {
		t.Fatalf("decode %q: %v", resultText(r), err)
	}
	if len(found) != 1 || len(found[0].Matches) != 1 || found[0].Matches[0].Document != "a.md" {
		t.Errorf("find = %+v", found)
	}
}

func TestSync_InvalidReferencesReport(t *testing.T) {
	srv, p := testServer(t)
	p.WriteDoc("a.md", testutil.Doc("a", nil, "`src/missing.go`"))

	r := callTool(t, srv, "context_sync", map[string]any{"path": "a.md"})
	if !r.IsError {
		t.Fatal("expected error result")
	}
	text := resultText(r)
	if !strings.Contains(text, "a.md:") || !strings.Contains(text, "src/missing.go: file not found") {
		t.Errorf("report = %q", text)
	}
}

func TestFind_MissingPaths(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "context_find", map[string]any{}); !r.IsError {
		t.Error("expected error without paths")
	}
}

func TestReadDocumentAndSearch(t *testing.T) {
	srv, p := testServer(t)
	content := testutil.Doc("setup", nil, "# Setup\n\nInstall the toolchain.\n")
	p.WriteDoc("guides/setup.md", content)

	r := callTool(t, srv, "read_document", map[string]any{"path": "guides/setup.md"})
	if got := resultText(r); got != content {
		t.Errorf("read = %q, want %q", got, content)
	}

	r = callTool(t, srv, "read_document", map[string]any{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing document")
	}

	r = callTool(t, srv, "context_search", map[string]any{"query": "toolchain"})
	if !strings.Contains(resultText(r), "guides/setup.md") {
		t.Errorf("search = %q", resultText(r))
	}
}

func TestGetDocumentContract(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "get_document_contract", nil)
	if !strings.Contains(resultText(r), "references:") {
		t.Error("contract missing references section")
	}

	contents, err := srv.readFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil || len(contents) != 1 {
		t.Fatalf("resource = %v, %v", contents, err)
	}
	if tc, ok := contents[0].(mcp.TextResourceContents); !ok || tc.URI != formatURI {
		t.Errorf("resource content = %+v", contents[0])
	}
}
