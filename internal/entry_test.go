package internal

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/models"
	"github.com/starford/ctxcache/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestResolveRoot_FromSubdir(t *testing.T) {
	p := testutil.NewProject(t)
	sub := filepath.Join(p.Root, "internal", "pkg")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveRoot(sub)
	if err != nil {
		t.Fatalf("ResolveRoot: %v", err)
	}
	if got != p.ContextDir {
		t.Errorf("root = %q, want %q", got, p.ContextDir)
	}
}

func TestResolveRoot_NotARepository(t *testing.T) {
	_, err := ResolveRoot(t.TempDir())
	if !errors.Is(err, apperr.ErrNotARepository) {
		t.Fatalf("err = %v, want ErrNotARepository", err)
	}
}

func TestInitCache(t *testing.T) {
	dir := t.TempDir()
	root, err := InitCache(dir, discardLogger())
	if err != nil {
		t.Fatalf("InitCache: %v", err)
	}
	for _, rel := range []string{"index.md", "guides/index.md", "references/index.md"} {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			t.Errorf("%s not created: %v", rel, err)
		}
	}
	if filepath.Base(root) != ".context" {
		t.Errorf("root = %q, want a .context directory", root)
	}
}

func openTestSession(t *testing.T, cfg *Config) *Session {
	t.Helper()
	sess, err := OpenSession(cfg, discardLogger())
	if err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestHTTPHandler_HealthAndStatus(t *testing.T) {
	p := testutil.NewProject(t)
	p.WriteSource("src/a.go", "package a\n")
	p.WriteDoc("a.md", testutil.Doc("a", map[string]string{"src/a.go": "0000000"}, "See `src/a.go`.\n"))

	cfg := NewDefaultConfig()
	cfg.Context.Root = p.Root
	sess := openTestSession(t, cfg)
	h := NewHTTPHandler(cfg, sess.Service, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("live status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Documents []models.Validation `json:"documents"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Documents) != 1 {
		t.Fatalf("documents = %d, want 1", len(resp.Documents))
	}
	if got := resp.Documents[0]; got.Path != "a.md" || got.Status != models.StatusStale {
		t.Errorf("document = %+v, want a.md stale", got)
	}
}

func TestHTTPHandler_AuthLeavesHealthOpen(t *testing.T) {
	p := testutil.NewProject(t)

	cfg := NewDefaultConfig()
	cfg.Context.Root = p.Root
	cfg.Auth = AuthConfig{Mode: AuthModeToken, Token: "secret"}
	sess := openTestSession(t, cfg)
	h := NewHTTPHandler(cfg, sess.Service, nil)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", w.Code)
	}

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("authenticated status = %d, want 200", w.Code)
	}
}

func TestOpenSession_NotARepository(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Context.Root = t.TempDir()
	_, err := OpenSession(cfg, discardLogger())
	if !errors.Is(err, apperr.ErrNotARepository) {
		t.Fatalf("err = %v, want ErrNotARepository", err)
	}
}

func TestNewLogger_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "context.log")
	logger, closeFn := NewLogger(ApplicationConfig{LogLevel: slog.LevelInfo, LogFile: path}, os.Stderr)
	logger.Info("hello", slog.String("k", "v"))
	logger.Debug("hidden")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	got := string(data)
	if !strings.Contains(got, `"msg":"hello"`) || !strings.Contains(got, `"k":"v"`) {
		t.Errorf("log = %q, want hello record", got)
	}
	if strings.Contains(got, "hidden") {
		t.Errorf("log = %q, debug record should be filtered", got)
	}
}

func TestNewLogger_Writer(t *testing.T) {
	var b strings.Builder
	logger, closeFn := NewLogger(ApplicationConfig{LogLevel: slog.LevelWarn}, &b)
	defer closeFn()
	logger.Info("quiet")
	logger.Warn("loud")
	if strings.Contains(b.String(), "quiet") {
		t.Errorf("info record should be filtered: %q", b.String())
	}
	if !strings.Contains(b.String(), `"msg":"loud"`) {
		t.Errorf("warn record missing: %q", b.String())
	}
}
