package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/ctxcache/internal/docservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *docservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Get("/status", h.Status)
	r.Post("/sync", h.Sync)
	r.Get("/find", h.Find)
	r.Get("/search", h.Search)
	r.Get("/index", h.Index)
	r.Get("/documents/*", h.GetDocument)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
