package api

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/docservice"
	"github.com/starford/ctxcache/internal/index"
	"github.com/starford/ctxcache/internal/models"
)

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// InvalidReferencesResponse is returned with 422 when a sync batch is
// rejected.
type InvalidReferencesResponse struct {
	Error     string                      `json:"error"`
	Documents []apperr.DocumentReferences `json:"documents"`
}

// StatusResponse wraps document validations.
type StatusResponse struct {
	Documents []models.Validation `json:"documents"`
}

// SyncRequest is the body of POST /api/sync. An empty path syncs every
// document.
type SyncRequest struct {
	Path string `json:"path"`
}

// Validate implements validation.Validatable.
func (r SyncRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Length(0, 4096), validation.By(noNUL)),
	)
}

// FindRequest holds the query of GET /api/find.
type FindRequest struct {
	Paths []string
}

// Validate implements validation.Validatable.
func (r FindRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Paths, validation.Required, validation.Each(validation.Required, validation.By(noNUL))),
	)
}

// FindResponse wraps reverse-lookup results, one per queried path.
type FindResponse struct {
	Results []models.FindResult `json:"results"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results"`
}

// DocumentDetail is the document response type.
type DocumentDetail = docservice.DocumentDetail

// IndexResponse lists the well-known index documents that exist.
type IndexResponse struct {
	Documents []DocumentDetail `json:"documents"`
}

func noNUL(v any) error {
	if s, ok := v.(string); ok && strings.ContainsRune(s, 0) {
		return validation.NewError("validation_nul", "must not contain NUL bytes")
	}
	return nil
}
