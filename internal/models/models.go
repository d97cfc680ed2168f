// Package models defines the read models produced by the context cache.
package models

import "fmt"

// Status is the validity of a document relative to its referenced files.
// Values are ordered by severity.
type Status int

const (
	// StatusValid means every referenced file exists with its stored fingerprint.
	StatusValid Status = iota
	// StatusStale means at least one referenced file changed.
	StatusStale
	// StatusOrphaned means at least one referenced file no longer exists.
	StatusOrphaned
)

// Merge returns the more severe of a and b. Orphaned is never downgraded.
func Merge(a, b Status) Status {
	if b > a {
		return b
	}
	return a
}

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusStale:
		return "stale"
	case StatusOrphaned:
		return "orphaned"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// MarshalText renders the status in lowercase.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a lowercase status name.
func (s *Status) UnmarshalText(text []byte) error {
	switch string(text) {
	case "valid":
		*s = StatusValid
	case "stale":
		*s = StatusStale
	case "orphaned":
		*s = StatusOrphaned
	default:
		return fmt.Errorf("unknown status %q", text)
	}
	return nil
}

// Validation is the status of one document, computed fresh on every call.
type Validation struct {
	Path    string   `json:"path"`
	Status  Status   `json:"status"`
	Changed []string `json:"changed"`
	Missing []string `json:"missing"`
}

// NewValidation returns a valid, empty Validation for path.
func NewValidation(path string) Validation {
	return Validation{Path: path, Status: StatusValid, Changed: []string{}, Missing: []string{}}
}

// AddChanged records a reference whose fingerprint no longer matches.
func (v *Validation) AddChanged(ref string) {
	v.Changed = append(v.Changed, ref)
	v.Status = Merge(v.Status, StatusStale)
}

// AddMissing records a reference whose file is gone.
func (v *Validation) AddMissing(ref string) {
	v.Missing = append(v.Missing, ref)
	v.Status = Merge(v.Status, StatusOrphaned)
}

// SyncResult summarizes one sync batch.
type SyncResult struct {
	Count   int      `json:"count"`
	Updated []string `json:"updated"`
	Failed  []string `json:"failed"`
}

// NewSyncResult returns an empty result with non-nil slices.
func NewSyncResult() *SyncResult {
	return &SyncResult{Updated: []string{}, Failed: []string{}}
}

// FindMatch is one document referencing a queried source file.
type FindMatch struct {
	Document  string `json:"document"`
	Reference string `json:"reference"`
	Status    Status `json:"status"`
}

// FindResult lists the documents referencing one queried path.
type FindResult struct {
	Query   string      `json:"query"`
	Matches []FindMatch `json:"matches"`
}
