// Package console renders command results for a terminal or as JSON.
package console

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/starford/ctxcache/internal/apperr"
	"github.com/starford/ctxcache/internal/index"
	"github.com/starford/ctxcache/internal/models"
)

// Format selects how results are rendered.
type Format string

// Output formats.
const (
	Human Format = "human"
	JSON  Format = "json"
)

// ParseFormat accepts "human" (or "text") and "json", case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "human", "text":
		return Human, nil
	case "json":
		return JSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q", s)
	}
}

var statusColors = map[models.Status]*color.Color{
	models.StatusValid:    color.New(color.FgGreen),
	models.StatusStale:    color.New(color.FgYellow),
	models.StatusOrphaned: color.New(color.FgRed),
}

func paintStatus(s models.Status, text string) string {
	if c, ok := statusColors[s]; ok {
		return c.Sprint(text)
	}
	return text
}

// Printer writes results to a single writer.
type Printer struct {
	w      io.Writer
	format Format
}

// New returns a printer writing to w.
func New(w io.Writer, format Format) *Printer {
	return &Printer{w: w, format: format}
}

// Format returns the output format.
func (p *Printer) Format() Format { return p.format }

func (p *Printer) json(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.w, string(data))
	return err
}

// Status prints one line per document, followed by its changed and missing
// references.
func (p *Printer) Status(vs []models.Validation) error {
	if p.format == JSON {
		return p.json(vs)
	}
	for _, v := range vs {
		fmt.Fprintf(p.w, "%s %s\n", paintStatus(v.Status, fmt.Sprintf("%-12s", v.Status)), v.Path)
		if len(v.Changed) > 0 {
			fmt.Fprintf(p.w, "%13schanged: %s\n", "", strings.Join(v.Changed, ", "))
		}
		if len(v.Missing) > 0 {
			fmt.Fprintf(p.w, "%13smissing: %s\n", "", strings.Join(v.Missing, ", "))
		}
	}
	return nil
}

// Sync prints a sync summary.
func (p *Printer) Sync(r *models.SyncResult) error {
	if p.format == JSON {
		return p.json(r)
	}
	fmt.Fprintf(p.w, "Synced %d documents\n", r.Count)
	if len(r.Updated) > 0 {
		fmt.Fprintln(p.w, "Updated:")
		for _, path := range r.Updated {
			fmt.Fprintf(p.w, "  %s\n", path)
		}
	}
	if len(r.Failed) > 0 {
		fmt.Fprintln(p.w, color.RedString("Failed:"))
		for _, f := range r.Failed {
			fmt.Fprintf(p.w, "  %s\n", f)
		}
	}
	return nil
}

type invalidReferencesReport struct {
	Error     string                      `json:"error"`
	Count     int                         `json:"count"`
	Documents []apperr.DocumentReferences `json:"documents"`
}

// InvalidReferences prints every rejected path of a failed sync batch.
func (p *Printer) InvalidReferences(e *apperr.InvalidReferencesError) error {
	if p.format == JSON {
		return p.json(invalidReferencesReport{
			Error:     "invalid_references",
			Count:     len(e.Documents),
			Documents: e.Documents,
		})
	}
	fmt.Fprintf(p.w, "%s Invalid references in %d document(s)\n\n", color.RedString("Error:"), len(e.Documents))
	for _, d := range e.Documents {
		fmt.Fprintf(p.w, "  %s\n", d.Document)
		for _, r := range d.Invalid {
			fmt.Fprintf(p.w, "    - `%s`: %s\n", r.Path, r.Reason.Message())
		}
	}
	return nil
}

// Find prints, per queried path, the documents referencing it.
func (p *Printer) Find(rs []models.FindResult) error {
	if p.format == JSON {
		return p.json(rs)
	}
	for _, r := range rs {
		fmt.Fprintln(p.w, r.Query)
		if len(r.Matches) == 0 {
			fmt.Fprintln(p.w, "  no documents")
			continue
		}
		for _, m := range r.Matches {
			fmt.Fprintf(p.w, "  %s %s (%s)\n", paintStatus(m.Status, fmt.Sprintf("%-10s", m.Status)), m.Document, m.Reference)
		}
	}
	return nil
}

// Search prints search hits.
func (p *Printer) Search(rs []index.SearchResult) error {
	if p.format == JSON {
		return p.json(rs)
	}
	for _, r := range rs {
		fmt.Fprintln(p.w, r.Path)
		if r.Title != "" {
			fmt.Fprintf(p.w, "  %s\n", r.Title)
		}
		if r.Snippet != "" {
			fmt.Fprintf(p.w, "  %s\n", r.Snippet)
		}
	}
	return nil
}

// Message prints an informational line.
func (p *Printer) Message(msg string) error {
	if p.format == JSON {
		return p.json(map[string]string{"message": msg})
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

// Error prints err as "Error: ..." or {"error": "..."}.
func (p *Printer) Error(err error) error {
	if p.format == JSON {
		return p.json(map[string]string{"error": err.Error()})
	}
	_, werr := fmt.Fprintf(p.w, "%s %s\n", color.RedString("Error:"), err)
	return werr
}
