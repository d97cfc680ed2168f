// Package parser reads and writes the YAML frontmatter block that heads every
// context document.
package parser

import (
	"bytes"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Frontmatter holds the metadata fields of a context document. Unknown keys
// are kept in Extra so that a sync does not drop them.
type Frontmatter struct {
	Slug        string            `yaml:"slug"`
	Description string            `yaml:"description"`
	References  map[string]string `yaml:"references"`
	Updated     string            `yaml:"updated"`
	Extra       map[string]any    `yaml:",inline"`
}

// Decode splits data into frontmatter and body. When data carries no
// frontmatter block the returned Frontmatter is nil and the whole content is
// body. A block that is not valid YAML, or whose fields have the wrong shape,
// is an error.
func Decode(data []byte) (*Frontmatter, string, error) {
	block, body, ok := Split(data)
	if !ok {
		return nil, body, nil
	}

	var fm Frontmatter
	if err := yaml.Unmarshal(block, &fm); err != nil {
		return nil, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	if fm.References == nil {
		fm.References = map[string]string{}
	}
	return &fm, body, nil
}

// Encode renders fm and body as "---\n<yaml>---\n\n<body>".
func Encode(fm *Frontmatter, body string) ([]byte, error) {
	out := *fm
	if out.References == nil {
		out.References = map[string]string{}
	}

	var buf bytes.Buffer
	buf.WriteString(delim + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&out); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString(delim + "\n\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// Split separates the YAML block (between leading --- delimiter lines) from
// the Markdown body. ok is false when no complete block is present, in which
// case body is the entire content.
func Split(data []byte) (block []byte, body string, ok bool) {
	text := strings.TrimLeft(string(data), "\r\n")

	first, rest, found := strings.Cut(text, "\n")
	if !found || strings.TrimRight(first, "\r") != delim {
		return nil, string(data), false
	}

	offset := 0
	for {
		line, after, more := strings.Cut(rest[offset:], "\n")
		if strings.TrimRight(line, "\r") == delim {
			// Body starts after the closing delimiter line.
			return []byte(rest[:offset]), strings.TrimLeft(after, "\r\n"), true
		}
		if !more {
			return nil, string(data), false
		}
		offset += len(line) + 1
	}
}

// DeriveTitle returns the first H1 heading of body, or fallback when there is
// none.
func DeriveTitle(body, fallback string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return fallback
}
