// Package refs finds the source-file paths a document mentions and checks
// them against the project tree.
package refs

import (
	"sort"
	"strings"
)

const fence = "```"

// ExtractPaths returns the deduplicated, sorted set of path-like tokens
// quoted with single backticks in body. Fenced code blocks and
// multi-backtick code spans are ignored. A leading "./" is stripped.
func ExtractPaths(body string) []string {
	seen := make(map[string]struct{})
	inFence := false

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSuffix(line, "\r")

		if strings.HasPrefix(strings.TrimLeft(line, " \t"), fence) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		scanLine(line, seen)
	}

	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// scanLine collects candidates from the backtick spans of a single line.
func scanLine(line string, seen map[string]struct{}) {
	i := 0
	for i < len(line) {
		if line[i] != '`' {
			i++
			continue
		}

		run := backtickRun(line, i)
		if run > 1 {
			i = skipCodeSpan(line, i+run, run)
			continue
		}

		end := strings.IndexByte(line[i+1:], '`')
		if end < 0 {
			// Unterminated span.
			return
		}
		span := line[i+1 : i+1+end]
		if isPathLike(span) {
			seen[Normalize(span)] = struct{}{}
		}
		i += end + 2
	}
}

// backtickRun counts consecutive backticks starting at i.
func backtickRun(line string, i int) int {
	n := 0
	for i+n < len(line) && line[i+n] == '`' {
		n++
	}
	return n
}

// skipCodeSpan returns the index just past the first run of n backticks
// found from i, or len(line) when the span is never closed.
func skipCodeSpan(line string, i, n int) int {
	count := 0
	for ; i < len(line); i++ {
		if line[i] != '`' {
			count = 0
			continue
		}
		count++
		if count == n {
			return i + 1
		}
	}
	return len(line)
}

func isPathLike(s string) bool {
	return strings.Contains(s, "/") || strings.HasPrefix(s, "./")
}

// Normalize strips a single leading "./".
func Normalize(p string) string {
	return strings.TrimPrefix(p, "./")
}
