package mcpserver

// DocumentFormatContract describes the context document format that LLM
// consumers should follow when writing or reviewing documents.
const DocumentFormatContract = `# Context Document Format

Context documents live under the ` + "`.context/`" + ` directory at the project root.
Each one describes a part of the code base and records which source files it
covers, together with a short fingerprint of each file at the time the
document was last reviewed.

## Structure

` + "```" + `markdown
---
slug: request-routing              # defaults to the file name without .md
description: How HTTP requests reach handlers
references:                        # written by context_sync; do not edit by hand
  internal/api/router.go: 3f9a1c2
  internal/api/handlers.go: 9b04e7d
updated: "2025-01-20"              # date of the last successful sync
---

# Request routing

The router in ` + "`internal/api/router.go`" + ` mounts every handler from
` + "`internal/api/handlers.go`" + `.
` + "```" + `

## Rules

1. **References come from the body.** Any path written in single backticks that
   contains a ` + "`/`" + ` (or starts with ` + "`./`" + `) is a reference. Paths inside fenced
   code blocks or double-backtick spans are ignored.
2. **Paths are project-relative.** Absolute paths and paths containing ` + "`..`" + `
   are rejected, as are directories and files that do not exist.
3. **Sync after review.** Call ` + "`context_sync`" + ` once the document matches the code.
   If any referenced path is invalid the whole batch is rejected and nothing is
   written; fix the paths and sync again.
4. **Statuses.** ` + "`valid`" + `: every referenced file is unchanged. ` + "`stale`" + `: a
   referenced file changed since the last sync. ` + "`orphaned`" + `: a referenced file
   no longer exists. Orphaned takes precedence over stale.
5. **Index documents.** ` + "`.context/index.md`" + `, ` + "`.context/guides/index.md`" + ` and
   ` + "`.context/references/index.md`" + ` are created by ` + "`context init`" + `.
`
