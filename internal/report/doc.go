// Package report renders run outcomes for operators.
//
// Writers produce the same content in different formats:
//   - SimpleWriter: plain text for terminals
//   - JSONWriter: structured output for tooling
//   - MarkdownWriter: documents for sharing, with a change chart
//
// All writers implement Writer so the CLI can pick one by name.
package report
