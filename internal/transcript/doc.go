// Package transcript renders conversation snapshots for people.
//
// Markdown is the common form. Terminal styles it with glamour for the CLI
// and HTML converts it with goldmark into a standalone page. Workflow
// messages are summarized step by step: one line per thinking task, one
// line per tool call with truncated input and output, then the last message
// of the final state when the workflow reported one.
package transcript
