// ABOUTME: Renders a conversation snapshot as markdown, terminal output or HTML
// ABOUTME: Uses glamour for terminals and goldmark for standalone HTML documents

package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/workflow"
)

// maxToolIO caps how much of a tool's input or output is shown.
const maxToolIO = 200

// Markdown renders the snapshot's messages in order.
func Markdown(snap conversation.Snapshot) string {
	var b strings.Builder
	for i, m := range snap.Messages {
		if i > 0 {
			b.WriteString("\n---\n\n")
		}
		writeMessage(&b, m)
	}
	if snap.Responding {
		b.WriteString("\n_responding…_\n")
	}
	return b.String()
}

func writeMessage(b *strings.Builder, m messaging.Message) {
	if text, ok := m.Text(); ok {
		switch m.Role {
		case messaging.RoleUser:
			b.WriteString("**You**\n\n")
		default:
			fmt.Fprintf(b, "**%s**\n\n", m.Role)
		}
		if text == "" {
			b.WriteString("_(empty)_\n")
			return
		}
		b.WriteString(text)
		b.WriteString("\n")
		return
	}

	snap, ok := m.Workflow()
	if !ok {
		return
	}
	wf, ok := snap.(*workflow.Workflow)
	if !ok {
		fmt.Fprintf(b, "_workflow %s_\n", m.ID)
		return
	}
	writeWorkflow(b, wf)
}

func writeWorkflow(b *strings.Builder, wf *workflow.Workflow) {
	status := "running"
	if wf.IsCompleted {
		status = "completed"
	}
	fmt.Fprintf(b, "### Workflow: %s (%s)\n\n", wf.Name, status)

	for _, step := range wf.Steps {
		marker := "…"
		if step.Done {
			marker = "✓"
		}
		fmt.Fprintf(b, "- %s **%s**\n", marker, step.AgentName)
		for _, task := range step.Tasks {
			switch {
			case task.ToolCall != nil:
				fmt.Fprintf(b, "  - tool `%s` %s", task.ToolCall.ToolName, summarize(task.ToolCall.Input))
				if task.State == workflow.TaskSuccess {
					fmt.Fprintf(b, " → %s", summarize(task.ToolCall.Output))
				}
				b.WriteString("\n")
			case task.Thinking != nil:
				text := strings.TrimSpace(task.Thinking.Text)
				if text == "" {
					text = "_thinking_"
				}
				fmt.Fprintf(b, "  - %s\n", oneLine(text))
			}
		}
	}

	if wf.FinalState != nil && len(wf.FinalState.Messages) > 0 {
		last := wf.FinalState.Messages[len(wf.FinalState.Messages)-1]
		fmt.Fprintf(b, "\n%s\n", last.Content)
	}
}

// summarize renders a tool value on one short line.
func summarize(v any) string {
	if v == nil {
		return ""
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	default:
		data, err := json.Marshal(val)
		if err != nil {
			s = fmt.Sprint(val)
		} else {
			s = string(data)
		}
	}
	return "`" + strings.ReplaceAll(truncate(oneLine(s), maxToolIO), "`", "'") + "`"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// Terminal renders the snapshot for a terminal of the given width.
// A width of zero or less disables wrapping.
func Terminal(snap conversation.Snapshot, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithAutoStyle()}
	if width > 0 {
		opts = append(opts, glamour.WithWordWrap(width))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("creating terminal renderer: %w", err)
	}
	out, err := r.Render(Markdown(snap))
	if err != nil {
		return "", fmt.Errorf("rendering transcript: %w", err)
	}
	return out, nil
}

var page = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
code { background: #f3f3f3; padding: 0 .2em; }
hr { border: 0; border-top: 1px solid #ddd; margin: 1.5rem 0; }
</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders the snapshot as a standalone HTML document. Raw HTML in
// message text is not passed through.
func HTML(snap conversation.Snapshot, title string) ([]byte, error) {
	var body bytes.Buffer
	if err := goldmark.Convert([]byte(Markdown(snap)), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}

	if title == "" {
		title = "turnstream transcript"
	}

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{
		Title: title,
		Body:  template.HTML(body.String()),
	})
	if err != nil {
		return nil, fmt.Errorf("executing page template: %w", err)
	}
	return out.Bytes(), nil
}
