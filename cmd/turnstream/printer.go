// ABOUTME: Prints a turn as it streams by diffing successive store snapshots
// ABOUTME: Text deltas are written as they arrive; workflows print one line per step

package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"github.com/2389/turnstream/internal/conversation"
	"github.com/2389/turnstream/internal/messaging"
	"github.com/2389/turnstream/internal/workflow"
)

// turnPrinter is a store listener. It remembers how much of each message it
// already wrote, so it only prints what changed.
type turnPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	printed map[string]int  // text message ID -> bytes written
	steps   map[string]int  // workflow ID -> steps announced
	done    map[string]bool // workflow ID -> completion announced
	open    bool            // a text line is unterminated

	agent *color.Color
	wf    *color.Color
	step  *color.Color
	ok    *color.Color
}

// newTurnPrinter treats everything already in snap as printed.
func newTurnPrinter(out io.Writer, snap conversation.Snapshot) *turnPrinter {
	p := &turnPrinter{
		out:     out,
		printed: make(map[string]int),
		steps:   make(map[string]int),
		done:    make(map[string]bool),
		agent:   color.New(color.FgCyan, color.Bold),
		wf:      color.New(color.FgMagenta, color.Bold),
		step:    color.New(color.FgHiBlack),
		ok:      color.New(color.FgGreen),
	}
	for _, m := range snap.Messages {
		if text, ok := m.Text(); ok {
			p.printed[m.ID] = len(text)
			continue
		}
		if wf := workflowOf(m); wf != nil {
			p.steps[wf.ID] = len(wf.Steps)
			p.done[wf.ID] = wf.IsCompleted
		}
	}
	return p
}

// OnSnapshot is the store listener.
func (p *turnPrinter) OnSnapshot(snap conversation.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, m := range snap.Messages {
		if m.Role == messaging.RoleUser {
			continue
		}
		if text, ok := m.Text(); ok {
			p.printText(m.ID, text)
			continue
		}
		if wf := workflowOf(m); wf != nil {
			p.printWorkflow(wf)
		}
	}
}

// Finish terminates a dangling text line.
func (p *turnPrinter) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *turnPrinter) printText(id, text string) {
	n, seen := p.printed[id]
	if !seen {
		p.endLine()
		p.agent.Fprint(p.out, "● ")
		p.open = true
		n = 0
	}
	if len(text) > n {
		fmt.Fprint(p.out, text[n:])
		p.open = true
	}
	p.printed[id] = len(text)
}

func (p *turnPrinter) printWorkflow(wf *workflow.Workflow) {
	announced, seen := p.steps[wf.ID]
	if !seen {
		p.endLine()
		p.wf.Fprintf(p.out, "▶ workflow %s\n", wf.Name)
	}
	for _, step := range wf.Steps[min(announced, len(wf.Steps)):] {
		p.endLine()
		p.step.Fprintf(p.out, "  · %s\n", step.AgentName)
	}
	p.steps[wf.ID] = len(wf.Steps)

	if wf.IsCompleted && !p.done[wf.ID] {
		p.endLine()
		p.ok.Fprintf(p.out, "✓ workflow %s completed\n", wf.Name)
		p.done[wf.ID] = true
	}
}

func (p *turnPrinter) endLine() {
	if p.open {
		fmt.Fprintln(p.out)
		p.open = false
	}
}

func workflowOf(m messaging.Message) *workflow.Workflow {
	snap, ok := m.Workflow()
	if !ok {
		return nil
	}
	wf, _ := snap.(*workflow.Workflow)
	return wf
}
