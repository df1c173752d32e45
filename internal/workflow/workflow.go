// ABOUTME: Workflow snapshot types: a workflow of agent steps, each with thinking and tool-call tasks
// ABOUTME: Snapshots deep-copy themselves so published values are never mutated afterwards

package workflow

import (
	"github.com/2389/turnstream/internal/messaging"
)

// TaskType distinguishes the kinds of work recorded in a step.
type TaskType string

const (
	TaskThinking TaskType = "thinking"
	TaskToolCall TaskType = "tool_call"
)

// TaskState is the completion state of a task.
type TaskState string

const (
	TaskPending TaskState = "pending"
	TaskSuccess TaskState = "success"
)

// ThinkingPayload accumulates streamed LLM output.
type ThinkingPayload struct {
	Text      string `json:"text"`
	Reasoning string `json:"reasoning,omitempty"`
}

// ToolCallPayload records one tool invocation.
type ToolCallPayload struct {
	ToolName string `json:"toolName"`
	Input    any    `json:"input,omitempty"`
	Output   any    `json:"output,omitempty"`
}

// Task is one unit of work inside a step.
type Task struct {
	ID       string           `json:"id"`
	Type     TaskType         `json:"type"`
	State    TaskState        `json:"state"`
	Thinking *ThinkingPayload `json:"thinking,omitempty"`
	ToolCall *ToolCallPayload `json:"toolCall,omitempty"`
}

// Step is the work of one agent run.
type Step struct {
	ID        string `json:"id"`
	AgentID   string `json:"agentId"`
	AgentName string `json:"agentName"`
	Tasks     []Task `json:"tasks"`
	Done      bool   `json:"done"`
}

// FinalState is what a finished workflow reports back as conversation context.
type FinalState struct {
	Messages []messaging.ChatMessage `json:"messages"`
}

// Workflow is a snapshot of a running or finished workflow.
type Workflow struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Steps       []Step      `json:"steps"`
	IsCompleted bool        `json:"isCompleted"`
	FinalState  *FinalState `json:"finalState,omitempty"`
}

// CurrentStep returns the last step, or nil if there are none.
func (w *Workflow) CurrentStep() *Step {
	if len(w.Steps) == 0 {
		return nil
	}
	return &w.Steps[len(w.Steps)-1]
}

// Clone returns a deep copy of w.
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	out := *w
	out.Steps = make([]Step, len(w.Steps))
	for i, s := range w.Steps {
		out.Steps[i] = s.clone()
	}
	if w.FinalState != nil {
		out.FinalState = &FinalState{Messages: messaging.CloneChatMessages(w.FinalState.Messages)}
	}
	return &out
}

// CloneSnapshot implements messaging.WorkflowSnapshot.
func (w *Workflow) CloneSnapshot() messaging.WorkflowSnapshot {
	return w.Clone()
}

func (s Step) clone() Step {
	out := s
	out.Tasks = make([]Task, len(s.Tasks))
	for i, t := range s.Tasks {
		out.Tasks[i] = t.clone()
	}
	return out
}

// Tool inputs and outputs are decoded JSON values and are treated as
// immutable; only the payload structs are copied.
func (t Task) clone() Task {
	out := t
	if t.Thinking != nil {
		th := *t.Thinking
		out.Thinking = &th
	}
	if t.ToolCall != nil {
		tc := *t.ToolCall
		out.ToolCall = &tc
	}
	return out
}
