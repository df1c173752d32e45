// ABOUTME: Workflow engine that folds the events of one workflow range into snapshots
// ABOUTME: Consumes a borrowed stream until end_of_workflow and reports the final state

package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/turnstream/internal/event"
)

var (
	// ErrInvalidStart is returned when Start is given anything other than a
	// start_of_workflow event carrying a workflow id.
	ErrInvalidStart = errors.New("invalid start_of_workflow event")

	// ErrNestedWorkflow is returned when a start_of_workflow arrives while a
	// workflow is already running.
	ErrNestedWorkflow = errors.New("nested start_of_workflow inside running workflow")

	// ErrNotStarted is returned when Run is called before Start.
	ErrNotStarted = errors.New("workflow not started")
)

// Engine builds workflow snapshots from the event stream. An Engine serves
// a single workflow; create a new one per start_of_workflow.
type Engine struct {
	logger   *slog.Logger
	workflow *Workflow
	final    *FinalState
	done     bool
}

// NewEngine creates an engine. A nil logger uses slog.Default().
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "workflow")}
}

// Start initializes the workflow from its start event and returns the
// initial snapshot.
func (e *Engine) Start(ev event.Event) (*Workflow, error) {
	if ev.Type != event.TypeStartOfWorkflow {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidStart, ev.Type)
	}
	start, err := event.Decode[event.WorkflowStart](ev)
	if err != nil {
		return nil, err
	}
	if start.WorkflowID == "" {
		return nil, fmt.Errorf("%w: missing workflow_id", ErrInvalidStart)
	}

	name := ""
	if len(start.Input) > 0 {
		name = start.Input[0].Content
	}
	e.workflow = &Workflow{ID: start.WorkflowID, Name: name, Steps: []Step{}}
	e.logger.Debug("workflow started", "workflow_id", start.WorkflowID)
	return e.workflow.Clone(), nil
}

// Run pulls events from stream until the workflow ends, yielding a snapshot
// after every change. Errors from the stream, including cancellation, are
// yielded once and end the run. If the stream ends before end_of_workflow
// the run ends without a final state.
func (e *Engine) Run(ctx context.Context, stream event.Stream) iter.Seq2[*Workflow, error] {
	return func(yield func(*Workflow, error) bool) {
		if e.workflow == nil {
			yield(nil, ErrNotStarted)
			return
		}
		for !e.done {
			ev, err := stream.Next(ctx)
			if errors.Is(err, io.EOF) {
				e.logger.Warn("stream ended before end_of_workflow", "workflow_id", e.workflow.ID)
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}

			changed, err := e.apply(ev)
			if err != nil {
				yield(nil, err)
				return
			}
			if changed && !yield(e.workflow.Clone(), nil) {
				return
			}
		}
	}
}

// FinalState returns the state reported by end_of_workflow, or nil.
func (e *Engine) FinalState() *FinalState {
	if e.final == nil {
		return nil
	}
	return e.workflow.Clone().FinalState
}

func (e *Engine) apply(ev event.Event) (bool, error) {
	w := e.workflow
	switch ev.Type {
	case event.TypeStartOfWorkflow:
		return false, fmt.Errorf("%w: workflow %s", ErrNestedWorkflow, w.ID)

	case event.TypeStartOfAgent:
		p, err := event.Decode[event.AgentStart](ev)
		if err != nil {
			return false, err
		}
		id := p.AgentID
		if id == "" {
			id = uuid.New().String()
		}
		w.Steps = append(w.Steps, Step{ID: id, AgentID: p.AgentID, AgentName: p.AgentName, Tasks: []Task{}})
		return true, nil

	case event.TypeEndOfAgent:
		step := w.CurrentStep()
		if step == nil {
			return false, nil
		}
		step.Done = true
		return true, nil

	case event.TypeStartOfLLM:
		step := w.CurrentStep()
		if step == nil {
			return false, nil
		}
		step.Tasks = append(step.Tasks, Task{
			ID:       uuid.New().String(),
			Type:     TaskThinking,
			State:    TaskPending,
			Thinking: &ThinkingPayload{},
		})
		return true, nil

	case event.TypeEndOfLLM:
		task := e.currentThinking()
		if task == nil {
			return false, nil
		}
		task.State = TaskSuccess
		return true, nil

	case event.TypeMessage:
		p, err := event.Decode[event.MessageDelta](ev)
		if err != nil {
			return false, err
		}
		task := e.currentThinking()
		if task == nil {
			e.logger.Debug("message outside llm call dropped", "workflow_id", w.ID)
			return false, nil
		}
		task.Thinking.Text += p.Delta.Content
		task.Thinking.Reasoning += p.Delta.ReasoningContent
		return true, nil

	case event.TypeToolCall:
		p, err := event.Decode[event.ToolCall](ev)
		if err != nil {
			return false, err
		}
		step := w.CurrentStep()
		if step == nil {
			return false, nil
		}
		id := p.ToolCallID
		if id == "" {
			id = uuid.New().String()
		}
		step.Tasks = append(step.Tasks, Task{
			ID:       id,
			Type:     TaskToolCall,
			State:    TaskPending,
			ToolCall: &ToolCallPayload{ToolName: p.ToolName, Input: p.ToolInput},
		})
		return true, nil

	case event.TypeToolCallResult:
		p, err := event.Decode[event.ToolCallResult](ev)
		if err != nil {
			return false, err
		}
		task := e.findTask(p.ToolCallID)
		if task == nil || task.ToolCall == nil {
			e.logger.Debug("tool result without call dropped", "tool_call_id", p.ToolCallID)
			return false, nil
		}
		task.ToolCall.Output = p.ToolResult
		task.State = TaskSuccess
		return true, nil

	case event.TypeEndOfWorkflow:
		p, err := event.Decode[event.WorkflowEnd](ev)
		if err != nil {
			return false, err
		}
		if p.WorkflowID != "" && p.WorkflowID != w.ID {
			e.logger.Warn("end_of_workflow id mismatch", "workflow_id", w.ID, "got", p.WorkflowID)
		}
		e.final = &FinalState{Messages: p.Messages}
		w.FinalState = e.final
		w.IsCompleted = true
		e.done = true
		e.logger.Debug("workflow completed", "workflow_id", w.ID, "steps", len(w.Steps))
		return true, nil

	default:
		return false, nil
	}
}

func (e *Engine) currentThinking() *Task {
	step := e.workflow.CurrentStep()
	if step == nil {
		return nil
	}
	for i := len(step.Tasks) - 1; i >= 0; i-- {
		t := &step.Tasks[i]
		if t.Type == TaskThinking {
			if t.State != TaskPending {
				return nil
			}
			return t
		}
	}
	return nil
}

func (e *Engine) findTask(id string) *Task {
	for si := len(e.workflow.Steps) - 1; si >= 0; si-- {
		step := &e.workflow.Steps[si]
		for ti := range step.Tasks {
			if step.Tasks[ti].ID == id {
				return &step.Tasks[ti]
			}
		}
	}
	return nil
}
