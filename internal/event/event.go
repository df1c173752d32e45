// ABOUTME: Typed events produced by a chat event source
// ABOUTME: Event type constants, payload structs and mapstructure-based decoding

package event

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/2389/turnstream/internal/messaging"
)

// Type names an event in the stream.
type Type string

const (
	TypeStartOfWorkflow Type = "start_of_workflow"
	TypeEndOfWorkflow   Type = "end_of_workflow"
	TypeStartOfAgent    Type = "start_of_agent"
	TypeEndOfAgent      Type = "end_of_agent"
	TypeStartOfLLM      Type = "start_of_llm"
	TypeEndOfLLM        Type = "end_of_llm"
	TypeMessage         Type = "message"
	TypeToolCall        Type = "tool_call"
	TypeToolCallResult  Type = "tool_call_result"
)

// Event is one item of the stream. Data is the decoded JSON object of the
// event; use Decode to read it into one of the payload structs.
type Event struct {
	Type Type           `json:"type" yaml:"type" toml:"type"`
	Data map[string]any `json:"data" yaml:"data" toml:"data"`
}

// New builds an event from a type and data object.
func New(t Type, data map[string]any) Event {
	if data == nil {
		data = map[string]any{}
	}
	return Event{Type: t, Data: data}
}

// WorkflowStart is the payload of start_of_workflow.
type WorkflowStart struct {
	WorkflowID string                  `mapstructure:"workflow_id"`
	Input      []messaging.ChatMessage `mapstructure:"input"`
}

// WorkflowEnd is the payload of end_of_workflow.
type WorkflowEnd struct {
	WorkflowID string                  `mapstructure:"workflow_id"`
	Messages   []messaging.ChatMessage `mapstructure:"messages"`
}

// AgentStart is the payload of start_of_agent.
type AgentStart struct {
	AgentID   string `mapstructure:"agent_id"`
	AgentName string `mapstructure:"agent_name"`
}

// AgentEnd is the payload of end_of_agent.
type AgentEnd struct {
	AgentID   string `mapstructure:"agent_id"`
	AgentName string `mapstructure:"agent_name"`
}

// LLMBoundary is the payload of start_of_llm and end_of_llm.
type LLMBoundary struct {
	AgentName string `mapstructure:"agent_name"`
}

// Delta is the incremental content of a message event.
type Delta struct {
	Content          string `mapstructure:"content"`
	ReasoningContent string `mapstructure:"reasoning_content"`
}

// MessageDelta is the payload of message.
type MessageDelta struct {
	MessageID string `mapstructure:"message_id"`
	Delta     Delta  `mapstructure:"delta"`
}

// ToolCall is the payload of tool_call.
type ToolCall struct {
	ToolCallID string `mapstructure:"tool_call_id"`
	ToolName   string `mapstructure:"tool_name"`
	ToolInput  any    `mapstructure:"tool_input"`
}

// ToolCallResult is the payload of tool_call_result.
type ToolCallResult struct {
	ToolCallID string `mapstructure:"tool_call_id"`
	ToolName   string `mapstructure:"tool_name"`
	ToolResult any    `mapstructure:"tool_result"`
}

// Decode reads the event data into a payload struct.
// Weak typing is on so numeric ids and the like survive YAML and JSON sources.
func Decode[T any](e Event) (T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return out, fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(e.Data); err != nil {
		return out, fmt.Errorf("decoding %s payload: %w", e.Type, err)
	}
	return out, nil
}
