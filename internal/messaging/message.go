// ABOUTME: Message model for the client-side conversation view
// ABOUTME: Tagged-variant content (text or workflow), id-addressed patches and deep copies

package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Kind is the discriminator of a message's content variant.
type Kind string

const (
	KindText     Kind = "text"
	KindWorkflow Kind = "workflow"
)

// Content is the variant payload of a Message. The only implementations are
// TextContent and WorkflowContent; consumers switch on the concrete type.
type Content interface {
	kind() Kind
	clone() Content
}

// TextContent is the body of a plain text message. During a streaming turn
// the body only grows.
type TextContent struct {
	Body string
}

func (TextContent) kind() Kind { return KindText }

func (c TextContent) clone() Content { return c }

// WorkflowSnapshot is the progress value published by a workflow engine.
// The store treats it as opaque and only needs to copy it.
type WorkflowSnapshot interface {
	CloneSnapshot() WorkflowSnapshot
}

// WorkflowContent wraps the latest workflow snapshot.
type WorkflowContent struct {
	Workflow WorkflowSnapshot
}

func (WorkflowContent) kind() Kind { return KindWorkflow }

func (c WorkflowContent) clone() Content {
	if c.Workflow == nil {
		return c
	}
	return WorkflowContent{Workflow: c.Workflow.CloneSnapshot()}
}

// Message is one entry of the conversation view, addressed by a stable ID.
type Message struct {
	ID      string
	Role    Role
	Content Content
}

// NewTextMessage creates a text message.
func NewTextMessage(id string, role Role, body string) Message {
	return Message{ID: id, Role: role, Content: TextContent{Body: body}}
}

// NewUserMessage creates a user text message with a generated ID.
func NewUserMessage(body string) Message {
	return NewTextMessage(uuid.New().String(), RoleUser, body)
}

// NewWorkflowMessage creates an assistant message wrapping a workflow snapshot.
func NewWorkflowMessage(id string, snapshot WorkflowSnapshot) Message {
	return Message{ID: id, Role: RoleAssistant, Content: WorkflowContent{Workflow: snapshot}}
}

// Kind returns the content discriminator, or "" when content is unset.
func (m Message) Kind() Kind {
	if m.Content == nil {
		return ""
	}
	return m.Content.kind()
}

// Text returns the text body and true for text messages.
func (m Message) Text() (string, bool) {
	c, ok := m.Content.(TextContent)
	return c.Body, ok
}

// Workflow returns the workflow snapshot and true for workflow messages.
func (m Message) Workflow() (WorkflowSnapshot, bool) {
	c, ok := m.Content.(WorkflowContent)
	return c.Workflow, ok
}

// Clone returns a deep copy of the message.
func (m Message) Clone() Message {
	out := m
	if m.Content != nil {
		out.Content = m.Content.clone()
	}
	return out
}

// Patch is a partial message used to replace an existing message by ID.
// Nil fields keep the existing value.
type Patch struct {
	ID      string
	Role    *Role
	Content Content
}

// Merge overlays patch onto existing and returns a deep copy of the result.
// The ID of existing is kept.
func Merge(existing Message, patch Patch) Message {
	merged := existing
	if patch.Role != nil {
		merged.Role = *patch.Role
	}
	if patch.Content != nil {
		merged.Content = patch.Content
	}
	return merged.Clone()
}

// IndexOf returns the position of the message with the given ID, or -1.
func IndexOf(messages []Message, id string) int {
	for i := range messages {
		if messages[i].ID == id {
			return i
		}
	}
	return -1
}

// MarshalJSON renders the message in the {id, role, type, content} shape
// used by the web client.
func (m Message) MarshalJSON() ([]byte, error) {
	out := struct {
		ID      string `json:"id"`
		Role    Role   `json:"role"`
		Type    Kind   `json:"type"`
		Content any    `json:"content"`
	}{ID: m.ID, Role: m.Role, Type: m.Kind()}

	switch c := m.Content.(type) {
	case TextContent:
		out.Content = c.Body
	case WorkflowContent:
		out.Content = map[string]any{"workflow": c.Workflow}
	case nil:
		out.Content = nil
	default:
		return nil, fmt.Errorf("message %s: unknown content variant %T", m.ID, c)
	}
	return json.Marshal(out)
}

// ChatMessage is the simplified {role, content} form used as conversation
// context for the next turn.
type ChatMessage struct {
	Role    Role   `json:"role" yaml:"role" toml:"role" mapstructure:"role"`
	Content string `json:"content" yaml:"content" toml:"content" mapstructure:"content"`
}

// CloneChatMessages copies a chat message list. A nil input yields an empty,
// non-nil list.
func CloneChatMessages(in []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(in))
	copy(out, in)
	return out
}

// ToChatMessage flattens a text message. Workflow messages have no chat form.
func ToChatMessage(m Message) (ChatMessage, bool) {
	body, ok := m.Text()
	if !ok {
		return ChatMessage{}, false
	}
	return ChatMessage{Role: m.Role, Content: body}, true
}
