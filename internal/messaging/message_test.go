// ABOUTME: Tests for the message model
// ABOUTME: Covers variant accessors, patch merging, deep copies and JSON shape

package messaging

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSnapshot is a minimal workflow snapshot with a copyable slice.
type fakeSnapshot struct {
	Steps []string `json:"steps"`
}

func (f *fakeSnapshot) CloneSnapshot() WorkflowSnapshot {
	steps := make([]string, len(f.Steps))
	copy(steps, f.Steps)
	return &fakeSnapshot{Steps: steps}
}

func TestNewUserMessage_GeneratesID(t *testing.T) {
	a := NewUserMessage("hi")
	b := NewUserMessage("hi")

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, RoleUser, a.Role)
	assert.Equal(t, KindText, a.Kind())

	body, ok := a.Text()
	require.True(t, ok)
	assert.Equal(t, "hi", body)
}

func TestMessage_VariantAccessors(t *testing.T) {
	text := NewTextMessage("a1", RoleAssistant, "Hello")
	_, ok := text.Workflow()
	assert.False(t, ok)

	wf := NewWorkflowMessage("w1", &fakeSnapshot{})
	assert.Equal(t, KindWorkflow, wf.Kind())
	assert.Equal(t, RoleAssistant, wf.Role)
	_, ok = wf.Text()
	assert.False(t, ok)
	snap, ok := wf.Workflow()
	require.True(t, ok)
	assert.NotNil(t, snap)

	assert.Equal(t, Kind(""), Message{ID: "empty"}.Kind())
}

func TestMerge_OverlaysContentAndKeepsID(t *testing.T) {
	existing := NewTextMessage("a1", RoleAssistant, "Hel")

	merged := Merge(existing, Patch{ID: "a1", Content: TextContent{Body: "Hello"}})

	assert.Equal(t, "a1", merged.ID)
	assert.Equal(t, RoleAssistant, merged.Role)
	body, _ := merged.Text()
	assert.Equal(t, "Hello", body)

	// Existing value is untouched
	body, _ = existing.Text()
	assert.Equal(t, "Hel", body)
}

func TestMerge_NilFieldsKeepExisting(t *testing.T) {
	existing := NewTextMessage("a1", RoleAssistant, "body")
	user := RoleUser

	merged := Merge(existing, Patch{ID: "a1", Role: &user})

	assert.Equal(t, RoleUser, merged.Role)
	body, _ := merged.Text()
	assert.Equal(t, "body", body)
}

func TestMerge_DeepCopiesWorkflowSnapshot(t *testing.T) {
	snap := &fakeSnapshot{Steps: []string{"planner"}}
	existing := NewWorkflowMessage("w1", &fakeSnapshot{})

	merged := Merge(existing, Patch{ID: "w1", Content: WorkflowContent{Workflow: snap}})

	// Mutating the source snapshot must not leak into the merged message
	snap.Steps[0] = "mutated"
	got, ok := merged.Workflow()
	require.True(t, ok)
	assert.Equal(t, []string{"planner"}, got.(*fakeSnapshot).Steps)
}

func TestIndexOf(t *testing.T) {
	msgs := []Message{
		NewTextMessage("u1", RoleUser, "hi"),
		NewTextMessage("a1", RoleAssistant, ""),
	}

	assert.Equal(t, 0, IndexOf(msgs, "u1"))
	assert.Equal(t, 1, IndexOf(msgs, "a1"))
	assert.Equal(t, -1, IndexOf(msgs, "missing"))
	assert.Equal(t, -1, IndexOf(nil, "u1"))
}

func TestMessage_MarshalJSON(t *testing.T) {
	text, err := json.Marshal(NewTextMessage("a1", RoleAssistant, "Hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"a1","role":"assistant","type":"text","content":"Hello"}`, string(text))

	wf, err := json.Marshal(NewWorkflowMessage("w1", &fakeSnapshot{Steps: []string{"planner"}}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"w1","role":"assistant","type":"workflow","content":{"workflow":{"steps":["planner"]}}}`, string(wf))
}

func TestToChatMessage(t *testing.T) {
	cm, ok := ToChatMessage(NewTextMessage("u1", RoleUser, "hi"))
	require.True(t, ok)
	assert.Equal(t, ChatMessage{Role: RoleUser, Content: "hi"}, cm)

	_, ok = ToChatMessage(NewWorkflowMessage("w1", &fakeSnapshot{}))
	assert.False(t, ok)
}

func TestCloneChatMessages_NilBecomesEmpty(t *testing.T) {
	out := CloneChatMessages(nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}
