// ABOUTME: Deterministic event source that replays scripted scenarios
// ABOUTME: Scenario chosen by "/scenario <name>" prefix or the configured default

package mock

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/turnstream/internal/event"
	"github.com/2389/turnstream/internal/messaging"
)

// scenarioPrefix selects a scenario from the user's text.
const scenarioPrefix = "/scenario "

// idFields are the payload keys rewritten when fresh IDs are enabled.
var idFields = []string{"agent_id", "workflow_id", "tool_call_id", "message_id"}

// Source replays scenarios as event streams.
type Source struct {
	scenarios   map[string]Scenario
	defaultName string
	delay       time.Duration
	freshIDs    bool
	logger      *slog.Logger
}

// Option configures a Source.
type Option func(*Source)

// WithScenarios registers additional scenarios, replacing built-ins of the
// same name.
func WithScenarios(scenarios ...Scenario) Option {
	return func(s *Source) {
		for _, sc := range scenarios {
			s.scenarios[sc.Name] = sc
		}
	}
}

// WithDefault sets the scenario used when the request does not name one.
func WithDefault(name string) Option {
	return func(s *Source) { s.defaultName = name }
}

// WithDelay paces every scenario that has no delay of its own.
func WithDelay(d time.Duration) Option {
	return func(s *Source) { s.delay = d }
}

// WithFreshIDs suffixes agent, workflow, tool call and message IDs with a
// per-turn token so repeated turns do not reuse message IDs.
func WithFreshIDs(on bool) Option {
	return func(s *Source) { s.freshIDs = on }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Source) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSource creates a source holding the built-in scenarios.
func NewSource(opts ...Option) *Source {
	s := &Source{
		scenarios:   make(map[string]Scenario),
		defaultName: ScenarioGreeting,
		logger:      slog.Default(),
	}
	for _, sc := range Builtin() {
		s.scenarios[sc.Name] = sc
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "mock_source")
	return s
}

// Names returns the registered scenario names, sorted.
func (s *Source) Names() []string {
	names := make([]string, 0, len(s.scenarios))
	for name := range s.scenarios {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open implements event.Source.
func (s *Source) Open(ctx context.Context, req event.Request) (event.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := s.defaultName
	if text, ok := req.Message.Text(); ok && strings.HasPrefix(text, scenarioPrefix) {
		name = strings.TrimSpace(strings.TrimPrefix(text, scenarioPrefix))
	}
	sc, ok := s.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownScenario, name)
	}

	delay := sc.Delay
	if delay == 0 {
		delay = s.delay
	}

	suffix := ""
	if s.freshIDs {
		suffix = "-" + uuid.New().String()[:8]
	}

	input := append(messaging.CloneChatMessages(req.History), userChat(req.Message)...)
	events := make([]event.Event, len(sc.Events))
	for i, e := range sc.Events {
		events[i] = prepare(e, suffix, input)
	}

	s.logger.Debug("opening scenario",
		"scenario", sc.Name,
		"events", len(events),
		"conversation_id", req.Options.ConversationID)

	return &stream{events: events, delay: delay}, nil
}

func userChat(m messaging.Message) []messaging.ChatMessage {
	if cm, ok := messaging.ToChatMessage(m); ok {
		return []messaging.ChatMessage{cm}
	}
	return nil
}

// prepare copies e, applies the ID suffix and fills the workflow input.
func prepare(e event.Event, suffix string, input []messaging.ChatMessage) event.Event {
	data := maps.Clone(e.Data)
	if data == nil {
		data = map[string]any{}
	}
	if suffix != "" {
		for _, key := range idFields {
			if v, ok := data[key].(string); ok && v != "" {
				data[key] = v + suffix
			}
		}
	}
	if e.Type == event.TypeStartOfWorkflow {
		if _, ok := data["input"]; !ok {
			in := make([]any, len(input))
			for i, m := range input {
				in[i] = map[string]any{"role": string(m.Role), "content": m.Content}
			}
			data["input"] = in
		}
	}
	return event.Event{Type: e.Type, Data: data}
}

type stream struct {
	events []event.Event
	pos    int
	delay  time.Duration
	closed bool
}

func (s *stream) Next(ctx context.Context) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s.closed || s.pos >= len(s.events) {
		return event.Event{}, io.EOF
	}
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return event.Event{}, ctx.Err()
		case <-timer.C:
		}
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func (s *stream) Close() error {
	s.closed = true
	return nil
}
