// ABOUTME: Scripted event scenarios for the mock source, built in or loaded from YAML/TOML
// ABOUTME: A scenario is a named, ordered list of events with an optional pacing delay

package mock

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/turnstream/internal/event"
)

// Names of the built-in scenarios.
const (
	ScenarioGreeting = "greeting"
	ScenarioResearch = "research"
)

// ErrUnknownScenario is returned when a request names a scenario that is
// not registered.
var ErrUnknownScenario = errors.New("unknown scenario")

// Scenario is a scripted turn.
type Scenario struct {
	Name        string        `yaml:"name" toml:"name"`
	Description string        `yaml:"description" toml:"description"`
	Delay       time.Duration `yaml:"-" toml:"-"`
	Events      []event.Event `yaml:"events" toml:"events"`
}

// scenarioFile is the on-disk shape. Delay is a duration string ("25ms").
type scenarioFile struct {
	Scenarios []struct {
		Name        string        `yaml:"name" toml:"name"`
		Description string        `yaml:"description" toml:"description"`
		Delay       string        `yaml:"delay" toml:"delay"`
		Events      []event.Event `yaml:"events" toml:"events"`
	} `yaml:"scenarios" toml:"scenarios"`
}

// LoadScenarios reads scenarios from a .yaml/.yml or .toml file.
func LoadScenarios(path string) ([]Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario file: %w", err)
	}

	var raw scenarioFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parsing scenario file: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &raw); err != nil {
			return nil, fmt.Errorf("parsing scenario file: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported scenario file extension %q", filepath.Ext(path))
	}

	out := make([]Scenario, 0, len(raw.Scenarios))
	for i, s := range raw.Scenarios {
		if s.Name == "" {
			return nil, fmt.Errorf("scenario %d: name is required", i)
		}
		sc := Scenario{Name: s.Name, Description: s.Description, Events: s.Events}
		if s.Delay != "" {
			d, err := time.ParseDuration(s.Delay)
			if err != nil {
				return nil, fmt.Errorf("scenario %s: invalid delay: %w", s.Name, err)
			}
			sc.Delay = d
		}
		for j, e := range sc.Events {
			if e.Type == "" {
				return nil, fmt.Errorf("scenario %s: event %d has no type", s.Name, j)
			}
			if e.Data == nil {
				sc.Events[j].Data = map[string]any{}
			}
		}
		out = append(out, sc)
	}
	return out, nil
}

// Builtin returns the built-in scenarios.
func Builtin() []Scenario {
	return []Scenario{Greeting(), Research()}
}

// Greeting is a single agent replying "Hello" in two deltas.
func Greeting() Scenario {
	return Scenario{
		Name:        ScenarioGreeting,
		Description: "single agent text reply",
		Events: []event.Event{
			event.New(event.TypeStartOfAgent, map[string]any{"agent_id": "a1", "agent_name": "coordinator"}),
			delta("Hel"),
			delta("lo"),
			event.New(event.TypeEndOfAgent, map[string]any{"agent_id": "a1", "agent_name": "coordinator"}),
		},
	}
}

// Research hands off to a planner, a researcher with one search, and a
// reporter, then reports the final conversation state.
func Research() Scenario {
	events := []event.Event{
		event.New(event.TypeStartOfAgent, map[string]any{"agent_id": "coordinator-1", "agent_name": "coordinator"}),
		delta("Let me plan this out."),
		event.New(event.TypeEndOfAgent, map[string]any{"agent_id": "coordinator-1", "agent_name": "coordinator"}),
		event.New(event.TypeStartOfWorkflow, map[string]any{"workflow_id": "w1"}),
	}
	events = append(events, agentRun("planner-1", "planner", "1. Search for sources\n2. Write the report")...)

	events = append(events,
		event.New(event.TypeStartOfAgent, map[string]any{"agent_id": "researcher-1", "agent_name": "researcher"}),
		event.New(event.TypeToolCall, map[string]any{
			"tool_call_id": "call-1",
			"tool_name":    "tavily_search",
			"tool_input":   map[string]any{"query": "streaming event processing"},
		}),
		event.New(event.TypeToolCallResult, map[string]any{
			"tool_call_id": "call-1",
			"tool_name":    "tavily_search",
			"tool_result":  []any{map[string]any{"title": "Server-Sent Events", "url": "https://html.spec.whatwg.org/multipage/server-sent-events.html"}},
		}),
		event.New(event.TypeStartOfLLM, map[string]any{"agent_name": "researcher"}),
		delta("Found one relevant source."),
		event.New(event.TypeEndOfLLM, map[string]any{"agent_name": "researcher"}),
		event.New(event.TypeEndOfAgent, map[string]any{"agent_id": "researcher-1", "agent_name": "researcher"}),
	)

	report := "# Report\n\nStreams are consumed one event at a time."
	events = append(events, agentRun("reporter-1", "reporter", report)...)
	events = append(events, event.New(event.TypeEndOfWorkflow, map[string]any{
		"workflow_id": "w1",
		"messages": []any{
			map[string]any{"role": "assistant", "content": report},
		},
	}))

	return Scenario{
		Name:        ScenarioResearch,
		Description: "planner, researcher and reporter workflow",
		Events:      events,
	}
}

func delta(content string) event.Event {
	return event.New(event.TypeMessage, map[string]any{
		"delta": map[string]any{"content": content},
	})
}

func agentRun(id, name, text string) []event.Event {
	return []event.Event{
		event.New(event.TypeStartOfAgent, map[string]any{"agent_id": id, "agent_name": name}),
		event.New(event.TypeStartOfLLM, map[string]any{"agent_name": name}),
		delta(text),
		event.New(event.TypeEndOfLLM, map[string]any{"agent_name": name}),
		event.New(event.TypeEndOfAgent, map[string]any{"agent_id": id, "agent_name": name}),
	}
}
