// Package mock provides a deterministic event source for development and
// tests. It replays named scenarios: "greeting" (one agent replying with
// text) and "research" (a planner/researcher/reporter workflow), plus any
// scenarios loaded from YAML or TOML files.
//
// A turn is routed here when its context carries WithMockMode, or when the
// conversation service is configured for mock mode.
package mock
