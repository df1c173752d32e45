// Package config handles configuration loading for turnstream.
//
// # Overview
//
// Configuration is loaded from YAML or TOML files with environment variable
// expansion. Keys missing from the file keep the values from Default().
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path given with --config
//  2. Path from TURNSTREAM_CONFIG environment variable
//  3. $XDG_CONFIG_HOME/turnstream/config.yaml (~/.config when unset)
//
// A missing file at the default location is not an error; LoadOrDefault
// returns Default().
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	transport:
//	  token: "${TURNSTREAM_TOKEN}"
//
// Unset variables expand to the empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	transport:
//	  timeout: "30s"
//	mock:
//	  delay: "150ms"
//
// # Configuration Sections
//
//	session:
//	  id: "default"
//	  deep_thinking_mode: false
//	  search_before_planning: false
//
//	transport:
//	  url: "http://localhost:8000/api/chat/stream"
//	  token: ""
//	  timeout: "30s"
//
//	mock:
//	  enabled: false
//	  scenario_file: ""        # YAML or TOML, merged over the built-ins
//	  default: "greeting"
//	  delay: "0s"
//	  fresh_ids: true
//
//	ledger:
//	  path: ""                 # empty disables turn recording
//
//	server:
//	  addr: "127.0.0.1:8000"
//
//	logging:
//	  level: "info"            # debug, info, warn, error
//	  format: "text"           # text (colorized) or json
//
//	metrics:
//	  enabled: true
//
// The same layout applies to TOML files, one table per section.
package config
