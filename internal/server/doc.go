// Package server exposes turnstream over HTTP.
//
// Routes:
//
//	GET  /health           liveness
//	POST /api/chat/stream  chat request in, SSE events out (needs a Source)
//	GET  /api/snapshots    store snapshots as SSE (needs a Store)
//	GET  /metrics          Prometheus exposition (needs a Gatherer)
//
// The chat stream endpoint accepts the body transport.Client sends, so a
// mock source served here stands in for a real backend during development.
// The snapshot feed sends the current snapshot first, then one "snapshot"
// event per store change, with SSE comment heartbeats in between.
package server
