// Package ledger records turns for inspection and replay.
//
// The ledger is a diagnostic aid, not conversation history: a fresh
// conversation store never reads from it. Each turn is a row in "turns"
// with its outcome; every event pulled during the turn, including the ones
// consumed by the workflow engine, is a row in "turn_events" keyed by pull
// order.
//
// ReplaySource turns a recorded turn back into an event.Source so the same
// stream can be pushed through the processor again.
package ledger
