// Package transport is the live event source. Client sends
//
//	POST <url>
//	Accept: text/event-stream
//	{"messages": [...state, user], "deep_thinking_mode": false,
//	 "search_before_planning": false, "conversation_id": "..."}
//
// and reads the response body as "event:/data:" frames. Retry and backoff
// are left to the caller.
package transport
