// Package event defines the typed event stream a chat backend produces for
// one turn, and the pull discipline used to consume it.
//
// # Events
//
// An Event has a Type and a JSON-object Data. Payload structs
// (AgentStart, MessageDelta, WorkflowStart, ...) are read with Decode.
//
// # Streams and sources
//
// A Source opens a Stream for a Request. Streams are pulled with Next until
// io.EOF. Cancellation flows through the context passed to Next.
//
// # Cursor hand-off
//
// The turn processor and the workflow engine read from the same stream. A
// Cursor owns the stream; Lend hands a Loan to the workflow engine, which
// reads the remainder of the workflow range and returns the loan. Only one
// holder can pull at a time:
//
//	cur := event.NewCursor(stream)
//	ev, err := cur.Next(ctx)      // owner pulls
//	loan, _ := cur.Lend()
//	engine.Run(ctx, loan)         // borrower pulls
//	loan.Return()
//	ev, err = cur.Next(ctx)       // owner resumes after the borrower's last event
//
// # SSE
//
// SSEReader and WriteSSE convert between events and "event:/data:" frames.
package event
