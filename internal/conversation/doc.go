// Package conversation holds the client-side state of one conversation and
// the processor that streams turns into it.
//
// # Store
//
// Store is an observable container of:
//
//   - Messages: ordered, id-addressed text and workflow messages
//   - Responding: true exactly while a turn runs
//   - State: the {role, content} list sent as context for the next turn
//
// Every mutation replaces whole fields and publishes an immutable Snapshot.
// Subscribe delivers snapshots synchronously in mutation order; Watch
// delivers them on a buffered channel for consumers that may fall behind.
//
// # Service
//
// Service runs turns:
//
//	store := conversation.NewStore(logger)
//	svc := conversation.New(store,
//	    conversation.WithSource(transport.NewClient(cfg)),
//	    conversation.WithMockSource(mock.NewSource()),
//	)
//	msg, err := svc.SendMessage(ctx, messaging.NewUserMessage("hi"), conversation.Params{SessionID: id})
//
// A turn:
//
//  1. Fails with ErrMissingSession or ErrTurnInProgress before touching the store
//  2. Raises Responding and appends the user message
//  3. Opens the live source, or the mock source when mock.WithMockMode marks ctx
//  4. Applies events one at a time:
//     start_of_agent appends an assistant text message that receives
//     message deltas until end_of_agent; start_of_workflow appends a
//     workflow message and lends the stream to a workflow engine until the
//     workflow ends, then replaces State with the workflow's final messages
//  5. Clears Responding on every exit path
//
// RunTurn reports the outcome as Completed, Cancelled or Failed. SendMessage
// folds it into the usual (message, error) pair, with cancellation returning
// (nil, nil).
package conversation
