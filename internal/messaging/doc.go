// Package messaging defines the message model shown to the user.
//
// A Message carries a stable ID, a Role and a Content variant. Content is
// either TextContent (streamed assistant or user text) or WorkflowContent
// (an opaque snapshot owned by the workflow engine). Messages are values:
// updates go through a Patch applied with Merge, which always returns a deep
// copy so that snapshots already handed to subscribers never change.
//
// ChatMessage is the flattened {role, content} form sent to the backend as
// conversation context.
package messaging
