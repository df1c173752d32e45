// Package workflow interprets the event range between start_of_workflow and
// end_of_workflow as a multi-step plan. Each agent run becomes a Step; LLM
// output and tool calls inside it become Tasks.
//
// The engine never owns the stream. It is handed a borrowed stream
// (an event.Loan) and stops pulling as soon as end_of_workflow is seen, so
// the caller resumes exactly after the workflow's last event.
package workflow
