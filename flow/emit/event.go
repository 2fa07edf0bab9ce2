package emit

// Event is one observability record from workflow or task execution.
//
// Events trace the durable execution lifecycle:
//   - Workflow start, completion, failure, revival
//   - Activity runs and memo hits during replay
//   - Signal arrival and binding
//   - Task claims, retries, suspensions, and results
//
// Events flow to an Emitter, which can log them, turn them into
// OpenTelemetry spans, buffer them for inspection, or feed metrics.
type Event struct {
	// WorkflowID identifies the workflow execution, when known. Worker-level
	// events for plain tasks leave it empty.
	WorkflowID string

	// TaskID identifies the queued task the event belongs to, when the event
	// comes from the task layer.
	TaskID string

	// Step is the step ordinal inside the workflow. Zero for lifecycle and
	// task events.
	Step int

	// Name is the workflow, activity, or task name the event refers to.
	Name string

	// Msg names the event, snake_case: "workflow_start", "activity_memo_hit",
	// "task_claimed", "task_retried", ...
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "error": failure details
	//   - "duration_ms": execution duration in milliseconds
	//   - "retry_count": attempt number for retried tasks
	//   - "wake_at": epoch seconds a suspended task resumes at
	Meta map[string]interface{}
}
