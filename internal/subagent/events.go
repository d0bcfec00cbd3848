package subagent

// Event types published on the bus for each lifecycle edge.
const (
	EventCreated   = "subagent.created"
	EventCompleted = "subagent.completed"
	EventFailed    = "subagent.failed"
	EventCancelled = "subagent.cancelled"
)

// EventPayload is the payload carried by every subagent.* event.
type EventPayload struct {
	TaskID      string     `json:"task_id"`
	Description string     `json:"description"`
	Status      string     `json:"status"`
	Result      any        `json:"result,omitempty"`
	Error       *TaskError `json:"error,omitempty"`
}
