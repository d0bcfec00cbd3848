package contextmon

import "time"

// Role identifies the author of a conversation message.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry in a conversation window.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	// Compressed marks messages produced by a compression pass so repeated
	// checks do not re-summarize a summary.
	Compressed bool `json:"compressed,omitempty"`
}

// IsSystem reports whether the message carries system instructions.
func (m Message) IsSystem() bool {
	return m.Role == RoleSystem
}
