package domain

import "time"

// Notification is a user-facing toast emitted once per terminal action outcome.
type Notification struct {
	ActionID    string     `json:"action_id"`
	Kind        ActionKind `json:"kind"`
	Outcome     Outcome    `json:"outcome"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ExplorerURL string     `json:"explorer_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}
