package status

import "time"

// Requester identifies who is asking. A nil UserID means anonymous.
type Requester struct {
	UserID     *int64
	Privileged bool
}

// FileStatusView is the read-only snapshot returned to pollers. It never
// blocks waiting for a transition.
type FileStatusView struct {
	FileID       string     `json:"fileId"`
	Status       string     `json:"status"`
	TaskStatus   string     `json:"taskStatus"`
	ErrorMessage string     `json:"errorMessage,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ProcessedAt  *time.Time `json:"processedAt,omitempty"`
	HasNotes     bool       `json:"hasNotes"`
}
