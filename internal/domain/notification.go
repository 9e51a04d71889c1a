package domain

import (
	"encoding/json"
	"time"
)

// Notification is a persisted inbox entry for one recipient.
type Notification struct {
	ID          int64           `json:"id"`
	RecipientID string          `json:"recipient_id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	ReadAt      *time.Time      `json:"read_at,omitempty"`
}
