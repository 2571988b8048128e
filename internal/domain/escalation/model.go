package escalation

import (
	"encoding/json"
	"time"
)

// Escalation kinds.
const (
	KindIdentityReview = "identity_review"
	KindEmergency      = "emergency"
)

// Escalation is one item in the clinician review queue.
type Escalation struct {
	EscID     string          `json:"esc_id"`
	ThreadID  string          `json:"thread_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Resolved  bool            `json:"resolved"`
	NurseNote string          `json:"nurse_note"`
	CreatedAt time.Time       `json:"created_at"`
}
