package core

import (
	"errors"
	"time"
)

// ErrStaleCheckpoint is returned when a resume token does not resolve to a
// live checkpoint: it was never issued, already consumed, or expired.
// Checkpoints are single use.
var ErrStaleCheckpoint = errors.New("checkpoint is stale or unknown")

// Checkpoint is a durable snapshot enabling an orchestration to suspend for
// human input and resume later, possibly in a different process. It owns the
// conversation state between suspension and resume.
type Checkpoint struct {
	Conversation  *Conversation `json:"conversation"`
	PendingCallID string        `json:"pending_call_id"`
	// PendingAgent names the agent that owns the pending ask_human call, so
	// supervisors and engines can dispatch a resume without re-classifying.
	PendingAgent string    `json:"pending_agent,omitempty"`
	Question     string    `json:"question"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewCheckpoint snapshots the conversation for the given pending call.
func NewCheckpoint(conv *Conversation, callID, question string) *Checkpoint {
	return &Checkpoint{
		Conversation:  conv.Snapshot(),
		PendingCallID: callID,
		Question:      question,
		CreatedAt:     time.Now().UTC(),
	}
}

// CheckpointStore persists checkpoints between suspension and resume. The
// loop is agnostic to the backing store; it only requires at-least-once
// durability within whatever window the deployment guarantees.
//
// Load consumes: a second Load with the same token must return
// ErrStaleCheckpoint.
type CheckpointStore interface {
	Save(cp *Checkpoint) (token string, err error)
	Load(token string) (*Checkpoint, error)
}
