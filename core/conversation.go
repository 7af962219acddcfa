package core

import (
	"sync"
	"time"
)

// Status tracks the lifecycle of a conversation.
type Status string

const (
	// StatusRunning means the loop may still take decisions.
	StatusRunning Status = "running"
	// StatusAwaitingHuman means the loop suspended on an ask_human call and a
	// checkpoint owns the state until resume.
	StatusAwaitingHuman Status = "awaiting_human"
	// StatusDone means a final answer was surfaced.
	StatusDone Status = "done"
	// StatusFailed means the iteration cap was exceeded or an unrecoverable
	// error occurred; FailReason carries a human-readable cause.
	StatusFailed Status = "failed"
)

// Conversation is an ordered, append-only record of turns plus lifecycle
// status. It is owned exclusively by one orchestration loop at a time; a
// suspended conversation is owned by its checkpoint until resumed. Safe for
// concurrent reads.
//
// Contract:
//   - Turns are immutable once appended
//   - Append updates the Updated timestamp
//   - Turns and History return defensive copies
//   - Snapshot performs a deep copy for safe divergence (checkpointing)
type Conversation struct {
	ID         string    `json:"id"`
	Turns      []Turn    `json:"turns"`
	Status     Status    `json:"status"`
	FailReason string    `json:"fail_reason,omitempty"`
	Created    time.Time `json:"created"`
	Updated    time.Time `json:"updated"`

	mu sync.RWMutex
}

// NewConversation creates an empty running conversation with the given id.
// An empty id is replaced by a generated one.
func NewConversation(id string) *Conversation {
	if id == "" {
		id = NewID()
	}
	now := time.Now().UTC()
	return &Conversation{ID: id, Turns: []Turn{}, Status: StatusRunning, Created: now, Updated: now}
}

// Append adds a turn to the history updating the Updated timestamp.
func (c *Conversation) Append(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Turns = append(c.Turns, t)
	c.Updated = time.Now().UTC()
}

// SetStatus transitions the conversation lifecycle status.
func (c *Conversation) SetStatus(s Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = s
	c.Updated = time.Now().UTC()
}

// Fail marks the conversation failed with a human-readable reason.
func (c *Conversation) Fail(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Status = StatusFailed
	c.FailReason = reason
	c.Updated = time.Now().UTC()
}

// CurrentStatus returns the lifecycle status.
func (c *Conversation) CurrentStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Status
}

// Reason returns the failure reason, empty unless Status is failed.
func (c *Conversation) Reason() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.FailReason
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.Turns)
}

// AllTurns returns a defensive copy of the full turn slice.
func (c *Conversation) AllTurns() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	turns := make([]Turn, len(c.Turns))
	copy(turns, c.Turns)
	return turns
}

// History returns turns suitable for providing conversational context to a
// gateway: user, assistant and tool turns in order, note turns excluded.
func (c *Conversation) History() []Turn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]Turn, 0, len(c.Turns))
	for _, t := range c.Turns {
		if t.Kind == TurnNote {
			continue
		}
		res = append(res, t)
	}
	return res
}

// LastTurn returns the most recent turn and true, or a zero turn and false
// when the conversation is empty.
func (c *Conversation) LastTurn() (Turn, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.Turns) == 0 {
		return Turn{}, false
	}
	return c.Turns[len(c.Turns)-1], true
}

// Snapshot returns a deep copy of the conversation safe for independent
// mutation. Used when persisting checkpoints.
func (c *Conversation) Snapshot() *Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cp := &Conversation{
		ID:         c.ID,
		Turns:      make([]Turn, len(c.Turns)),
		Status:     c.Status,
		FailReason: c.FailReason,
		Created:    c.Created,
		Updated:    c.Updated,
	}
	copy(cp.Turns, c.Turns)
	return cp
}
