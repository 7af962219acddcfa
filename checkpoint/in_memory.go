package checkpoint

import (
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agentloop/agentloop/core"
)

// InMemoryStore is a volatile CheckpointStore keeping checkpoints in a
// process-local map. Safe for concurrent access; best suited for tests and
// single-process deployments where resume happens before restart.
type InMemoryStore struct {
	mu          sync.Mutex
	checkpoints map[string]*core.Checkpoint
}

// NewInMemoryStore constructs an empty in-memory checkpoint store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{checkpoints: make(map[string]*core.Checkpoint)}
}

// Save stores the checkpoint and returns its opaque token.
func (s *InMemoryStore) Save(cp *core.Checkpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := ulid.Make().String()
	s.checkpoints[token] = cp
	return token, nil
}

// Load returns the checkpoint for token and consumes it. A token that was
// never issued or already consumed fails with core.ErrStaleCheckpoint.
func (s *InMemoryStore) Load(token string) (*core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.checkpoints[token]
	if !ok {
		return nil, core.ErrStaleCheckpoint
	}
	delete(s.checkpoints, token)
	return cp, nil
}

// Len returns the number of live checkpoints.
func (s *InMemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.checkpoints)
}
