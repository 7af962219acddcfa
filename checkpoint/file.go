package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/agentloop/agentloop/core"
)

// FileStore persists checkpoints as JSON files in a directory, one file per
// token. It survives process restarts, satisfying the durability window
// between suspension and resume. Loading removes the file, enforcing single
// use.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates the directory if needed and returns a store over it.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Save writes the checkpoint to disk and returns its token.
func (s *FileStore) Save(cp *core.Checkpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token := ulid.Make().String()
	data, err := json.Marshal(cp)
	if err != nil {
		return "", fmt.Errorf("encode checkpoint: %w", err)
	}

	// Write-then-rename so a crash mid-write never leaves a loadable partial file.
	tmp := s.path(token) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return "", fmt.Errorf("write checkpoint: %w", err)
	}
	if err := os.Rename(tmp, s.path(token)); err != nil {
		return "", fmt.Errorf("commit checkpoint: %w", err)
	}
	return token, nil
}

// Load reads and consumes the checkpoint for token.
func (s *FileStore) Load(token string) (*core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !validToken(token) {
		return nil, core.ErrStaleCheckpoint
	}

	data, err := os.ReadFile(s.path(token))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrStaleCheckpoint
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp core.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}

	if err := os.Remove(s.path(token)); err != nil {
		return nil, fmt.Errorf("consume checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *FileStore) path(token string) string {
	return filepath.Join(s.dir, token+".json")
}

// validToken rejects anything that is not a bare ULID, keeping file lookups
// inside the store directory.
func validToken(token string) bool {
	if token == "" || strings.ContainsAny(token, `/\.`) {
		return false
	}
	_, err := ulid.ParseStrict(token)
	return err == nil
}
