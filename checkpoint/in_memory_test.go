package checkpoint

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentloop/agentloop/core"
)

func sampleCheckpoint() *core.Checkpoint {
	conv := core.NewConversation("c1")
	conv.Append(core.NewUserTurn("book a flight"))
	conv.SetStatus(core.StatusAwaitingHuman)
	cp := core.NewCheckpoint(conv, "ask-1", "which city?")
	cp.PendingAgent = "travel"
	return cp
}

func TestInMemoryStore_SaveLoadConsumes(t *testing.T) {
	store := NewInMemoryStore()

	token, err := store.Save(sampleCheckpoint())
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, 1, store.Len())

	cp, err := store.Load(token)
	require.NoError(t, err)
	assert.Equal(t, "ask-1", cp.PendingCallID)
	assert.Equal(t, "travel", cp.PendingAgent)
	assert.Equal(t, 0, store.Len())

	// Single use: the second load must fail.
	_, err = store.Load(token)
	assert.True(t, errors.Is(err, core.ErrStaleCheckpoint))
}

func TestInMemoryStore_UnknownToken(t *testing.T) {
	store := NewInMemoryStore()
	_, err := store.Load("never-issued")
	assert.True(t, errors.Is(err, core.ErrStaleCheckpoint))
}

func TestInMemoryStore_TokensUnique(t *testing.T) {
	store := NewInMemoryStore()
	t1, err := store.Save(sampleCheckpoint())
	require.NoError(t, err)
	t2, err := store.Save(sampleCheckpoint())
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)
	assert.Equal(t, 2, store.Len())
}
