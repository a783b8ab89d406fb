package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zenieverse/OmniGuide-AI/pkg/core/types"
)

func sampleSession(id string) *types.Session {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return &types.Session{
		ID:   id,
		Mode: types.ModeCookingAssistant,
		History: []types.Turn{
			{Role: types.RoleUser, Content: "what can I make?", Timestamp: now, Mode: types.ModeCookingAssistant, Image: "data:image/jpeg;base64,AAAA"},
			{Role: types.RoleModel, Content: "Eggs and spinach make a frittata.", Timestamp: now.Add(time.Second), Mode: types.ModeCookingAssistant},
		},
		LastDetectedObjects: []string{"eggs", "spinach"},
		UpdatedAt:           now.Add(time.Second),
	}
}

// runStoreContract exercises the behavior every Store must share.
func runStoreContract(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("invalid id", func(t *testing.T) {
		_, err := s.Get(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidID)
		assert.ErrorIs(t, s.Put(ctx, &types.Session{}), ErrInvalidID)
		assert.ErrorIs(t, s.Put(ctx, nil), ErrInvalidSession)
	})

	t.Run("put then get", func(t *testing.T) {
		want := sampleSession("contract-1")
		require.NoError(t, s.Put(ctx, want))

		got, err := s.Get(ctx, "contract-1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Mode, got.Mode)
		assert.Equal(t, want.LastDetectedObjects, got.LastDetectedObjects)
		assert.True(t, want.UpdatedAt.Equal(got.UpdatedAt))
		require.Len(t, got.History, 2)
		for i := range want.History {
			assert.Equal(t, want.History[i].Role, got.History[i].Role)
			assert.Equal(t, want.History[i].Content, got.History[i].Content)
			assert.Equal(t, want.History[i].Mode, got.History[i].Mode)
			assert.Equal(t, want.History[i].Image, got.History[i].Image)
			assert.True(t, want.History[i].Timestamp.Equal(got.History[i].Timestamp))
		}
	})

	t.Run("put overwrites", func(t *testing.T) {
		sess := sampleSession("contract-2")
		require.NoError(t, s.Put(ctx, sess))
		sess.History = []types.Turn{}
		sess.LastDetectedObjects = nil
		sess.Mode = types.ModeGeneral
		require.NoError(t, s.Put(ctx, sess))

		got, err := s.Get(ctx, "contract-2")
		require.NoError(t, err)
		assert.Empty(t, got.History)
		assert.NotNil(t, got.History)
		assert.Empty(t, got.LastDetectedObjects)
		assert.Equal(t, types.ModeGeneral, got.Mode)
	})

	t.Run("returned sessions are copies", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, sampleSession("contract-3")))
		got, err := s.Get(ctx, "contract-3")
		require.NoError(t, err)
		got.History[0].Content = "mutated"

		again, err := s.Get(ctx, "contract-3")
		require.NoError(t, err)
		assert.Equal(t, "what can I make?", again.History[0].Content)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, s.Put(ctx, sampleSession("contract-4")))
		require.NoError(t, s.Delete(ctx, "contract-4"))
		_, err := s.Get(ctx, "contract-4")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, s.Delete(ctx, "contract-4"))
	})
}
