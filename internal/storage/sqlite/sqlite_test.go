package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/kenkyu/internal/model"
)

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	return s, path
}

func TestStore_PutGet(t *testing.T) {
	s, _ := openTemp(t)
	defer func() { _ = s.Close() }()
	ctx := context.Background()

	sess := model.Session{
		ID:        "team:a.1",
		Task:      "What is a hackathon?",
		Plan:      []string{"q1"},
		Stage:     model.StagePausedForApproval,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	require.NoError(t, s.Put(ctx, sess))

	got, err := s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Task, got.Task)
	assert.Equal(t, sess.Plan, got.Plan)

	sess.Stage = model.StageDone
	sess.FinalReport = "done"
	require.NoError(t, s.Put(ctx, sess))
	got, err = s.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StageDone, got.Stage)
	assert.Equal(t, "done", got.FinalReport)

	assert.NoError(t, s.Ping(ctx))
}

func TestStore_NotFound(t *testing.T) {
	s, _ := openTemp(t)
	defer func() { _ = s.Close() }()

	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, model.ErrSessionNotFound)
}

func TestStore_SurvivesReopen(t *testing.T) {
	s, path := openTemp(t)
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, model.Session{ID: "durable", Task: "t", Stage: model.StageDrafting}))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, "durable")
	require.NoError(t, err)
	assert.Equal(t, model.StageDrafting, got.Stage)
}
