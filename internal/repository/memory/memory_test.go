package memory

import (
	"context"
	"testing"
	"time"

	"silo-be/internal/entity"
	"silo-be/pkg/orchestrator"
	"silo-be/pkg/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsRepository(t *testing.T) {
	repo := NewSettingsRepository()
	ctx := context.Background()

	got, err := repo.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultSettings(), got)

	got.InputTheme = entity.InputThemeTransparent
	require.NoError(t, repo.Save(ctx, "client-1", got))

	// stored by value
	got.InputTheme = entity.InputThemeBlack

	again, err := repo.Load(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, entity.InputThemeTransparent, again.InputTheme)

	other, err := repo.Load(ctx, "client-2")
	require.NoError(t, err)
	assert.Equal(t, entity.DefaultSettings(), other)
}

func newSession(id string) *entity.Session {
	return &entity.Session{
		ID:           id,
		ClientID:     "client",
		CreatedAt:    time.Now(),
		Orchestrator: orchestrator.New(nil, orchestrator.Config{FlashModel: "f", ProModel: "p"}),
	}
}

func TestSessionRepositoryDeleteClosesSession(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	s := newSession("s1")
	repo.Save(s)

	got, ok := repo.Get("s1")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, repo.Count())

	repo.Delete("s1")
	_, ok = repo.Get("s1")
	assert.False(t, ok)

	_, err := s.Orchestrator.Submit(context.Background(), "hello", nil, orchestrator.AgentAuto)
	assert.ErrorIs(t, err, orchestrator.ErrClosed)
}

func TestSessionRepositoryExpiry(t *testing.T) {
	repo := NewSessionRepository(20 * time.Millisecond)
	repo.Save(newSession("s1"))

	time.Sleep(50 * time.Millisecond)
	_, ok := repo.Get("s1")
	assert.False(t, ok)
}

func TestSessionRepositoryKeepsLiveCallPastIdle(t *testing.T) {
	repo := NewSessionRepository(20 * time.Millisecond)
	s := newSession("s1")

	ended := make(chan struct{})
	loop := voice.New(voice.Config{}, voice.Deps{}, voice.WithExit(func() { close(ended) }))
	require.True(t, s.AttachLive(loop))
	repo.Save(s)

	time.Sleep(50 * time.Millisecond)

	got, ok := repo.Get("s1")
	require.True(t, ok, "session with a running call survives expiry")
	assert.Same(t, s, got)
	assert.Same(t, loop, got.Live())
	select {
	case <-ended:
		t.Fatal("live call ended by idle expiry")
	default:
	}

	s.DetachLive(loop)
	time.Sleep(50 * time.Millisecond)
	_, ok = repo.Get("s1")
	assert.False(t, ok)
	select {
	case <-ended:
		t.Fatal("detached loop should not be ended by the repository")
	default:
	}
}

func TestSessionRepositoryDeleteEndsLiveCall(t *testing.T) {
	repo := NewSessionRepository(time.Hour)
	s := newSession("s1")

	ended := make(chan struct{})
	loop := voice.New(voice.Config{}, voice.Deps{}, voice.WithExit(func() { close(ended) }))
	require.True(t, s.AttachLive(loop))
	repo.Save(s)

	repo.CloseAll()
	assert.Equal(t, 0, repo.Count())
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("live call not ended on close")
	}
}
