package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"silo-be/internal/config"
	"silo-be/internal/constant"
	"silo-be/internal/pkg/logger"
	"silo-be/pkg/gemini"
	"silo-be/pkg/orchestrator"
	"silo-be/pkg/voice"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSpeech struct{}

func (fakeSpeech) SpeechToText(ctx context.Context, audio []byte) (string, error) {
	return string(audio), nil
}

func (fakeSpeech) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	return []byte(text), nil
}

type fakeSocket struct {
	controls chan string
	closed   chan struct{}
	once     sync.Once

	mu       sync.Mutex
	statuses []voice.State
	mic      int
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{
		controls: make(chan string, 8),
		closed:   make(chan struct{}),
	}
}

func (s *fakeSocket) Acquire() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mic++
	return nil
}

func (s *fakeSocket) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mic--
	return nil
}

func (s *fakeSocket) Play(audio []byte) error { return nil }
func (s *fakeSocket) Stop()                   {}

func (s *fakeSocket) SendStatus(st voice.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
}

func (s *fakeSocket) Serve(onAudio func([]byte), onControl func(string)) {
	for {
		select {
		case <-s.closed:
			return
		case c := <-s.controls:
			onControl(c)
		}
	}
}

func (s *fakeSocket) Close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *fakeSocket) states() []voice.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]voice.State{}, s.statuses...)
}

func (s *fakeSocket) lastStatus() voice.State {
	st := s.states()
	if len(st) == 0 {
		return voice.State{}
	}
	return st[len(st)-1]
}

type liveHarness struct {
	*sessionHarness
	live ILiveService
}

func newLiveHarness() *liveHarness {
	h := newSessionHarness()
	return &liveHarness{
		sessionHarness: h,
		live: NewLiveService(
			h.svc,
			h.gen,
			fakeSpeech{},
			config.AIConfig{VoiceModel: "voice"},
			config.VoiceConfig{SilenceTimeout: time.Minute},
			h.events,
			logger.NewNopLogger(),
		),
	}
}

func (h *liveHarness) serve(sessionID string, socket LiveSocket) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.live.Serve(context.Background(), sessionID, socket)
	}()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("call did not end")
		return nil
	}
}

func TestLiveCallEndsFromClient(t *testing.T) {
	h := newLiveHarness()
	session := h.create(t)
	socket := newFakeSocket()

	errCh := h.serve(session.SessionID, socket)

	found, err := h.svc.Find(session.SessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return found.Live() != nil }, time.Second, 5*time.Millisecond)
	assert.Equal(t, orchestrator.ViewLive, found.Orchestrator.Snapshot().View)
	assert.Equal(t, voice.State{Status: voice.StatusIdle, Paused: true}, socket.states()[0])

	socket.controls <- constant.LiveControlPauseToggle
	require.Eventually(t, func() bool {
		return socket.lastStatus().Status == voice.StatusListening
	}, time.Second, 5*time.Millisecond)

	socket.controls <- constant.LiveControlEnd
	require.NoError(t, waitErr(t, errCh))

	assert.Nil(t, found.Live())
	snap := found.Orchestrator.Snapshot()
	assert.Equal(t, orchestrator.ViewHome, snap.View)
	assert.Equal(t, orchestrator.AgentAuto, snap.AgentMode)
	assert.Contains(t, h.events.types(), constant.EventLiveEnded)
	socket.mu.Lock()
	assert.Equal(t, 0, socket.mic, "microphone released")
	socket.mu.Unlock()
}

func TestLiveCallEndsWhenSocketCloses(t *testing.T) {
	h := newLiveHarness()
	session := h.create(t)
	socket := newFakeSocket()

	errCh := h.serve(session.SessionID, socket)
	found, err := h.svc.Find(session.SessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return found.Live() != nil }, time.Second, 5*time.Millisecond)

	socket.Close()
	require.NoError(t, waitErr(t, errCh))
	assert.Nil(t, found.Live())
	assert.Equal(t, orchestrator.ViewHome, found.Orchestrator.Snapshot().View)
}

func TestLiveMicrophoneDenied(t *testing.T) {
	h := newLiveHarness()
	session := h.create(t)
	socket := newFakeSocket()

	errCh := h.serve(session.SessionID, socket)
	socket.controls <- constant.LiveControlPauseToggle
	socket.controls <- constant.LiveControlMicDenied

	require.Eventually(t, func() bool {
		return socket.lastStatus().Status == voice.StatusError
	}, time.Second, 5*time.Millisecond)
	assert.NotEmpty(t, socket.lastStatus().Error)

	socket.Close()
	require.NoError(t, waitErr(t, errCh))
}

func TestLiveCallRejectsSecondSocket(t *testing.T) {
	h := newLiveHarness()
	session := h.create(t)
	first := newFakeSocket()

	errCh := h.serve(session.SessionID, first)
	found, err := h.svc.Find(session.SessionID)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return found.Live() != nil }, time.Second, 5*time.Millisecond)

	err = h.live.Serve(context.Background(), session.SessionID, newFakeSocket())
	assert.ErrorIs(t, err, constant.ErrLiveInProgress)

	first.controls <- constant.LiveControlEnd
	require.NoError(t, waitErr(t, errCh))
}

func TestLiveCallErrors(t *testing.T) {
	t.Run("unknown session", func(t *testing.T) {
		h := newLiveHarness()
		err := h.live.Serve(context.Background(), "nope", newFakeSocket())
		assert.ErrorIs(t, err, constant.ErrSessionNotFound)
	})

	t.Run("chat backend down", func(t *testing.T) {
		h := newLiveHarness()
		session := h.create(t)
		failing := NewLiveService(h.svc, failingChats{}, fakeSpeech{},
			config.AIConfig{VoiceModel: "voice"}, config.VoiceConfig{}, nil, logger.NewNopLogger())

		err := failing.Serve(context.Background(), session.SessionID, newFakeSocket())
		assert.ErrorIs(t, err, errQuota)

		found, err := h.svc.Find(session.SessionID)
		require.NoError(t, err)
		assert.Equal(t, orchestrator.ViewHome, found.Orchestrator.Snapshot().View)
	})
}

type failingChats struct{}

func (failingChats) CreateChatSession(ctx context.Context, model string, history []gemini.Turn, options ...gemini.Option) (gemini.Conversation, error) {
	return nil, errQuota
}

type recordingSynthesizer struct {
	texts []string
}

func (r *recordingSynthesizer) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	r.texts = append(r.texts, text)
	return []byte(text), nil
}

func TestSpokenTextDropsMarkup(t *testing.T) {
	rec := &recordingSynthesizer{}
	synth := spokenText{rec}

	_, err := synth.TextToSpeech(context.Background(), "The tower is **828 m** tall, see [here](https://example.com) &amp; more.")
	require.NoError(t, err)
	_, err = synth.TextToSpeech(context.Background(), "plain reply")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"The tower is 828 m tall, see here & more.",
		"plain reply",
	}, rec.texts)
}
