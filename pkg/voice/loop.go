// Package voice runs the turn-taking loop of a live call: listen until the caller goes
// quiet, transcribe, ask the model, speak the reply, then listen again.
package voice

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"silo-be/internal/pkg/logger"
	"silo-be/pkg/clock"
)

const module = "Voice"

const DefaultSilenceTimeout = time.Second

const MicrophoneErrorMessage = "Microphone permission is required for Silo Live."

var ErrNoResponse = errors.New("No response from AI")

type Status string

const (
	StatusIdle       Status = "idle"
	StatusListening  Status = "listening"
	StatusProcessing Status = "processing"
	StatusThinking   Status = "thinking"
	StatusSpeaking   Status = "speaking"
	StatusError      Status = "error"
)

// Microphone and Player are driven with the loop's lock held and must not block.
type Microphone interface {
	Acquire() error
	Release() error
}

type Player interface {
	Play(audio []byte) error
	Stop()
}

type Transcriber interface {
	SpeechToText(ctx context.Context, audio []byte) (string, error)
}

type Synthesizer interface {
	TextToSpeech(ctx context.Context, text string) ([]byte, error)
}

type Conversation interface {
	Send(ctx context.Context, text string) (string, error)
}

type Config struct {
	SilenceTimeout time.Duration
}

type Deps struct {
	Microphone   Microphone
	Player       Player
	Transcriber  Transcriber
	Synthesizer  Synthesizer
	Conversation Conversation
}

type State struct {
	Status Status `json:"status"`
	Paused bool   `json:"paused"`
	Error  string `json:"error,omitempty"`
}

type Option func(*Loop)

func WithClock(c clock.Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

func WithLogger(lg logger.ILogger) Option {
	return func(l *Loop) {
		l.logger = lg
	}
}

// WithObserver receives every state change in order.
func WithObserver(f func(State)) Option {
	return func(l *Loop) {
		l.observer = f
	}
}

// WithExit is called once when the call ends.
func WithExit(f func()) Option {
	return func(l *Loop) {
		l.onExit = f
	}
}

type Loop struct {
	mu sync.Mutex

	cfg      Config
	deps     Deps
	clock    clock.Clock
	logger   logger.ILogger
	observer func(State)
	onExit   func()

	ctx    context.Context
	cancel context.CancelFunc

	status Status
	paused bool
	errMsg string

	buffer    [][]byte
	capturing bool
	micHeld   bool
	playing   bool

	timer    clock.Timer
	timerSeq uint64

	turn       uint64
	turnCancel context.CancelFunc

	ended bool

	seq     uint64
	emitMu  sync.Mutex
	emitted uint64
}

// New returns a loop that is idle and paused. PauseToggle starts listening.
func New(cfg Config, deps Deps, opts ...Option) *Loop {
	if cfg.SilenceTimeout <= 0 {
		cfg.SilenceTimeout = DefaultSilenceTimeout
	}
	ctx, cancel := context.WithCancel(context.Background())
	l := &Loop{
		cfg:    cfg,
		deps:   deps,
		ctx:    ctx,
		cancel: cancel,
		status: StatusIdle,
		paused: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.clock == nil {
		l.clock = clock.Real()
	}
	if l.logger == nil {
		l.logger = logger.NewNopLogger()
	}
	return l
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stateLocked()
}

// PauseToggle resumes listening when paused. Otherwise it stops capture and playback,
// drops any turn in flight and goes idle.
func (l *Loop) PauseToggle() {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return
	}
	if l.paused {
		l.paused = false
		l.startListeningLocked()
	} else {
		l.paused = true
		l.stopCaptureLocked()
		l.stopPlaybackLocked()
		l.dropTurnLocked()
		l.status = StatusIdle
	}
	st, seq := l.commitLocked()
	l.mu.Unlock()
	l.emit(st, seq)
}

// Feed appends a recorded chunk and re-arms the silence timer. Chunks outside of
// listening are dropped.
func (l *Loop) Feed(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.ended || !l.capturing {
		return
	}
	l.buffer = append(l.buffer, chunk)
	l.armSilenceTimerLocked()
}

// PlaybackEnded is the player's signal that the reply finished playing.
func (l *Loop) PlaybackEnded() {
	l.mu.Lock()
	if l.ended || l.status != StatusSpeaking {
		l.mu.Unlock()
		return
	}
	l.playing = false
	if l.paused {
		l.status = StatusIdle
	} else {
		l.startListeningLocked()
	}
	st, seq := l.commitLocked()
	l.mu.Unlock()
	l.emit(st, seq)
}

// MicrophoneFailed reports that capture could not start or broke off.
func (l *Loop) MicrophoneFailed(err error) {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return
	}
	l.logger.Warn(module, "Microphone unavailable", map[string]interface{}{"error": errString(err)})
	l.stopCaptureLocked()
	l.dropTurnLocked()
	l.failLocked(MicrophoneErrorMessage)
	st, seq := l.commitLocked()
	l.mu.Unlock()
	l.emit(st, seq)
}

// End tears the call down. It is terminal and only the first call has any effect.
func (l *Loop) End() {
	l.mu.Lock()
	if l.ended {
		l.mu.Unlock()
		return
	}
	l.ended = true
	l.stopCaptureLocked()
	l.stopPlaybackLocked()
	l.dropTurnLocked()
	l.cancel()
	l.status = StatusIdle
	l.paused = true
	st, seq := l.commitLocked()
	onExit := l.onExit
	l.mu.Unlock()

	l.emit(st, seq)
	if onExit != nil {
		onExit()
	}
}

func (l *Loop) startListeningLocked() {
	if l.status == StatusListening && l.capturing {
		return
	}
	l.errMsg = ""
	l.status = StatusIdle
	if !l.micHeld {
		if err := l.deps.Microphone.Acquire(); err != nil {
			l.logger.Warn(module, "Microphone acquire failed", map[string]interface{}{"error": err.Error()})
			l.failLocked(MicrophoneErrorMessage)
			return
		}
		l.micHeld = true
	}
	l.buffer = nil
	l.capturing = true
	l.status = StatusListening
}

func (l *Loop) armSilenceTimerLocked() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timerSeq++
	seq := l.timerSeq
	l.timer = l.clock.AfterFunc(l.cfg.SilenceTimeout, func() {
		l.silenceElapsed(seq)
	})
}

func (l *Loop) silenceElapsed(seq uint64) {
	l.mu.Lock()
	if l.ended || seq != l.timerSeq || !l.capturing {
		l.mu.Unlock()
		return
	}
	l.timer = nil
	audio := bytes.Join(l.buffer, nil)
	l.stopCaptureLocked()

	if len(audio) == 0 {
		if !l.paused {
			l.startListeningLocked()
		}
		st, s := l.commitLocked()
		l.mu.Unlock()
		l.emit(st, s)
		return
	}

	l.status = StatusProcessing
	turn, ctx := l.beginTurnLocked()
	st, s := l.commitLocked()
	l.mu.Unlock()
	l.emit(st, s)

	go l.process(ctx, turn, audio)
}

// process runs one turn. Each step checks the turn is still current before it is applied.
func (l *Loop) process(ctx context.Context, turn uint64, audio []byte) {
	text, err := l.deps.Transcriber.SpeechToText(ctx, audio)
	if err != nil {
		l.failTurn(turn, err)
		return
	}

	if strings.TrimSpace(text) == "" {
		l.apply(turn, func() {
			l.endTurnLocked()
			if l.paused {
				l.status = StatusIdle
			} else {
				l.startListeningLocked()
			}
		})
		return
	}

	if !l.apply(turn, func() { l.status = StatusThinking }) {
		return
	}

	reply, err := l.deps.Conversation.Send(ctx, text)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = ErrNoResponse
	}
	if err != nil {
		l.failTurn(turn, err)
		return
	}

	speech, err := l.deps.Synthesizer.TextToSpeech(ctx, reply)
	if err != nil {
		l.failTurn(turn, err)
		return
	}

	l.apply(turn, func() {
		l.endTurnLocked()
		if err := l.deps.Player.Play(speech); err != nil {
			l.failLocked(err.Error())
			return
		}
		l.playing = true
		l.status = StatusSpeaking
	})
}

// apply runs f under the lock if turn is still current and reports whether it did.
func (l *Loop) apply(turn uint64, f func()) bool {
	l.mu.Lock()
	if l.ended || turn != l.turn {
		l.mu.Unlock()
		l.logger.Debug(module, "Discarding stale turn", map[string]interface{}{"turn": turn})
		return false
	}
	f()
	st, seq := l.commitLocked()
	l.mu.Unlock()
	l.emit(st, seq)
	return true
}

func (l *Loop) failTurn(turn uint64, err error) {
	l.apply(turn, func() {
		l.endTurnLocked()
		l.logger.Error(module, "Voice turn failed", map[string]interface{}{"error": err.Error()})
		l.failLocked(err.Error())
	})
}

func (l *Loop) failLocked(msg string) {
	if msg == "" {
		msg = "An unknown error occurred."
	}
	l.errMsg = msg
	l.status = StatusError
}

// stopCaptureLocked stops recording, discards the buffer and releases the microphone.
func (l *Loop) stopCaptureLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerSeq++
	l.capturing = false
	l.buffer = nil
	if l.micHeld {
		l.micHeld = false
		if err := l.deps.Microphone.Release(); err != nil {
			l.logger.Warn(module, "Microphone release failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (l *Loop) stopPlaybackLocked() {
	if l.playing {
		l.deps.Player.Stop()
		l.playing = false
	}
}

func (l *Loop) beginTurnLocked() (uint64, context.Context) {
	l.turn++
	ctx, cancel := context.WithCancel(l.ctx)
	l.turnCancel = cancel
	return l.turn, ctx
}

func (l *Loop) endTurnLocked() {
	if l.turnCancel != nil {
		l.turnCancel()
		l.turnCancel = nil
	}
}

func (l *Loop) dropTurnLocked() {
	l.endTurnLocked()
	l.turn++
}

func (l *Loop) stateLocked() State {
	return State{Status: l.status, Paused: l.paused, Error: l.errMsg}
}

func (l *Loop) commitLocked() (State, uint64) {
	l.seq++
	return l.stateLocked(), l.seq
}

// emit delivers states in commit order and skips any that a later one overtook.
func (l *Loop) emit(st State, seq uint64) {
	if l.observer == nil {
		return
	}
	l.emitMu.Lock()
	defer l.emitMu.Unlock()
	if seq <= l.emitted {
		return
	}
	l.emitted = seq
	l.observer(st)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
