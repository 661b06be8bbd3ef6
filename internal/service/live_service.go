package service

import (
	"context"
	"errors"
	"time"

	"silo-be/internal/config"
	"silo-be/internal/constant"
	"silo-be/internal/pkg/logger"
	"silo-be/pkg/events"
	"silo-be/pkg/gemini"
	"silo-be/pkg/markdown"
	"silo-be/pkg/orchestrator"
	"silo-be/pkg/voice"
)

// ErrMicrophoneDenied is what the browser reports when capture is refused.
var ErrMicrophoneDenied = errors.New("microphone permission denied")

// Speech is the speech-to-text and text-to-speech backend of a call.
type Speech interface {
	voice.Transcriber
	voice.Synthesizer
}

// spokenText strips markdown from replies so the synthesizer does not read the markup aloud.
type spokenText struct {
	voice.Synthesizer
}

func (s spokenText) TextToSpeech(ctx context.Context, text string) ([]byte, error) {
	return s.Synthesizer.TextToSpeech(ctx, markdown.Parse(text).PlainText())
}

// ChatFactory opens the stateful conversation a call talks to.
type ChatFactory interface {
	CreateChatSession(ctx context.Context, model string, history []gemini.Turn, options ...gemini.Option) (gemini.Conversation, error)
}

// LiveSocket is the browser side of a call: it owns the microphone and the speaker.
type LiveSocket interface {
	voice.Microphone
	voice.Player
	SendStatus(st voice.State)
	Serve(onAudio func([]byte), onControl func(string))
	Close()
}

type ILiveService interface {
	// Serve runs a call on socket until the socket closes or the call ends.
	Serve(ctx context.Context, sessionID string, socket LiveSocket) error
}

type liveService struct {
	sessions       ISessionService
	chats          ChatFactory
	speech         Speech
	aiCfg          config.AIConfig
	voiceCfg       config.VoiceConfig
	eventPublisher events.Publisher
	logger         logger.ILogger
}

func NewLiveService(
	sessions ISessionService,
	chats ChatFactory,
	speech Speech,
	aiCfg config.AIConfig,
	voiceCfg config.VoiceConfig,
	eventPublisher events.Publisher,
	log logger.ILogger,
) ILiveService {
	return &liveService{
		sessions:       sessions,
		chats:          chats,
		speech:         speech,
		aiCfg:          aiCfg,
		voiceCfg:       voiceCfg,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (s *liveService) Serve(ctx context.Context, sessionID string, socket LiveSocket) error {
	session, err := s.sessions.Find(sessionID)
	if err != nil {
		return err
	}
	if session.Live() != nil {
		return constant.ErrLiveInProgress
	}

	if err := session.Orchestrator.SelectAgent(orchestrator.AgentLive); err != nil {
		return err
	}

	conv, err := s.chats.CreateChatSession(ctx, s.aiCfg.VoiceModel, nil,
		gemini.WithSystemInstruction(gemini.VoiceInstruction),
		gemini.WithoutThinking(),
	)
	if err != nil {
		session.Orchestrator.EndLive()
		return err
	}

	started := time.Now()
	loop := voice.New(voice.Config{SilenceTimeout: s.voiceCfg.SilenceTimeout}, voice.Deps{
		Microphone:   socket,
		Player:       socket,
		Transcriber:  s.speech,
		Synthesizer:  spokenText{s.speech},
		Conversation: conv,
	},
		voice.WithLogger(s.logger),
		voice.WithObserver(socket.SendStatus),
		voice.WithExit(func() {
			session.Orchestrator.EndLive()
			socket.Close()
		}),
	)

	if !session.AttachLive(loop) {
		loop.End()
		return constant.ErrLiveInProgress
	}
	defer session.DetachLive(loop)

	s.logger.Info("LiveService", "Call started", map[string]interface{}{"session_id": sessionID})
	socket.SendStatus(loop.State())

	socket.Serve(loop.Feed, func(control string) {
		switch control {
		case constant.LiveControlPauseToggle:
			loop.PauseToggle()
		case constant.LiveControlEnd:
			loop.End()
		case constant.LiveControlPlaybackEnded:
			loop.PlaybackEnded()
		case constant.LiveControlMicDenied:
			loop.MicrophoneFailed(ErrMicrophoneDenied)
		default:
			s.logger.Debug("LiveService", "Unknown control message", map[string]interface{}{"type": control})
		}
	})

	// the socket is gone, so the call is over whichever side hung up
	loop.End()

	s.logger.Info("LiveService", "Call ended", map[string]interface{}{"session_id": sessionID})
	if s.eventPublisher != nil {
		evt := events.NewSessionEvent(constant.EventLiveEnded, session.ID, session.ClientID, map[string]interface{}{
			"duration_ms": time.Since(started).Milliseconds(),
		})
		if err := s.eventPublisher.Publish(context.WithoutCancel(ctx), evt); err != nil {
			s.logger.Warn("LiveService", "Failed to publish event", map[string]interface{}{"error": err.Error()})
		}
	}
	return nil
}
