package service

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"silo-be/internal/config"
	"silo-be/internal/constant"
	"silo-be/internal/dto"
	"silo-be/internal/entity"
	"silo-be/internal/mapper"
	"silo-be/internal/pkg/logger"
	"silo-be/internal/pkg/serverutils"
	"silo-be/internal/repository/contract"
	"silo-be/pkg/events"
	"silo-be/pkg/gemini"
	"silo-be/pkg/orchestrator"

	"github.com/google/uuid"
)

type ISessionService interface {
	Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error)
	Find(sessionID string) (*entity.Session, error)
	State(ctx context.Context, sessionID string) (*dto.StateResponse, error)
	End(ctx context.Context, sessionID string) error

	Submit(ctx context.Context, sessionID string, req *dto.SubmitRequest) (*dto.StateResponse, error)
	Regenerate(ctx context.Context, sessionID string, req *dto.RegenerateRequest) (*dto.StateResponse, error)
	CompleteAnimation(ctx context.Context, sessionID string, req *dto.CompleteRequest) (*dto.StateResponse, error)
	NewSearch(ctx context.Context, sessionID string) (*dto.StateResponse, error)
	Stop(ctx context.Context, sessionID string) (*dto.StateResponse, error)
	SelectAgent(ctx context.Context, sessionID string, req *dto.AgentRequest) (*dto.StateResponse, error)
	Docs(ctx context.Context, sessionID string, req *dto.DocsRequest) (*dto.StateResponse, error)

	StartChat(ctx context.Context, sessionID string) (*dto.StateResponse, error)
	SendChatMessage(ctx context.Context, sessionID string, req *dto.ChatMessageRequest) (*dto.StateResponse, error)
}

type sessionService struct {
	sessions       contract.ISessionRepository
	generator      orchestrator.Generator
	aiCfg          config.AIConfig
	authCfg        config.AuthConfig
	publisher      IPublisherService
	eventPublisher events.Publisher
	logger         logger.ILogger
}

// NewSessionService wires the orchestrators of new sessions to the snapshot bus.
// eventPublisher may be nil when the event bus is unavailable.
func NewSessionService(
	sessions contract.ISessionRepository,
	generator orchestrator.Generator,
	aiCfg config.AIConfig,
	authCfg config.AuthConfig,
	publisher IPublisherService,
	eventPublisher events.Publisher,
	log logger.ILogger,
) ISessionService {
	return &sessionService{
		sessions:       sessions,
		generator:      generator,
		aiCfg:          aiCfg,
		authCfg:        authCfg,
		publisher:      publisher,
		eventPublisher: eventPublisher,
		logger:         log,
	}
}

func (s *sessionService) Create(ctx context.Context, req *dto.CreateSessionRequest) (*dto.SessionResponse, error) {
	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = uuid.NewString()
	}

	session := &entity.Session{
		ID:        uuid.NewString(),
		ClientID:  clientID,
		CreatedAt: time.Now(),
	}
	session.Orchestrator = orchestrator.New(s.generator, orchestrator.Config{
		FlashModel:  s.aiCfg.FlashModel,
		ProModel:    s.aiCfg.ProModel,
		AutoAdvance: s.aiCfg.AutoAdvance,
	},
		orchestrator.WithObserver(s.observe(session.ID)),
		orchestrator.WithLogger(s.logger),
	)

	token, err := serverutils.IssueSessionToken(s.authCfg.JWTSecret, serverutils.SessionClaims{
		SessionID: session.ID,
		ClientID:  clientID,
	}, s.authCfg.TokenTTL)
	if err != nil {
		session.Close()
		return nil, err
	}

	s.sessions.Save(session)
	s.logger.Info("SessionService", "Session created", map[string]interface{}{
		"session_id": session.ID,
		"client_id":  clientID,
		"active":     s.sessions.Count(),
	})

	return &dto.SessionResponse{
		Token:     token,
		SessionID: session.ID,
		ClientID:  clientID,
		State:     mapper.ToStateResponse(session.Orchestrator.Snapshot()),
	}, nil
}

func (s *sessionService) Find(sessionID string) (*entity.Session, error) {
	session, ok := s.sessions.Get(sessionID)
	if !ok {
		return nil, constant.ErrSessionNotFound
	}
	return session, nil
}

// End drops the session from the registry, cancelling its work and any live call.
func (s *sessionService) End(ctx context.Context, sessionID string) error {
	if _, err := s.Find(sessionID); err != nil {
		return err
	}
	s.sessions.Delete(sessionID)
	s.logger.Info("SessionService", "Session ended", map[string]interface{}{
		"session_id": sessionID,
		"active":     s.sessions.Count(),
	})
	return nil
}

func (s *sessionService) State(ctx context.Context, sessionID string) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}
	return s.state(session), nil
}

func (s *sessionService) Submit(ctx context.Context, sessionID string, req *dto.SubmitRequest) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}

	mode, err := orchestrator.ParseAgentMode(req.AgentMode)
	if err != nil {
		return nil, err
	}
	image, err := decodeImage(req.Image)
	if err != nil {
		return nil, err
	}

	done, err := session.Orchestrator.Submit(ctx, req.Query, image, mode)
	if err != nil {
		return nil, err
	}
	if done == nil {
		return s.state(session), nil
	}

	snap := session.Orchestrator.Snapshot()
	s.publishEvent(ctx, constant.EventSearchSubmitted, session, map[string]interface{}{
		"request_id": snap.RequestID,
		"agent_mode": string(snap.AgentMode),
		"has_image":  snap.HasImage,
	})
	go s.watchSearch(session, snap.RequestID, done)

	if req.Wait {
		wait(ctx, done)
	}
	return s.state(session), nil
}

func (s *sessionService) Regenerate(ctx context.Context, sessionID string, req *dto.RegenerateRequest) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}

	done, err := session.Orchestrator.Regenerate(ctx)
	if err != nil {
		return nil, err
	}
	if done != nil {
		go s.watchSearch(session, session.Orchestrator.Snapshot().RequestID, done)
		if req.Wait {
			wait(ctx, done)
		}
	}
	return s.state(session), nil
}

func (s *sessionService) CompleteAnimation(ctx context.Context, sessionID string, req *dto.CompleteRequest) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}
	if err := session.Orchestrator.CompleteAnimation(req.RequestID); err != nil {
		return nil, err
	}
	return s.state(session), nil
}

func (s *sessionService) NewSearch(ctx context.Context, sessionID string) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}
	session.Orchestrator.NewSearch()
	return s.state(session), nil
}

func (s *sessionService) Stop(ctx context.Context, sessionID string) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}
	session.Orchestrator.Stop()
	return s.state(session), nil
}

func (s *sessionService) SelectAgent(ctx context.Context, sessionID string, req *dto.AgentRequest) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}

	mode, err := orchestrator.ParseAgentMode(req.Mode)
	if err != nil {
		return nil, err
	}
	if err := session.Orchestrator.SelectAgent(mode); err != nil {
		return nil, err
	}
	return s.state(session), nil
}

func (s *sessionService) Docs(ctx context.Context, sessionID string, req *dto.DocsRequest) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}

	if *req.Open {
		err = session.Orchestrator.OpenDocs()
	} else {
		err = session.Orchestrator.CloseDocs()
	}
	if err != nil {
		return nil, err
	}
	return s.state(session), nil
}

func (s *sessionService) StartChat(ctx context.Context, sessionID string) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}

	if err := session.Orchestrator.StartChat(ctx); err != nil {
		return nil, err
	}

	snap := session.Orchestrator.Snapshot()
	s.publishEvent(ctx, constant.EventChatStarted, session, map[string]interface{}{
		"request_id": snap.RequestID,
		"model":      snap.Model,
	})
	return mapper.ToStateResponse(snap), nil
}

// SendChatMessage holds until the reply (or the apology) is in the history.
func (s *sessionService) SendChatMessage(ctx context.Context, sessionID string, req *dto.ChatMessageRequest) (*dto.StateResponse, error) {
	session, err := s.Find(sessionID)
	if err != nil {
		return nil, err
	}

	done, err := session.Orchestrator.SendChatMessage(ctx, req.Text)
	if err != nil {
		return nil, err
	}
	if done != nil {
		wait(ctx, done)
	}
	return s.state(session), nil
}

func (s *sessionService) state(session *entity.Session) *dto.StateResponse {
	return mapper.ToStateResponse(session.Orchestrator.Snapshot())
}

// observe forwards every committed snapshot of a session to the state bus.
func (s *sessionService) observe(sessionID string) func(orchestrator.Snapshot) {
	return func(snap orchestrator.Snapshot) {
		payload, err := json.Marshal(dto.SessionStateMessage{
			SessionID: sessionID,
			State:     snap,
		})
		if err != nil {
			s.logger.Error("SessionService", "Failed to marshal snapshot", map[string]interface{}{"error": err.Error()})
			return
		}
		if err := s.publisher.Publish(context.Background(), payload); err != nil {
			s.logger.Warn("SessionService", "Failed to publish snapshot", map[string]interface{}{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}
}

// watchSearch reports a failed search once its request settles.
func (s *sessionService) watchSearch(session *entity.Session, requestID uint64, done <-chan struct{}) {
	<-done
	snap := session.Orchestrator.Snapshot()
	if snap.RequestID != requestID || snap.Error == "" {
		return
	}
	s.publishEvent(context.Background(), constant.EventSearchFailed, session, map[string]interface{}{
		"request_id": requestID,
		"view":       string(snap.View),
	})
}

func (s *sessionService) publishEvent(ctx context.Context, eventType string, session *entity.Session, data map[string]interface{}) {
	if s.eventPublisher == nil {
		return
	}
	evt := events.NewSessionEvent(eventType, session.ID, session.ClientID, data)
	if err := s.eventPublisher.Publish(ctx, evt); err != nil {
		s.logger.Warn("SessionService", "Failed to publish event", map[string]interface{}{
			"type":  eventType,
			"error": err.Error(),
		})
	}
}

func wait(ctx context.Context, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
	}
}

// decodeImage accepts plain base64 or a data URL.
func decodeImage(img *dto.ImagePayload) (*gemini.Image, error) {
	if img == nil {
		return nil, nil
	}

	data, mimeType := img.Data, img.MimeType
	if rest, ok := strings.CutPrefix(data, "data:"); ok {
		header, payload, found := strings.Cut(rest, ";base64,")
		if !found {
			return nil, constant.ErrInvalidImage
		}
		data = payload
		if mimeType == "" {
			mimeType = header
		}
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil || len(raw) == 0 || len(raw) > constant.MaxImageBytes {
		return nil, constant.ErrInvalidImage
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return nil, constant.ErrInvalidImage
	}

	return &gemini.Image{
		Data:     raw,
		MimeType: mimeType,
	}, nil
}
