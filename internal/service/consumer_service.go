package service

import (
	"context"
	"encoding/json"
	"time"

	"silo-be/internal/dto"
	"silo-be/internal/mapper"
	"silo-be/internal/pkg/logger"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/patrickmn/go-cache"
)

// StateDelivery pushes a typed message to every socket of a session.
// Implemented by the websocket hub.
type StateDelivery interface {
	Send(sessionID, msgType string, data interface{})
}

type IConsumerService interface {
	Consume(ctx context.Context) error
}

type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	delivery  StateDelivery
	logger    logger.ILogger
	// last delivered snapshot version per session
	versions *cache.Cache
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	delivery StateDelivery,
	log logger.ILogger,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		delivery:  delivery,
		logger:    log,
		versions:  cache.New(time.Hour, 10*time.Minute),
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(msg *message.Message) {
	// Nothing here is retriable, so every message is acked.
	defer msg.Ack()

	var payload dto.SessionStateMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		cs.logger.Error("ConsumerService", "Failed to unmarshal state message", map[string]interface{}{"error": err.Error()})
		return
	}

	if !cs.advance(payload.SessionID, payload.State.Version) {
		cs.logger.Debug("ConsumerService", "Dropping out of order snapshot", map[string]interface{}{
			"session_id": payload.SessionID,
			"version":    payload.State.Version,
		})
		return
	}

	cs.delivery.Send(payload.SessionID, "state", mapper.ToStateResponse(payload.State))
}

// advance records version as the newest seen for the session and reports whether it
// is newer than anything delivered before.
func (cs *consumerService) advance(sessionID string, version uint64) bool {
	if last, found := cs.versions.Get(sessionID); found && last.(uint64) >= version {
		return false
	}
	cs.versions.SetDefault(sessionID, version)
	return true
}
