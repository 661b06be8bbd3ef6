package service

import (
	"context"

	"silo-be/internal/pkg/logger"
	"silo-be/pkg/events"
	pktNats "silo-be/pkg/nats"
)

const activityDurable = "silo-activity"

// ActivityService keeps a trail of session lifecycle events from the event bus.
type ActivityService struct {
	subscriber *pktNats.Subscriber
	logger     logger.ILogger
}

func NewActivityService(sub *pktNats.Subscriber, log logger.ILogger) *ActivityService {
	return &ActivityService{
		subscriber: sub,
		logger:     log,
	}
}

// Start begins listening to the event bus with a durable consumer.
func (s *ActivityService) Start(ctx context.Context) {
	if s.subscriber == nil {
		s.logger.Warn("ActivityService", "No event subscriber, activity trail disabled", nil)
		return
	}

	subject := pktNats.SubjectPrefix + ".>"
	if err := s.subscriber.Subscribe(ctx, subject, activityDurable, s.HandleEvent); err != nil {
		s.logger.Error("ActivityService", "Failed to start activity subscriber", map[string]interface{}{"error": err.Error()})
		return
	}
	s.logger.Info("ActivityService", "Activity service started, listening to "+subject, nil)
}

func (s *ActivityService) HandleEvent(ctx context.Context, event events.Event) error {
	s.logger.Info("ActivityService", event.EventType(), event.Payload())
	return nil
}
