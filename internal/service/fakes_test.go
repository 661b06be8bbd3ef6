package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"silo-be/internal/dto"
	"silo-be/pkg/events"
	"silo-be/pkg/gemini"
)

type fakeGenerator struct {
	mu      sync.Mutex
	web     *gemini.WebResult
	err     error
	history [][]gemini.Turn
}

func (g *fakeGenerator) GenerateGrounded(ctx context.Context, model, prompt string) (*gemini.WebResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.web, g.err
}

func (g *fakeGenerator) GenerateCreative(ctx context.Context, model, prompt string) (*gemini.WebResult, error) {
	return g.GenerateGrounded(ctx, model, prompt)
}

func (g *fakeGenerator) GenerateStructured(ctx context.Context, model, prompt string, image *gemini.Image) (*gemini.ImageResult, error) {
	return &gemini.ImageResult{Keywords: []string{"a", "b", "c", "d", "e"}, Text: "an image"}, nil
}

func (g *fakeGenerator) CreateChatSession(ctx context.Context, model string, history []gemini.Turn, options ...gemini.Option) (gemini.Conversation, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.history = append(g.history, history)
	return echoConversation{}, nil
}

type echoConversation struct{}

func (echoConversation) Send(ctx context.Context, text string) (string, error) {
	return "you said: " + text, nil
}

type fakeStatePublisher struct {
	mu       sync.Mutex
	messages []dto.SessionStateMessage
}

func (p *fakeStatePublisher) Publish(ctx context.Context, payload []byte) error {
	var msg dto.SessionStateMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *fakeStatePublisher) all() []dto.SessionStateMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]dto.SessionStateMessage{}, p.messages...)
}

type fakeEventPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *fakeEventPublisher) Publish(ctx context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *fakeEventPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

var errQuota = errors.New("quota exceeded")
