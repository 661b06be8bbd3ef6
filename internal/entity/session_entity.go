package entity

import (
	"sync"
	"time"

	"silo-be/pkg/orchestrator"
	"silo-be/pkg/voice"
)

// Session is one anonymous browser session: its orchestrator and, while a call is
// running, its voice loop.
type Session struct {
	ID           string
	ClientID     string
	CreatedAt    time.Time
	Orchestrator *orchestrator.Orchestrator

	mu   sync.Mutex
	live *voice.Loop
}

// AttachLive records the running call. It reports false if one is already attached.
func (s *Session) AttachLive(loop *voice.Loop) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != nil {
		return false
	}
	s.live = loop
	return true
}

func (s *Session) DetachLive(loop *voice.Loop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == loop {
		s.live = nil
	}
}

func (s *Session) Live() *voice.Loop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Close ends any running call and cancels the orchestrator's work.
func (s *Session) Close() {
	if loop := s.Live(); loop != nil {
		loop.End()
	}
	if s.Orchestrator != nil {
		s.Orchestrator.Close()
	}
}
