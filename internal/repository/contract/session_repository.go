package contract

import "silo-be/internal/entity"

// ISessionRepository is the live session registry. Sessions are process-local
// because they own goroutines and remote chat handles.
type ISessionRepository interface {
	Save(session *entity.Session)
	Get(sessionID string) (*entity.Session, bool)
	Delete(sessionID string)
	Count() int
}
