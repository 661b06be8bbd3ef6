package memory

import (
	"sync"
	"time"

	"silo-be/internal/entity"

	"github.com/patrickmn/go-cache"
)

type SessionRepository struct {
	cache *cache.Cache

	// ids removed on purpose, closed even with a call attached
	dropping sync.Map
}

// NewSessionRepository keeps sessions for idle, sliding on every Get. Expired
// sessions are closed unless a live call is still attached, in which case they
// are kept for another idle period.
func NewSessionRepository(idle time.Duration) *SessionRepository {
	r := &SessionRepository{
		cache: cache.New(idle, 10*time.Minute),
	}
	r.cache.OnEvicted(r.onEvicted)
	return r
}

func (r *SessionRepository) onEvicted(id string, v interface{}) {
	s, ok := v.(*entity.Session)
	if !ok {
		return
	}
	if _, dropped := r.dropping.LoadAndDelete(id); !dropped && s.Live() != nil {
		r.cache.Set(id, s, cache.DefaultExpiration)
		return
	}
	s.Close()
}

func (r *SessionRepository) Save(session *entity.Session) {
	r.cache.Set(session.ID, session, cache.DefaultExpiration)
}

func (r *SessionRepository) Get(sessionID string) (*entity.Session, bool) {
	x, found := r.cache.Get(sessionID)
	if !found {
		// the sweep re-saves sessions that expired with a call attached
		r.cache.DeleteExpired()
		if x, found = r.cache.Get(sessionID); !found {
			return nil, false
		}
	}
	session := x.(*entity.Session)
	r.cache.Set(sessionID, session, cache.DefaultExpiration)
	return session, true
}

// Delete removes a session and closes it, ending any live call.
func (r *SessionRepository) Delete(sessionID string) {
	r.dropping.Store(sessionID, struct{}{})
	r.cache.Delete(sessionID)
	r.dropping.Delete(sessionID)
}

func (r *SessionRepository) Count() int {
	return r.cache.ItemCount()
}

// CloseAll removes every session, closing each one.
func (r *SessionRepository) CloseAll() {
	for id := range r.cache.Items() {
		r.Delete(id)
	}
}
