package server

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/romirm/advice-app/pkg/model"
	"github.com/romirm/advice-app/pkg/usecase/conversation"
)

var errSessionNotFound = goerr.New("session not found")

// session binds one conversation controller to the user who created it
type session struct {
	id        string
	userID    model.UserID
	ctrl      *conversation.Controller
	createdAt time.Time
	lastSeen  time.Time
}

type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*session
	now      func() time.Time
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

func (r *sessionRegistry) create(userID model.UserID, ctrl *conversation.Controller) *session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	s := &session{
		id:        uuid.NewString(),
		userID:    userID,
		ctrl:      ctrl,
		createdAt: now,
		lastSeen:  now,
	}
	r.sessions[s.id] = s
	return s
}

// get returns the session if it exists and belongs to userID
func (r *sessionRegistry) get(id string, userID model.UserID) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.userID != userID {
		return nil, goerr.Wrap(errSessionNotFound, "failed to get session", goerr.V("session_id", id))
	}
	s.lastSeen = r.now()
	return s, nil
}

// touch marks the session as used now. It reports false when the session is
// gone, e.g. swept or closed by another client.
func (r *sessionRegistry) touch(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return false
	}
	s.lastSeen = r.now()
	return true
}

func (r *sessionRegistry) remove(id string, userID model.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok || s.userID != userID {
		return goerr.Wrap(errSessionNotFound, "failed to close session", goerr.V("session_id", id))
	}
	delete(r.sessions, id)
	return nil
}

// sweep drops sessions idle for longer than maxIdle. Busy sessions are kept.
func (r *sessionRegistry) sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	var removed int
	for id, s := range r.sessions {
		if s.lastSeen.Before(cutoff) && !s.ctrl.Busy() {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

func (r *sessionRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
