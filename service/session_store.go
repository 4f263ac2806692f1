package service

import (
	"context"
	"sync"
	"time"

	"github.com/Bharath5252/Segmentation-masks-via-SAM2/apperror"
	"github.com/Bharath5252/Segmentation-masks-via-SAM2/model"
)

// SessionStore holds the latest mask set per image. Put replaces any
// existing session for the same image wholesale.
type SessionStore interface {
	Put(ctx context.Context, session *model.Session) error
	Get(ctx context.Context, imageID string) (*model.Session, error)
	Count(ctx context.Context) (int, error)
}

func sessionNotFound(imageID string) error {
	return apperror.NotFound("image %s has no generated masks", imageID)
}

// MemorySessionStore keeps sessions for the lifetime of the process.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*model.Session
	now      func() time.Time
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*model.Session),
		now:      time.Now,
	}
}

func (s *MemorySessionStore) Put(_ context.Context, session *model.Session) error {
	stored := session.Clone()
	stored.UpdatedAt = s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ImageID] = stored
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, imageID string) (*model.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[imageID]
	if !ok {
		return nil, sessionNotFound(imageID)
	}
	return sess.Clone(), nil
}

func (s *MemorySessionStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.sessions), nil
}
