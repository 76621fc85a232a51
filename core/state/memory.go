package state

import (
	"context"
	"sync"
)

// memoryStore keeps sessions in a map. Only active sessions are stored, so
// the map size tracks the number of users mid-dialogue.
type memoryStore[D any] struct {
	mu     sync.RWMutex
	active map[int64]Session[D]
}

// NewMemoryStore returns a process-local Store. Sessions are lost on restart.
func NewMemoryStore[D any]() Store[D] {
	return &memoryStore[D]{active: make(map[int64]Session[D])}
}

func (m *memoryStore[D]) Get(_ context.Context, userID int64) (Session[D], error) {
	m.mu.RLock()
	sess, ok := m.active[userID]
	m.mu.RUnlock()
	if !ok {
		return Idle[D](userID), nil
	}
	return sess, nil
}

// Set stores sess. An idle session is the same as Clear.
func (m *memoryStore[D]) Set(ctx context.Context, sess Session[D]) error {
	if sess.State.IsIdle() {
		return m.Clear(ctx, sess.UserID)
	}
	m.mu.Lock()
	m.active[sess.UserID] = sess
	m.mu.Unlock()
	return nil
}

func (m *memoryStore[D]) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.active, userID)
	m.mu.Unlock()
	return nil
}
