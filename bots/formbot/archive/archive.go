// Package archive keeps the last completed questionnaire of every user.
package archive

import (
	"context"
	"errors"
	"sync"

	"github.com/m3rciful/formbot/bots/formbot/form"
	"github.com/m3rciful/formbot/core/metrics"
)

// ErrUnavailable wraps backend failures. The dialogue retries events that hit it.
var ErrUnavailable = errors.New("archive unavailable")

// Store saves completed forms, one per user. Save replaces any earlier form entirely.
type Store interface {
	Save(ctx context.Context, userID int64, data form.Data) error
	// Get returns ok=false when the user never completed the form.
	Get(ctx context.Context, userID int64) (data form.Data, ok bool, err error)
}

// Backend names accepted by configuration.
const (
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

type memoryStore struct {
	mu    sync.RWMutex
	forms map[int64]form.Data
}

// NewMemoryStore returns a process-local Store for development and tests.
func NewMemoryStore() Store {
	return &memoryStore{forms: make(map[int64]form.Data)}
}

func (m *memoryStore) Save(_ context.Context, userID int64, data form.Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forms[userID] = clone(data)
	metrics.IncFormArchived(BackendMemory, nil)
	return nil
}

func (m *memoryStore) Get(_ context.Context, userID int64) (form.Data, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.forms[userID]
	if !ok {
		return form.Data{}, false, nil
	}
	return clone(d), true, nil
}

// clone copies every pointer so callers cannot mutate the stored form.
func clone(d form.Data) form.Data {
	return form.Data{
		Name:            ptr(d.Name),
		Age:             ptr(d.Age),
		Gender:          ptr(d.Gender),
		PhotoID:         ptr(d.PhotoID),
		PhotoUniqueID:   ptr(d.PhotoUniqueID),
		Education:       ptr(d.Education),
		WantsNewsletter: ptr(d.WantsNewsletter),
	}
}

func ptr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
