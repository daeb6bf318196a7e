// Package session holds the bearer credential of the signed-in user.
//
// The credential is opaque: nothing here inspects or validates it. A stale
// token is only discovered when the LMS API rejects a request with 401, at
// which point the caller clears the store and sends the user back to login.
package session

import (
	"context"
	"sync"
)

// Store reads and writes the credential.
type Store interface {
	Get(ctx context.Context) (token string, ok bool, err error)
	Set(ctx context.Context, token string) error
	Clear(ctx context.Context) error
}

// Memory keeps the credential in process memory.
type Memory struct {
	mu    sync.RWMutex
	token string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Get(context.Context) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != "", nil
}

func (m *Memory) Set(_ context.Context, token string) error {
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(context.Context) error {
	return m.Set(context.Background(), "")
}
