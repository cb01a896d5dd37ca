package keystore

import (
	"context"
	"sync"

	"github.com/EmerBV/figrclub-sub001/internal/core/domain"
	"github.com/EmerBV/figrclub-sub001/internal/core/port"
)

// Memory is an in-process TokenStore for tests and throwaway sessions.
type Memory struct {
	mu     sync.Mutex
	tokens domain.TokenPair
	held   bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Load(_ context.Context) (domain.TokenPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.held {
		return domain.TokenPair{}, port.ErrNoStoredSession
	}
	return m.tokens, nil
}

func (m *Memory) Save(_ context.Context, tokens domain.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = tokens
	m.held = true
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens = domain.TokenPair{}
	m.held = false
	return nil
}
