package gateway

import (
	"context"
	"sync"
)

// CredentialStore is the persisted key/value slot holding the credential pair.
// Get returns an empty string for missing keys.
type CredentialStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Keys names the storage slots of the credential pair.
type Keys struct {
	Access  string
	Refresh string
}

// DefaultKeys is used when no keys are configured.
var DefaultKeys = Keys{
	Access:  "access_token",
	Refresh: "refresh_token",
}

func (k Keys) withDefaults() Keys {
	if k.Access == "" {
		k.Access = DefaultKeys.Access
	}
	if k.Refresh == "" {
		k.Refresh = DefaultKeys.Refresh
	}
	return k
}

// MemoryCredentials is a process local CredentialStore.
type MemoryCredentials struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryCredentials returns an empty process local credential store.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{values: make(map[string]string)}
}

func (m *MemoryCredentials) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *MemoryCredentials) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryCredentials) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
