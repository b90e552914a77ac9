package server

import (
	"context"
	"strings"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Account is an admin allowed to sign in to the back office.
type Account struct {
	ID           string `json:"id" yaml:"id"`
	Email        string `json:"email" yaml:"email"`
	Name         string `json:"name,omitempty" yaml:"name"`
	Role         string `json:"role,omitempty" yaml:"role"`
	PasswordHash string `json:"-" yaml:"password_hash"`
}

var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode("ACCOUNT_NOT_FOUND").
	WithCode(goerrors.CodeNotFound)

// Accounts resolves admin accounts.
type Accounts interface {
	FindByIdentifier(ctx context.Context, identifier string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
}

// MemoryAccounts is a fixed set of accounts, usually loaded from config.
type MemoryAccounts struct {
	mu      sync.RWMutex
	byID    map[string]Account
	byEmail map[string]string
}

func NewMemoryAccounts(accounts ...Account) *MemoryAccounts {
	m := &MemoryAccounts{
		byID:    make(map[string]Account),
		byEmail: make(map[string]string),
	}
	for _, a := range accounts {
		m.Add(a)
	}
	return m
}

func (m *MemoryAccounts) Add(account Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byID[account.ID] = account
	m.byEmail[normalizeIdentifier(account.Email)] = account.ID
}

func (m *MemoryAccounts) FindByIdentifier(_ context.Context, identifier string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	key := normalizeIdentifier(identifier)
	id, ok := m.byEmail[key]
	if !ok {
		id = key
	}
	account, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func (m *MemoryAccounts) FindByID(_ context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.byID[id]
	if !ok {
		return nil, ErrAccountNotFound
	}
	return &account, nil
}

func normalizeIdentifier(identifier string) string {
	return strings.ToLower(strings.TrimSpace(identifier))
}
