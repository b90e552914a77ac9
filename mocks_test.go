package artisan_test

import (
	"context"
	"sync"

	"github.com/goliatone/go-artisan"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) FetchArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	args := m.Called(ctx, id)
	if record, ok := args.Get(0).(*artisan.Artisan); ok {
		return record.Clone(), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) ListArtisans(ctx context.Context, filter artisan.ListFilter) (*artisan.ListPage, error) {
	args := m.Called(ctx, filter)
	if page, ok := args.Get(0).(*artisan.ListPage); ok {
		return page, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) BlockArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	return m.record(m.Called(ctx, id))
}

func (m *MockStore) UnblockArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	return m.record(m.Called(ctx, id))
}

func (m *MockStore) ApproveArtisan(ctx context.Context, id string) (*artisan.Artisan, error) {
	return m.record(m.Called(ctx, id))
}

func (m *MockStore) VerifyIdentity(ctx context.Context, id string, force artisan.ForceOutcome) (artisan.KYC, error) {
	args := m.Called(ctx, id, force)
	kyc, _ := args.Get(0).(artisan.KYC)
	return kyc, args.Error(1)
}

func (m *MockStore) RequestReupload(ctx context.Context, id string) (artisan.KYC, error) {
	args := m.Called(ctx, id)
	kyc, _ := args.Get(0).(artisan.KYC)
	return kyc, args.Error(1)
}

func (m *MockStore) record(args mock.Arguments) (*artisan.Artisan, error) {
	if record, ok := args.Get(0).(*artisan.Artisan); ok {
		return record, args.Error(1)
	}
	return nil, args.Error(1)
}

type MockUpdater struct {
	mock.Mock
}

func (m *MockUpdater) UpdateLifecycle(ctx context.Context, id string, update artisan.LifecycleUpdate) (*artisan.Artisan, error) {
	args := m.Called(ctx, id, update)
	if record, ok := args.Get(0).(*artisan.Artisan); ok {
		return record, args.Error(1)
	}
	return nil, args.Error(1)
}

type capturingSink struct {
	mu     sync.Mutex
	events []artisan.ActivityEvent
}

func (s *capturingSink) Record(_ context.Context, event artisan.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) Events() []artisan.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]artisan.ActivityEvent(nil), s.events...)
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []artisan.UpdateEvent
}

func (p *capturingPublisher) Publish(evt artisan.UpdateEvent) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return 1
}

func (p *capturingPublisher) Events() []artisan.UpdateEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]artisan.UpdateEvent(nil), p.events...)
}

func pendingArtisan(id string, idStatus artisan.IDStatus) *artisan.Artisan {
	return &artisan.Artisan{
		ID:     id,
		Name:   "Femi Rachel",
		Email:  "femi+" + id + "@example.com",
		Status: artisan.StatusPending,
		KYC:    artisan.KYC{IDType: "National Identity card", IDStatus: idStatus},
	}
}
