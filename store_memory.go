package artisan

import (
	"context"
	"sort"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used by demos, tests, and the server when
// no database is configured.
type MemoryStore struct {
	mu        sync.RWMutex
	records   map[string]*Artisan
	oracle    VerificationOracle
	latency   time.Duration
	actor     ActorRef
	logger    Logger
	now       func() time.Time
	smOptions []StateMachineOption
	machine   StateMachine
}

// MemoryStoreOption customizes a MemoryStore.
type MemoryStoreOption func(*MemoryStore)

// WithMemoryOracle sets the identity verification strategy.
func WithMemoryOracle(oracle VerificationOracle) MemoryStoreOption {
	return func(s *MemoryStore) {
		if oracle != nil {
			s.oracle = oracle
		}
	}
}

// WithMemoryLatency simulates network latency on every call.
func WithMemoryLatency(d time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.latency = d
	}
}

// WithMemoryRecords seeds the store.
func WithMemoryRecords(records ...*Artisan) MemoryStoreOption {
	return func(s *MemoryStore) {
		for _, r := range records {
			if r == nil {
				continue
			}
			c := r.Clone()
			c.EnsureDefaults()
			s.records[c.ID] = c
		}
	}
}

// WithMemoryActor sets the actor recorded on lifecycle events.
func WithMemoryActor(actor ActorRef) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.actor = actor
	}
}

// WithMemoryLogger overrides the store logger.
func WithMemoryLogger(logger Logger) MemoryStoreOption {
	return func(s *MemoryStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMemoryClock injects a custom clock.
func WithMemoryClock(clock func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithMemoryStateMachineOptions forwards options to the lifecycle state machine.
func WithMemoryStateMachineOptions(opts ...StateMachineOption) MemoryStoreOption {
	return func(s *MemoryStore) {
		s.smOptions = append(s.smOptions, opts...)
	}
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]*Artisan),
		logger:  defLogger{},
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.oracle == nil {
		s.oracle = NewRandomOracle()
	}

	smOpts := append([]StateMachineOption{
		WithStateMachineClock(s.now),
		WithStateMachineLogger(s.logger),
	}, s.smOptions...)

	s.machine = NewStateMachine(LifecycleUpdaterFunc(func(_ context.Context, id string, _ LifecycleUpdate) (*Artisan, error) {
		now := s.now()
		return &Artisan{ID: id, UpdatedAt: &now}, nil
	}), smOpts...)

	return s
}

// NewDemoStore returns a store seeded with DemoArtisans and DemoOracle.
func NewDemoStore(opts ...MemoryStoreOption) *MemoryStore {
	base := []MemoryStoreOption{
		WithMemoryRecords(DemoArtisans()...),
		WithMemoryOracle(DemoOracle()),
	}
	return NewMemoryStore(append(base, opts...)...)
}

// Put inserts or replaces a record.
func (s *MemoryStore) Put(record *Artisan) error {
	if record == nil {
		return ErrNotFound
	}
	c := record.Clone()
	c.EnsureDefaults()
	if err := c.Validate(); err != nil {
		return err
	}
	now := s.now()
	if c.CreatedAt == nil {
		c.CreatedAt = &now
	}
	c.UpdatedAt = &now

	s.mu.Lock()
	s.records[c.ID] = c
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) FetchArtisan(ctx context.Context, id string) (*Artisan, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return record.Clone(), nil
}

func (s *MemoryStore) ListArtisans(ctx context.Context, filter ListFilter) (*ListPage, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	filter = filter.normalize()

	s.mu.RLock()
	matched := make([]*Artisan, 0, len(s.records))
	for _, record := range s.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if !record.Matches(filter.Query) {
			continue
		}
		matched = append(matched, record.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return paginate(matched, filter), nil
}

func (s *MemoryStore) BlockArtisan(ctx context.Context, id string) (*Artisan, error) {
	return s.transition(ctx, id, ActionBlock, StatusBlocked)
}

func (s *MemoryStore) UnblockArtisan(ctx context.Context, id string) (*Artisan, error) {
	return s.transition(ctx, id, ActionUnblock, StatusActive)
}

func (s *MemoryStore) ApproveArtisan(ctx context.Context, id string) (*Artisan, error) {
	return s.transition(ctx, id, ActionApprove, StatusActive)
}

// VerifyIdentity marks the record as verifying, consults the oracle without
// holding the lock, and stores the outcome. A failed oracle call restores the
// previous sub status.
func (s *MemoryStore) VerifyIdentity(ctx context.Context, id string, force ForceOutcome) (KYC, error) {
	if !force.Valid() {
		return KYC{}, ErrInvalidOutcome
	}
	if err := s.wait(ctx); err != nil {
		return KYC{}, err
	}

	s.mu.Lock()
	record, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return KYC{}, ErrNotFound
	}
	if err := CheckAction(record, ActionVerifyID); err != nil {
		s.mu.Unlock()
		return KYC{}, err
	}
	previous := record.KYC.IDStatus
	verifying, err := s.transitionIDLocked(ctx, record, IDStatusVerifying)
	s.mu.Unlock()
	if err != nil {
		return KYC{}, err
	}

	outcome, oerr := resolveOutcome(ctx, s.oracle, verifying, force)

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok = s.records[id]
	if !ok {
		return KYC{}, ErrNotFound
	}

	if oerr != nil {
		if _, err := s.transitionIDLocked(context.WithoutCancel(ctx), record, previous); err != nil {
			s.logger.Error("failed to restore id status for artisan %s: %v", id, err)
		}
		return KYC{}, oerr
	}

	updated, err := s.transitionIDLocked(ctx, record, outcome.IDStatus())
	if err != nil {
		return KYC{}, err
	}
	return updated.KYC, nil
}

func (s *MemoryStore) RequestReupload(ctx context.Context, id string) (KYC, error) {
	if err := s.wait(ctx); err != nil {
		return KYC{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return KYC{}, ErrNotFound
	}
	if err := CheckAction(record, ActionRequestReupload); err != nil {
		return KYC{}, err
	}
	updated, err := s.transitionIDLocked(ctx, record, IDStatusUnverified)
	if err != nil {
		return KYC{}, err
	}
	return updated.KYC, nil
}

func (s *MemoryStore) transition(ctx context.Context, id string, action Action, target Status) (*Artisan, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	if err := CheckAction(record, action); err != nil {
		return nil, err
	}

	working := record.Clone()
	if _, err := s.machine.Transition(ctx, s.actor, working, target, WithTransitionReason(string(action))); err != nil {
		return nil, err
	}
	s.records[id] = working
	return working.Clone(), nil
}

// transitionIDLocked must be called with s.mu held.
func (s *MemoryStore) transitionIDLocked(ctx context.Context, record *Artisan, target IDStatus) (*Artisan, error) {
	working := record.Clone()
	if _, err := s.machine.TransitionID(ctx, s.actor, working, target); err != nil {
		return nil, err
	}
	s.records[working.ID] = working
	return working.Clone(), nil
}

func (s *MemoryStore) wait(ctx context.Context) error {
	if s.latency <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func paginate(items []*Artisan, filter ListFilter) *ListPage {
	total := len(items)
	totalPages := (total + filter.Size - 1) / filter.Size
	if totalPages < 1 {
		totalPages = 1
	}

	start := (filter.Page - 1) * filter.Size
	if start > total {
		start = total
	}
	end := start + filter.Size
	if end > total {
		end = total
	}

	return &ListPage{
		Items:      items[start:end],
		Total:      total,
		Page:       filter.Page,
		TotalPages: totalPages,
	}
}
