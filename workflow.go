package artisan

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ActionResult describes the local state around an action. Previous is the
// snapshot taken before any optimistic update, Current the confirmed state.
// Changed is false for no-op actions.
type ActionResult struct {
	Action   Action
	Previous *Artisan
	Current  *Artisan
	Changed  bool
}

// IDStatus returns the confirmed KYC sub status.
func (r ActionResult) IDStatus() IDStatus {
	if r.Current == nil {
		return ""
	}
	return r.Current.KYC.IDStatus
}

// Workflow is the action layer an admin detail view holds for one artisan. It
// keeps the current record, applies optimistic updates, rolls them back when
// the store call fails, and broadcasts list visible changes.
type Workflow struct {
	mu            sync.Mutex
	store         Store
	id            string
	current       *Artisan
	loading       bool
	err           error
	inFlight      bool
	closed        bool
	publisher     Publisher
	logger        Logger
	verifyTimeout time.Duration
}

// WorkflowOption customizes a Workflow.
type WorkflowOption func(*Workflow)

// WithPublisher sets where update events are broadcast.
func WithPublisher(p Publisher) WorkflowOption {
	return func(w *Workflow) {
		if p != nil {
			w.publisher = p
		}
	}
}

// WithWorkflowLogger overrides the workflow logger.
func WithWorkflowLogger(logger Logger) WorkflowOption {
	return func(w *Workflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithVerifyTimeout bounds VerifyID. A check that times out resolves as failed.
func WithVerifyTimeout(d time.Duration) WorkflowOption {
	return func(w *Workflow) {
		w.verifyTimeout = d
	}
}

// WithInitialArtisan primes the workflow with an already fetched record.
func WithInitialArtisan(a *Artisan) WorkflowOption {
	return func(w *Workflow) {
		if a != nil {
			w.current = a.Clone()
		}
	}
}

// NewWorkflow binds a workflow to the artisan with the given id. The record is
// not fetched until Load, unless WithInitialArtisan seeds it.
func NewWorkflow(store Store, id string, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		store:     store,
		id:        id,
		publisher: noopPublisher{},
		logger:    defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// ID returns the artisan id the workflow is bound to.
func (w *Workflow) ID() string {
	return w.id
}

// Load fetches the record from the store.
func (w *Workflow) Load(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.loading = true
	w.err = nil
	w.mu.Unlock()

	record, err := w.store.FetchArtisan(ctx, w.id)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return err
	}
	w.loading = false
	if err != nil {
		w.err = err
		if IsNotFound(err) {
			w.current = nil
		}
		return err
	}
	w.current = record
	return nil
}

// Refresh reloads the record.
func (w *Workflow) Refresh(ctx context.Context) error {
	return w.Load(ctx)
}

// Artisan returns a snapshot of the current record, nil before Load.
func (w *Workflow) Artisan() *Artisan {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current.Clone()
}

// Loading reports whether a Load is outstanding.
func (w *Workflow) Loading() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loading
}

// Busy reports whether an action is outstanding. Views disable their controls
// while it is true.
func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

// Err returns the last Load error.
func (w *Workflow) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close detaches the workflow from its view. Outstanding actions still finish
// against the store but their results are not applied or broadcast.
func (w *Workflow) Close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

// Block moves an active artisan to blocked.
func (w *Workflow) Block(ctx context.Context) (ActionResult, error) {
	return w.run(ctx, mutation{
		action: ActionBlock,
		optimistic: func(a *Artisan) {
			a.Status = StatusBlocked
		},
		call: func(ctx context.Context) (func(*Artisan), error) {
			updated, err := w.store.BlockArtisan(ctx, w.id)
			if err != nil {
				return nil, err
			}
			return confirmStatus(updated, StatusBlocked), nil
		},
		event: func(a *Artisan) *UpdateEvent {
			return &UpdateEvent{ID: a.ID, Status: a.Status}
		},
	})
}

// Unblock restores a blocked artisan to active without touching KYC or stats.
// Calling it on an active artisan is a no-op: no store call, no event, no error.
func (w *Workflow) Unblock(ctx context.Context) (ActionResult, error) {
	w.mu.Lock()
	if w.current != nil && w.current.IsActive() && !w.inFlight {
		snapshot := w.current.Clone()
		w.mu.Unlock()
		return ActionResult{Action: ActionUnblock, Previous: snapshot, Current: snapshot.Clone()}, nil
	}
	w.mu.Unlock()

	return w.run(ctx, mutation{
		action: ActionUnblock,
		optimistic: func(a *Artisan) {
			a.Status = StatusActive
		},
		call: func(ctx context.Context) (func(*Artisan), error) {
			updated, err := w.store.UnblockArtisan(ctx, w.id)
			if err != nil {
				return nil, err
			}
			return confirmStatus(updated, StatusActive), nil
		},
		event: func(a *Artisan) *UpdateEvent {
			return &UpdateEvent{ID: a.ID, Status: a.Status}
		},
	})
}

// Approve activates a pending artisan whose ID is verified. Newly approved
// artisans start without activity.
func (w *Workflow) Approve(ctx context.Context) (ActionResult, error) {
	return w.run(ctx, mutation{
		action: ActionApprove,
		optimistic: func(a *Artisan) {
			a.Status = StatusActive
			a.KYC.IDStatus = IDStatusVerified
			a.Stats.HasActivity = false
		},
		call: func(ctx context.Context) (func(*Artisan), error) {
			updated, err := w.store.ApproveArtisan(ctx, w.id)
			if err != nil {
				return nil, err
			}
			return func(a *Artisan) {
				confirmStatus(updated, StatusActive)(a)
				a.Stats.HasActivity = false
			}, nil
		},
		event: func(a *Artisan) *UpdateEvent {
			noActivity := false
			return &UpdateEvent{ID: a.ID, Status: a.Status, Patch: &Patch{HasActivity: &noActivity}}
		},
	})
}

// VerifyID runs the identity check. The local record moves to verifying before
// the store is called and always settles on verified or failed when the call
// succeeds. force pins the outcome.
//
// A call that outlives the verify timeout settles the local record on failed
// but publishes nothing, since the store never confirmed that outcome.
func (w *Workflow) VerifyID(ctx context.Context, force ...ForceOutcome) (ActionResult, error) {
	pin := ForceNone
	if len(force) > 0 {
		pin = force[0]
	}

	timedOut := false

	return w.run(ctx, mutation{
		action: ActionVerifyID,
		optimistic: func(a *Artisan) {
			a.KYC.IDStatus = IDStatusVerifying
		},
		call: func(ctx context.Context) (func(*Artisan), error) {
			if w.verifyTimeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, w.verifyTimeout)
				defer cancel()
			}

			kyc, err := w.store.VerifyIdentity(ctx, w.id, pin)
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && w.verifyTimeout > 0 {
					w.logger.Warn("%v: artisan=%s timeout=%s", ErrVerificationTimeout, w.id, w.verifyTimeout)
					timedOut = true
					return setIDStatus(IDStatusFailed), nil
				}
				return nil, err
			}
			if kyc.IDStatus != IDStatusVerified && kyc.IDStatus != IDStatusFailed {
				return nil, ErrInvalidOutcome
			}
			return func(a *Artisan) {
				idType, idImage := a.KYC.IDType, a.KYC.IDImageURL
				a.KYC = kyc
				if a.KYC.IDType == "" {
					a.KYC.IDType = idType
				}
				if a.KYC.IDImageURL == "" {
					a.KYC.IDImageURL = idImage
				}
			}, nil
		},
		event: func(a *Artisan) *UpdateEvent {
			if timedOut {
				return nil
			}
			return kycEvent(a)
		},
	})
}

// RequestReupload asks the artisan for a new ID document, resetting the KYC
// sub status to unverified. The local record changes only after the store
// confirms.
func (w *Workflow) RequestReupload(ctx context.Context) (ActionResult, error) {
	return w.run(ctx, mutation{
		action: ActionRequestReupload,
		call: func(ctx context.Context) (func(*Artisan), error) {
			if _, err := w.store.RequestReupload(ctx, w.id); err != nil {
				return nil, err
			}
			return setIDStatus(IDStatusUnverified), nil
		},
		event: kycEvent,
	})
}

type mutation struct {
	action     Action
	optimistic func(*Artisan)
	call       func(ctx context.Context) (func(*Artisan), error)
	event      func(*Artisan) *UpdateEvent
}

func (w *Workflow) run(ctx context.Context, m mutation) (ActionResult, error) {
	previous, err := w.begin(m.action)
	if err != nil {
		return ActionResult{Action: m.action}, err
	}

	if m.optimistic != nil {
		w.mu.Lock()
		if !w.closed {
			m.optimistic(w.current)
		}
		w.mu.Unlock()
	}

	confirm, err := m.call(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.inFlight = false

	result := ActionResult{Action: m.action, Previous: previous.Clone()}

	if err != nil {
		if !w.closed {
			w.current = previous
		}
		w.logger.Debug("artisan %s %s failed: %v", w.id, m.action, err)
		return result, err
	}

	next := previous.Clone()
	confirm(next)
	result.Current = next.Clone()
	result.Changed = true

	if w.closed {
		return result, nil
	}

	w.current = next
	if m.event != nil {
		if evt := m.event(next); evt != nil {
			w.publisher.Publish(*evt)
		}
	}
	return result, nil
}

func (w *Workflow) begin(action Action) (*Artisan, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return nil, ErrNotFound
	}
	if w.inFlight {
		return nil, ErrActionInProgress
	}
	if err := CheckAction(w.current, action); err != nil {
		return nil, err
	}

	w.inFlight = true
	return w.current.Clone(), nil
}

func confirmStatus(updated *Artisan, fallback Status) func(*Artisan) {
	return func(a *Artisan) {
		if updated != nil && updated.Status.Valid() {
			a.Status = updated.Status
			if updated.KYC.IDStatus.Valid() {
				a.KYC.IDStatus = updated.KYC.IDStatus
			}
			if updated.UpdatedAt != nil {
				a.UpdatedAt = cloneTime(updated.UpdatedAt)
			}
			return
		}
		a.Status = fallback
	}
}

func setIDStatus(status IDStatus) func(*Artisan) {
	return func(a *Artisan) {
		a.KYC.IDStatus = status
	}
}

func kycEvent(a *Artisan) *UpdateEvent {
	idStatus := a.KYC.IDStatus
	return &UpdateEvent{ID: a.ID, Status: a.Status, Patch: &Patch{IDStatus: &idStatus}}
}
