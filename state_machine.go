package artisan

import (
	"context"
	"time"
)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// Action names an admin operation on an artisan record.
type Action string

const (
	ActionBlock           Action = "block"
	ActionUnblock         Action = "unblock"
	ActionApprove         Action = "approve"
	ActionVerifyID        Action = "verify_id"
	ActionRequestReupload Action = "request_reupload"
)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor        ActorRef
	Artisan      *Artisan
	From         Status
	To           Status
	FromIDStatus IDStatus
	ToIDStatus   IDStatus
	Meta         TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// LifecycleUpdate is the set of lifecycle columns persisted by a transition.
// Zero values are left untouched.
type LifecycleUpdate struct {
	Status      Status
	IDStatus    IDStatus
	HasActivity *bool
}

// Apply copies the update onto a record.
func (u LifecycleUpdate) Apply(a *Artisan) {
	if a == nil {
		return
	}
	if u.Status != "" {
		a.Status = u.Status
	}
	if u.IDStatus != "" {
		a.KYC.IDStatus = u.IDStatus
	}
	if u.HasActivity != nil {
		a.Stats.HasActivity = *u.HasActivity
	}
}

// LifecycleUpdater persists lifecycle changes.
type LifecycleUpdater interface {
	UpdateLifecycle(ctx context.Context, id string, update LifecycleUpdate) (*Artisan, error)
}

// LifecycleUpdaterFunc adapts a function to LifecycleUpdater.
type LifecycleUpdaterFunc func(ctx context.Context, id string, update LifecycleUpdate) (*Artisan, error)

func (f LifecycleUpdaterFunc) UpdateLifecycle(ctx context.Context, id string, update LifecycleUpdate) (*Artisan, error) {
	return f(ctx, id, update)
}

// StateMachine defines lifecycle operations for artisans.
type StateMachine interface {
	Transition(ctx context.Context, actor ActorRef, artisan *Artisan, target Status, opts ...TransitionOption) (*Artisan, error)
	TransitionID(ctx context.Context, actor ActorRef, artisan *Artisan, target IDStatus, opts ...TransitionOption) (*Artisan, error)
	CurrentStatus(artisan *Artisan) Status
}

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*stateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *stateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *stateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *stateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *stateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// WithBeforeTransitionHook adds a hook executed before the update is persisted.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewStateMachine returns the default implementation persisting through updater.
func NewStateMachine(updater LifecycleUpdater, opts ...StateMachineOption) StateMachine {
	sm := &stateMachine{
		updater: updater,
		transitions: map[Status]map[Status]struct{}{
			StatusPending: {
				StatusActive: {},
			},
			StatusActive: {
				StatusBlocked: {},
			},
			StatusBlocked: {
				StatusActive: {},
			},
		},
		idTransitions: map[IDStatus]map[IDStatus]struct{}{
			IDStatusUnverified: {
				IDStatusVerifying: {},
			},
			IDStatusVerifying: {
				IDStatusVerified:   {},
				IDStatusFailed:     {},
				IDStatusUnverified: {},
			},
			IDStatusFailed: {
				IDStatusVerifying:  {},
				IDStatusUnverified: {},
			},
			IDStatusVerified: {
				IDStatusUnverified: {},
			},
		},
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type stateMachine struct {
	updater          LifecycleUpdater
	transitions      map[Status]map[Status]struct{}
	idTransitions    map[IDStatus]map[IDStatus]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	force       bool
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

// Transition moves the artisan to the target account status. Approving a
// pending artisan requires a verified ID and resets HasActivity.
func (sm *stateMachine) Transition(ctx context.Context, actor ActorRef, artisan *Artisan, target Status, opts ...TransitionOption) (*Artisan, error) {
	if artisan == nil {
		return nil, ErrNotFound
	}
	if !target.Valid() {
		return nil, ErrInvalidTransition
	}

	artisan.EnsureDefaults()
	from := artisan.Status
	if from == target {
		return artisan, nil
	}

	options := sm.buildTransitionOptions(opts...)

	if !options.force {
		if !sm.canTransition(from, target) {
			return nil, ErrInvalidTransition
		}
		if from == StatusPending && target == StatusActive && !artisan.IDVerified() {
			return nil, ErrPreconditionFailed
		}
	}

	update := LifecycleUpdate{Status: target}
	if from == StatusPending && target == StatusActive {
		noActivity := false
		update.HasActivity = &noActivity
	}

	tc := TransitionContext{
		Actor:        actor,
		Artisan:      artisan,
		From:         from,
		To:           target,
		FromIDStatus: artisan.KYC.IDStatus,
		ToIDStatus:   artisan.KYC.IDStatus,
		Meta:         options.cloneMetadata(),
	}

	if err := sm.apply(ctx, artisan, update, tc, options); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventStatusChanged,
		Actor:      actor,
		ArtisanID:  artisan.ID,
		FromStatus: from,
		ToStatus:   target,
		Metadata:   sm.transitionMetadata(tc.Meta),
	})

	return artisan, nil
}

// TransitionID moves the identity verification sub status.
func (sm *stateMachine) TransitionID(ctx context.Context, actor ActorRef, artisan *Artisan, target IDStatus, opts ...TransitionOption) (*Artisan, error) {
	if artisan == nil {
		return nil, ErrNotFound
	}
	if !target.Valid() {
		return nil, ErrInvalidTransition
	}

	artisan.EnsureDefaults()
	from := artisan.KYC.IDStatus
	if from == target {
		return artisan, nil
	}

	options := sm.buildTransitionOptions(opts...)
	if !options.force && !sm.canTransitionID(from, target) {
		return nil, ErrInvalidTransition
	}

	tc := TransitionContext{
		Actor:        actor,
		Artisan:      artisan,
		From:         artisan.Status,
		To:           artisan.Status,
		FromIDStatus: from,
		ToIDStatus:   target,
		Meta:         options.cloneMetadata(),
	}

	if err := sm.apply(ctx, artisan, LifecycleUpdate{IDStatus: target}, tc, options); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:    ActivityEventKYCChanged,
		Actor:        actor,
		ArtisanID:    artisan.ID,
		FromStatus:   artisan.Status,
		ToStatus:     artisan.Status,
		FromIDStatus: from,
		ToIDStatus:   target,
		Metadata:     sm.transitionMetadata(tc.Meta),
	})

	return artisan, nil
}

func (sm *stateMachine) CurrentStatus(artisan *Artisan) Status {
	if artisan == nil {
		return ""
	}
	artisan.EnsureDefaults()
	return artisan.Status
}

func (sm *stateMachine) apply(ctx context.Context, artisan *Artisan, update LifecycleUpdate, tc TransitionContext, options *transitionOptions) error {
	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return err
	}

	if sm.updater != nil {
		updated, err := sm.updater.UpdateLifecycle(ctx, artisan.ID, update)
		if err != nil {
			return err
		}
		if updated != nil {
			artisan.UpdatedAt = cloneTime(updated.UpdatedAt)
		}
	}
	update.Apply(artisan)

	return sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter)
}

func (sm *stateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				sm.logger.Error("%s hook failed for artisan %s: %v", phase, data.Artisan.ID, err)
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *stateMachine) canTransition(from, to Status) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *stateMachine) canTransitionID(from, to IDStatus) bool {
	if allowed, ok := sm.idTransitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *stateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *stateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}

func (sm *stateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}

// CheckAction guards an admin action against the record's current state. It
// returns ErrPreconditionFailed when the action is not available.
func CheckAction(artisan *Artisan, action Action) error {
	if artisan == nil {
		return ErrNotFound
	}
	switch action {
	case ActionBlock:
		if !artisan.IsActive() {
			return ErrPreconditionFailed
		}
	case ActionUnblock:
		if !artisan.IsBlocked() && !artisan.IsActive() {
			return ErrPreconditionFailed
		}
	case ActionApprove:
		if !artisan.CanApprove() {
			return ErrPreconditionFailed
		}
	case ActionVerifyID:
		if !artisan.IsPending() || artisan.KYC.IDStatus == IDStatusVerifying || artisan.IDVerified() {
			return ErrPreconditionFailed
		}
	case ActionRequestReupload:
	default:
		return ErrInvalidTransition
	}
	return nil
}
