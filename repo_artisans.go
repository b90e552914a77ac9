package artisan

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"
)

var _ Store = (*ArtisanRepository)(nil)

// ArtisanRepository is a Store persisted with Bun.
type ArtisanRepository struct {
	db        *bun.DB
	oracle    VerificationOracle
	actor     ActorRef
	logger    Logger
	now       func() time.Time
	smOptions []StateMachineOption
}

// RepositoryOption customizes an ArtisanRepository.
type RepositoryOption func(*ArtisanRepository)

// WithRepositoryOracle sets the identity verification strategy.
func WithRepositoryOracle(oracle VerificationOracle) RepositoryOption {
	return func(r *ArtisanRepository) {
		if oracle != nil {
			r.oracle = oracle
		}
	}
}

// WithRepositoryActor sets the actor recorded on lifecycle events.
func WithRepositoryActor(actor ActorRef) RepositoryOption {
	return func(r *ArtisanRepository) {
		r.actor = actor
	}
}

// WithRepositoryLogger overrides the repository logger.
func WithRepositoryLogger(logger Logger) RepositoryOption {
	return func(r *ArtisanRepository) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithRepositoryClock injects a custom clock.
func WithRepositoryClock(clock func() time.Time) RepositoryOption {
	return func(r *ArtisanRepository) {
		if clock != nil {
			r.now = clock
		}
	}
}

// WithRepositoryStateMachineOptions forwards options to the lifecycle state machine.
func WithRepositoryStateMachineOptions(opts ...StateMachineOption) RepositoryOption {
	return func(r *ArtisanRepository) {
		r.smOptions = append(r.smOptions, opts...)
	}
}

func NewArtisanRepository(db *bun.DB, opts ...RepositoryOption) *ArtisanRepository {
	r := &ArtisanRepository{
		db:     db,
		logger: defLogger{},
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.oracle == nil {
		r.oracle = NewRandomOracle()
	}
	return r
}

// CreateSchema creates the artisans table if it does not exist.
func (r *ArtisanRepository) CreateSchema(ctx context.Context) error {
	_, err := r.db.NewCreateTable().
		Model((*Artisan)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

// Seed inserts records, skipping ids that already exist.
func (r *ArtisanRepository) Seed(ctx context.Context, records ...*Artisan) error {
	if len(records) == 0 {
		return nil
	}
	now := r.now()
	rows := make([]*Artisan, 0, len(records))
	for _, record := range records {
		c := record.Clone()
		c.EnsureDefaults()
		if c.CreatedAt == nil {
			c.CreatedAt = &now
		}
		c.UpdatedAt = &now
		rows = append(rows, c)
	}

	_, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	return err
}

// Create validates and inserts a new record.
func (r *ArtisanRepository) Create(ctx context.Context, record *Artisan) (*Artisan, error) {
	return r.CreateTx(ctx, r.db, record)
}

func (r *ArtisanRepository) CreateTx(ctx context.Context, tx bun.IDB, record *Artisan) (*Artisan, error) {
	c := record.Clone()
	c.EnsureDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	now := r.now()
	c.CreatedAt = &now
	c.UpdatedAt = &now

	if _, err := tx.NewInsert().Model(c).Exec(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ArtisanRepository) FetchArtisan(ctx context.Context, id string) (*Artisan, error) {
	return r.FetchArtisanTx(ctx, r.db, id)
}

func (r *ArtisanRepository) FetchArtisanTx(ctx context.Context, tx bun.IDB, id string) (*Artisan, error) {
	record := &Artisan{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

func (r *ArtisanRepository) ListArtisans(ctx context.Context, filter ListFilter) (*ListPage, error) {
	filter = filter.normalize()

	var rows []*Artisan
	q := r.db.NewSelect().Model(&rows)

	if filter.Status != "" {
		q = q.Where("?TableAlias.status = ?", filter.Status)
	}
	if query := strings.ToLower(strings.TrimSpace(filter.Query)); query != "" {
		like := "%" + query + "%"
		q = q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.
				Where("LOWER(?TableAlias.name) LIKE ?", like).
				WhereOr("LOWER(?TableAlias.email) LIKE ?", like).
				WhereOr("LOWER(?TableAlias.category) LIKE ?", like).
				WhereOr("LOWER(?TableAlias.location) LIKE ?", like).
				WhereOr("?TableAlias.phone_number LIKE ?", like)
		})
	}

	total, err := q.
		OrderExpr("?TableAlias.id ASC").
		Limit(filter.Size).
		Offset((filter.Page - 1) * filter.Size).
		ScanAndCount(ctx)
	if err != nil {
		return nil, err
	}

	totalPages := (total + filter.Size - 1) / filter.Size
	if totalPages < 1 {
		totalPages = 1
	}
	if rows == nil {
		rows = []*Artisan{}
	}

	return &ListPage{
		Items:      rows,
		Total:      total,
		Page:       filter.Page,
		TotalPages: totalPages,
	}, nil
}

func (r *ArtisanRepository) BlockArtisan(ctx context.Context, id string) (*Artisan, error) {
	return r.transition(ctx, id, ActionBlock, StatusBlocked)
}

func (r *ArtisanRepository) UnblockArtisan(ctx context.Context, id string) (*Artisan, error) {
	return r.transition(ctx, id, ActionUnblock, StatusActive)
}

func (r *ArtisanRepository) ApproveArtisan(ctx context.Context, id string) (*Artisan, error) {
	return r.transition(ctx, id, ActionApprove, StatusActive)
}

// VerifyIdentity commits the verifying sub status before the oracle runs, so
// concurrent readers observe the check in progress.
func (r *ArtisanRepository) VerifyIdentity(ctx context.Context, id string, force ForceOutcome) (KYC, error) {
	if !force.Valid() {
		return KYC{}, ErrInvalidOutcome
	}

	var previous IDStatus
	var snapshot *Artisan
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := r.FetchArtisanTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckAction(record, ActionVerifyID); err != nil {
			return err
		}
		previous = record.KYC.IDStatus
		snapshot, err = r.machine(tx).TransitionID(ctx, r.actor, record, IDStatusVerifying)
		return err
	})
	if err != nil {
		return KYC{}, err
	}

	outcome, oerr := resolveOutcome(ctx, r.oracle, snapshot, force)
	target := previous
	if oerr == nil {
		target = outcome.IDStatus()
	}

	var kyc KYC
	err = r.db.RunInTx(context.WithoutCancel(ctx), nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := r.FetchArtisanTx(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err := r.machine(tx).TransitionID(ctx, r.actor, record, target)
		if err != nil {
			return err
		}
		kyc = updated.KYC
		return nil
	})

	if oerr != nil {
		if err != nil {
			r.logger.Error("failed to restore id status for artisan %s: %v", id, err)
		}
		return KYC{}, oerr
	}
	if err != nil {
		return KYC{}, err
	}
	return kyc, nil
}

func (r *ArtisanRepository) RequestReupload(ctx context.Context, id string) (KYC, error) {
	var kyc KYC
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := r.FetchArtisanTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckAction(record, ActionRequestReupload); err != nil {
			return err
		}
		updated, err := r.machine(tx).TransitionID(ctx, r.actor, record, IDStatusUnverified)
		if err != nil {
			return err
		}
		kyc = updated.KYC
		return nil
	})
	return kyc, err
}

// UpdateLifecycle persists lifecycle columns outside of the state machine
// rules. Prefer the Store actions.
func (r *ArtisanRepository) UpdateLifecycle(ctx context.Context, id string, update LifecycleUpdate) (*Artisan, error) {
	return r.UpdateLifecycleTx(ctx, r.db, id, update)
}

func (r *ArtisanRepository) UpdateLifecycleTx(ctx context.Context, tx bun.IDB, id string, update LifecycleUpdate) (*Artisan, error) {
	now := r.now()
	q := tx.NewUpdate().
		Model((*Artisan)(nil)).
		Set("updated_at = ?", now).
		Where("id = ?", id)

	if update.Status != "" {
		q = q.Set("status = ?", update.Status)
	}
	if update.IDStatus != "" {
		q = q.Set("kyc_id_status = ?", update.IDStatus)
	}
	if update.HasActivity != nil {
		q = q.Set("stats_has_activity = ?", *update.HasActivity)
	}

	res, err := q.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, ErrNotFound
	}

	return &Artisan{ID: id, UpdatedAt: &now}, nil
}

func (r *ArtisanRepository) transition(ctx context.Context, id string, action Action, target Status) (*Artisan, error) {
	var result *Artisan
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record, err := r.FetchArtisanTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := CheckAction(record, action); err != nil {
			return err
		}
		result, err = r.machine(tx).Transition(ctx, r.actor, record, target, WithTransitionReason(string(action)))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *ArtisanRepository) machine(tx bun.IDB) StateMachine {
	opts := append([]StateMachineOption{
		WithStateMachineClock(r.now),
		WithStateMachineLogger(r.logger),
	}, r.smOptions...)

	return NewStateMachine(LifecycleUpdaterFunc(func(ctx context.Context, id string, update LifecycleUpdate) (*Artisan, error) {
		return r.UpdateLifecycleTx(ctx, tx, id, update)
	}), opts...)
}
