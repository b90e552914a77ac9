package gateway

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// CredentialModel is a row of the credentials table.
type CredentialModel struct {
	bun.BaseModel `bun:"table:credentials,alias:cred"`
	Key           string    `bun:"name,pk"`
	Value         string    `bun:"value,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// BunCredentials persists credentials in a database so they survive restarts
// of the admin client.
type BunCredentials struct {
	db *bun.DB
}

// NewBunCredentials stores tokens in db. Call CreateSchema before first use.
func NewBunCredentials(db *bun.DB) *BunCredentials {
	return &BunCredentials{db: db}
}

// CreateSchema creates the credentials table if it does not exist.
func (b *BunCredentials) CreateSchema(ctx context.Context) error {
	_, err := b.db.NewCreateTable().
		Model((*CredentialModel)(nil)).
		IfNotExists().
		Exec(ctx)
	return err
}

func (b *BunCredentials) Get(ctx context.Context, key string) (string, error) {
	var model CredentialModel
	err := b.db.NewSelect().
		Model(&model).
		Where("name = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return model.Value, nil
}

func (b *BunCredentials) Set(ctx context.Context, key, value string) error {
	model := &CredentialModel{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := b.db.NewInsert().
		Model(model).
		On("CONFLICT (name) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (b *BunCredentials) Remove(ctx context.Context, key string) error {
	_, err := b.db.NewDelete().
		Model((*CredentialModel)(nil)).
		Where("name = ?", key).
		Exec(ctx)
	return err
}
