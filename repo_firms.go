package firmauth

import (
	"context"
	"strings"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Firms is the persistence surface for firm (tenant) records.
type Firms interface {
	repository.Repository[*Firm]

	GetByEmail(ctx context.Context, email string) (*Firm, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Firm, error)
}

type firms struct {
	repository.Repository[*Firm]
	db *bun.DB
}

var (
	_ Firms                        = (*firms)(nil)
	_ repository.Repository[*Firm] = (*firms)(nil)
)

func NewFirmsRepository(db *bun.DB) Firms {
	repo := repository.NewRepository[*Firm](db, repository.ModelHandlers[*Firm]{
		NewRecord: func() *Firm { return &Firm{} },
		GetID: func(f *Firm) uuid.UUID {
			if f == nil {
				return uuid.Nil
			}
			return f.ID
		},
		SetID: func(f *Firm, id uuid.UUID) {
			if f != nil {
				f.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &firms{
		Repository: repo,
		db:         db,
	}
}

func (f *firms) GetByEmail(ctx context.Context, email string) (*Firm, error) {
	return f.GetByEmailTx(ctx, f.db, email)
}

func (f *firms) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Firm, error) {
	record := &Firm{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}
	return record, nil
}
