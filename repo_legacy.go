package dualauth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type legacyTokenStore struct {
	db *bun.DB
}

var _ LegacyTokenStore = (*legacyTokenStore)(nil)

// NewLegacyTokenStore creates a bun backed LegacyTokenStore.
func NewLegacyTokenStore(db *bun.DB) LegacyTokenStore {
	return &legacyTokenStore{db: db}
}

func (s *legacyTokenStore) Create(ctx context.Context, record *LegacyToken) (*LegacyToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *legacyTokenStore) GetByDigest(ctx context.Context, digest string) (*LegacyToken, error) {
	record := &LegacyToken{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.digest = ?", digest).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (s *legacyTokenStore) Touch(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.NewUpdate().
		Model((*LegacyToken)(nil)).
		Set("last_used_at = ?", at).
		Where("?TableAlias.id = ?", id).
		Exec(ctx)

	return err
}
