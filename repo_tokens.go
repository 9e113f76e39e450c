package dualauth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type tokenStore struct {
	db *bun.DB
}

var _ TokenStore = (*tokenStore)(nil)

// NewTokenStore creates a bun backed TokenStore over the outstanding and
// blacklisted token tables.
func NewTokenStore(db *bun.DB) TokenStore {
	return &tokenStore{db: db}
}

func (s *tokenStore) CreateOutstanding(ctx context.Context, record *OutstandingToken) (*OutstandingToken, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *tokenStore) GetOutstandingByJTI(ctx context.Context, jti string) (*OutstandingToken, error) {
	record := &OutstandingToken{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.jti = ?", jti).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"jti": jti,
				})
		}
		return nil, err
	}

	return record, nil
}

func (s *tokenStore) ListOutstandingByUser(ctx context.Context, userID uuid.UUID, now time.Time) ([]*OutstandingToken, error) {
	var records []*OutstandingToken

	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.token_type = ?", TokenTypeRefresh).
		Where("?TableAlias.expires_at > ?", now).
		Where("NOT EXISTS (SELECT 1 FROM blacklisted_tokens AS bt WHERE bt.token_jti = ?TableAlias.jti)").
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (s *tokenStore) Blacklist(ctx context.Context, jti string, at time.Time) error {
	record := &BlacklistedToken{
		ID:            uuid.New(),
		TokenJTI:      jti,
		BlacklistedAt: &at,
	}

	res, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (token_jti) DO NOTHING").
		Exec(ctx)

	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return ErrAlreadyBlacklisted
	}

	return nil
}

func (s *tokenStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return s.db.NewSelect().
		Model((*BlacklistedToken)(nil)).
		Where("?TableAlias.token_jti = ?", jti).
		Exists(ctx)
}
