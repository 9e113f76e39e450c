package dualauth

import (
	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type policyStore struct {
	db *bun.DB
}

var _ PolicyStore = (*policyStore)(nil)

// NewPolicyStore creates a bun backed PolicyStore over the auth policy and
// organization membership tables.
func NewPolicyStore(db *bun.DB) PolicyStore {
	return &policyStore{db: db}
}

func (s *policyStore) GetByOrganization(ctx context.Context, orgID uuid.UUID) (*AuthPolicy, error) {
	record := &AuthPolicy{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", orgID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"organization_id": orgID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

// Create inserts the policy, keeping the existing row when two callers race
// the lazy get-or-create path. The winning row is read back so both callers
// observe the same flags.
func (s *policyStore) Create(ctx context.Context, policy *AuthPolicy) (*AuthPolicy, error) {
	return s.createTx(ctx, s.db, policy)
}

func (s *policyStore) createTx(ctx context.Context, tx bun.IDB, policy *AuthPolicy) (*AuthPolicy, error) {
	if _, err := tx.NewInsert().
		Model(policy).
		On("CONFLICT (organization_id) DO NOTHING").
		Exec(ctx); err != nil {
		return nil, err
	}

	record := &AuthPolicy{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", policy.OrganizationID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return record, nil
}

// CreateTx is the transactional variant of Create.
func (s *policyStore) CreateTx(ctx context.Context, tx bun.IDB, policy *AuthPolicy) (*AuthPolicy, error) {
	return s.createTx(ctx, tx, policy)
}

func (s *policyStore) Update(ctx context.Context, policy *AuthPolicy) (*AuthPolicy, error) {
	res, err := s.db.NewUpdate().
		Model(policy).
		Column("legacy_tokens_enabled", "jwt_tokens_enabled", "api_tokens_enabled").
		Where("?TableAlias.organization_id = ?", policy.OrganizationID).
		Exec(ctx)

	if err != nil {
		return nil, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	if affected == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"organization_id": policy.OrganizationID.String(),
			})
	}

	return s.GetByOrganization(ctx, policy.OrganizationID)
}

func (s *policyStore) IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	return s.db.NewSelect().
		Model((*OrganizationMember)(nil)).
		Where("?TableAlias.organization_id = ?", orgID).
		Where("?TableAlias.user_id = ?", userID).
		Exists(ctx)
}

func (s *policyStore) MemberRole(ctx context.Context, orgID, userID uuid.UUID) (UserRole, error) {
	record := &OrganizationMember{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", orgID).
		Where("?TableAlias.user_id = ?", userID).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"organization_id": orgID.String(),
					"user_id":         userID.String(),
				})
		}
		return "", err
	}

	return record.Role, nil
}
