package dualauth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// PolicyUpdate is a partial update of an organization's auth flags. Nil
// fields are left untouched.
type PolicyUpdate struct {
	LegacyTokensEnabled *bool `json:"legacy_tokens_enabled,omitempty"`
	JWTTokensEnabled    *bool `json:"jwt_tokens_enabled,omitempty"`
	APITokensEnabled    *bool `json:"api_tokens_enabled,omitempty"`
}

// Validate implements validation for the update payload
func (p PolicyUpdate) Validate() error {
	if p.LegacyTokensEnabled == nil && p.JWTTokensEnabled == nil && p.APITokensEnabled == nil {
		return errors.New("at least one flag must be provided", errors.CategoryValidation).
			WithTextCode("VALIDATION_EMPTY_UPDATE").
			WithCode(errors.CodeBadRequest)
	}
	return nil
}

func (p PolicyUpdate) apply(policy *AuthPolicy) {
	if p.LegacyTokensEnabled != nil {
		policy.LegacyTokensEnabled = *p.LegacyTokensEnabled
	}
	if p.JWTTokensEnabled != nil {
		policy.JWTTokensEnabled = *p.JWTTokensEnabled
	}
	if p.APITokensEnabled != nil {
		policy.APITokensEnabled = *p.APITokensEnabled
	}
}

// PolicyService answers which authentication schemes an organization accepts
// and who may see or change that policy.
type PolicyService struct {
	store    PolicyStore
	now      func() time.Time
	logger   Logger
	activity ActivitySink
}

// PolicyServiceOption configures a PolicyService
type PolicyServiceOption func(*PolicyService)

// WithPolicyClock injects a clock, mostly for tests
func WithPolicyClock(clock func() time.Time) PolicyServiceOption {
	return func(s *PolicyService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithPolicyLogger sets the service logger
func WithPolicyLogger(logger Logger) PolicyServiceOption {
	return func(s *PolicyService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPolicyActivitySink forwards policy events to the given sink
func WithPolicyActivitySink(sink ActivitySink) PolicyServiceOption {
	return func(s *PolicyService) {
		s.activity = normalizeActivitySink(sink)
	}
}

// NewPolicyService creates a policy service over the given store
func NewPolicyService(store PolicyStore, opts ...PolicyServiceOption) *PolicyService {
	s := &PolicyService{
		store:    store,
		now:      time.Now,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Get returns the organization's policy, creating it with pre existing
// organization defaults on first access. Reading a policy never fails because
// the row is missing.
func (s *PolicyService) Get(ctx context.Context, orgID uuid.UUID) (*AuthPolicy, error) {
	policy, err := s.store.GetByOrganization(ctx, orgID)
	if err == nil {
		return policy, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load auth policy").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"organization_id": orgID.String()})
	}

	policy, err = s.store.Create(ctx, LegacyPolicyDefaults(orgID))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create auth policy").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"organization_id": orgID.String()})
	}

	return policy, nil
}

// BootstrapModern creates the policy row with new organization defaults. Used
// on the organization creation path, where legacy keys were never issued.
func (s *PolicyService) BootstrapModern(ctx context.Context, tx bun.IDB, orgID uuid.UUID) (*AuthPolicy, error) {
	policy, err := s.store.CreateTx(ctx, tx, ModernPolicyDefaults(orgID))
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to bootstrap auth policy").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"organization_id": orgID.String()})
	}
	return policy, nil
}

// CanView reports whether the user may read the policy: any member of the
// organization.
func (s *PolicyService) CanView(ctx context.Context, policy *AuthPolicy, user *User) (bool, error) {
	if policy == nil || user == nil {
		return false, nil
	}
	return s.store.IsMember(ctx, policy.OrganizationID, user.ID)
}

// CanModify reports whether the user may change the policy: a member whose
// role is at least admin.
func (s *PolicyService) CanModify(ctx context.Context, policy *AuthPolicy, user *User) (bool, error) {
	if policy == nil || user == nil {
		return false, nil
	}

	role, err := s.store.MemberRole(ctx, policy.OrganizationID, user.ID)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return role.IsAtLeast(RoleAdmin), nil
}

// HasPermission reports whether the user may change the policy.
//
// Deprecated: use CanModify.
func (s *PolicyService) HasPermission(ctx context.Context, policy *AuthPolicy, user *User) (bool, error) {
	return s.CanModify(ctx, policy, user)
}

// Update applies a partial flag update after checking the actor's
// permissions and validating the payload.
func (s *PolicyService) Update(ctx context.Context, orgID uuid.UUID, actor *User, changes PolicyUpdate) (*AuthPolicy, error) {
	policy, err := s.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.CanModify(ctx, policy, actor)
	if err != nil {
		return nil, err
	}

	if !allowed {
		return nil, errors.New(ErrPermissionDenied.Message, ErrPermissionDenied.Category).
			WithTextCode(ErrPermissionDenied.TextCode).
			WithCode(ErrPermissionDenied.Code).
			WithMetadata(map[string]any{"organization_id": orgID.String()})
	}

	if err := changes.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.CategoryValidation, "invalid policy update").
			WithCode(errors.CodeBadRequest)
	}

	changes.apply(policy)

	updated, err := s.store.Update(ctx, policy)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update auth policy").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"organization_id": orgID.String()})
	}

	s.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPolicyUpdated,
		Actor:     ActorRef{ID: actor.ID.String(), Type: "user"},
		UserID:    actor.ID.String(),
		Metadata: map[string]any{
			"organization_id":       orgID.String(),
			"legacy_tokens_enabled": updated.LegacyTokensEnabled,
			"jwt_tokens_enabled":    updated.JWTTokensEnabled,
			"api_tokens_enabled":    updated.APITokensEnabled,
		},
	})

	return updated, nil
}

func (s *PolicyService) recordActivity(ctx context.Context, event ActivityEvent) {
	event.OccurredAt = s.now()
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Error("failed to record activity event", "event", string(event.EventType), "error", err)
	}
}

// CreateOrganization creates an organization, its creator membership, and a
// modern auth policy in one transaction.
func CreateOrganization(ctx context.Context, repo RepositoryManager, policies *PolicyService, title string, createdBy *User) (*Organization, error) {
	org := &Organization{
		ID:          uuid.New(),
		Title:       title,
		CreatedByID: &createdBy.ID,
	}

	err := repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := repo.Organizations().CreateTx(ctx, tx, org); err != nil {
			return err
		}

		member := &OrganizationMember{
			ID:             uuid.New(),
			OrganizationID: org.ID,
			UserID:         createdBy.ID,
			Role:           RoleOwner,
		}
		if _, err := repo.Members().CreateTx(ctx, tx, member); err != nil {
			return err
		}

		if _, err := policies.BootstrapModern(ctx, tx, org.ID); err != nil {
			return err
		}

		return nil
	})

	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create organization").
			WithCode(errors.CodeInternal).
			WithMetadata(map[string]any{"title": title})
	}

	return org, nil
}
