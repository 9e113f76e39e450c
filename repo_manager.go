package dualauth

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	Tokens() TokenStore
	Policies() PolicyStore
	LegacyTokens() LegacyTokenStore
	Organizations() repository.Repository[*Organization]
	Members() repository.Repository[*OrganizationMember]
}

func NewOrganizationsRepository(db *bun.DB) repository.Repository[*Organization] {
	handlers := repository.ModelHandlers[*Organization]{
		NewRecord: func() *Organization {
			return &Organization{}
		},
		GetID: func(record *Organization) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Organization, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "title"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewMembersRepository(db *bun.DB) repository.Repository[*OrganizationMember] {
	handlers := repository.ModelHandlers[*OrganizationMember]{
		NewRecord: func() *OrganizationMember {
			return &OrganizationMember{}
		},
		GetID: func(record *OrganizationMember) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *OrganizationMember, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "user_id"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db            *bun.DB
	users         Users
	tokens        TokenStore
	policies      PolicyStore
	legacyTokens  LegacyTokenStore
	organizations repository.Repository[*Organization]
	members       repository.Repository[*OrganizationMember]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:            db,
		users:         NewUsersRepository(db),
		tokens:        NewTokenStore(db),
		policies:      NewPolicyStore(db),
		legacyTokens:  NewLegacyTokenStore(db),
		organizations: NewOrganizationsRepository(db),
		members:       NewMembersRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.tokens == nil {
		return errors.New("repository tokens should be initialized")
	}

	if m.policies == nil {
		return errors.New("repository policies should be initialized")
	}

	if m.legacyTokens == nil {
		return errors.New("repository legacyTokens should be initialized")
	}

	if m.organizations == nil {
		return errors.New("repository organizations should be initialized")
	}

	if m.members == nil {
		return errors.New("repository members should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) Tokens() TokenStore {
	return m.tokens
}

func (m mngr) Policies() PolicyStore {
	return m.policies
}

func (m mngr) LegacyTokens() LegacyTokenStore {
	return m.legacyTokens
}

func (m mngr) Organizations() repository.Repository[*Organization] {
	return m.organizations
}

func (m mngr) Members() repository.Repository[*OrganizationMember] {
	return m.members
}
