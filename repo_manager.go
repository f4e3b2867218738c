package trust

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
	AuthRequests() AuthRequests
	OrganizationUsers() repository.Repository[*OrganizationUser]
	Policies() Policies
}

// Users is the account repository
type Users interface {
	repository.Repository[*User]

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)
}

// Policies looks up organization policies by type
type Policies interface {
	repository.Repository[*Policy]

	GetByOrganizationIDType(ctx context.Context, organizationID uuid.UUID, policyType PolicyType) (*Policy, error)
}

func NewOrganizationUsersRepository(db *bun.DB) repository.Repository[*OrganizationUser] {
	handlers := repository.ModelHandlers[*OrganizationUser]{
		NewRecord: func() *OrganizationUser {
			return &OrganizationUser{}
		},
		GetID: func(record *OrganizationUser) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *OrganizationUser, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var _ Users = (*users)(nil)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	if user != nil && user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	return a.CreateTx(ctx, tx, user)
}

type policies struct {
	repository.Repository[*Policy]
	db *bun.DB
}

var _ Policies = (*policies)(nil)

func NewPoliciesRepository(db *bun.DB) Policies {
	repo := repository.NewRepository[*Policy](db, repository.ModelHandlers[*Policy]{
		NewRecord: func() *Policy { return &Policy{} },
		GetID: func(p *Policy) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Policy, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
	})

	return &policies{
		Repository: repo,
		db:         db,
	}
}

func (a *policies) GetByOrganizationIDType(ctx context.Context, organizationID uuid.UUID, policyType PolicyType) (*Policy, error) {
	record := &Policy{}

	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.organization_id = ?", organizationID).
		Where("?TableAlias.policy_type = ?", policyType).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"organization_id": organizationID.String(),
					"policy_type":     policyType,
				})
		}
		return nil, err
	}

	return record, nil
}

type mngr struct {
	db                *bun.DB
	users             Users
	authRequests      AuthRequests
	organizationUsers repository.Repository[*OrganizationUser]
	policies          Policies
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                db,
		users:             NewUsersRepository(db),
		authRequests:      NewAuthRequestsRepository(db),
		organizationUsers: NewOrganizationUsersRepository(db),
		policies:          NewPoliciesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.authRequests == nil {
		return errors.New("repository authRequests should be initialized")
	}

	if m.organizationUsers == nil {
		return errors.New("repository organizationUsers should be initialized")
	}

	if m.policies == nil {
		return errors.New("repository policies should be initialized")
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

func (m mngr) AuthRequests() AuthRequests {
	return m.authRequests
}

func (m mngr) OrganizationUsers() repository.Repository[*OrganizationUser] {
	return m.organizationUsers
}

func (m mngr) Policies() Policies {
	return m.policies
}
