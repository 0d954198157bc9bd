package identity

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
	Roles() Roles
	VerificationCodes() repository.Repository[*VerificationCode]
}

func NewVerificationCodesRepository(db *bun.DB) repository.Repository[*VerificationCode] {
	handlers := repository.ModelHandlers[*VerificationCode]{
		NewRecord: func() *VerificationCode {
			return &VerificationCode{}
		},
		GetID: func(record *VerificationCode) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *VerificationCode, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "code"
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db                *bun.DB
	users             Users
	roles             Roles
	verificationCodes repository.Repository[*VerificationCode]
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:                db,
		users:             NewUsersRepository(db),
		roles:             NewRolesRepository(db),
		verificationCodes: NewVerificationCodesRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.roles == nil {
		return errors.New("repository roles should be initialized")
	}

	if m.verificationCodes == nil {
		return errors.New("repository verificationCodes should be initialized")
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

func (m mngr) Roles() Roles {
	return m.roles
}

func (m mngr) VerificationCodes() repository.Repository[*VerificationCode] {
	return m.verificationCodes
}
