package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Roles manages named groups and user memberships. RolesForUser enumerates in
// assignment-insertion order; claims aggregation and token role lists depend
// on that order staying stable.
type Roles interface {
	repository.Repository[*Role]

	GetByName(ctx context.Context, name string) (*Role, error)
	GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error)

	AddToRole(ctx context.Context, userID uuid.UUID, roleName string) error
	AddToRoleTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleName string) error
	RemoveFromRole(ctx context.Context, userID uuid.UUID, roleName string) error
	RemoveAllForUser(ctx context.Context, userID uuid.UUID) error

	RolesForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error)
	RoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error)
}

type roles struct {
	repository.Repository[*Role]
	db *bun.DB
}

var (
	_ Roles                        = (*roles)(nil)
	_ repository.Repository[*Role] = (*roles)(nil)
)

func NewRolesRepository(db *bun.DB) Roles {
	repo := repository.NewRepository[*Role](db, repository.ModelHandlers[*Role]{
		NewRecord: func() *Role { return &Role{} },
		GetID: func(r *Role) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Role, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "name"
		},
	})

	return &roles{
		Repository: repo,
		db:         db,
	}
}

func (r *roles) GetByName(ctx context.Context, name string) (*Role, error) {
	return r.GetByNameTx(ctx, r.db, name)
}

func (r *roles) GetByNameTx(ctx context.Context, tx bun.IDB, name string) (*Role, error) {
	record := &Role{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"name": name,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *roles) AddToRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	return r.AddToRoleTx(ctx, r.db, userID, roleName)
}

func (r *roles) AddToRoleTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, roleName string) error {
	role, err := r.GetByNameTx(ctx, tx, roleName)
	if err != nil {
		return err
	}

	exists, err := tx.NewSelect().
		Model((*RoleAssignment)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.role_id = ?", role.ID).
		Exists(ctx)
	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	// explicit timestamp: role enumeration order must survive same-second inserts
	now := time.Now()
	assignment := &RoleAssignment{
		ID:        uuid.New(),
		UserID:    userID,
		RoleID:    role.ID,
		CreatedAt: &now,
	}

	_, err = tx.NewInsert().Model(assignment).Exec(ctx)
	return err
}

func (r *roles) RemoveFromRole(ctx context.Context, userID uuid.UUID, roleName string) error {
	role, err := r.GetByName(ctx, roleName)
	if err != nil {
		return err
	}

	_, err = r.db.NewDelete().
		Model((*RoleAssignment)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Where("?TableAlias.role_id = ?", role.ID).
		Exec(ctx)
	return err
}

func (r *roles) RemoveAllForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*RoleAssignment)(nil)).
		Where("?TableAlias.user_id = ?", userID).
		Exec(ctx)
	return err
}

func (r *roles) RolesForUser(ctx context.Context, userID uuid.UUID) ([]*Role, error) {
	var assignments []*RoleAssignment

	err := r.db.NewSelect().
		Model(&assignments).
		Relation("Role").
		Where("?TableAlias.user_id = ?", userID).
		Order("ras.created_at ASC", "ras.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]*Role, 0, len(assignments))
	for _, assignment := range assignments {
		if assignment.Role != nil {
			records = append(records, assignment.Role)
		}
	}

	return records, nil
}

func (r *roles) RoleNamesForUser(ctx context.Context, userID uuid.UUID) ([]string, error) {
	records, err := r.RolesForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(records))
	for _, record := range records {
		names = append(names, record.Name)
	}

	return names, nil
}
