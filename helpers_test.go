package identity_test

import (
	"context"
	"database/sql"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)

	// in-memory sqlite lives on a single connection
	sqldb.SetMaxOpenConns(1)
	sqldb.SetMaxIdleConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() {
		db.Close()
	})

	ctx := context.Background()
	models := []any{
		(*identity.User)(nil),
		(*identity.Role)(nil),
		(*identity.RoleAssignment)(nil),
		(*identity.RoleClaim)(nil),
		(*identity.UserClaim)(nil),
		(*identity.VerificationCode)(nil),
	}

	for _, model := range models {
		_, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx)
		require.NoError(t, err)
	}

	return db
}

func setupRepoManager(t *testing.T) identity.RepositoryManager {
	t.Helper()
	return identity.NewRepositoryManager(setupTestDB(t))
}

func mustRegisterUser(t *testing.T, repo identity.RepositoryManager, user *identity.User) *identity.User {
	t.Helper()

	created, err := repo.Users().Register(context.Background(), user)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, created.ID)

	return created
}

func mustCreateRole(t *testing.T, repo identity.RepositoryManager, name string) *identity.Role {
	t.Helper()

	role, err := repo.Roles().Create(context.Background(), &identity.Role{
		ID:   uuid.New(),
		Name: name,
	})
	require.NoError(t, err)

	return role
}
