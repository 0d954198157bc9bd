package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ClaimService stores and aggregates (type, value) authorization claims
// attached to roles and to individual subjects.
//
// Update operations are remove-then-add: every existing claim of the given
// type is removed before the replacement is inserted, and a failing remove
// aborts the operation without performing the add. Set operations replace the
// full claim set. Removal by claim matches the exact (type, value) pair.
type ClaimService struct {
	repo   RepositoryManager
	logger Logger
}

// NewClaimService creates a ClaimService over the given repositories
func NewClaimService(repo RepositoryManager) *ClaimService {
	return &ClaimService{
		repo:   repo,
		logger: defLogger{},
	}
}

func (s *ClaimService) WithLogger(logger Logger) *ClaimService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

var _ ClaimAggregator = (*ClaimService)(nil)

// Aggregate returns the subject's full claim set: for each role the subject
// belongs to, in enumeration order, the role's claims, then the subject's
// direct claims last. Duplicates across sources are preserved; token
// consumers must see the same sequence this produces.
func (s *ClaimService) Aggregate(ctx context.Context, userID uuid.UUID) ([]Claim, error) {
	records, err := s.repo.Roles().RolesForUser(ctx, userID)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to enumerate roles for claims aggregation")
	}

	aggregated := []Claim{}

	for _, role := range records {
		roleClaims, err := s.claimsForRoleID(ctx, role.ID)
		if err != nil {
			return nil, err
		}
		aggregated = append(aggregated, roleClaims...)
	}

	userClaims, err := s.GetForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	return append(aggregated, userClaims...), nil
}

// GetForRole returns the claims attached to a role. An unknown role yields an
// empty set, not an error.
func (s *ClaimService) GetForRole(ctx context.Context, roleName string) ([]Claim, error) {
	role, err := s.repo.Roles().GetByName(ctx, roleName)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return []Claim{}, nil
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up role for claims")
	}

	return s.claimsForRoleID(ctx, role.ID)
}

func (s *ClaimService) claimsForRoleID(ctx context.Context, roleID uuid.UUID) ([]Claim, error) {
	var records []*RoleClaim

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&records).
			Where("?TableAlias.role_id = ?", roleID).
			Order("rcl.created_at ASC", "rcl.id ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load role claims")
	}

	claims := make([]Claim, 0, len(records))
	for _, record := range records {
		claims = append(claims, Claim{Type: record.Type, Value: record.Value})
	}

	return claims, nil
}

// GetForUser returns the claims attached directly to a subject
func (s *ClaimService) GetForUser(ctx context.Context, userID uuid.UUID) ([]Claim, error) {
	var records []*UserClaim

	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			Model(&records).
			Where("?TableAlias.user_id = ?", userID).
			Order("ucl.created_at ASC", "ucl.id ASC").
			Scan(ctx)
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load user claims")
	}

	claims := make([]Claim, 0, len(records))
	for _, record := range records {
		claims = append(claims, Claim{Type: record.Type, Value: record.Value})
	}

	return claims, nil
}

// AddForRole attaches one claim to a role
func (s *ClaimService) AddForRole(ctx context.Context, roleName string, claim Claim) error {
	role, err := s.repo.Roles().GetByName(ctx, roleName)
	if err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return insertRoleClaim(ctx, tx, role.ID, claim)
	})
}

// AddForUser attaches one claim directly to a subject
func (s *ClaimService) AddForUser(ctx context.Context, userID uuid.UUID, claim Claim) error {
	if _, err := s.repo.Users().GetByID(ctx, userID.String()); err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return insertUserClaim(ctx, tx, userID, claim)
	})
}

// UpdateForRole replaces every role claim of claimType with the given claim.
// If the removal step fails the add is never attempted.
func (s *ClaimService) UpdateForRole(ctx context.Context, roleName, claimType string, claim Claim) error {
	role, err := s.repo.Roles().GetByName(ctx, roleName)
	if err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*RoleClaim)(nil)).
			Where("?TableAlias.role_id = ?", role.ID).
			Where("?TableAlias.claim_type = ?", claimType).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove claims from role")
		}

		return insertRoleClaim(ctx, tx, role.ID, claim)
	})
}

// UpdateForUser replaces every direct claim of claimType with the given claim
func (s *ClaimService) UpdateForUser(ctx context.Context, userID uuid.UUID, claimType string, claim Claim) error {
	if _, err := s.repo.Users().GetByID(ctx, userID.String()); err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*UserClaim)(nil)).
			Where("?TableAlias.user_id = ?", userID).
			Where("?TableAlias.claim_type = ?", claimType).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove claims from user")
		}

		return insertUserClaim(ctx, tx, userID, claim)
	})
}

// SetForRole replaces the role's entire claim set
func (s *ClaimService) SetForRole(ctx context.Context, roleName string, claims []Claim) error {
	role, err := s.repo.Roles().GetByName(ctx, roleName)
	if err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*RoleClaim)(nil)).
			Where("?TableAlias.role_id = ?", role.ID).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove claims from role")
		}

		for _, claim := range claims {
			if err := insertRoleClaim(ctx, tx, role.ID, claim); err != nil {
				return err
			}
		}

		return nil
	})
}

// SetForUser replaces the subject's entire direct claim set
func (s *ClaimService) SetForUser(ctx context.Context, userID uuid.UUID, claims []Claim) error {
	if _, err := s.repo.Users().GetByID(ctx, userID.String()); err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*UserClaim)(nil)).
			Where("?TableAlias.user_id = ?", userID).
			Exec(ctx); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to remove claims from user")
		}

		for _, claim := range claims {
			if err := insertUserClaim(ctx, tx, userID, claim); err != nil {
				return err
			}
		}

		return nil
	})
}

// RemoveForRole deletes role claims matching the exact (type, value) pair
func (s *ClaimService) RemoveForRole(ctx context.Context, roleName string, claim Claim) error {
	role, err := s.repo.Roles().GetByName(ctx, roleName)
	if err != nil {
		return err
	}

	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*RoleClaim)(nil)).
			Where("?TableAlias.role_id = ?", role.ID).
			Where("?TableAlias.claim_type = ?", claim.Type).
			Where("?TableAlias.claim_value = ?", claim.Value).
			Exec(ctx)
		return err
	})
}

// RemoveForUser deletes direct claims matching the exact (type, value) pair
func (s *ClaimService) RemoveForUser(ctx context.Context, userID uuid.UUID, claim Claim) error {
	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*UserClaim)(nil)).
			Where("?TableAlias.user_id = ?", userID).
			Where("?TableAlias.claim_type = ?", claim.Type).
			Where("?TableAlias.claim_value = ?", claim.Value).
			Exec(ctx)
		return err
	})
}

// RemoveAllForUser deletes every direct claim of a subject
func (s *ClaimService) RemoveAllForUser(ctx context.Context, userID uuid.UUID) error {
	return s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewDelete().
			Model((*UserClaim)(nil)).
			Where("?TableAlias.user_id = ?", userID).
			Exec(ctx)
		return err
	})
}

func insertRoleClaim(ctx context.Context, tx bun.IDB, roleID uuid.UUID, claim Claim) error {
	// explicit timestamp: enumeration order must survive same-second inserts
	now := time.Now()
	record := &RoleClaim{
		ID:        uuid.New(),
		RoleID:    roleID,
		Type:      claim.Type,
		Value:     claim.Value,
		CreatedAt: &now,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to add claim to role")
	}

	return nil
}

func insertUserClaim(ctx context.Context, tx bun.IDB, userID uuid.UUID, claim Claim) error {
	now := time.Now()
	record := &UserClaim{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      claim.Type,
		Value:     claim.Value,
		CreatedAt: &now,
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to add claim to user")
	}

	return nil
}
