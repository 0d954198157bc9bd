package identity

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultCodeTTL is how long an issued verification code stays valid
var DefaultCodeTTL = 10 * time.Minute

// DefaultCodeLength is the number of decimal digits in a code
var DefaultCodeLength = 6

type codeIssuer struct {
	repo   RepositoryManager
	ttl    time.Duration
	length int
	logger Logger
}

// CodeIssuerOption configures a CodeIssuer
type CodeIssuerOption func(*codeIssuer)

// WithCodeTTL overrides the validity window for issued codes
func WithCodeTTL(ttl time.Duration) CodeIssuerOption {
	return func(c *codeIssuer) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithCodeLength overrides the number of digits in issued codes
func WithCodeLength(length int) CodeIssuerOption {
	return func(c *codeIssuer) {
		if length > 0 {
			c.length = length
		}
	}
}

// WithCodeLogger overrides the issuer's logger
func WithCodeLogger(logger Logger) CodeIssuerOption {
	return func(c *codeIssuer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCodeIssuer creates a CodeIssuer backed by the verification codes store.
// Issuing a new code for a (subject, purpose) pair invalidates any code still
// outstanding for that pair.
func NewCodeIssuer(repo RepositoryManager, opts ...CodeIssuerOption) CodeIssuer {
	issuer := &codeIssuer{
		repo:   repo,
		ttl:    DefaultCodeTTL,
		length: DefaultCodeLength,
		logger: defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(issuer)
		}
	}

	return issuer
}

func (c *codeIssuer) Issue(ctx context.Context, userID uuid.UUID, purpose Purpose) (string, error) {
	if !purpose.IsValid() {
		return "", ErrInvalidPurpose
	}

	if _, err := c.repo.Users().GetByID(ctx, userID.String()); err != nil {
		if goerrors.IsNotFound(err) {
			return "", ErrIdentityNotFound
		}
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to look up subject for code issuance")
	}

	code, err := randomDigits(c.length)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate verification code")
	}

	record := &VerificationCode{
		ID:        uuid.New(),
		UserID:    userID,
		Purpose:   purpose,
		Code:      code,
		ExpiresAt: time.Now().Add(c.ttl),
	}

	err = c.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		// a fresh code supersedes anything still outstanding for the pair
		if _, err := tx.NewDelete().
			Model((*VerificationCode)(nil)).
			Where("?TableAlias.user_id = ?", userID).
			Where("?TableAlias.purpose = ?", purpose).
			Where("?TableAlias.consumed_at IS NULL").
			Exec(ctx); err != nil {
			return err
		}

		_, err := c.repo.VerificationCodes().CreateTx(ctx, tx, record)
		return err
	})

	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store verification code").
			WithTextCode(TextCodeCodeIssueFailed)
	}

	return code, nil
}

// Validate consumes the code on success: the consuming update runs in the same
// transaction as the match, so a second attempt with the same code always
// fails. Every failure mode collapses to false.
func (c *codeIssuer) Validate(ctx context.Context, userID uuid.UUID, purpose Purpose, code string) bool {
	if !purpose.IsValid() || code == "" {
		return false
	}

	valid := false

	err := c.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &VerificationCode{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.user_id = ?", userID).
			Where("?TableAlias.purpose = ?", purpose).
			Where("?TableAlias.code = ?", code).
			Where("?TableAlias.consumed_at IS NULL").
			Limit(1).
			Scan(ctx)
		if err != nil {
			// no match, or already consumed; both read as invalid
			return nil
		}

		now := time.Now()
		if record.ExpiredAt(now) {
			return nil
		}

		res, err := tx.NewUpdate().
			Model((*VerificationCode)(nil)).
			Set("consumed_at = ?", now).
			Where("?TableAlias.id = ?", record.ID).
			Where("?TableAlias.consumed_at IS NULL").
			Exec(ctx)
		if err != nil {
			return err
		}

		if affected, err := res.RowsAffected(); err == nil && affected == 1 {
			valid = true
		}

		return nil
	})

	if err != nil {
		c.logger.Error("code validation transaction failed", "error", err)
		return false
	}

	return valid
}

func randomDigits(length int) (string, error) {
	digits := make([]byte, length)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", err
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits), nil
}
