package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Logger is the minimal logging surface components depend on
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity is the read-only projection of a subject a flow holds while it runs
type Identity interface {
	ID() string
	Username() string
	Email() string
	Phone() string
}

// Config holds token issuance options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
}

// SubjectResolver resolves a login identifier to exactly one subject and
// verifies passwords against it
type SubjectResolver interface {
	// ResolveSubject tries username, then phone, then email. Fixed precedence,
	// not a merge: the first channel that matches wins.
	ResolveSubject(ctx context.Context, identifier string) (*User, error)
	// VerifyPassword reports whether the password matches. Internal faults
	// collapse to false; the caller cannot tell them apart from a mismatch.
	VerifyPassword(ctx context.Context, user *User, password string) bool
}

// CodeIssuer generates and validates single-use codes bound to (subject, purpose)
type CodeIssuer interface {
	Issue(ctx context.Context, userID uuid.UUID, purpose Purpose) (string, error)
	// Validate consumes the code on success. A second call with the same code
	// returns false. Lookup failures collapse to false.
	Validate(ctx context.Context, userID uuid.UUID, purpose Purpose, code string) bool
}

// ClaimAggregator collects the authorization attributes for a subject
type ClaimAggregator interface {
	// Aggregate returns role claims in role-enumeration order followed by the
	// subject's direct claims. No deduplication across sources.
	Aggregate(ctx context.Context, userID uuid.UUID) ([]Claim, error)
}

// TokenService issues and validates signed bearer tokens
type TokenService interface {
	Generate(subjectID string, roles []string, attributes []Claim) (string, error)
	Validate(token string) (*JWTClaims, error)
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENTITY "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENTITY "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENTITY "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENTITY "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
