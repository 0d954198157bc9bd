package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Purpose scopes a verification code to a single use case. The set is closed
// so a typo cannot silently mint a new unscoped purpose.
type Purpose string

const (
	// PurposePhone confirms ownership of a phone number
	PurposePhone Purpose = "Phone"
	// PurposePhoneChange confirms a phone number change
	PurposePhoneChange Purpose = "PhoneChange"
	// PurposeEmailChange confirms an email change
	PurposeEmailChange Purpose = "EmailChange"
	// PurposePasswordReset gates a password reset
	PurposePasswordReset Purpose = "PasswordReset"
)

// IsValid checks the purpose against the closed set
func (p Purpose) IsValid() bool {
	switch p {
	case PurposePhone, PurposePhoneChange, PurposeEmailChange, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// PlaceholderEmailDomain is appended to the phone number when an account is
// registered by phone only. It is not a deliverable address.
const PlaceholderEmailDomain = "@newRegister.new"

// User is the subject record
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	PhoneValidated bool       `bun:"is_phone_verified" json:"is_phone_verified,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	ResetedAt      *time.Time `bun:"reseted_at,nullzero" json:"reseted_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Role is a named group; claims attached to a role apply to every member
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull,unique" json:"name,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// RoleAssignment is the user to role membership row. Claims aggregation and
// token role lists enumerate roles in assignment-insertion order, so the
// created_at/id pair on this table is load-bearing.
type RoleAssignment struct {
	bun.BaseModel `bun:"table:role_assignments,alias:ras"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	RoleID        uuid.UUID  `bun:"role_id,notnull,type:uuid" json:"role_id,omitempty"`
	Role          *Role      `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Claim is a (type, value) authorization fact. Identity is the pair, not the
// type alone: several claims may share a type.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// RoleClaim attaches a claim to every member of a role
type RoleClaim struct {
	bun.BaseModel `bun:"table:role_claims,alias:rcl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	RoleID        uuid.UUID  `bun:"role_id,notnull,type:uuid" json:"role_id,omitempty"`
	Type          string     `bun:"claim_type,notnull" json:"claim_type,omitempty"`
	Value         string     `bun:"claim_value,notnull" json:"claim_value,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// UserClaim attaches a claim directly to a subject
type UserClaim struct {
	bun.BaseModel `bun:"table:user_claims,alias:ucl"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Type          string     `bun:"claim_type,notnull" json:"claim_type,omitempty"`
	Value         string     `bun:"claim_value,notnull" json:"claim_value,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// VerificationCode is a single-use code bound to (user, purpose). A row is
// consumed on its first successful validation and never validates again.
type VerificationCode struct {
	bun.BaseModel `bun:"table:verification_codes,alias:vco"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Purpose       Purpose    `bun:"purpose,notnull" json:"purpose,omitempty"`
	Code          string     `bun:"code,notnull" json:"code,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumed reports whether the code has already been used
func (v *VerificationCode) Consumed() bool {
	return v.ConsumedAt != nil
}

// ExpiredAt reports whether the code is past its expiry at the given instant
func (v *VerificationCode) ExpiredAt(now time.Time) bool {
	return now.After(v.ExpiresAt)
}
