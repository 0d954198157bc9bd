package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the claim set embedded in issued tokens: the subject id, one
// entry per role name, and the aggregated attributes appended verbatim, in
// aggregation order.
type JWTClaims struct {
	jwt.RegisteredClaims
	UID        string   `json:"uid,omitempty"`
	Roles      []string `json:"roles,omitempty"`
	Attributes []Claim  `json:"attrs,omitempty"`
}

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// HasRole checks if the token asserts a specific role
func (c *JWTClaims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAttribute checks for an exact (type, value) attribute
func (c *JWTClaims) HasAttribute(claimType, value string) bool {
	for _, a := range c.Attributes {
		if a.Type == claimType && a.Value == value {
			return true
		}
	}
	return false
}

// AttributeValues returns every value asserted for an attribute type, in
// claim order. Duplicate pairs are preserved.
func (c *JWTClaims) AttributeValues(claimType string) []string {
	var values []string
	for _, a := range c.Attributes {
		if a.Type == claimType {
			values = append(values, a.Value)
		}
	}
	return values
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
