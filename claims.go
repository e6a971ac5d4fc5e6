package firmauth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims is the verified, immutable claim set carried by a session
// token. Role and tenant scope are always resolved from here, never
// from client-supplied request fields.
type AuthClaims interface {
	Subject() string
	AccountID() string
	Role() Role
	FirmID() string
	ClientID() string
	HasRole(role Role) bool
	IsAtLeast(minRole Role) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// SessionClaims is the concrete JWT claim set.
type SessionClaims struct {
	jwt.RegisteredClaims
	UID         string `json:"uid,omitempty"`
	AccountRole Role   `json:"role,omitempty"`
	Firm        string `json:"firm_id,omitempty"`
	Client      string `json:"client_id,omitempty"`
}

var _ AuthClaims = (*SessionClaims)(nil)

// Subject returns the subject claim.
func (c *SessionClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// AccountID returns the account id, falling back to the subject claim.
func (c *SessionClaims) AccountID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the account's role claim.
func (c *SessionClaims) Role() Role {
	return c.AccountRole
}

// FirmID returns the tenant scope claim.
func (c *SessionClaims) FirmID() string {
	return c.Firm
}

// ClientID returns the client scope claim, empty for non-customer roles.
func (c *SessionClaims) ClientID() string {
	return c.Client
}

// HasRole checks for an exact role match.
func (c *SessionClaims) HasRole(role Role) bool {
	return c.AccountRole == role
}

// IsAtLeast checks the role against the hierarchy minimum.
func (c *SessionClaims) IsAtLeast(minRole Role) bool {
	return c.AccountRole.IsAtLeast(minRole)
}

// Expires returns the expiration time.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time.
func (c *SessionClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
