package firmauth

import (
	"context"

	"github.com/firmdesk/firmauth/middleware/guard"
)

// ValidationListener aliases the guard listener so consumers can use firmauth helpers directly.
type ValidationListener = guard.ValidationListener

// guardClaims adapts firmauth claims to the string-based interface the
// guard middleware consumes.
type guardClaims struct {
	claims AuthClaims
}

var _ guard.AuthClaims = guardClaims{}

func (g guardClaims) Subject() string   { return g.claims.Subject() }
func (g guardClaims) AccountID() string { return g.claims.AccountID() }
func (g guardClaims) Role() string      { return string(g.claims.Role()) }
func (g guardClaims) FirmID() string    { return g.claims.FirmID() }
func (g guardClaims) ClientID() string  { return g.claims.ClientID() }

func (g guardClaims) HasRole(role string) bool {
	return g.claims.HasRole(Role(role))
}

func (g guardClaims) IsAtLeast(minRole string) bool {
	return g.claims.IsAtLeast(Role(minRole))
}

type guardValidator struct {
	validator TokenValidator
}

func (v guardValidator) Validate(tokenString string) (guard.AuthClaims, error) {
	claims, err := v.validator.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return guardClaims{claims: claims}, nil
}

// GuardTokenValidator wraps a firmauth validator for use in guard.Config.
func GuardTokenValidator(validator TokenValidator) guard.TokenValidator {
	return guardValidator{validator: validator}
}

// ContextEnricherAdapter adapts guard.AuthClaims back to firmauth.AuthClaims and
// stores them in the standard context for downstream authorization helpers.
func ContextEnricherAdapter(c context.Context, claims guard.AuthClaims) context.Context {
	if gc, ok := claims.(guardClaims); ok {
		return WithClaimsContext(c, gc.claims)
	}
	return c
}

// RoleGuard builds a guard config for one role-prefixed route group.
// The allow-list is the single role that owns the prefix; super admins
// are not implicitly allowed on other prefixes.
func RoleGuard(validator TokenValidator, role Role, listeners ...ValidationListener) guard.Config {
	return guard.Config{
		TokenValidator:      GuardTokenValidator(validator),
		AllowedRoles:        []string{string(role)},
		ContextEnricher:     ContextEnricherAdapter,
		ValidationListeners: listeners,
	}
}

// FirmGuard builds a guard config for firm-scoped routes: any of the
// allowed roles, confined to the firm named by the route parameter.
func FirmGuard(validator TokenValidator, tenantParam string, allowed ...Role) guard.Config {
	roles := make([]string, 0, len(allowed))
	for _, r := range allowed {
		roles = append(roles, string(r))
	}

	return guard.Config{
		TokenValidator:  GuardTokenValidator(validator),
		AllowedRoles:    roles,
		TenantParam:     tenantParam,
		ContextEnricher: ContextEnricherAdapter,
	}
}
