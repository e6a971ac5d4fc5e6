// Package guard is the HTTP authorization middleware: it validates the
// session token, then enforces role allow-lists and tenant scope from
// the validated claims. Request bodies and query values never influence
// the outcome; the token is the only input that matters.
package guard

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
)

var (
	defaultTokenLookup       = "header:" + fiber.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// SuperAdminRole is the platform operator role. It outranks every other
// role but its tokens are still firm-scoped: tenant checks apply to it
// like anyone else.
const SuperAdminRole = "SUPER_ADMIN"

// TokenValidator interface for validating tokens without import cycles
// This mirrors the TokenService.Validate method from the firmauth package
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// AuthClaims interface for structured claims without import cycles
// This mirrors the AuthClaims interface from the firmauth package
type AuthClaims interface {
	Subject() string
	AccountID() string
	Role() string
	FirmID() string
	ClientID() string
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
}

// ValidationListener is invoked after a token has been validated but before authorization checks.
type ValidationListener func(c *fiber.Ctx, claims AuthClaims) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   func(*fiber.Ctx, error) error
	ContextKey     string
	TokenLookup    string
	AuthScheme     string
	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// AllowedRoles is the allow-list for this route group. Empty means
	// any valid token passes.
	AllowedRoles []string
	// MinimumRole specifies the minimum role level required (uses role hierarchy)
	MinimumRole string
	// RoleChecker is an optional function to validate roles against custom logic
	RoleChecker func(AuthClaims, string) bool

	// TenantParam names the route parameter carrying a firm id. When
	// set, non super admin tokens must match it.
	TenantParam string
	// ClientParam names the route parameter carrying a client id. When
	// set, client-scoped tokens must match it.
	ClientParam string

	// ContextEnricher is an optional function to propagate claims to the standard
	// Go context. If provided, it will be called after successful token validation.
	ContextEnricher func(c context.Context, claims AuthClaims) context.Context

	// ValidationListeners are invoked after token validation succeeds. Use them to
	// emit events, consult a revocation list, or perform bookkeeping before the
	// request proceeds.
	ValidationListeners []ValidationListener

	// OnDenied is called with a short reason whenever the guard rejects
	// a request after successful token validation.
	OnDenied func(reason string)
}

// ErrUnauthenticated is the generic missing/invalid token failure.
var ErrUnauthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode("UNAUTHENTICATED").
	WithCode(goerrors.CodeUnauthorized)

// ErrForbidden is the generic role or tenant scope failure.
var ErrForbidden = goerrors.New("insufficient permissions", goerrors.CategoryAuthz).
	WithTextCode("FORBIDDEN").
	WithCode(goerrors.CodeForbidden)

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, cfg.getExtractors())
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		claims, err := cfg.TokenValidator.Validate(raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if err := cfg.runValidationListeners(c, claims); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if err := performAuthorizationChecks(c, claims, cfg); err != nil {
			return cfg.ErrorHandler(c, err)
		}

		c.Locals(cfg.ContextKey, claims)

		if cfg.ContextEnricher != nil {
			c.SetUserContext(cfg.ContextEnricher(c.UserContext(), claims))
		}

		return cfg.SuccessHandler(c)
	}
}

// performAuthorizationChecks enforces the role allow-list and tenant
// scope using only the validated claims.
func performAuthorizationChecks(c *fiber.Ctx, claims AuthClaims, cfg Config) error {
	if len(cfg.AllowedRoles) > 0 {
		allowed := false
		for _, role := range cfg.AllowedRoles {
			if claims.HasRole(role) {
				allowed = true
				break
			}
		}
		if !allowed {
			cfg.denied("role")
			return forbiddenWith(map[string]any{
				"role": claims.Role(),
			})
		}
	}

	if cfg.MinimumRole != "" && !claims.IsAtLeast(cfg.MinimumRole) {
		cfg.denied("minimum_role")
		return forbiddenWith(map[string]any{
			"role": claims.Role(),
		})
	}

	if cfg.RoleChecker != nil {
		roleToCheck := cfg.MinimumRole
		if roleToCheck == "" && len(cfg.AllowedRoles) > 0 {
			roleToCheck = cfg.AllowedRoles[0]
		}
		if !cfg.RoleChecker(claims, roleToCheck) {
			cfg.denied("role_checker")
			return ErrForbidden
		}
	}

	// Tenant scope has no role exemption: a token minted for one firm
	// is rejected on every other firm's routes, super admins included.
	if cfg.TenantParam != "" {
		firmID := c.Params(cfg.TenantParam)
		if firmID == "" || firmID != claims.FirmID() {
			cfg.denied("tenant")
			return forbiddenWith(map[string]any{
				"firm_id": firmID,
			})
		}
	}

	if cfg.ClientParam != "" && claims.ClientID() != "" {
		clientID := c.Params(cfg.ClientParam)
		if clientID == "" || clientID != claims.ClientID() {
			cfg.denied("client")
			return forbiddenWith(map[string]any{
				"client_id": clientID,
			})
		}
	}

	return nil
}

// forbiddenWith attaches request metadata to a copy of ErrForbidden.
// The sentinel itself is shared across requests and must never be
// mutated.
func forbiddenWith(meta map[string]any) error {
	clone := ErrForbidden.Clone()
	if clone == nil {
		return ErrForbidden
	}
	clone.Source = ErrForbidden
	return clone.WithMetadata(meta)
}

func (cfg Config) denied(reason string) {
	if cfg.OnDenied != nil {
		cfg.OnDenied(reason)
	}
}

func ExtractRawToken(c *fiber.Ctx, extractors []TokenExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(c)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}

	if cfg.TokenValidator == nil {
		panic("GUARD: middleware configuration: TokenValidator is required.")
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "claims"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// DefaultErrorHandler turns guard failures into uniform JSON responses.
func DefaultErrorHandler(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrJWTMissingOrMalformed) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": fiber.Map{
				"message":   ErrUnauthenticated.Message,
				"text_code": ErrUnauthenticated.TextCode,
			},
		})
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return c.Status(richErr.Code).JSON(fiber.Map{
			"error": fiber.Map{
				"message":   richErr.Message,
				"text_code": richErr.TextCode,
			},
		})
	}

	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"error": fiber.Map{
			"message": "Invalid or expired token",
		},
	})
}

// Claims pulls the validated claims out of fiber locals.
func Claims(c *fiber.Ctx, key string) (AuthClaims, bool) {
	if key == "" {
		key = "claims"
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

func (cfg *Config) getExtractors() []TokenExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(c *fiber.Ctx, claims AuthClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(c, claims); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []TokenExtractor {
	extractors := make([]TokenExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// header:Authorization,cookie:jwt,query:auth_token,param:token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, tokenFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, tokenFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, tokenFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, tokenFromCookie(parts[1]))
		}
	}

	return extractors
}

type TokenExtractor func(c *fiber.Ctx) (string, error)

// tokenFromHeader returns a function that extracts token from the request header.
func tokenFromHeader(header string, authScheme string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			return "", ErrJWTMissingOrMalformed
		}
		authScheme = strings.TrimSpace(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// tokenFromQuery returns a function that extracts token from the query string.
func tokenFromQuery(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// tokenFromParam returns a function that extracts token from the url param string.
func tokenFromParam(param string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// tokenFromCookie returns a function that extracts token from the named cookie.
func tokenFromCookie(name string) TokenExtractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
