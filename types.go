package firmauth

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Identity holds the attributes the token issuer needs from an account.
type Identity interface {
	ID() string
	Email() string
	Role() Role
	FirmID() string
	ClientID() string
	TwoFactorEnabled() bool
}

// LoginState is the terminal state of a login attempt.
type LoginState string

const (
	// StateAuthenticated means a session token was issued.
	StateAuthenticated LoginState = "authenticated"
	// StateTwoFactorRequired means credentials checked out but an OTP
	// challenge must be completed before a token is issued.
	StateTwoFactorRequired LoginState = "two_factor_required"
)

// LoginResult is the outcome of Login, VerifyOTP, or an external login.
type LoginResult struct {
	State       LoginState
	Token       string
	Identity    Identity
	RedirectURL string
	// OTP is populated only when the authenticator runs with in-band
	// code echo enabled (non-production convenience).
	OTP string
}

// Authenticated reports whether a session token was issued.
func (r *LoginResult) Authenticated() bool {
	return r != nil && r.State == StateAuthenticated
}

// Authenticator drives the login state machine.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	VerifyOTP(ctx context.Context, email, code string) (*LoginResult, error)
	ResendOTP(ctx context.Context, email string) (*LoginResult, error)
	LoginExternal(ctx context.Context, email string) (*LoginResult, error)
	IdentityFromToken(ctx context.Context, raw string) (Identity, error)
}

// AccountProvider resolves accounts for authentication. Implementations
// must return ErrInvalidCredentials uniformly for unknown, inactive,
// and password-mismatch cases.
type AccountProvider interface {
	VerifyIdentity(ctx context.Context, email, password string) (Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (Identity, error)
	FindIdentityByID(ctx context.Context, id string) (Identity, error)
}

// ChallengeStore persists OTP challenges and login bookkeeping. Issuing
// a challenge replaces any previous one for the account.
type ChallengeStore interface {
	IssueOTP(ctx context.Context, accountID, code string, expiresAt time.Time) error
	PendingOTP(ctx context.Context, accountID string) (code string, expiresAt time.Time, err error)
	ClearOTP(ctx context.Context, accountID string) error
	TrackAuthenticated(ctx context.Context, accountID string) error
}

// TokenService mints and validates session tokens.
type TokenService interface {
	Generate(identity Identity) (string, error)
	SignClaims(claims *SessionClaims) (string, error)
	Validate(tokenString string) (AuthClaims, error)
}

// TokenValidator validates raw tokens into structured claims. Satisfied
// by TokenService; kept separate so guards can accept external issuers.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// OTPDispatcher delivers a one-time code to the account's registered
// channel. Production wires an email sender; development logs it.
type OTPDispatcher interface {
	DispatchOTP(ctx context.Context, identity Identity, code string, expiresAt time.Time) error
}

// Config holds authenticator options.
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetOTPTTL() time.Duration
	GetEchoOTP() bool
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
