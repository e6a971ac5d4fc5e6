package firmauth

import (
	"context"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
)

// AccountTracker is the store slice the provider needs to resolve and
// bookkeep accounts during credential verification.
type AccountTracker interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Account, error)
	TrackAttemptedLogin(ctx context.Context, account *Account) error
}

// MaxLoginAttempts is the number of failed attempts allowed inside the
// cool down period before credential checks are refused outright.
var MaxLoginAttempts = 5

// CoolDownPeriod is the window over which failed attempts accumulate.
var CoolDownPeriod = "24h"

// Provider resolves accounts against the credential store. All failure
// modes surface as ErrInvalidCredentials so callers cannot distinguish
// unknown emails from inactive accounts or wrong passwords.
type Provider struct {
	store  AccountTracker
	logger Logger
}

var _ AccountProvider = (*Provider)(nil)

// NewAccountProvider creates a provider over the given store.
func NewAccountProvider(store AccountTracker) *Provider {
	return &Provider{
		store:  store,
		logger: defLogger{},
	}
}

func (p *Provider) WithLogger(l Logger) *Provider {
	if l != nil {
		p.logger = l
	}
	return p
}

// VerifyIdentity finds the account, checks its status, and compares the
// password hash.
func (p *Provider) VerifyIdentity(ctx context.Context, email, password string) (Identity, error) {
	account, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account during verification")
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	if account.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*account.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			account.LoginAttempts = 0
		}
	}

	if account.LoginAttempts > MaxLoginAttempts {
		return nil, invalidCredentialsWith(map[string]any{
			"reason": "too_many_attempts",
		})
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		if err2 := p.store.TrackAttemptedLogin(ctx, account); err2 != nil {
			p.logger.Error("failed to track login attempt: %v", err2)
		}
		return nil, ErrInvalidCredentials
	}

	return NewIdentityFromAccount(account), nil
}

// FindIdentityByEmail resolves an account without a password check,
// used by OTP verification and external (Google) sign-in.
func (p *Provider) FindIdentityByEmail(ctx context.Context, email string) (Identity, error) {
	account, err := p.store.GetByEmail(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account")
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	return NewIdentityFromAccount(account), nil
}

// FindIdentityByID resolves an account by its primary id, used when
// rehydrating an identity from validated token claims.
func (p *Provider) FindIdentityByID(ctx context.Context, id string) (Identity, error) {
	account, err := p.store.GetByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve account")
	}

	if err := ensureAuthenticatableAccount(account); err != nil {
		return nil, err
	}

	return NewIdentityFromAccount(account), nil
}

func ensureAuthenticatableAccount(account *Account) error {
	if account == nil {
		return ErrInvalidCredentials
	}

	account.EnsureStatus()
	if err := statusAuthError(account.Status); err != nil {
		return err
	}

	if !account.Role.IsValid() {
		return errors.New("account has an unknown or invalid role", errors.CategoryAuth).
			WithTextCode("INVALID_ROLE").
			WithMetadata(map[string]any{"role": account.Role, "account_id": account.ID.String()})
	}

	return nil
}
