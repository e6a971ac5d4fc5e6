package firmauth

import (
	"context"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// DefaultPhoneRegion is the region used to parse phone numbers that
// carry no international prefix.
var DefaultPhoneRegion = "US"

type RegisterAccountMessage struct {
	FirmID    string `json:"firm_id"`
	ClientID  string `json:"client_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Role      string `json:"role"`
	// Password is optional: accounts created by an admin get a random
	// temporary password and must change it on first login.
	Password         string `json:"password"`
	TwoFactorEnabled bool   `json:"two_factor_enabled"`
	OnResponse       func(resp *RegisterAccountResponse)
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Validate checks the message before any database work happens.
func (e RegisterAccountMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.FirmID, validation.Required, is.UUIDv4),
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Role, validation.Required),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid account registration payload")
	}

	role := ParseRole(e.Role)
	if !role.IsValid() {
		return goerrors.New("unknown account role", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": e.Role})
	}

	if role.IsClientScoped() && strings.TrimSpace(e.ClientID) == "" {
		return goerrors.New("client scoped accounts require a client id", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"role": e.Role})
	}

	if e.Phone != "" {
		num, err := phonenumbers.Parse(e.Phone, DefaultPhoneRegion)
		if err != nil || !phonenumbers.IsValidNumber(num) {
			return goerrors.New("invalid phone number", goerrors.CategoryValidation).
				WithMetadata(map[string]any{"phone": e.Phone})
		}
	}

	return nil
}

type RegisterAccountResponse struct {
	Account *Account
	// TemporaryPassword is set only when the handler generated one.
	TemporaryPassword string
}

type RegisterAccountHandler struct {
	repo   RepositoryManager
	logger Logger
}

// NewRegisterAccountHandler creates a handler with sane defaults.
func NewRegisterAccountHandler(repo RepositoryManager) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) error {
	if err := event.Validate(); err != nil {
		return err
	}

	account := &Account{}
	resp := &RegisterAccountResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		firmID, err := uuid.Parse(event.FirmID)
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid firm id")
		}

		if _, err := h.repo.Firms().GetByID(ctx, firmID.String()); err != nil {
			if goerrors.IsNotFound(err) {
				return goerrors.New("firm does not exist", goerrors.CategoryNotFound).
					WithCode(goerrors.CodeNotFound).
					WithMetadata(map[string]any{"firm_id": event.FirmID})
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify firm")
		}

		if _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return goerrors.New("an account with this email already exists", goerrors.CategoryConflict).
				WithCode(goerrors.CodeConflict).
				WithTextCode("DUPLICATE_EMAIL").
				WithMetadata(map[string]any{"email": event.Email})
		} else if !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for an existing account")
		}

		password := event.Password
		if password == "" {
			password = uuid.NewString()
			resp.TemporaryPassword = password
			account.MustChangePassword = true
		}

		hash, err := HashPassword(password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account.PasswordHash = hash
		account.FirmID = firmID
		account.Email = event.Email
		account.Phone = event.Phone
		account.FirstName = event.FirstName
		account.LastName = event.LastName
		account.Role = ParseRole(event.Role)
		account.TwoFactorEnabled = event.TwoFactorEnabled
		account.Status = AccountStatusActive

		if event.ClientID != "" {
			clientID, err := uuid.Parse(event.ClientID)
			if err != nil {
				return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid client id")
			}
			account.ClientID = &clientID
		}

		if account, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		resp.Account = account
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}

		return goerrors.Wrap(err, goerrors.CategoryInternal, "account registration transaction failed")
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
