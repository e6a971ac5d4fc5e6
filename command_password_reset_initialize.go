package firmauth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type InitializePasswordResetMessage struct {
	Email      string `json:"email" example:"pepe.rone@example.com" doc:"Account email."`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (p InitializePasswordResetMessage) Type() string { return "account.password_reset" }

// InitializePasswordResetResponse always reports the same stage whether
// or not the email matched an account, so the endpoint cannot be used
// to enumerate registered addresses.
type InitializePasswordResetResponse struct {
	Reset   *PasswordReset
	Stage   string
	Success bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	notifier ResetNotifier
	logger   Logger
}

// ResetNotifier delivers the reset link to the account's email channel.
type ResetNotifier interface {
	NotifyReset(ctx context.Context, email, resetID string) error
}

// ResetNotifierFunc adapts a function to the ResetNotifier interface.
type ResetNotifierFunc func(ctx context.Context, email, resetID string) error

func (f ResetNotifierFunc) NotifyReset(ctx context.Context, email, resetID string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, resetID)
}

// NewInitializePasswordResetHandler builds the handler that opens a
// reset session and notifies the account holder.
func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:   repo,
		logger: defLogger{},
	}
}

// WithResetNotifier sets the channel used to deliver reset links.
func (h *InitializePasswordResetHandler) WithResetNotifier(notifier ResetNotifier) *InitializePasswordResetHandler {
	h.notifier = notifier
	return h
}

// WithLogger replaces the handler's logger.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	account := &Account{}
	reset := &PasswordReset{}
	resp := &InitializePasswordResetResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var err error

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err = h.repo.Accounts().GetByEmail(ctx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				resp.Stage = AccountVerification
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		reset.AccountID = &account.ID
		reset.Email = event.Email
		reset.Status = ResetRequestedStatus
		if createdReset, err := h.repo.PasswordResets().CreateTx(ctx, tx, reset); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create password reset record")
		} else {
			resp.Reset = createdReset
		}

		if h.notifier != nil {
			if err := h.notifier.NotifyReset(ctx, resp.Reset.Email, resp.Reset.ID.String()); err != nil {
				h.logger.Warn("failed to notify password reset: %v", err)
			}
		}

		resp.Stage = AccountVerification
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
