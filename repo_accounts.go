package firmauth

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var ResetAccountPasswordSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"must_change_password" = FALSE
WHERE
	"acc"."deleted_at" IS NULL
AND (
	"acc"."id" = ?
) RETURNING *;`

// Accounts is the persistence surface for account records. It doubles
// as the challenge store: OTP codes live on the account row so that
// issuing a new code atomically replaces the previous one.
type Accounts interface {
	repository.Repository[*Account]

	// GetByEmail resolves the single account holding the email. Emails
	// are globally unique, which is what keeps email-only login
	// deterministic.
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	TrackAttemptedLogin(ctx context.Context, account *Account) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error
	TrackAuthenticated(ctx context.Context, accountID string) error
	TrackAuthenticatedTx(ctx context.Context, tx bun.IDB, accountID string) error

	IssueOTP(ctx context.Context, accountID, code string, expiresAt time.Time) error
	IssueOTPTx(ctx context.Context, tx bun.IDB, accountID, code string, expiresAt time.Time) error
	PendingOTP(ctx context.Context, accountID string) (string, time.Time, error)
	ClearOTP(ctx context.Context, accountID string) error
	ClearOTPTx(ctx context.Context, tx bun.IDB, accountID string) error

	Register(ctx context.Context, account *Account) (*Account, error)
	RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error)
	GetOrCreate(ctx context.Context, record *Account) (*Account, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error)
	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	Upsert(ctx context.Context, record *Account, criteria ...repository.UpdateCriteria) (*Account, error)
	UpsertTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.UpdateCriteria) (*Account, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error)
	Suspend(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)
	Reinstate(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)
	Deactivate(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)
	Archive(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error)

	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
}

type accounts struct {
	repository.Repository[*Account]
	db                  *bun.DB
	stateMachine        AccountStateMachine
	stateMachineOptions []StateMachineOption
}

var (
	_ Accounts                        = (*accounts)(nil)
	_ repository.Repository[*Account] = (*accounts)(nil)
	_ AccountTracker                  = (*accounts)(nil)
	_ ChallengeStore                  = (*accounts)(nil)
)

type AccountsOption func(*accounts)

func NewAccountsRepository(db *bun.DB, opts ...AccountsOption) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	repoAccounts := &accounts{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoAccounts)
		}
	}

	return repoAccounts
}

func WithAccountsStateMachineOptions(options ...StateMachineOption) AccountsOption {
	return func(a *accounts) {
		if len(options) == 0 {
			return
		}
		a.stateMachineOptions = append(a.stateMachineOptions, options...)
		a.stateMachine = nil
	}
}

func WithAccountsStateMachine(sm AccountStateMachine) AccountsOption {
	return func(a *accounts) {
		a.stateMachine = sm
	}
}

func (a *accounts) Register(ctx context.Context, account *Account) (*Account, error) {
	return a.RegisterTx(ctx, a.db, account)
}

func (a *accounts) RegisterTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	return a.CreateTx(ctx, tx, account)
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("LOWER(?TableAlias.email) = LOWER(?)", strings.TrimSpace(email)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"email": email,
				})
		}
		return nil, err
	}
	return record, nil
}

func (a *accounts) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *accounts) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Account, error) {
	options := resolveAccountIdentifier(identifier)
	if len(options) == 0 {
		options = []identifierOption{
			{
				column: "id",
				value:  strings.TrimSpace(identifier),
			},
		}
	}

	for _, opt := range options {
		record := &Account{}
		q := tx.NewSelect().Model(record)

		for _, c := range criteria {
			q.Apply(c)
		}

		err := q.
			Where(fmt.Sprintf("?TableAlias.%s = ?", opt.column), opt.value).
			Limit(1).
			Scan(ctx)

		if err != nil {
			if repository.IsRecordNotFound(err) {
				continue
			}
			return nil, err
		}

		return record, nil
	}

	return nil, repository.NewRecordNotFound().
		WithMetadata(map[string]any{
			"identifier": identifier,
		})
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *accounts) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	res, err := a.Repository.RawTx(ctx, tx, ResetAccountPasswordSQL, passwordHash, id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}

func (a *accounts) TrackAuthenticated(ctx context.Context, accountID string) error {
	return a.TrackAuthenticatedTx(ctx, a.db, accountID)
}

func (a *accounts) TrackAuthenticatedTx(ctx context.Context, tx bun.IDB, accountID string) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	lastLoginAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"last_login_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0,
			"otp_code" = NULL,
			"otp_expires_at" = NULL
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, lastLoginAt, accountID).Exec(ctx)

	return err
}

func (a *accounts) TrackAttemptedLogin(ctx context.Context, account *Account) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(account.ID.String()),
	}

	record := &Account{}
	record.ID = account.ID
	record.LoginAttempts = account.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *accounts) IssueOTP(ctx context.Context, accountID, code string, expiresAt time.Time) error {
	return a.IssueOTPTx(ctx, a.db, accountID, code, expiresAt)
}

func (a *accounts) IssueOTPTx(ctx context.Context, tx bun.IDB, accountID, code string, expiresAt time.Time) error {
	// A new code always replaces the previous one, making old codes
	// unverifiable the moment a resend happens.
	res, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"otp_code" = ?,
			"otp_expires_at" = ?
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL
		RETURNING "acc"."id";
	`, code, expiresAt, accountID).Exec(ctx)
	if err != nil {
		return err
	}

	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": accountID,
			})
	}

	return nil
}

func (a *accounts) PendingOTP(ctx context.Context, accountID string) (string, time.Time, error) {
	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Column("otp_code", "otp_expires_at").
		Where("?TableAlias.id = ?", accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return "", time.Time{}, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"id": accountID,
				})
		}
		return "", time.Time{}, err
	}

	var expiresAt time.Time
	if record.OTPExpiresAt != nil {
		expiresAt = *record.OTPExpiresAt
	}

	return record.OTPCode, expiresAt, nil
}

func (a *accounts) ClearOTP(ctx context.Context, accountID string) error {
	return a.ClearOTPTx(ctx, a.db, accountID)
}

func (a *accounts) ClearOTPTx(ctx context.Context, tx bun.IDB, accountID string) error {
	_, err := tx.NewRaw(`
		UPDATE "accounts" AS "acc"
		SET
			"otp_code" = NULL,
			"otp_expires_at" = NULL
		WHERE
			("acc".id = ?)
			AND "acc"."deleted_at" IS NULL;
	`, accountID).Exec(ctx)

	return err
}

func (a *accounts) Upsert(ctx context.Context, record *Account, criteria ...repository.UpdateCriteria) (*Account, error) {
	return a.UpsertTx(ctx, a.db, record, criteria...)
}

func (a *accounts) UpsertTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.UpdateCriteria) (*Account, error) {
	identifier := record.Email
	if record.ID != uuid.Nil {
		identifier = record.ID.String()
	}

	account, err := a.Repository.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		record.ID = account.ID
		return a.Repository.UpdateTx(ctx, tx, record, criteria...)
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.RegisterTx(ctx, tx, record)
}

func (a *accounts) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

func (a *accounts) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Account, error) {
	record := &Account{
		ID:     id,
		Status: status,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(record)
		}
	}

	return a.Repository.UpdateTx(ctx, tx, record, repository.UpdateByID(id.String()))
}

func (a *accounts) GetOrCreate(ctx context.Context, record *Account) (*Account, error) {
	return a.GetOrCreateTx(ctx, a.db, record)
}

func (a *accounts) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Account) (*Account, error) {
	identifier := record.Email
	if record.ID != uuid.Nil {
		identifier = record.ID.String()
	}

	account, err := a.Repository.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return account, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, record)
}

func (a *accounts) Suspend(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	return a.lifecycleMachine().Transition(ctx, actor, account, AccountStatusSuspended, opts...)
}

func (a *accounts) Reinstate(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	return a.lifecycleMachine().Transition(ctx, actor, account, AccountStatusActive, opts...)
}

func (a *accounts) Deactivate(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	return a.lifecycleMachine().Transition(ctx, actor, account, AccountStatusDisabled, opts...)
}

func (a *accounts) Archive(ctx context.Context, actor ActorRef, account *Account, opts ...TransitionOption) (*Account, error) {
	return a.lifecycleMachine().Transition(ctx, actor, account, AccountStatusArchived, opts...)
}

// StatusUpdateOption allows callers to mutate the account record before persisting status changes.
type StatusUpdateOption func(*Account)

// WithSuspendedAt sets the SuspendedAt timestamp during a status transition.
func WithSuspendedAt(at *time.Time) StatusUpdateOption {
	return func(a *Account) {
		a.SuspendedAt = at
	}
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RoleCustomer
	}

	record.EnsureStatus()

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

type identifierOption struct {
	column string
	value  string
}

func resolveAccountIdentifier(identifier string) []identifierOption {
	trimmed := strings.TrimSpace(identifier)
	if trimmed == "" {
		return nil
	}

	options := make([]identifierOption, 0, 2)

	if isUUID(trimmed) {
		options = append(options, identifierOption{
			column: "id",
			value:  trimmed,
		})
	}

	if isEmail(trimmed) {
		options = append(options, identifierOption{
			column: "email",
			value:  trimmed,
		})
	}

	return options
}

func isEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}

func (a *accounts) lifecycleMachine() AccountStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewAccountStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}
