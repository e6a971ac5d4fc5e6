package firmauth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Firm is the tenant boundary. Every other record hangs off a firm and
// firms are never hard-deleted in the normal flow.
type Firm struct {
	bun.BaseModel `bun:"table:firms,alias:frm"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Address       string     `bun:"address" json:"address,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AccountStatus tracks the lifecycle of an account. Anything other than
// active fails authentication with the same error as a bad password.
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusDisabled  AccountStatus = "disabled"
	AccountStatusArchived  AccountStatus = "archived"
)

// Account is any authenticable identity: firm staff, client partners,
// and client-linked end customers. Email is globally unique: login
// takes an email alone, so the email must resolve a single account and
// with it the firm.
type Account struct {
	bun.BaseModel      `bun:"table:accounts,alias:acc"`
	ID                 uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	FirmID             uuid.UUID      `bun:"firm_id,notnull,type:uuid" json:"firm_id,omitempty"`
	Firm               *Firm          `bun:"rel:belongs-to,join:firm_id=id" json:"firm,omitempty"`
	ClientID           *uuid.UUID     `bun:"client_id,nullzero,type:uuid" json:"client_id,omitempty"`
	Role               Role           `bun:"account_role,notnull" json:"account_role,omitempty"`
	FirstName          string         `bun:"first_name" json:"first_name,omitempty"`
	LastName           string         `bun:"last_name" json:"last_name,omitempty"`
	Email              string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone              string         `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash       string         `bun:"password_hash" json:"-"`
	Status             AccountStatus  `bun:"status,notnull,default:'active'" json:"status,omitempty"`
	TwoFactorEnabled   bool           `bun:"two_factor_enabled" json:"two_factor_enabled,omitempty"`
	MustChangePassword bool           `bun:"must_change_password" json:"must_change_password,omitempty"`
	OTPCode            string         `bun:"otp_code,nullzero" json:"-"`
	OTPExpiresAt       *time.Time     `bun:"otp_expires_at,nullzero" json:"-"`
	LoginAttempts      int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt     *time.Time     `bun:"login_attempt_at,nullzero" json:"login_attempt_at,omitempty"`
	LastLoginAt        *time.Time     `bun:"last_login_at,nullzero" json:"last_login_at,omitempty"`
	SuspendedAt        *time.Time     `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	Metadata           map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt          *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt          *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus normalizes the zero value so legacy rows behave as active.
func (a *Account) EnsureStatus() {
	if a.Status == "" {
		a.Status = AccountStatusActive
	}
}

// IsActive reports whether the account may authenticate.
func (a *Account) IsActive() bool {
	a.EnsureStatus()
	return a.Status == AccountStatusActive
}

// HasPendingOTP reports whether an OTP challenge is stored, expired or not.
func (a *Account) HasPendingOTP() bool {
	return a.OTPCode != "" && a.OTPExpiresAt != nil
}

// ClientUUID returns the linked client id or uuid.Nil.
func (a *Account) ClientUUID() uuid.UUID {
	if a.ClientID == nil {
		return uuid.Nil
	}
	return *a.ClientID
}

// AddMetadata appends information to the metadata attribute.
func (a *Account) AddMetadata(key string, val any) *Account {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = val
	return a
}

// PasswordResetStep is the stage of a reset flow as seen by clients.
type PasswordResetStep = string

const (
	ResetUnknown        PasswordResetStep = "unknown"
	ResetInit           PasswordResetStep = "show-reset"
	AccountVerification PasswordResetStep = "email-sent"
	ChangingPassword    PasswordResetStep = "change-password"
	ChangeFinalized     PasswordResetStep = "password-changed"
)

const (
	ResetRequestedStatus = "requested"
	ResetExpiredStatus   = "expired"
	ResetChangedStatus   = "changed"
)

// PasswordReset is a single reset session. The row id doubles as the
// session token mailed to the account holder.
type PasswordReset struct {
	bun.BaseModel `bun:"table:password_resets,alias:pwdr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AccountID     *uuid.UUID `bun:"account_id,notnull,type:uuid" json:"account_id,omitempty"`
	Account       *Account   `bun:"rel:has-one,join:account_id=id" json:"account,omitempty"`
	Status        string     `bun:"status,notnull" json:"status,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	ResetedAt     *time.Time `bun:"reseted_at,nullzero" json:"reseted_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// MarkPasswordAsReseted builds the update record that closes a reset session.
func MarkPasswordAsReseted(id uuid.UUID) *PasswordReset {
	r := &PasswordReset{}
	r.ID = id
	r.Status = ResetChangedStatus
	n := time.Now()
	r.ResetedAt = &n
	return r
}
