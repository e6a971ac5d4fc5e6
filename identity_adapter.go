package firmauth

// AccountIdentity adapts an Account into the Identity interface for
// token generation.
type AccountIdentity struct {
	account *Account
}

var _ Identity = AccountIdentity{}

// NewIdentityFromAccount returns an Identity adapter for the account.
func NewIdentityFromAccount(account *Account) Identity {
	if account == nil {
		return nil
	}
	return AccountIdentity{account: account}
}

// ID returns the account id as a string.
func (a AccountIdentity) ID() string {
	if a.account == nil {
		return ""
	}
	return a.account.ID.String()
}

// Email returns the account's email address.
func (a AccountIdentity) Email() string {
	if a.account == nil {
		return ""
	}
	return a.account.Email
}

// Role returns the account's role.
func (a AccountIdentity) Role() Role {
	if a.account == nil {
		return ""
	}
	return a.account.Role
}

// FirmID returns the tenant scope of the account.
func (a AccountIdentity) FirmID() string {
	if a.account == nil {
		return ""
	}
	return a.account.FirmID.String()
}

// ClientID returns the linked client id for customer accounts, empty
// otherwise.
func (a AccountIdentity) ClientID() string {
	if a.account == nil || a.account.ClientID == nil {
		return ""
	}
	return a.account.ClientID.String()
}

// TwoFactorEnabled reports whether login must go through an OTP challenge.
func (a AccountIdentity) TwoFactorEnabled() bool {
	if a.account == nil {
		return false
	}
	return a.account.TwoFactorEnabled
}

// Status returns the account lifecycle status.
func (a AccountIdentity) Status() AccountStatus {
	if a.account == nil {
		return ""
	}
	return a.account.Status
}

// Account exposes the underlying record for boundary serialization.
func (a AccountIdentity) Account() *Account {
	return a.account
}
