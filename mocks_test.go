package firmauth_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"

	"github.com/firmdesk/firmauth"
)

// MockAccountProvider implements firmauth.AccountProvider
type MockAccountProvider struct {
	mock.Mock
}

func (m *MockAccountProvider) VerifyIdentity(ctx context.Context, email, password string) (firmauth.Identity, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(firmauth.Identity), args.Error(1)
}

func (m *MockAccountProvider) FindIdentityByEmail(ctx context.Context, email string) (firmauth.Identity, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(firmauth.Identity), args.Error(1)
}

func (m *MockAccountProvider) FindIdentityByID(ctx context.Context, id string) (firmauth.Identity, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(firmauth.Identity), args.Error(1)
}

// MockAccountTracker implements firmauth.AccountTracker
type MockAccountTracker struct {
	mock.Mock
}

func (m *MockAccountTracker) GetByEmail(ctx context.Context, email string) (*firmauth.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.Account), args.Error(1)
}

func (m *MockAccountTracker) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*firmauth.Account, error) {
	args := m.Called(ctx, id, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.Account), args.Error(1)
}

func (m *MockAccountTracker) TrackAttemptedLogin(ctx context.Context, account *firmauth.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

// MockConfig implements firmauth.Config
type MockConfig struct {
	mock.Mock
}

func (m *MockConfig) GetSigningKey() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetTokenExpiration() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockConfig) GetIssuer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockConfig) GetAudience() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockConfig) GetOTPTTL() time.Duration {
	args := m.Called()
	return args.Get(0).(time.Duration)
}

func (m *MockConfig) GetEchoOTP() bool {
	args := m.Called()
	return args.Bool(0)
}

// MockDispatcher implements firmauth.OTPDispatcher and captures
// everything it was asked to deliver.
type MockDispatcher struct {
	mu     sync.Mutex
	Codes  []string
	Emails []string
	Err    error
}

func (m *MockDispatcher) DispatchOTP(ctx context.Context, identity firmauth.Identity, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Codes = append(m.Codes, code)
	m.Emails = append(m.Emails, identity.Email())
	return nil
}

func (m *MockDispatcher) LastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Codes) == 0 {
		return ""
	}
	return m.Codes[len(m.Codes)-1]
}

// memoryChallengeStore is an in-memory firmauth.ChallengeStore
type memoryChallengeStore struct {
	mu            sync.Mutex
	codes         map[string]string
	expiries      map[string]time.Time
	authenticated map[string]int
}

func newMemoryChallengeStore() *memoryChallengeStore {
	return &memoryChallengeStore{
		codes:         map[string]string{},
		expiries:      map[string]time.Time{},
		authenticated: map[string]int{},
	}
}

func (s *memoryChallengeStore) IssueOTP(ctx context.Context, accountID, code string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[accountID] = code
	s.expiries[accountID] = expiresAt
	return nil
}

func (s *memoryChallengeStore) PendingOTP(ctx context.Context, accountID string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[accountID], s.expiries[accountID], nil
}

func (s *memoryChallengeStore) ClearOTP(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, accountID)
	delete(s.expiries, accountID)
	return nil
}

func (s *memoryChallengeStore) TrackAuthenticated(ctx context.Context, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authenticated[accountID]++
	delete(s.codes, accountID)
	delete(s.expiries, accountID)
	return nil
}

func (s *memoryChallengeStore) authenticatedCount(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authenticated[accountID]
}

// collectingSink records every activity event it sees.
type collectingSink struct {
	mu     sync.Mutex
	events []firmauth.ActivityEvent
}

func (s *collectingSink) Record(ctx context.Context, event firmauth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *collectingSink) eventTypes() []firmauth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	types := make([]firmauth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		types = append(types, e.EventType)
	}
	return types
}

// MockAuthenticator implements firmauth.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (*firmauth.LoginResult, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.LoginResult), args.Error(1)
}

func (m *MockAuthenticator) VerifyOTP(ctx context.Context, email, code string) (*firmauth.LoginResult, error) {
	args := m.Called(ctx, email, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.LoginResult), args.Error(1)
}

func (m *MockAuthenticator) ResendOTP(ctx context.Context, email string) (*firmauth.LoginResult, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.LoginResult), args.Error(1)
}

func (m *MockAuthenticator) LoginExternal(ctx context.Context, email string) (*firmauth.LoginResult, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.LoginResult), args.Error(1)
}

func (m *MockAuthenticator) IdentityFromToken(ctx context.Context, token string) (firmauth.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(firmauth.Identity), args.Error(1)
}

// MockRepositoryManager implements firmauth.RepositoryManager
type MockRepositoryManager struct {
	mock.Mock
}

func (m *MockRepositoryManager) Validate() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockRepositoryManager) MustValidate() {
	m.Called()
}

func (m *MockRepositoryManager) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	args := m.Called(ctx, opts, f)
	return args.Error(0)
}

func (m *MockRepositoryManager) Firms() firmauth.Firms {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(firmauth.Firms)
}

func (m *MockRepositoryManager) Accounts() firmauth.Accounts {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(firmauth.Accounts)
}

func (m *MockRepositoryManager) PasswordResets() repository.Repository[*firmauth.PasswordReset] {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(repository.Repository[*firmauth.PasswordReset])
}

// MockAccounts stubs the handful of firmauth.Accounts methods the
// command handlers touch. Calls to anything else panic through the
// embedded interface.
type MockAccounts struct {
	mock.Mock
	firmauth.Accounts
}

func (m *MockAccounts) GetByEmail(ctx context.Context, email string) (*firmauth.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.Account), args.Error(1)
}

func (m *MockAccounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*firmauth.Account, error) {
	args := m.Called(ctx, tx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.Account), args.Error(1)
}

func (m *MockAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *firmauth.Account, criteria ...repository.InsertCriteria) (*firmauth.Account, error) {
	args := m.Called(ctx, tx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.Account), args.Error(1)
}

func (m *MockAccounts) RawTx(ctx context.Context, tx bun.IDB, sql string, args ...any) ([]*firmauth.Account, error) {
	ret := m.Called(ctx, tx, sql, args)
	if ret.Get(0) == nil {
		return nil, ret.Error(1)
	}
	return ret.Get(0).([]*firmauth.Account), ret.Error(1)
}

// MockPasswordResets stubs the password reset repository methods used
// by the command handlers.
type MockPasswordResets struct {
	mock.Mock
	repository.Repository[*firmauth.PasswordReset]
}

func (m *MockPasswordResets) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*firmauth.PasswordReset, error) {
	args := m.Called(ctx, id, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.PasswordReset), args.Error(1)
}

func (m *MockPasswordResets) CreateTx(ctx context.Context, tx bun.IDB, record *firmauth.PasswordReset, criteria ...repository.InsertCriteria) (*firmauth.PasswordReset, error) {
	args := m.Called(ctx, tx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.PasswordReset), args.Error(1)
}

func (m *MockPasswordResets) UpdateTx(ctx context.Context, tx bun.IDB, record *firmauth.PasswordReset, criteria ...repository.UpdateCriteria) (*firmauth.PasswordReset, error) {
	args := m.Called(ctx, tx, record, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.PasswordReset), args.Error(1)
}

// MockFirms stubs the firm lookup used during account registration.
type MockFirms struct {
	mock.Mock
	firmauth.Firms
}

func (m *MockFirms) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*firmauth.Firm, error) {
	args := m.Called(ctx, id, criteria)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.Firm), args.Error(1)
}

func newRecordNotFoundErr() error {
	return repository.NewRecordNotFound()
}

// MockActivitySink implements firmauth.ActivitySink
type MockActivitySink struct {
	mock.Mock
}

func (m *MockActivitySink) Record(ctx context.Context, event firmauth.ActivityEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockStatusStore implements firmauth.AccountStatusStore
type MockStatusStore struct {
	mock.Mock
}

func (m *MockStatusStore) UpdateStatus(ctx context.Context, id uuid.UUID, status firmauth.AccountStatus, opts ...firmauth.StatusUpdateOption) (*firmauth.Account, error) {
	args := m.Called(ctx, id, status, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*firmauth.Account), args.Error(1)
}
