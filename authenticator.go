package firmauth

import (
	"context"
	"reflect"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultResendInterval is the minimum wait between OTP resends for a
// given account.
var DefaultResendInterval = 60 * time.Second

// Auther drives the login state machine: credential check, optional OTP
// challenge, and session token issuance.
type Auther struct {
	provider       AccountProvider
	challenges     ChallengeStore
	dispatcher     OTPDispatcher
	signingKey     []byte
	otpTTL         time.Duration
	echoOTP        bool
	resendInterval time.Duration
	logger         Logger
	tokenService   TokenService
	tokenValidator TokenValidator
	activitySink   ActivitySink
	metrics        MetricsCollector
	now            func() time.Time

	mu             sync.Mutex
	resendLimiters map[string]*rate.Limiter
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider AccountProvider, challenges ChallengeStore, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	otpTTL := opts.GetOTPTTL()
	if otpTTL <= 0 {
		otpTTL = DefaultOTPTTL
	}

	return &Auther{
		provider:       provider,
		challenges:     challenges,
		dispatcher:     noopOTPDispatcher{},
		signingKey:     []byte(opts.GetSigningKey()),
		otpTTL:         otpTTL,
		echoOTP:        opts.GetEchoOTP(),
		resendInterval: DefaultResendInterval,
		logger:         defLogger{},
		tokenService:   tokenService,
		activitySink:   noopActivitySink{},
		metrics:        noopMetrics{},
		now:            time.Now,
		resendLimiters: map[string]*rate.Limiter{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithOTPDispatcher configures the channel that delivers codes to users.
func (s *Auther) WithOTPDispatcher(dispatcher OTPDispatcher) *Auther {
	s.dispatcher = normalizeOTPDispatcher(dispatcher)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithMetrics configures the metrics collector.
func (s *Auther) WithMetrics(metrics MetricsCollector) *Auther {
	s.metrics = normalizeMetrics(metrics)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// WithResendInterval overrides the OTP resend throttle window.
func (s *Auther) WithResendInterval(interval time.Duration) *Auther {
	if interval > 0 {
		s.resendInterval = interval
	}
	return s
}

// WithClock injects a custom clock (useful for tests).
func (s *Auther) WithClock(clock func() time.Time) *Auther {
	if clock != nil {
		s.now = clock
	}
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials. Accounts with two factor enabled get an
// OTP challenge instead of a token; everyone else gets a session token
// right away.
func (s *Auther) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	identity, err := s.provider.VerifyIdentity(ctx, email, password)
	if err != nil {
		s.logger.Error("Login verify identity error: %v", err)
		s.metrics.RecordLoginFailure("credentials")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.logger.Error("Login identity is nil or zero value")
		s.metrics.RecordLoginFailure("identity")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", "", map[string]any{
			"email": email,
			"error": ErrIdentityNotFound.Error(),
		})
		return nil, ErrIdentityNotFound
	}

	if identity.TwoFactorEnabled() {
		return s.beginChallenge(ctx, identity)
	}

	return s.finalizeLogin(ctx, identity, ActivityEventLoginSuccess)
}

// VerifyOTP completes a pending challenge. Codes are single use: both
// success and expiry clear the stored challenge.
func (s *Auther) VerifyOTP(ctx context.Context, email, code string) (*LoginResult, error) {
	identity, err := s.findChallengeIdentity(ctx, email)
	if err != nil {
		s.metrics.RecordOTPFailure("identity")
		s.emitAuthEvent(ctx, ActivityEventOTPFailure, ActorRef{Type: "unknown"}, "", "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, err
	}

	stored, expiresAt, err := s.challenges.PendingOTP(ctx, identity.ID())
	if err != nil {
		s.logger.Error("VerifyOTP challenge lookup error: %v", err)
		return nil, err
	}

	if stored == "" {
		s.metrics.RecordOTPFailure("mismatch")
		s.emitOTPFailure(ctx, identity, "no pending challenge")
		return nil, ErrOTPMismatch
	}

	if OTPExpired(&expiresAt, s.now()) {
		if err := s.challenges.ClearOTP(ctx, identity.ID()); err != nil {
			s.logger.Warn("VerifyOTP failed to clear expired challenge: %v", err)
		}
		s.metrics.RecordOTPFailure("expired")
		s.emitOTPFailure(ctx, identity, "challenge expired")
		return nil, ErrOTPExpired
	}

	if !OTPEqual(stored, code) {
		s.metrics.RecordOTPFailure("mismatch")
		s.emitOTPFailure(ctx, identity, "code mismatch")
		return nil, ErrOTPMismatch
	}

	if err := s.challenges.ClearOTP(ctx, identity.ID()); err != nil {
		s.logger.Error("VerifyOTP failed to clear challenge: %v", err)
		return nil, err
	}

	s.metrics.RecordOTPVerified()
	return s.finalizeLogin(ctx, identity, ActivityEventOTPVerified)
}

// ResendOTP replaces the pending challenge with a fresh code. Resends
// are throttled per account.
func (s *Auther) ResendOTP(ctx context.Context, email string) (*LoginResult, error) {
	identity, err := s.findChallengeIdentity(ctx, email)
	if err != nil {
		return nil, err
	}

	stored, _, err := s.challenges.PendingOTP(ctx, identity.ID())
	if err != nil {
		s.logger.Error("ResendOTP challenge lookup error: %v", err)
		return nil, err
	}

	if stored == "" {
		return nil, ErrTwoFactorNotPending
	}

	if !s.resendLimiter(identity.ID()).Allow() {
		s.metrics.RecordOTPFailure("throttled")
		return nil, ErrOTPThrottled
	}

	return s.beginChallenge(ctx, identity)
}

// LoginExternal issues a session for an identity already verified by an
// external provider. Two factor is skipped: the external provider owns
// the second factor.
func (s *Auther) LoginExternal(ctx context.Context, email string) (*LoginResult, error) {
	identity, err := s.provider.FindIdentityByEmail(ctx, email)
	if err != nil {
		s.logger.Error("LoginExternal find identity error: %v", err)
		s.metrics.RecordLoginFailure("external")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", "", map[string]any{
			"email": email,
			"error": err.Error(),
		})
		return nil, err
	}

	return s.finalizeLogin(ctx, identity, ActivityEventExternalLogin)
}

// IdentityFromToken validates a raw session token and rehydrates the
// identity from the credential store.
func (s *Auther) IdentityFromToken(ctx context.Context, raw string) (Identity, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("IdentityFromToken validation failed: %v", err)
		return nil, err
	}

	identity, err := s.provider.FindIdentityByID(ctx, claims.AccountID())
	if err != nil {
		s.logger.Error("IdentityFromToken find identity error: %v", err)
		return nil, err
	}

	return identity, nil
}

func (s *Auther) beginChallenge(ctx context.Context, identity Identity) (*LoginResult, error) {
	code, err := GenerateOTP()
	if err != nil {
		s.logger.Error("failed to generate challenge code: %v", err)
		return nil, err
	}

	expiresAt := s.now().Add(s.otpTTL)

	if err := s.challenges.IssueOTP(ctx, identity.ID(), code, expiresAt); err != nil {
		s.logger.Error("failed to store challenge: %v", err)
		return nil, err
	}

	if err := s.dispatcher.DispatchOTP(ctx, identity, code, expiresAt); err != nil {
		s.logger.Error("failed to dispatch challenge code: %v", err)
		return nil, err
	}

	s.metrics.RecordOTPIssued()
	s.emitAuthEvent(ctx, ActivityEventOTPIssued, s.actorFromIdentity(identity), identity.ID(), identity.FirmID(), map[string]any{
		"expires_at": expiresAt,
	})

	result := &LoginResult{
		State:    StateTwoFactorRequired,
		Identity: identity,
	}

	if s.echoOTP {
		result.OTP = code
	}

	return result, nil
}

func (s *Auther) finalizeLogin(ctx context.Context, identity Identity, eventType ActivityEventType) (*LoginResult, error) {
	token, err := s.tokenService.Generate(identity)
	if err != nil {
		s.logger.Error("failed to sign session token: %v", err)
		s.metrics.RecordLoginFailure("token")
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID(), identity.FirmID(), map[string]any{
			"error": err.Error(),
		})
		return nil, err
	}

	if err := s.challenges.TrackAuthenticated(ctx, identity.ID()); err != nil {
		s.logger.Warn("failed to track authentication: %v", err)
	}

	s.metrics.RecordLoginSuccess()
	s.emitAuthEvent(ctx, eventType, s.actorFromIdentity(identity), identity.ID(), identity.FirmID(), nil)

	return &LoginResult{
		State:       StateAuthenticated,
		Token:       token,
		Identity:    identity,
		RedirectURL: identity.Role().RoutePrefix(),
	}, nil
}

// findChallengeIdentity resolves an account during the OTP phase. All
// lookup failures collapse into ErrOTPMismatch so the endpoint cannot
// be used to probe for registered emails.
func (s *Auther) findChallengeIdentity(ctx context.Context, email string) (Identity, error) {
	identity, err := s.provider.FindIdentityByEmail(ctx, email)
	if err != nil {
		s.logger.Warn("challenge identity lookup failed: %v", err)
		return nil, ErrOTPMismatch
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		return nil, ErrOTPMismatch
	}

	return identity, nil
}

func (s *Auther) resendLimiter(accountID string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	limiter, ok := s.resendLimiters[accountID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(s.resendInterval), 1)
		s.resendLimiters[accountID] = limiter
	}

	return limiter
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID, firmID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		FirmID:    firmID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = s.now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) emitOTPFailure(ctx context.Context, identity Identity, reason string) {
	s.emitAuthEvent(ctx, ActivityEventOTPFailure, s.actorFromIdentity(identity), identity.ID(), identity.FirmID(), map[string]any{
		"reason": reason,
	})
}

func (s *Auther) actorFromIdentity(identity Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID(),
		Type: "account",
	}
}
