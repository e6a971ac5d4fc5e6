// Package google verifies Google ID tokens server side. Tokens are sent
// to the tokeninfo endpoint; the response is checked for audience,
// expiry, and a verified email before the address is trusted.
package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const defaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

// Config holds Google sign-in verification settings.
type Config struct {
	// ClientID is the OAuth client the ID token must be minted for.
	ClientID string

	TokenInfoURL string

	HTTPClient *http.Client
}

// TokenInfo is the subset of the tokeninfo response the verifier uses.
type TokenInfo struct {
	Issuer        string `json:"iss"`
	Audience      string `json:"aud"`
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified string `json:"email_verified"`
	Expiry        string `json:"exp"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`

	Error     string `json:"error"`
	ErrorDesc string `json:"error_description"`
}

// Verifier checks Google ID tokens against the tokeninfo endpoint.
type Verifier struct {
	config     Config
	httpClient *http.Client
	now        func() time.Time
}

// New creates a verifier. ClientID is required: a token minted for a
// different OAuth client is rejected even when Google says it is valid.
func New(cfg Config) *Verifier {
	if cfg.TokenInfoURL == "" {
		cfg.TokenInfoURL = defaultTokenInfoURL
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &Verifier{
		config:     cfg,
		httpClient: client,
		now:        time.Now,
	}
}

// WithClock injects a custom clock (useful for tests).
func (v *Verifier) WithClock(clock func() time.Time) *Verifier {
	if clock != nil {
		v.now = clock
	}
	return v
}

// Verify fetches and validates the token info for a raw ID token.
func (v *Verifier) Verify(ctx context.Context, idToken string) (*TokenInfo, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, verifierError("empty id token", http.StatusUnauthorized, nil)
	}

	endpoint := v.config.TokenInfoURL + "?" + url.Values{"id_token": {idToken}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build tokeninfo request")
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "tokeninfo request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to read tokeninfo response")
	}

	var info TokenInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, verifierError("failed to decode tokeninfo response", resp.StatusCode, err)
	}

	if resp.StatusCode != http.StatusOK || info.Error != "" {
		return nil, verifierError("google rejected the id token", resp.StatusCode, nil).
			WithMetadata(map[string]any{
				"error":             info.Error,
				"error_description": info.ErrorDesc,
			})
	}

	if err := v.validate(&info); err != nil {
		return nil, err
	}

	return &info, nil
}

// VerifyEmail returns the verified email address carried by the token.
func (v *Verifier) VerifyEmail(ctx context.Context, idToken string) (string, error) {
	info, err := v.Verify(ctx, idToken)
	if err != nil {
		return "", err
	}
	return info.Email, nil
}

func (v *Verifier) validate(info *TokenInfo) error {
	if v.config.ClientID != "" && info.Audience != v.config.ClientID {
		return verifierError("id token audience mismatch", http.StatusUnauthorized, nil).
			WithMetadata(map[string]any{"aud": info.Audience})
	}

	if info.Expiry != "" {
		exp, err := strconv.ParseInt(info.Expiry, 10, 64)
		if err != nil {
			return verifierError("id token has an invalid expiry", http.StatusUnauthorized, err)
		}
		if v.now().After(time.Unix(exp, 0)) {
			return verifierError("id token has expired", http.StatusUnauthorized, nil)
		}
	}

	if info.Email == "" || info.EmailVerified != "true" {
		return verifierError("id token email is missing or unverified", http.StatusUnauthorized, nil)
	}

	return nil
}

func verifierError(msg string, status int, cause error) *goerrors.Error {
	err := goerrors.New(msg, goerrors.CategoryAuth).
		WithTextCode("GOOGLE_TOKEN_INVALID").
		WithCode(status)
	if cause != nil {
		err = goerrors.Wrap(cause, goerrors.CategoryAuth, msg).
			WithTextCode("GOOGLE_TOKEN_INVALID").
			WithCode(status)
	}
	return err
}
