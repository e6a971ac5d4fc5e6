package firmauth_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/firmdesk/firmauth"
)

type stubVerifier struct {
	email string
	err   error
}

func (v stubVerifier) VerifyEmail(ctx context.Context, idToken string) (string, error) {
	return v.email, v.err
}

func newAuthApp(t *testing.T, auther firmauth.Authenticator, opts ...firmauth.AuthControllerOption) *fiber.App {
	t.Helper()
	app := fiber.New()

	base := []firmauth.AuthControllerOption{
		firmauth.WithControllerRepo(&MockRepositoryManager{}),
		firmauth.WithControllerAuthenticator(auther),
		firmauth.WithControllerLogger(testLogger{}),
	}

	firmauth.RegisterAuthRoutes(app, append(base, opts...)...)
	return app
}

func postJSON(t *testing.T, app *fiber.App, path string, payload any) (*http.Response, map[string]any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodPost, path, bytes.NewReader(body))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := app.Test(req)
	require.NoError(t, err)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var decoded map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &decoded))
	}
	return resp, decoded
}

func TestLoginPost(t *testing.T) {
	t.Run("Authenticated login returns token and redirect", func(t *testing.T) {
		auther := &MockAuthenticator{}
		identity := newTestIdentity(false)

		auther.On("Login", mock.Anything, identity.email, "password123").
			Return(&firmauth.LoginResult{
				State:       firmauth.StateAuthenticated,
				Token:       "signed-token",
				Identity:    identity,
				RedirectURL: "/admin",
			}, nil).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/login", fiber.Map{
			"email":    identity.email,
			"password": "password123",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["requires_two_factor"])

		data := body["data"].(map[string]any)
		assert.Equal(t, "signed-token", data["token"])
		assert.Equal(t, "/admin", data["redirect_url"])

		user := data["user"].(map[string]any)
		assert.Equal(t, identity.id, user["id"])
		assert.Equal(t, identity.email, user["email"])
		auther.AssertExpectations(t)
	})

	t.Run("Two factor login returns challenge state only", func(t *testing.T) {
		auther := &MockAuthenticator{}
		identity := newTestIdentity(true)

		auther.On("Login", mock.Anything, identity.email, "password123").
			Return(&firmauth.LoginResult{
				State:    firmauth.StateTwoFactorRequired,
				Identity: identity,
			}, nil).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/login", fiber.Map{
			"email":    identity.email,
			"password": "password123",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, true, body["requires_two_factor"])
		assert.NotContains(t, body, "data")
	})

	t.Run("Bad credentials map to 401 with uniform message", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("Login", mock.Anything, "test@example.com", "wrongpassword").
			Return(nil, firmauth.ErrInvalidCredentials).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/login", fiber.Map{
			"email":    "test@example.com",
			"password": "wrongpassword",
		})

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		errObj := body["error"].(map[string]any)
		assert.Equal(t, firmauth.TextCodeInvalidCredentials, errObj["text_code"])
	})

	t.Run("Invalid payload never reaches the authenticator", func(t *testing.T) {
		auther := &MockAuthenticator{}
		app := newAuthApp(t, auther)

		resp, _ := postJSON(t, app, "/auth/login", fiber.Map{
			"email": "not-an-email",
		})

		assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
		auther.AssertNotCalled(t, "Login", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestVerifyOTPPost(t *testing.T) {
	t.Run("Valid code", func(t *testing.T) {
		auther := &MockAuthenticator{}
		identity := newTestIdentity(true)

		auther.On("VerifyOTP", mock.Anything, identity.email, "123456").
			Return(&firmauth.LoginResult{
				State:       firmauth.StateAuthenticated,
				Token:       "signed-token",
				Identity:    identity,
				RedirectURL: "/admin",
			}, nil).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/verify-otp", fiber.Map{
			"email": identity.email,
			"otp":   "123456",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, false, body["requires_two_factor"])

		data := body["data"].(map[string]any)
		assert.Equal(t, "signed-token", data["token"])
		assert.Equal(t, "/admin", data["redirect_url"])
	})

	t.Run("Wrong code maps to 401", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("VerifyOTP", mock.Anything, "test@example.com", "000000").
			Return(nil, firmauth.ErrOTPMismatch).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/verify-otp", fiber.Map{
			"email": "test@example.com",
			"otp":   "000000",
		})

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		errObj := body["error"].(map[string]any)
		assert.Equal(t, firmauth.TextCodeOTPMismatch, errObj["text_code"])
	})

	t.Run("Non numeric code is rejected before the authenticator", func(t *testing.T) {
		auther := &MockAuthenticator{}
		app := newAuthApp(t, auther)

		resp, _ := postJSON(t, app, "/auth/verify-otp", fiber.Map{
			"email": "test@example.com",
			"otp":   "12345a",
		})

		assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
		auther.AssertNotCalled(t, "VerifyOTP", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestResendOTPPost(t *testing.T) {
	t.Run("Resend issues a new challenge", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("ResendOTP", mock.Anything, "test@example.com").
			Return(&firmauth.LoginResult{State: firmauth.StateTwoFactorRequired}, nil).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/resend-otp", fiber.Map{
			"email": "test@example.com",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, true, body["requires_two_factor"])
		assert.NotContains(t, body, "otp")
	})

	t.Run("Echoed code surfaces at the top level", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("ResendOTP", mock.Anything, "test@example.com").
			Return(&firmauth.LoginResult{
				State: firmauth.StateTwoFactorRequired,
				OTP:   "654321",
			}, nil).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/resend-otp", fiber.Map{
			"email": "test@example.com",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["requires_two_factor"])
		assert.Equal(t, "654321", body["otp"])
	})

	t.Run("Throttled resend maps to 429", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("ResendOTP", mock.Anything, "test@example.com").
			Return(nil, firmauth.ErrOTPThrottled).Once()

		app := newAuthApp(t, auther)

		resp, body := postJSON(t, app, "/auth/resend-otp", fiber.Map{
			"email": "test@example.com",
		})

		assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
		errObj := body["error"].(map[string]any)
		assert.Equal(t, firmauth.TextCodeOTPThrottled, errObj["text_code"])
	})
}

func TestGooglePost(t *testing.T) {
	t.Run("Verified google token logs in", func(t *testing.T) {
		auther := &MockAuthenticator{}
		identity := newTestIdentity(false)

		auther.On("LoginExternal", mock.Anything, identity.email).
			Return(&firmauth.LoginResult{
				State:       firmauth.StateAuthenticated,
				Token:       "signed-token",
				Identity:    identity,
				RedirectURL: "/admin",
			}, nil).Once()

		app := newAuthApp(t, auther,
			firmauth.WithControllerGoogleVerifier(stubVerifier{email: identity.email}))

		resp, body := postJSON(t, app, "/auth/google", fiber.Map{
			"id_token": "google-id-token",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, true, body["success"])
		data := body["data"].(map[string]any)
		assert.Equal(t, "signed-token", data["token"])
	})

	t.Run("Rejected google token reads as bad credentials", func(t *testing.T) {
		auther := &MockAuthenticator{}

		app := newAuthApp(t, auther,
			firmauth.WithControllerGoogleVerifier(stubVerifier{err: assert.AnError}))

		resp, body := postJSON(t, app, "/auth/google", fiber.Map{
			"id_token": "bogus",
		})

		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
		errObj := body["error"].(map[string]any)
		assert.Equal(t, firmauth.TextCodeInvalidCredentials, errObj["text_code"])
		auther.AssertNotCalled(t, "LoginExternal", mock.Anything, mock.Anything)
	})

	t.Run("Unconfigured verifier answers 501", func(t *testing.T) {
		auther := &MockAuthenticator{}
		app := newAuthApp(t, auther)

		resp, _ := postJSON(t, app, "/auth/google", fiber.Map{
			"id_token": "google-id-token",
		})

		assert.Equal(t, fiber.StatusNotImplemented, resp.StatusCode)
	})
}

func TestMeGet(t *testing.T) {
	t.Run("Valid bearer token", func(t *testing.T) {
		auther := &MockAuthenticator{}
		identity := newTestIdentity(false)

		auther.On("IdentityFromToken", mock.Anything, "signed-token").
			Return(identity, nil).Once()

		app := newAuthApp(t, auther)

		req := httptest.NewRequest(fiber.MethodGet, "/auth/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer signed-token")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)

		raw, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		var body map[string]any
		require.NoError(t, json.Unmarshal(raw, &body))

		account := body["account"].(map[string]any)
		assert.Equal(t, identity.id, account["id"])
		assert.Equal(t, string(identity.role), account["role"])
	})

	t.Run("Missing header", func(t *testing.T) {
		auther := &MockAuthenticator{}
		app := newAuthApp(t, auther)

		req := httptest.NewRequest(fiber.MethodGet, "/auth/me", nil)
		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("Expired token", func(t *testing.T) {
		auther := &MockAuthenticator{}
		auther.On("IdentityFromToken", mock.Anything, "stale-token").
			Return(nil, firmauth.ErrTokenExpired).Once()

		app := newAuthApp(t, auther)

		req := httptest.NewRequest(fiber.MethodGet, "/auth/me", nil)
		req.Header.Set(fiber.HeaderAuthorization, "Bearer stale-token")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})
}

func TestForgotPasswordPost(t *testing.T) {
	t.Run("Response is uniform for unknown emails", func(t *testing.T) {
		repo := &MockRepositoryManager{}
		accounts := &MockAccounts{}

		repo.On("Accounts").Return(accounts).Once()
		accounts.On("GetByEmail", mock.Anything, "ghost@example.com").
			Return(nil, newRecordNotFoundErr()).Once()

		auther := &MockAuthenticator{}
		app := fiber.New()
		firmauth.RegisterAuthRoutes(app,
			firmauth.WithControllerRepo(txPassthroughManager{repo}),
			firmauth.WithControllerAuthenticator(auther),
			firmauth.WithControllerLogger(testLogger{}),
		)

		resp, body := postJSON(t, app, "/auth/forgot-password", fiber.Map{
			"email": "ghost@example.com",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, firmauth.AccountVerification, body["stage"])
		assert.Contains(t, body["message"], "If that email is registered")
	})
}

func TestResetPasswordPost(t *testing.T) {
	t.Run("Mismatched confirmation is rejected", func(t *testing.T) {
		auther := &MockAuthenticator{}
		app := newAuthApp(t, auther)

		resp, _ := postJSON(t, app, "/auth/reset-password", fiber.Map{
			"session":          uuid.NewString(),
			"password":         "password12345",
			"confirm_password": "different12345",
		})

		assert.NotEqual(t, fiber.StatusOK, resp.StatusCode)
	})

	t.Run("Finalizes a pending reset", func(t *testing.T) {
		repo := &MockRepositoryManager{}
		resets := &MockPasswordResets{}
		accounts := &MockAccounts{}

		accountID := uuid.New()
		session := uuid.New()
		now := time.Now()

		record := &firmauth.PasswordReset{
			ID:        session,
			AccountID: &accountID,
			Status:    firmauth.ResetRequestedStatus,
			CreatedAt: &now,
		}

		repo.On("PasswordResets").Return(resets).Twice()
		repo.On("Accounts").Return(accounts).Once()

		resets.On("GetByID", mock.Anything, session.String(), mock.Anything).
			Return(record, nil).Once()
		accounts.On("RawTx", mock.Anything, mock.Anything, firmauth.ResetAccountPasswordSQL, mock.Anything).
			Return([]*firmauth.Account{{}}, nil).Once()
		resets.On("UpdateTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(record, nil).Once()

		auther := &MockAuthenticator{}
		app := fiber.New()
		firmauth.RegisterAuthRoutes(app,
			firmauth.WithControllerRepo(txPassthroughManager{repo}),
			firmauth.WithControllerAuthenticator(auther),
			firmauth.WithControllerLogger(testLogger{}),
		)

		resp, body := postJSON(t, app, "/auth/reset-password", fiber.Map{
			"session":          session.String(),
			"password":         "password12345",
			"confirm_password": "password12345",
		})

		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, firmauth.ChangeFinalized, body["stage"])
	})
}
