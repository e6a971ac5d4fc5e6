package firmauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// ExternalTokenVerifier checks an identity token minted by an external
// provider and returns the verified email address.
type ExternalTokenVerifier interface {
	VerifyEmail(ctx context.Context, idToken string) (string, error)
}

type AuthControllerRoutes struct {
	Login          string
	VerifyOTP      string
	ResendOTP      string
	Google         string
	Me             string
	ForgotPassword string
	ResetPassword  string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Repo         RepositoryManager
	Routes       *AuthControllerRoutes
	Auther       Authenticator
	Google       ExternalTokenVerifier
	ErrorHandler func(c *fiber.Ctx, err error) error
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuthenticator(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerGoogleVerifier(verifier ExternalTokenVerifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Google = verifier
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:       defLogger{},
		ErrorHandler: RespondWithError,
		Routes: &AuthControllerRoutes{
			Login:          "/auth/login",
			VerifyOTP:      "/auth/verify-otp",
			ResendOTP:      "/auth/resend-otp",
			Google:         "/auth/google",
			Me:             "/auth/me",
			ForgotPassword: "/auth/forgot-password",
			ResetPassword:  "/auth/reset-password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	return c
}

// RegisterAuthRoutes mounts the auth endpoints on the given router.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Login, controller.LoginPost)
	app.Post(controller.Routes.VerifyOTP, controller.VerifyOTPPost)
	app.Post(controller.Routes.ResendOTP, controller.ResendOTPPost)
	app.Post(controller.Routes.Google, controller.GooglePost)
	app.Get(controller.Routes.Me, controller.MeGet)
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPasswordPost)
	app.Post(controller.Routes.ResetPassword, controller.ResetPasswordPost)

	return controller
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("login validate payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload"))
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	result, err := a.Auther.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(loginResultPayload(result))
}

// OTPRequest payload, shared by verify and resend.
type OTPRequest struct {
	Email string `form:"email" json:"email"`
	OTP   string `form:"otp" json:"otp"`
}

// Validate will run validation rules
func (r OTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.OTP,
			validation.Required,
			validation.Length(OTPLength, OTPLength),
			is.Digit,
		),
	)
}

func (a *AuthController) VerifyOTPPost(c *fiber.Ctx) error {
	payload := new(OTPRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("verify otp parse payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("verify otp validate payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid otp payload"))
	}

	result, err := a.Auther.VerifyOTP(c.Context(), payload.Email, payload.OTP)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(loginResultPayload(result))
}

// ResendOTPRequest payload
type ResendOTPRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ResendOTPRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) ResendOTPPost(c *fiber.Ctx) error {
	payload := new(ResendOTPRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("resend otp parse payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("resend otp validate payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid resend payload"))
	}

	result, err := a.Auther.ResendOTP(c.Context(), payload.Email)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(loginResultPayload(result))
}

// GoogleLoginRequest payload
type GoogleLoginRequest struct {
	IDToken string `form:"id_token" json:"id_token"`
}

// Validate will run validation rules
func (r GoogleLoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.IDToken,
			validation.Required,
		),
	)
}

func (a *AuthController) GooglePost(c *fiber.Ctx) error {
	if a.Google == nil {
		return a.ErrorHandler(c, goerrors.New("google sign in is not configured", goerrors.CategoryOperation).
			WithCode(fiber.StatusNotImplemented))
	}

	payload := new(GoogleLoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("google login parse payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("google login validate payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid google login payload"))
	}

	email, err := a.Google.VerifyEmail(c.Context(), payload.IDToken)
	if err != nil {
		a.Logger.Error("google token verification failed: %v", err)
		return a.ErrorHandler(c, ErrInvalidCredentials)
	}

	result, err := a.Auther.LoginExternal(c.Context(), email)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(loginResultPayload(result))
}

func (a *AuthController) MeGet(c *fiber.Ctx) error {
	raw := BearerToken(c)
	if raw == "" {
		return a.ErrorHandler(c, ErrUnauthenticated)
	}

	identity, err := a.Auther.IdentityFromToken(c.Context(), raw)
	if err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"account": identityPayload(identity),
	})
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

// ForgotPasswordPost always answers the same way: whether or not the
// email exists, the response reports that a reset link may have been
// sent.
func (a *AuthController) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("forgot password parse payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("forgot password validate payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid forgot password payload"))
	}

	req := InitializePasswordResetMessage{
		Email: payload.Email,
	}

	initPwdReset := NewInitializePasswordResetHandler(a.Repo).WithLogger(a.Logger)

	if err := initPwdReset.Execute(c.Context(), req); err != nil {
		a.Logger.Error("forgot password execute: %v", err)
		return a.ErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"stage":   AccountVerification,
		"message": "If that email is registered, a reset link is on its way",
	})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Session         string `form:"session" json:"session"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Session,
			validation.Required,
			is.UUIDv4,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(10, 100),
		),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.Length(10, 100),
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) ResetPasswordPost(c *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("reset password parse payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Error("reset password validate payload: %v", err)
		return a.ErrorHandler(c, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid reset password payload"))
	}

	input := FinalizePasswordResetMessage{
		Session:  payload.Session,
		Password: payload.Password,
	}

	finalizePwdReset := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)

	if err := finalizePwdReset.Execute(c.Context(), input); err != nil {
		return a.ErrorHandler(c, err)
	}

	return c.JSON(fiber.Map{
		"stage":   ChangeFinalized,
		"message": "Password changed",
	})
}

// BearerToken pulls the raw token out of the Authorization header.
func BearerToken(c *fiber.Ctx) string {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return ""
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}

// RespondWithError maps domain errors onto JSON responses. Rich errors
// carry their own HTTP status; anything else becomes a 500.
func RespondWithError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		status := richErr.Code
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(fiber.Map{
			"error": fiber.Map{
				"message":   richErr.Message,
				"text_code": richErr.TextCode,
			},
		})
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{
			"message": "internal server error",
		},
	})
}

// loginResultPayload shapes the login/verify/resend envelope:
// {success, requires_two_factor, data:{token, user, redirect_url}}.
// The one-time code is echoed at the top level only when the
// authenticator runs with in-band echo enabled.
func loginResultPayload(result *LoginResult) fiber.Map {
	if result == nil {
		return fiber.Map{"success": false}
	}

	payload := fiber.Map{
		"success":             result.Authenticated(),
		"requires_two_factor": result.State == StateTwoFactorRequired,
	}

	if result.Authenticated() {
		payload["data"] = fiber.Map{
			"token":        result.Token,
			"user":         identityPayload(result.Identity),
			"redirect_url": result.RedirectURL,
		}
	}

	if result.OTP != "" {
		payload["otp"] = result.OTP
	}

	return payload
}

func identityPayload(identity Identity) fiber.Map {
	if identity == nil {
		return nil
	}

	payload := fiber.Map{
		"id":                 identity.ID(),
		"email":              identity.Email(),
		"role":               identity.Role(),
		"firm_id":            identity.FirmID(),
		"two_factor_enabled": identity.TwoFactorEnabled(),
	}

	if identity.ClientID() != "" {
		payload["client_id"] = identity.ClientID()
	}

	return payload
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
