package main

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"github.com/firmdesk/firmauth"
	"github.com/firmdesk/firmauth/google"
	"github.com/firmdesk/firmauth/middleware/guard"
)

type envConfig struct {
	signingKey string
	tokenHours int
	issuer     string
	audience   []string
	otpTTL     time.Duration
	echoOTP    bool
}

func (c envConfig) GetSigningKey() string       { return c.signingKey }
func (c envConfig) GetTokenExpiration() int     { return c.tokenHours }
func (c envConfig) GetIssuer() string           { return c.issuer }
func (c envConfig) GetAudience() []string       { return c.audience }
func (c envConfig) GetOTPTTL() time.Duration    { return c.otpTTL }
func (c envConfig) GetEchoOTP() bool            { return c.echoOTP }

func loadConfig() envConfig {
	cfg := envConfig{
		signingKey: env("AUTH_SIGNING_KEY", "dev-signing-key-change-me"),
		tokenHours: envInt("AUTH_TOKEN_HOURS", firmauth.DefaultTokenExpiration),
		issuer:     env("AUTH_ISSUER", "firmdesk"),
		otpTTL:     time.Duration(envInt("AUTH_OTP_TTL_MINUTES", 5)) * time.Minute,
		echoOTP:    env("AUTH_ECHO_OTP", "") == "true",
	}

	if aud := env("AUTH_AUDIENCE", "firmdesk-api"); aud != "" {
		cfg.audience = strings.Split(aud, ",")
	}

	return cfg
}

func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Trace),
		glog.WithName("firmauth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	ctx := context.Background()
	cfg := loadConfig()

	db, err := openDB(ctx, env("AUTH_DSN", "file::memory:?cache=shared"))
	if err != nil {
		lgr.GetLogger("persistence").Error("failed to open database", "error", err)
		os.Exit(1)
	}

	metrics := firmauth.NewCollector(prometheus.DefaultRegisterer)

	repo := firmauth.NewRepositoryManager(db)
	repo.MustValidate()

	provider := firmauth.NewAccountProvider(repo.Accounts()).
		WithLogger(lgr.GetLogger("provider"))

	auther := firmauth.NewAuthenticator(provider, repo.Accounts(), cfg).
		WithLogger(lgr.GetLogger("auth")).
		WithMetrics(metrics).
		WithOTPDispatcher(firmauth.ConsoleOTPDispatcher{Logger: lgr.GetLogger("otp")})

	var verifier firmauth.ExternalTokenVerifier
	if clientID := env("GOOGLE_CLIENT_ID", ""); clientID != "" {
		verifier = google.New(google.Config{ClientID: clientID})
	}

	app := fiber.New(fiber.Config{
		AppName: "firmauth",
	})

	firmauth.RegisterAuthRoutes(app,
		firmauth.WithControllerLogger(lgr.GetLogger("http")),
		firmauth.WithControllerRepo(repo),
		firmauth.WithControllerAuthenticator(auther),
		firmauth.WithControllerGoogleVerifier(verifier),
		firmauth.WithControllerDebug(cfg.echoOTP),
	)

	mountProtectedRoutes(app, auther, metrics)

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	lgr.GetLogger("server").Info("listening", "addr", ":8572")
	if err := app.Listen(":8572"); err != nil {
		lgr.GetLogger("server").Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// mountProtectedRoutes wires one guarded group per role prefix. Each
// group admits exactly the role that owns the prefix; the role in the
// token decides where a client may go, not anything the client sends.
func mountProtectedRoutes(app *fiber.App, auther *firmauth.Auther, metrics firmauth.MetricsCollector) {
	validator := auther.TokenService()

	for _, role := range firmauth.GetAllRoles() {
		cfg := firmauth.RoleGuard(validator, role)
		cfg.OnDenied = metrics.RecordGuardDenied

		group := app.Group(role.RoutePrefix(), guard.New(cfg))
		group.Get("/dashboard", dashboardHandler(role))
	}
}

func dashboardHandler(role firmauth.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := guard.Claims(c, "")
		if !ok {
			return firmauth.RespondWithError(c, firmauth.ErrUnauthenticated)
		}

		return c.JSON(fiber.Map{
			"role":       role,
			"account_id": claims.AccountID(),
			"firm_id":    claims.FirmID(),
		})
	}
}

func openDB(ctx context.Context, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, err
	}

	db := bun.NewDB(sqldb, sqlitedialect.New())

	models := []any{
		(*firmauth.Firm)(nil),
		(*firmauth.Account)(nil),
		(*firmauth.PasswordReset)(nil),
	}

	for _, model := range models {
		if _, err := db.NewCreateTable().
			Model(model).
			IfNotExists().
			Exec(ctx); err != nil {
			return nil, err
		}
	}

	return db, nil
}
