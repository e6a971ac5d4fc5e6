// Package firmauth provides the authentication and authorization layer for a
// multi-tenant CA firm management service: credential verification, JWT
// session issuance, an optional email OTP second factor, and role/tenant
// guards for HTTP handlers.
//
// Login flow:
//   - Auther drives the state machine behind POST /auth/login. Accounts
//     without two-factor enabled go straight to an authenticated result with a
//     signed session token and a role-derived redirect. Accounts with
//     two-factor enabled receive a single-use, expiring OTP and must complete
//     VerifyOTP before a token is issued. ResendOTP is throttled server-side.
//   - Every credential failure surfaces as ErrInvalidCredentials so callers
//     cannot distinguish unknown emails from inactive accounts or wrong
//     passwords.
//
// Tenancy and roles:
//   - SessionClaims carry the account id, role, firm id, and optional client
//     id. Handlers authorize from claims only; request bodies never carry
//     role or firm information. AuthorizeTenant and AuthorizeClient enforce
//     the firm and client boundaries for every role, SUPER_ADMIN included:
//     a token minted for one firm never reaches another firm's resources.
//   - middleware/guard mounts the same checks as Fiber middleware with
//     per-route role allow-lists.
//
// Account lifecycle:
//   - Accounts carry an AccountStatus persisted via Bun. AccountStateMachine
//     centralizes the transition graph, suspension timestamps, hooks, and
//     persistence for admin-driven moves between pending, active, suspended,
//     disabled, and archived.
//
// Activity sinks:
//   - ActivitySink is a light-weight audit emitter used by Auther and the
//     state machine to describe login, OTP, lifecycle, and password reset
//     events. Sinks run best-effort (errors are logged) so you can forward to
//     a database or queue without blocking authentication.
package firmauth
