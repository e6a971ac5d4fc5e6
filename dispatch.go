package firmauth

import (
	"context"
	"time"
)

// ConsoleOTPDispatcher logs codes instead of sending them. Development
// and test environments only; production wires an email sender behind
// the OTPDispatcher interface.
type ConsoleOTPDispatcher struct {
	Logger Logger
}

var _ OTPDispatcher = ConsoleOTPDispatcher{}

// DispatchOTP implements OTPDispatcher.
func (d ConsoleOTPDispatcher) DispatchOTP(ctx context.Context, identity Identity, code string, expiresAt time.Time) error {
	logger := d.Logger
	if logger == nil {
		logger = defLogger{}
	}

	logger.Info("one-time code issued email=%s code=%s expires_at=%s",
		identity.Email(), code, expiresAt.Format(time.RFC3339))

	return nil
}

type noopOTPDispatcher struct{}

func (noopOTPDispatcher) DispatchOTP(context.Context, Identity, string, time.Time) error {
	return nil
}

func normalizeOTPDispatcher(d OTPDispatcher) OTPDispatcher {
	if d == nil {
		return noopOTPDispatcher{}
	}
	return d
}
