package firmauth

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"time"

	"github.com/goliatone/go-errors"
)

// OTPLength is the number of digits in a one-time code.
const OTPLength = 6

// DefaultOTPTTL is the challenge validity window.
const DefaultOTPTTL = 5 * time.Minute

var otpMax = big.NewInt(1_000_000)

// GenerateOTP returns a crypto-random zero-padded 6-digit code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpMax)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to generate one-time code")
	}

	code := n.String()
	for len(code) < OTPLength {
		code = "0" + code
	}

	return code, nil
}

// OTPEqual compares a submitted code against the stored one in constant
// time so verification latency leaks nothing about the match position.
// An empty stored code never matches anything.
func OTPEqual(stored, submitted string) bool {
	if stored == "" || len(stored) != len(submitted) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(submitted)) == 1
}

// OTPExpired reports whether a challenge's expiry has passed. A nil
// expiry counts as expired; a challenge without a deadline is invalid.
func OTPExpired(expiresAt *time.Time, now time.Time) bool {
	if expiresAt == nil {
		return true
	}
	return now.After(*expiresAt)
}
