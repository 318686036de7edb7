package idp

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// TOTP parameters: 6 digits over a 30-second step, SHA-1 HMAC, one step of
// drift tolerated either side.
const (
	totpPeriod = 30
	totpSkew   = 1
)

func totpOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    totpPeriod,
		Skew:      0, // drift handled per step in matchTOTP
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// timeStep maps an instant onto its TOTP counter value.
func timeStep(t time.Time) int64 {
	return t.Unix() / totpPeriod
}

// matchTOTP checks code against the current step and its neighbours,
// returning the step that matched. Checking per step (rather than letting
// the library absorb the skew) is what lets the caller pin the consumed
// step for replay rejection.
func matchTOTP(secret, code string, now time.Time) (int64, bool) {
	for _, delta := range []int64{0, -1, 1} {
		at := now.Add(time.Duration(delta*totpPeriod) * time.Second)
		expected, err := totp.GenerateCodeCustom(secret, at, totpOpts())
		if err != nil {
			return 0, false
		}
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return timeStep(now) + delta, true
		}
	}
	return 0, false
}

// newTOTPKey provisions a fresh shared secret and otpauth:// URI.
func newTOTPKey(issuer, username string) (secret, uri string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: username,
		Period:      totpPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

const recoveryCodeCount = 10

// newRecoveryCodes generates a batch of high-entropy single-use codes.
// Each carries 128 bits encoded as 32 hex characters.
func newRecoveryCodes() ([]string, error) {
	codes := make([]string, 0, recoveryCodeCount)
	for i := 0; i < recoveryCodeCount; i++ {
		buf := make([]byte, 16)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		codes = append(codes, hex.EncodeToString(buf))
	}
	return codes, nil
}
