package totp

import (
	"encoding/base32"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	// DefaultIssuer labels enrolled accounts in authenticator apps.
	DefaultIssuer = "ENTITLED Vault"
	// Period is the TOTP time step.
	Period = 30 * time.Second

	secretSize = 20
	skew       = 1
)

// ErrInvalidSecret is returned when a stored secret is not valid base32.
var ErrInvalidSecret = errors.New("totp: invalid secret")

var b32NoPadding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Verifier generates and checks RFC 6238 codes. Secrets handed to it are
// always plaintext; callers unwrap them with the envelope cipher first.
type Verifier struct {
	issuer string
	now    func() time.Time
}

// NewVerifier returns a Verifier for the given issuer label.
func NewVerifier(issuer string) *Verifier {
	if strings.TrimSpace(issuer) == "" {
		issuer = DefaultIssuer
	}
	return &Verifier{issuer: issuer, now: time.Now}
}

// WithClock replaces the time source, mainly for tests.
func (v *Verifier) WithClock(now func() time.Time) *Verifier {
	v.now = now
	return v
}

func validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    uint(Period / time.Second),
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// GenerateSecret returns a fresh random base32 secret.
func (v *Verifier) GenerateSecret() (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: "enrollment",
		SecretSize:  secretSize,
	})
	if err != nil {
		return "", err
	}
	return key.Secret(), nil
}

// Verify checks code against the current time, tolerating one step of drift.
func (v *Verifier) Verify(secret, code string) bool {
	return v.VerifyAt(secret, code, v.now())
}

// VerifyAt checks code at t. Malformed secrets or codes yield false.
func (v *Verifier) VerifyAt(secret, code string, t time.Time) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != int(otp.DigitsSix) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, t.UTC(), validateOpts())
	return err == nil && ok
}

// GenerateCode returns the code valid for the step containing t.
func (v *Verifier) GenerateCode(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), validateOpts())
}

// ProvisioningURI builds the otpauth:// URI an authenticator app enrolls from.
func (v *Verifier) ProvisioningURI(secret, account string) (string, error) {
	raw, err := b32NoPadding.DecodeString(strings.ToUpper(strings.TrimSpace(secret)))
	if err != nil || len(raw) == 0 {
		return "", ErrInvalidSecret
	}
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      v.issuer,
		AccountName: account,
		Period:      uint(Period / time.Second),
		Secret:      raw,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", err
	}
	return key.URL(), nil
}
