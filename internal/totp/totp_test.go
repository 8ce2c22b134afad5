package totp

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSecret(t *testing.T) {
	v := NewVerifier("")
	a, err := v.GenerateSecret()
	require.NoError(t, err)
	b, err := v.GenerateSecret()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	raw, err := b32NoPadding.DecodeString(a)
	require.NoError(t, err)
	assert.Len(t, raw, secretSize)
}

func TestVerifyAt_DriftWindow(t *testing.T) {
	v := NewVerifier("")
	secret, err := v.GenerateSecret()
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 15, 0, time.UTC)

	current, err := v.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.True(t, v.VerifyAt(secret, current, now))

	prev, err := v.GenerateCode(secret, now.Add(-Period))
	require.NoError(t, err)
	next, err := v.GenerateCode(secret, now.Add(Period))
	require.NoError(t, err)
	assert.True(t, v.VerifyAt(secret, prev, now))
	assert.True(t, v.VerifyAt(secret, next, now))

	farPast, err := v.GenerateCode(secret, now.Add(-2*Period))
	require.NoError(t, err)
	farFuture, err := v.GenerateCode(secret, now.Add(2*Period))
	require.NoError(t, err)
	// Codes two steps away may coincide with a valid one by chance; only
	// assert when they differ from every code in the window.
	window := map[string]bool{current: true, prev: true, next: true}
	if !window[farPast] {
		assert.False(t, v.VerifyAt(secret, farPast, now))
	}
	if !window[farFuture] {
		assert.False(t, v.VerifyAt(secret, farFuture, now))
	}
}

func TestVerify_UsesClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	v := NewVerifier("").WithClock(func() time.Time { return now })
	secret, err := v.GenerateSecret()
	require.NoError(t, err)

	code, err := v.GenerateCode(secret, now)
	require.NoError(t, err)
	assert.True(t, v.Verify(secret, code))
}

func TestVerifyAt_MalformedInput(t *testing.T) {
	v := NewVerifier("")
	secret, err := v.GenerateSecret()
	require.NoError(t, err)
	now := time.Now()

	assert.False(t, v.VerifyAt(secret, "", now))
	assert.False(t, v.VerifyAt(secret, "12345", now))
	assert.False(t, v.VerifyAt(secret, "1234567", now))
	assert.False(t, v.VerifyAt(secret, "abcdef", now))
	assert.False(t, v.VerifyAt("", "123456", now))
	assert.False(t, v.VerifyAt("not-base32!!", "123456", now))
}

func TestProvisioningURI(t *testing.T) {
	v := NewVerifier("ENTITLED Vault")
	secret, err := v.GenerateSecret()
	require.NoError(t, err)

	uri, err := v.ProvisioningURI(secret, "employee1")
	require.NoError(t, err)

	again, err := v.ProvisioningURI(secret, "employee1")
	require.NoError(t, err)
	assert.Equal(t, uri, again)

	u, err := url.Parse(uri)
	require.NoError(t, err)
	assert.Equal(t, "otpauth", u.Scheme)
	assert.Equal(t, "totp", u.Host)
	assert.Equal(t, secret, u.Query().Get("secret"))
	assert.Equal(t, "ENTITLED Vault", u.Query().Get("issuer"))
	assert.Contains(t, u.Path, "employee1")

	_, err = v.ProvisioningURI("", "employee1")
	assert.ErrorIs(t, err, ErrInvalidSecret)
}
