package passkey

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/goGate/credential"
	"github.com/MrEthical07/goGate/password"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPool(t *testing.T) *password.Pool {
	t.Helper()
	cfg := password.DefaultConfig()
	cfg.Memory = 8 * 1024
	cfg.Time = 1
	cfg.Parallelism = 1
	h, err := password.NewArgon2(cfg)
	require.NoError(t, err)
	pool, err := password.NewPool(h, 2)
	require.NoError(t, err)
	return pool
}

func TestTOTPEnrollAndVerify(t *testing.T) {
	v, err := NewVerifier(Config{Issuer: "goGate"}, nil)
	require.NoError(t, err)

	enr, err := v.EnrollTOTP("alice")
	require.NoError(t, err)
	assert.Equal(t, credential.PasskeyTOTP, enr.Kind)
	assert.True(t, strings.HasPrefix(enr.URI, "otpauth://totp/"))

	now := time.Unix(1_760_000_000, 0)
	code, err := v.Code(enr.Secret, now)
	require.NoError(t, err)

	ok, err := v.Verify(context.Background(), enr.Kind, enr.Secret, code, now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), enr.Kind, enr.Secret, code, now.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok, "stale code must not verify")
}

func TestTOTPRejectsMalformedCodes(t *testing.T) {
	v, err := NewVerifier(Config{}, nil)
	require.NoError(t, err)
	enr, err := v.EnrollTOTP("alice")
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "abcdef", "12 345"} {
		ok, err := v.Verify(context.Background(), enr.Kind, enr.Secret, code, time.Now())
		require.NoError(t, err, code)
		assert.False(t, ok, code)
	}
}

func TestPINEnrollAndVerify(t *testing.T) {
	v, err := NewVerifier(Config{}, newPool(t))
	require.NoError(t, err)

	enr, err := v.EnrollPIN(context.Background(), "482913")
	require.NoError(t, err)
	assert.Equal(t, credential.PasskeyPIN, enr.Kind)
	assert.Empty(t, enr.URI)

	ok, err := v.Verify(context.Background(), enr.Kind, enr.Secret, "482913", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = v.Verify(context.Background(), enr.Kind, enr.Secret, "482914", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = v.EnrollPIN(context.Background(), "12a4")
	assert.Error(t, err)
}

func TestPINLengthMatchesDigits(t *testing.T) {
	v, err := NewVerifier(Config{}, newPool(t))
	require.NoError(t, err)
	for _, pin := range []string{"4821", "48291", "4829137", "48291375"} {
		_, err := v.EnrollPIN(context.Background(), pin)
		assert.Error(t, err, "pin %q", pin)
	}

	enr, err := v.EnrollPIN(context.Background(), "482913")
	require.NoError(t, err)
	ok, err := v.Verify(context.Background(), enr.Kind, enr.Secret, "4829", time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	v8, err := NewVerifier(Config{Digits: 8}, newPool(t))
	require.NoError(t, err)
	_, err = v8.EnrollPIN(context.Background(), "482913")
	assert.Error(t, err)
	enr, err = v8.EnrollPIN(context.Background(), "48291375")
	require.NoError(t, err)
	ok, err = v8.Verify(context.Background(), enr.Kind, enr.Secret, "48291375", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestVerifyNotEnrolled(t *testing.T) {
	v, err := NewVerifier(Config{}, nil)
	require.NoError(t, err)
	_, err = v.Verify(context.Background(), credential.PasskeyTOTP, "", "123456", time.Now())
	assert.ErrorIs(t, err, ErrNotEnrolled)
}
