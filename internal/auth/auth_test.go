package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildRecord(t *testing.T, salt []byte, password string) []byte {
	t.Helper()
	require.Len(t, salt, SaltLength)
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(password))
	digest := hex.EncodeToString(mac.Sum(nil))
	return append(append([]byte{}, salt...), digest...)
}

func TestVerifyAcceptsMatchingPassword(t *testing.T) {
	salt := []byte("0123456789abcdef")
	record := buildRecord(t, salt, "hunter2")

	ok, err := Verify(record, []byte("hunter2"))
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyRejectsWrongPassword(t *testing.T) {
	salt := []byte("0123456789abcdef")
	record := buildRecord(t, salt, "hunter2")

	ok, err := Verify(record, []byte("wrong"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyRejectsMalformedRecord(t *testing.T) {
	_, err := Verify([]byte("too-short"), []byte("whatever"))
	require.ErrorIs(t, err, ErrMalformedRecord)
}

func TestVerifyIsExactHMACDefinition(t *testing.T) {
	salt := []byte("zyxwvutsrqponmlk")
	for _, pw := range []string{"", "a", "a very long passphrase with spaces"} {
		record := buildRecord(t, salt, pw)
		ok, err := Verify(record, []byte(pw))
		require.NoError(t, err)
		require.True(t, ok, "password %q should verify", pw)
	}
}

func TestDummyDoesNotPanic(t *testing.T) {
	require.NotPanics(t, func() {
		Dummy([]byte("anything"))
	})
}

func TestZero(t *testing.T) {
	buf := []byte("hunter2")
	Zero(buf)
	for _, b := range buf {
		require.Equal(t, byte(0), b)
	}
}
