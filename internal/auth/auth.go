// Package auth implements the Credential Verifier: a constant-time check of
// a presented password against a salted keyed hash.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
)

// SaltLength is the number of raw bytes at the front of a stored password
// record; the salt is used verbatim as the HMAC key and may contain any
// byte value. The remainder of the record is 64 lowercase hex characters.
const SaltLength = 16

// DigestHexLength is the length of the hex-encoded HMAC-SHA256 digest.
const DigestHexLength = sha256.Size * 2

// RecordLength is the total length of a valid stored password record.
const RecordLength = SaltLength + DigestHexLength

// ErrMalformedRecord is returned when a stored password record has the
// wrong length to be salt‖hex-digest.
var ErrMalformedRecord = errors.New("auth: malformed password record")

// dummySalt is used to perform a dummy verification when the username
// presented to PASS does not exist, so that an unknown user does not
// respond measurably faster than a known user with a wrong password.
var dummySalt = [SaltLength]byte{
	0x5c, 0x3a, 0x91, 0x07, 0xe4, 0x28, 0x6b, 0x1d,
	0xaf, 0x92, 0x04, 0x77, 0xcd, 0x15, 0x88, 0xf0,
}

// Verify reports whether password hashes, under HMAC-SHA256 keyed by the
// salt taken from the front of record, to the hex digest stored in the
// remainder of record. Comparison time does not depend on where a mismatch
// first occurs. A malformed record is rejected without panicking.
func Verify(record []byte, password []byte) (bool, error) {
	if len(record) != RecordLength {
		return false, ErrMalformedRecord
	}
	salt := record[:SaltLength]
	wantHex := record[SaltLength:]

	got := computeHex(salt, password)
	return hmac.Equal(got, wantHex), nil
}

// Dummy performs the same HMAC computation as Verify against a fixed
// internal salt and discards the result; it returns nothing. Callers use it to keep PASS's
// response time independent of whether the presented username exists.
func Dummy(password []byte) {
	computeHex(dummySalt[:], password)
}

func computeHex(salt, password []byte) []byte {
	mac := hmac.New(sha256.New, salt)
	mac.Write(password)
	sum := mac.Sum(nil)
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum)
	return out
}

// Zero overwrites buf with zero bytes. Callers use it to scrub a presented
// password out of its input buffer once it has been consumed.
func Zero(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// ConstantTimeEqual is a thin wrapper kept for call sites that want to
// compare two raw byte strings (rather than a record) without leaking
// timing, e.g. comparing two independently supplied digests in tests.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
