// Package msgid generates time-correlated message identifiers.
//
// An identifier is the base36 encoding of a microsecond epoch timestamp
// followed by 22 uniformly random base36 characters. Sorting identifiers
// lexicographically approximates sorting them by creation time, which is what
// lets the queue index fall back to identifier order when two messages share
// a visible-at score.
package msgid

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// SuffixLength is the number of random characters appended to the encoded
// timestamp. 36^22 possibilities make a collision between two messages
// created in the same microsecond negligible; the engine does not check for
// one.
const SuffixLength = 22

const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

var (
	rngMu sync.Mutex
	rng   = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Encode returns the base36 representation of n.
func Encode(n int64) (string, error) {
	if n < 0 {
		return "", errors.Errorf("cannot base36 encode negative value %d", n)
	}
	if n == 0 {
		return "0", nil
	}
	var b [16]byte
	i := len(b)
	for n > 0 {
		i--
		b[i] = alphabet[n%36]
		n /= 36
	}
	return string(b[i:]), nil
}

// Decode parses a base36 string produced by Encode. Lowercase input is
// accepted.
func Decode(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("cannot base36 decode an empty string")
	}
	var n int64
	for _, c := range strings.ToUpper(s) {
		i := strings.IndexRune(alphabet, c)
		if i < 0 {
			return 0, errors.Errorf("invalid base36 character %q", c)
		}
		n = n*36 + int64(i)
	}
	return n, nil
}

// Suffix returns SuffixLength uniformly random base36 characters.
func Suffix() string {
	var b [SuffixLength]byte
	rngMu.Lock()
	for i := range b {
		b[i] = alphabet[rng.Intn(36)]
	}
	rngMu.Unlock()
	return string(b[:])
}

// Generate creates a message identifier for the given microsecond epoch
// timestamp. A negative timestamp is an error, never silently coerced.
func Generate(usec int64) (string, error) {
	prefix, err := Encode(usec)
	if err != nil {
		return "", errors.Wrap(err, "invalid message timestamp")
	}
	return prefix + Suffix(), nil
}

// SentTime recovers the creation time encoded in an identifier's prefix.
func SentTime(id string) (time.Time, error) {
	if len(id) <= SuffixLength {
		return time.Time{}, errors.Errorf("message id %q is too short", id)
	}
	usec, err := Decode(id[:len(id)-SuffixLength])
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "invalid timestamp prefix in message id %q", id)
	}
	return time.Unix(0, usec*int64(time.Microsecond)), nil
}
