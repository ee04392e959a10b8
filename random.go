package authkit

import (
	"fmt"

	"github.com/MrEthical07/authkit/internal"
	"github.com/google/uuid"
)

// CreateRandomString returns n characters drawn uniformly from [A-Za-z0-9]
// using the system random source. n <= 0 returns "".
//
// It panics with an error wrapping ErrCryptoUnavailable if the random source
// fails, since nothing secure can continue without it.
func CreateRandomString(n int) string {
	s, err := internal.RandomAlphanumeric(n)
	if err != nil {
		panic(fmt.Errorf("%w: %v", ErrCryptoUnavailable, err))
	}
	return s
}

// CreateUUIDv4 returns a random RFC 4122 version 4 UUID in canonical form.
// Like CreateRandomString it panics if the random source fails.
func CreateUUIDv4() string {
	return uuid.NewString()
}
