package password

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt only reads the first 72 bytes of a password.
const bcryptMaxPasswordBytes = 72

func isBcrypt(digest string) bool {
	return strings.HasPrefix(digest, "$2a$") ||
		strings.HasPrefix(digest, "$2b$") ||
		strings.HasPrefix(digest, "$2y$")
}

// verifyBcrypt checks a legacy digest. Passwords longer than bcrypt can
// read are rejected rather than truncated.
func verifyBcrypt(password, digest string, burn func(string)) bool {
	if len(password) > bcryptMaxPasswordBytes {
		burn(password)
		return false
	}
	if _, err := bcrypt.Cost([]byte(digest)); err != nil {
		burn(password)
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
