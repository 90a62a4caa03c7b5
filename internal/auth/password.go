package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt cost used for account passwords. Each hash carries its own random salt.
const passwordCost = 10

// MaxPasswordBytes is the longest password bcrypt will hash.
const MaxPasswordBytes = 72

// dummyHash is compared against when the account does not exist so that the
// unknown-account path costs one bcrypt comparison, like the wrong-password path.
var dummyHash = mustHash("teenbudget-timing-equaliser")

// HashPassword hashes plaintext password using bcrypt with a fresh salt.
func HashPassword(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares plaintext password with stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

func mustHash(password string) string {
	hash, err := HashPassword(password)
	if err != nil {
		panic(err)
	}
	return hash
}
