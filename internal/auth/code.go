package auth

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// CodeGenerator produces one-time verification codes.
type CodeGenerator func() (string, error)

var codeSpan = big.NewInt(900000)

// NewCode returns a uniformly random 6-digit code in [100000, 999999].
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpan)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
