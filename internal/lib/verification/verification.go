package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	codeMin  = 100000
	codeSpan = 900000
)

// NewCode returns a uniform random 6-digit code in [100000, 999999].
func NewCode() (int32, error) {
	const op = "verification.NewCode"

	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return int32(n.Int64()) + codeMin, nil
}
