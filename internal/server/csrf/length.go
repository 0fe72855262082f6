package csrf

import (
	"fmt"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

const (
	MinTokenLength     = 32
	MaxTokenLength     = 4096
	DefaultTokenLength = 500
)

// TokenLength is a validated token length in hex characters. It is always
// even, so a token is a whole number of random bytes.
type TokenLength struct {
	n int
}

// NewTokenLength accepts 32 <= n <= 4096 and rounds odd values up.
func NewTokenLength(n int) (TokenLength, error) {
	if n < MinTokenLength || n > MaxTokenLength {
		return TokenLength{}, fmt.Errorf("%w: csrf token length %d not in [%d, %d]",
			common.ErrInvalidArgument, n, MinTokenLength, MaxTokenLength)
	}
	if n%2 != 0 {
		n++
	}
	return TokenLength{n: n}, nil
}

// Chars returns the length in hex characters. The zero value means
// DefaultTokenLength.
func (l TokenLength) Chars() int {
	if l.n == 0 {
		return DefaultTokenLength
	}
	return l.n
}

func (l TokenLength) bytes() int {
	return l.Chars() / 2
}
