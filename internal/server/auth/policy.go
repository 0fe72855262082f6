package auth

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

const (
	MinUsernameLength = 4
	MinPasswordLength = 8

	// PasswordSpecials are the characters that satisfy the special-character
	// rule.
	PasswordSpecials = "!@#$%^&*()-_=+[]{};:'\",.<>/?\\|~`"
)

// ValidateUsername requires at least MinUsernameLength characters.
func ValidateUsername(username string) error {
	if utf8.RuneCountInString(username) < MinUsernameLength {
		return fmt.Errorf("%w: username must be at least %d characters", common.ErrValidation, MinUsernameLength)
	}
	return nil
}

// ValidatePassword enforces the password policy: at least MinPasswordLength
// characters, one of PasswordSpecials and one lowercase letter. Uppercase
// letters are not required.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", common.ErrValidation, MinPasswordLength)
	}
	if !strings.ContainsAny(password, PasswordSpecials) {
		return fmt.Errorf("%w: password must contain a special character", common.ErrValidation)
	}
	if strings.IndexFunc(password, unicode.IsLower) < 0 {
		return fmt.Errorf("%w: password must contain a lowercase letter", common.ErrValidation)
	}
	return nil
}
