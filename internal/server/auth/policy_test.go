package auth

import (
	"testing"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	assert.ErrorIs(t, ValidateUsername(""), common.ErrValidation)
	assert.ErrorIs(t, ValidateUsername("bob"), common.ErrValidation)
	assert.NoError(t, ValidateUsername("bobb"))
	assert.NoError(t, ValidateUsername("jürg"))
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		password string
		ok       bool
	}{
		{"short!a", false},
		{"nospecialchars", false},
		{"NOLOWER!!", false},
		{"12345678!", false},
		{"lower!case", true},
		{"UPPER and lower!", true},
		{"back`tick", true},
		{`back\slash`, true},
		{"quote'mark", true},
		{"all-lower", true},
	}
	for _, tt := range tests {
		err := ValidatePassword(tt.password)
		if tt.ok {
			assert.NoError(t, err, tt.password)
		} else {
			assert.ErrorIs(t, err, common.ErrValidation, tt.password)
		}
	}
}
