package vaultctl

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/vault"
)

// ParseFields builds a record from NAME=VALUE arguments. Values are strings
// unless the name carries a type suffix: NAME:int=5 or NAME:bool=true.
func ParseFields(args []string) (vault.Record, error) {
	var rec vault.Record
	for _, arg := range args {
		key, raw, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: expected NAME=VALUE, got %q", common.ErrInvalidArgument, arg)
		}

		name, typ, _ := strings.Cut(key, ":")
		var value any
		switch typ {
		case "", "string":
			value = raw
		case "int":
			n, err := strconv.Atoi(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidArgument, name, err)
			}
			value = n
		case "bool":
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %v", common.ErrInvalidArgument, name, err)
			}
			value = b
		default:
			return nil, fmt.Errorf("%w: %s: unknown type %q", common.ErrInvalidArgument, name, typ)
		}

		if err := rec.Set(name, value); err != nil {
			return nil, err
		}
	}
	return rec, nil
}
