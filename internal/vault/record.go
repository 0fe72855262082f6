package vault

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
)

// fieldName is the shell variable grammar, so every field survives the env
// artifact.
var fieldName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func checkFieldName(name string) error {
	if !fieldName.MatchString(name) {
		return fmt.Errorf("%w: invalid field name %q", common.ErrInvalidArgument, name)
	}
	return nil
}

// Field is one named value of a credential record. Name is used verbatim as
// an environment variable name; Value is a bool, an int or a string.
type Field struct {
	Name  string
	Value any
}

// Record is an ordered set of credential fields. Order is kept through
// Save/Read and in the generated env artifact.
type Record []Field

// Get returns the value stored under name.
func (r Record) Get(name string) (any, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Set replaces the value of name or appends a new field. Values of any type
// other than bool, int or string are rejected.
func (r *Record) Set(name string, value any) error {
	if err := checkFieldName(name); err != nil {
		return err
	}
	switch value.(type) {
	case bool, int, string:
	default:
		return fmt.Errorf("%w: field %s has unsupported type %T", common.ErrInvalidArgument, name, value)
	}

	for i := range *r {
		if (*r)[i].Name == name {
			(*r)[i].Value = value
			return nil
		}
	}
	*r = append(*r, Field{Name: name, Value: value})
	return nil
}

// String renders the value of name as it would appear in the environment.
func (r Record) String(name string) string {
	v, ok := r.Get(name)
	if !ok {
		return ""
	}
	return formatValue(v)
}

// Env flattens the record into environment-variable form.
func (r Record) Env() map[string]string {
	out := make(map[string]string, len(r))
	for _, f := range r {
		out[f.Name] = formatValue(f.Value)
	}
	return out
}

// Validate checks every field name, then that every name in required is
// present and non-empty.
func (r Record) Validate(required ...string) error {
	for _, f := range r {
		if err := checkFieldName(f.Name); err != nil {
			return err
		}
	}

	var missing []string
	for _, name := range required {
		if r.String(name) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing required fields %v", common.ErrValidation, missing)
	}
	return nil
}

func formatValue(v any) string {
	switch value := v.(type) {
	case bool:
		return strconv.FormatBool(value)
	case int:
		return strconv.Itoa(value)
	case string:
		return value
	default:
		return fmt.Sprint(value)
	}
}

type fieldJSON struct {
	Name  string          `json:"name"`
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// MarshalJSON tags each value with its type so ints and strings that look
// alike survive the round trip.
func (r Record) MarshalJSON() ([]byte, error) {
	out := make([]fieldJSON, 0, len(r))
	for _, f := range r {
		var typ string
		switch f.Value.(type) {
		case bool:
			typ = "bool"
		case int:
			typ = "int"
		case string:
			typ = "string"
		default:
			return nil, fmt.Errorf("%w: field %s has unsupported type %T", common.ErrInvalidArgument, f.Name, f.Value)
		}
		raw, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		out = append(out, fieldJSON{Name: f.Name, Type: typ, Value: raw})
	}
	return json.Marshal(out)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var in []fieldJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	rec := make(Record, 0, len(in))
	for _, f := range in {
		if f.Name == "" {
			return fmt.Errorf("field without name")
		}
		var (
			value any
			err   error
		)
		switch f.Type {
		case "bool":
			var b bool
			err = json.Unmarshal(f.Value, &b)
			value = b
		case "int":
			var i int
			err = json.Unmarshal(f.Value, &i)
			value = i
		case "string":
			var s string
			err = json.Unmarshal(f.Value, &s)
			value = s
		default:
			return fmt.Errorf("field %s: unknown type %q", f.Name, f.Type)
		}
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Name, err)
		}
		rec = append(rec, Field{Name: f.Name, Value: value})
	}
	*r = rec
	return nil
}
