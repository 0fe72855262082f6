package gate

// State is the bootstrap state derived on every request.
type State int

const (
	StateCredentialsMissing State = iota
	StateConnectivityFailure
	StateSchemaMissing
	StateNoAdminUser
	StateReady
)

func (s State) String() string {
	switch s {
	case StateCredentialsMissing:
		return "credentials_missing"
	case StateConnectivityFailure:
		return "connectivity_failure"
	case StateSchemaMissing:
		return "schema_missing"
	case StateNoAdminUser:
		return "no_admin_user"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
