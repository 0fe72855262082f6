package gate

import "net/http"

// Action tells the HTTP layer what to do with a request.
type Action int

const (
	ActionProceed Action = iota
	ActionRedirect
	ActionSkip
)

// Decision is the outcome of a guard. Only redirects carry Path and Code.
type Decision struct {
	Action Action
	Path   string
	Code   int
}

func Proceed() Decision {
	return Decision{Action: ActionProceed}
}

// RedirectTo sends the client to path. Code 0 means 302.
func RedirectTo(path string, code int) Decision {
	if code == 0 {
		code = http.StatusFound
	}
	return Decision{Action: ActionRedirect, Path: path, Code: code}
}

// Skip means the guarded route does not exist for this request.
func Skip() Decision {
	return Decision{Action: ActionSkip}
}

func (d Decision) String() string {
	switch d.Action {
	case ActionProceed:
		return "proceed"
	case ActionRedirect:
		return "redirect " + d.Path
	default:
		return "skip"
	}
}
