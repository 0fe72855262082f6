package csrf

import (
	"context"
	"net/http"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessions"
)

// SessionResolver finds the session a request belongs to.
type SessionResolver interface {
	Current(ctx context.Context, r *http.Request) (*sessions.Session, bool)
}

// Protect checks the CSRF token on every request with an unsafe method.
//
// A token in the X-CSRF-Token header is validated and kept, for scripted
// clients issuing several requests per page. A token in the csrf_token form
// field is consumed. Failures are passed to onFail, which writes the
// response.
func (g *Guard) Protect(sessions SessionResolver, onFail func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			sess, ok := sessions.Current(ctx, r)
			if !ok {
				onFail(w, r, common.ErrNoSession)
				return
			}

			var err error
			if token := r.Header.Get(common.CSRFHeaderName); token != "" {
				err = g.Validate(ctx, sess, token, common.CSRFFieldName)
			} else {
				err = g.Consume(ctx, sess, r.PostFormValue(common.CSRFFieldName), common.CSRFFieldName)
			}
			if err != nil {
				onFail(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
