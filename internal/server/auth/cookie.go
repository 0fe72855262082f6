package auth

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/gatekeeper/internal/common"
	"github.com/dmitrijs2005/gatekeeper/internal/server/sessions"
)

func (a *Authenticator) setCookie(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    sess.ID.String(),
		Path:     "/",
		Domain:   cookieDomain(r),
		Expires:  sess.ExpiresAt,
		MaxAge:   int(a.lifetime / time.Second),
		HttpOnly: true,
		Secure:   IsHTTPS(r, a.trustProxy),
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *Authenticator) clearCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   cookieDomain(r),
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   IsHTTPS(r, a.trustProxy),
		SameSite: http.SameSiteLaxMode,
	})
}

// cookieDomain is the request host without its port.
func cookieDomain(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.Trim(host, "[]")
}

// IsHTTPS reports whether the client reached us over TLS. X-Forwarded-Proto
// is honoured only when trustProxy is set, since any client can send it.
func IsHTTPS(r *http.Request, trustProxy bool) bool {
	if r.TLS != nil {
		return true
	}
	if !trustProxy {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https")
}
