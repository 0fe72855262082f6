package common

// SessionCookieName is the cookie carrying the server-side session id.
const SessionCookieName = "session"

// CSRFHeaderName is the request header checked for the CSRF token on
// XHR-style requests.
const CSRFHeaderName = "X-CSRF-Token"

// CSRFFieldName is the default session field and form field for the CSRF token.
const CSRFFieldName = "csrf_token"

// DatabaseVaultName is the credential set consulted by the bootstrap gate.
const DatabaseVaultName = "db"
