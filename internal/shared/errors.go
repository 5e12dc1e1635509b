package shared

import "errors"

// Sentinel errors for the portal's session and login plumbing. Domain
// errors live in httpx; these stay here because the session and CSRF
// managers cannot import that package.
var (
	// ErrInvalidCredentials covers every login failure mode. Unknown
	// email, wrong password and deactivated account all collapse into it
	// so the response never reveals which applied.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrCSRFTokenMissing reports a state-changing request without a token.
	ErrCSRFTokenMissing = errors.New("csrf token missing")

	// ErrCSRFTokenMismatch reports a token bound to a different session.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)
