package ppn

// AuthResult is the outcome of a completed authentication pass, carried into
// egress provisioning. Immutable once produced.
type AuthResult struct {
	// JWTToken is the signed token the egress provisioner verifies.
	JWTToken string
	// SessionManagerIPs are optional control-plane endpoints returned by the
	// authentication backend.
	SessionManagerIPs []string
}

// AuthNotification receives the outcome of Authenticator.Start. Exactly one
// of the two callbacks is delivered per Start call, on the session's looper.
type AuthNotification interface {
	AuthSuccessful(isRekey bool)
	AuthFailure(err error)
}

// Authenticator runs the authentication protocol against the backend.
type Authenticator interface {
	// Start begins an authentication pass. A rekey pass reuses the existing
	// session association instead of creating a new one.
	Start(isRekey bool)

	// AuthResult returns the result of the last successful pass, or nil if
	// none completed yet.
	AuthResult() *AuthResult

	RegisterNotificationHandler(notification AuthNotification)
}
