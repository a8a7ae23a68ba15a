package guard

// UnauthorizedError is the single error the guard raises when a
// protected route cannot produce a user. Hosts convert it into a 401
// response carrying Reason.
type UnauthorizedError struct {
	Reason string
	Err    error
}

func (e *UnauthorizedError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return "unauthorized"
}

// Unwrap exposes the underlying resolution failure, if any.
func (e *UnauthorizedError) Unwrap() error { return e.Err }
