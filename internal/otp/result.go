package otp

import "fmt"

// Status is the outcome of a verification attempt
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusExpired
	StatusTooManyAttempts
	StatusMismatch
)

// String returns the stable reason code used in API responses
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusExpired:
		return "expired"
	case StatusTooManyAttempts:
		return "too_many_attempts"
	case StatusMismatch:
		return "mismatch"
	default:
		return "unknown"
	}
}

// VerifyResult reports how a Verify call ended.
// Remaining is only meaningful for StatusMismatch.
type VerifyResult struct {
	Status    Status
	Remaining int
}

// OK reports whether the code was accepted
func (r VerifyResult) OK() bool {
	return r.Status == StatusOK
}

// Message returns the user-facing text for the outcome
func (r VerifyResult) Message() string {
	switch r.Status {
	case StatusOK:
		return "OTP verified"
	case StatusNotFound:
		return "OTP expired or not found; request a new one"
	case StatusExpired:
		return "OTP has expired; request a new one"
	case StatusTooManyAttempts:
		return "too many failed attempts; request a new one"
	case StatusMismatch:
		if r.Remaining == 1 {
			return "invalid OTP code; 1 attempt remaining"
		}
		return fmt.Sprintf("invalid OTP code; %d attempts remaining", r.Remaining)
	default:
		return "OTP verification failed"
	}
}

func (r VerifyResult) String() string {
	return r.Status.String()
}
