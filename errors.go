package phoneauth

import "errors"

var (
	// ErrSendFailed is recorded when the backend could not send a code.
	ErrSendFailed = errors.New("send code failed")
	// ErrVerifyFailed is recorded when the backend rejected or could not check a code.
	ErrVerifyFailed = errors.New("verify code failed")
	// ErrBackendRequired is returned by Build when no backend was configured.
	ErrBackendRequired = errors.New("backend required")
	// ErrBuilderUsed is returned by Build on a second call.
	ErrBuilderUsed = errors.New("builder already used")
)

// FailureKind classifies the last failed backend call.
type FailureKind int

const (
	// FailureNone means no failure is pending.
	FailureNone FailureKind = iota
	// FailureSend marks a failed send-code call.
	FailureSend
	// FailureVerify marks a failed verify-code call.
	FailureVerify
)

// String returns the audit/log name of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailureSend:
		return "send_failed"
	case FailureVerify:
		return "verify_failed"
	default:
		return "none"
	}
}

// Err returns the sentinel error matching the kind, or nil for FailureNone.
func (k FailureKind) Err() error {
	switch k {
	case FailureSend:
		return ErrSendFailed
	case FailureVerify:
		return ErrVerifyFailed
	default:
		return nil
	}
}

// Message is the generic user-facing text for the kind.
func (k FailureKind) Message() string {
	switch k {
	case FailureSend:
		return "We couldn't send the code. Please try again."
	case FailureVerify:
		return "That code didn't work. Check it and try again."
	default:
		return ""
	}
}
