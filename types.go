package phoneauth

import (
	"context"
	"strings"
	"time"
)

const (
	// PhoneDigits is the length of a complete national phone number.
	PhoneDigits = 10
	// OTPLength is the number of independently editable code slots.
	OTPLength = 6

	emptySlot = byte(0)
)

// Step is the position of the verification flow.
type Step int

const (
	// StepPhoneEntry is the initial step: the user types a phone number.
	StepPhoneEntry Step = iota
	// StepCodeEntry is reached after a code was sent successfully.
	StepCodeEntry
	// StepVerified is reached after the code was accepted by the backend.
	StepVerified
)

// String returns a stable lowercase name for logs and audit metadata.
func (s Step) String() string {
	switch s {
	case StepPhoneEntry:
		return "phone_entry"
	case StepCodeEntry:
		return "code_entry"
	case StepVerified:
		return "verified"
	default:
		return "unknown"
	}
}

// OTPSlots holds the six code cells. A zero byte marks an empty cell.
type OTPSlots [OTPLength]byte

// Filled reports whether every slot holds a digit.
func (s OTPSlots) Filled() bool {
	for _, c := range s {
		if c == emptySlot {
			return false
		}
	}
	return true
}

// Code assembles the six digits. It returns false while any slot is empty;
// an empty slot is never treated as a gap.
func (s OTPSlots) Code() (string, bool) {
	if !s.Filled() {
		return "", false
	}
	return string(s[:]), true
}

// Slot returns the digit in slot i as a string, or "" when it is empty.
func (s OTPSlots) Slot(i int) string {
	if i < 0 || i >= OTPLength || s[i] == emptySlot {
		return ""
	}
	return string(s[i])
}

// String renders the slots with '_' for empty cells, e.g. "12_456".
func (s OTPSlots) String() string {
	var b strings.Builder
	b.Grow(OTPLength)
	for _, c := range s {
		if c == emptySlot {
			b.WriteByte('_')
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// Grant is what a backend hands back after a successful verification.
// Backends that only report success may return a nil Grant.
type Grant struct {
	AccessToken string
	Subject     string
	Phone       string
	ExpiresAt   time.Time
}

// Session is an immutable snapshot of the verification state.
type Session struct {
	// ID identifies the current session generation. It changes on every reset.
	ID         string
	Generation uint64

	Step           Step
	ModalVisible   bool
	PhoneDigits    string
	OTPSlots       OTPSlots
	OTPError       bool
	ResendCooldown int
	Loading        bool

	// LastError is the user-facing description of the most recent failure,
	// empty when there is none.
	LastError   string
	LastFailure FailureKind

	Grant *Grant
}

// CanSubmitPhone reports whether SubmitPhone's guard currently passes.
func (s Session) CanSubmitPhone() bool {
	return s.Step == StepPhoneEntry && len(s.PhoneDigits) == PhoneDigits && !s.Loading
}

// CanSubmitCode reports whether SubmitCode's guard currently passes.
func (s Session) CanSubmitCode() bool {
	return s.Step == StepCodeEntry && s.OTPSlots.Filled() && !s.Loading
}

// CanResend reports whether the resend action is enabled.
func (s Session) CanResend() bool {
	return s.Step == StepCodeEntry && s.ResendCooldown == 0 && !s.Loading
}

// Backend is the auth service contract the controller drives. Implementations
// must be safe for concurrent use.
type Backend interface {
	// SendCode triggers delivery of a one-time code to phone (country code
	// included, e.g. "+919876543210").
	SendCode(ctx context.Context, phone string) error
	// VerifyCode checks a six-digit code for phone.
	VerifyCode(ctx context.Context, phone, code string) (*Grant, error)
}
