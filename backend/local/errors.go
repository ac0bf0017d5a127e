package local

import (
	"errors"
	"fmt"

	"github.com/spacekayak/phoneauth/internal/limiters"
	"github.com/spacekayak/phoneauth/internal/rate"
	"github.com/spacekayak/phoneauth/internal/stores"
)

var (
	// ErrInvalidPhone is returned for numbers that are not "+<8-15 digits>".
	ErrInvalidPhone = errors.New("invalid phone number")
	// ErrInvalidCode is returned for codes of the wrong length or charset.
	ErrInvalidCode = errors.New("invalid code format")
	// ErrCooldown is returned when a code was sent to the phone too recently.
	ErrCooldown = errors.New("resend cooldown active")
	// ErrRateLimited is returned when a send or verify budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrNoChallenge is returned when no live code exists for the phone.
	ErrNoChallenge = errors.New("no active code for phone")
	// ErrCodeRejected is returned for a wrong code with attempts left.
	ErrCodeRejected = errors.New("code rejected")
	// ErrAttemptsExceeded is returned when the wrong code used the last attempt.
	ErrAttemptsExceeded = errors.New("too many attempts")
	// ErrDelivery wraps SMS gateway failures.
	ErrDelivery = errors.New("code delivery failed")
	// ErrUnavailable wraps storage failures.
	ErrUnavailable = errors.New("auth backend unavailable")
)

func mapSendLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, limiters.ErrSendCooldown):
		return ErrCooldown
	case errors.Is(err, limiters.ErrSendRateLimited):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func mapVerifyLimiterError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}

func mapChallengeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, stores.ErrChallengeNotFound):
		return ErrNoChallenge
	case errors.Is(err, stores.ErrChallengeCodeMismatch):
		return ErrCodeRejected
	case errors.Is(err, stores.ErrChallengeAttemptsExceeded):
		return ErrAttemptsExceeded
	default:
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
}
