// Package sms delivers one-time codes to phones.
package sms

import "context"

// Sender delivers code to phone. phone includes the country code, e.g.
// "+919876543210". Implementations must not log code.
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// Multi fans a code out to every sender in order and stops at the first error.
type Multi []Sender

// SendOTP implements Sender.
func (m Multi) SendOTP(ctx context.Context, phone, code string) error {
	for _, s := range m {
		if err := s.SendOTP(ctx, phone, code); err != nil {
			return err
		}
	}
	return nil
}
