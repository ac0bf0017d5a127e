package phoneauth

// UpdatePhoneDigits replaces the typed national number. Input longer than
// PhoneDigits or containing anything but ASCII digits is ignored, as is any
// update outside PhoneEntry or while a call is running. It reports whether the
// value was accepted.
func (c *Controller) UpdatePhoneDigits(raw string) bool {
	if len(raw) > PhoneDigits {
		return false
	}
	if raw != "" && !isDigits(raw) {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state.Step != StepPhoneEntry || c.state.Loading {
		return false
	}
	if c.state.PhoneDigits == raw {
		return true
	}
	c.state.PhoneDigits = raw
	c.publishLocked()
	return true
}

// EditOTPSlot writes one code slot. value must be a single ASCII digit, which
// fills slot index, or "", which clears it. No other slot is touched. An
// accepted edit clears OTPError.
//
// focus is the slot the caller should move focus to: index+1 after a digit,
// index-1 after a clear, clamped to the slot range.
func (c *Controller) EditOTPSlot(index int, value string) (focus int, ok bool) {
	if index < 0 || index >= OTPLength {
		return index, false
	}

	var digit byte
	switch {
	case value == "":
		digit = emptySlot
	case len(value) == 1 && value[0] >= '0' && value[0] <= '9':
		digit = value[0]
	default:
		return index, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.state.Loading {
		return index, false
	}

	c.state.OTPSlots[index] = digit
	c.state.OTPError = false
	c.publishLocked()

	if digit == emptySlot {
		if index > 0 {
			return index - 1, true
		}
		return index, true
	}
	if index < OTPLength-1 {
		return index + 1, true
	}
	return index, true
}
