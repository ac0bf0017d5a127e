package phoneauth

import "strings"

// MaskPhone hides all but the last four digits of phone while keeping a
// leading "+<country>" prefix intact when it is one of the known forms, e.g.
// "+919876543210" becomes "+91******3210". It is used for every log line and
// audit event that carries a phone number.
func MaskPhone(phone string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return ""
	}

	prefix := ""
	rest := phone
	if strings.HasPrefix(phone, "+") && len(phone) > PhoneDigits+1 {
		cut := len(phone) - PhoneDigits
		prefix, rest = phone[:cut], phone[cut:]
	}

	if len(rest) <= 4 {
		return prefix + strings.Repeat("*", len(rest))
	}
	return prefix + strings.Repeat("*", len(rest)-4) + rest[len(rest)-4:]
}

// E164 joins a country code and a national number.
func E164(countryCode, national string) string {
	return countryCode + national
}
