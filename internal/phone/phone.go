// Package phone canonicalizes phone identifiers across SMS and chat channels
// so the same contractor is recognized no matter which channel they reply on.
package phone

import "strings"

// Channel constants
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
)

const whatsappPrefix = "whatsapp:"

// Number is the canonical form of a raw phone identifier.
type Number struct {
	// Key is the digits-only national number used to store and look up
	// contractor identity.
	Key string

	// SendTo is the address handed to the message transport. It keeps the
	// channel prefix and country-code formatting the carrier expects.
	SendTo string

	// Channel is the channel the identifier arrived on.
	Channel string
}

// Normalize canonicalizes a raw phone string from any channel. It is a pure
// function: the same input always yields the same output, which is required
// because the result is used both to store and to look up contractor identity.
//
// Numbers without a recognizable country code are assumed domestic (US). That
// is a documented ambiguity of the inbound data, not something Normalize can
// resolve.
func Normalize(raw string) Number {
	s := strings.TrimSpace(raw)

	channel := ChannelSMS
	if len(s) >= len(whatsappPrefix) && strings.EqualFold(s[:len(whatsappPrefix)], whatsappPrefix) {
		channel = ChannelWhatsApp
		s = s[len(whatsappPrefix):]
	}

	digits := keepDigits(s)

	// 11 digits with a leading 1 is a US number carrying its country code.
	national := digits
	if len(digits) == 11 && digits[0] == '1' {
		national = digits[1:]
	}

	sendTo := "+" + national
	if len(national) == 10 {
		sendTo = "+1" + national
	}
	if channel == ChannelWhatsApp {
		sendTo = whatsappPrefix + sendTo
	}

	return Number{
		Key:     national,
		SendTo:  sendTo,
		Channel: channel,
	}
}

func keepDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
