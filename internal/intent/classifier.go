// Package intent maps free-text contractor replies to one of a fixed set of
// intents using ordered keyword rules.
package intent

import "strings"

// Intent is the classified meaning of a contractor's reply.
type Intent string

// Intent constants
const (
	IntentAccept           Intent = "ACCEPT"
	IntentDecline          Intent = "DECLINE"
	IntentInfoRequest      Intent = "INFO_REQUEST"
	IntentStarted          Intent = "STARTED"
	IntentCompleted        Intent = "COMPLETED"
	IntentUnknown          Intent = "UNKNOWN"
	IntentVerificationCode Intent = "VERIFICATION_CODE"
)

// Classification is the result of classifying one reply body.
type Classification struct {
	Intent Intent

	// Code carries the six-digit payload when Intent is IntentVerificationCode.
	Code string
}

// rule pairs an intent with the keywords that select it. Rules are evaluated
// in slice order and the first match wins. The order is a contract, not an
// accident: overlapping keywords (a reply containing both "accept" and
// "decline") must resolve the same way every time.
type rule struct {
	intent   Intent
	keywords []string
}

var rules = []rule{
	{IntentAccept, []string{
		"accept", "yes", "yep", "yeah", "i'll take", "ill take", "take it",
		"can do", "sure", "sounds good", "count me in", "👍",
	}},
	{IntentDecline, []string{
		"decline", "no thanks", "no thank", "nope", "can't", "cant",
		"cannot", "pass", "not available", "unavailable", "too busy",
		"not interested", "no", "n",
	}},
	{IntentInfoRequest, []string{
		"?", "what", "where", "when", "how", "which", "materials",
		"details", "more info", "address", "gate code",
	}},
	{IntentStarted, []string{
		"started", "starting", "on my way", "on site", "omw",
		"heading over", "at the site",
	}},
	{IntentCompleted, []string{
		"done", "complete", "finished", "all set", "wrapped up",
	}},
}

// Classify maps a raw reply body to exactly one classification. It never
// fails: unrecognized input yields IntentUnknown, which the dispatch engine
// answers with a help message rather than dropping the reply.
//
// A body that is exactly six digits is a phone verification code and takes a
// separate path that bypasses assignment lookup entirely.
func Classify(body string) Classification {
	trimmed := strings.TrimSpace(body)

	if code, ok := verificationCode(trimmed); ok {
		return Classification{Intent: IntentVerificationCode, Code: code}
	}

	lower := strings.ToLower(trimmed)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if matchKeyword(lower, kw) {
				return Classification{Intent: r.intent}
			}
		}
	}

	return Classification{Intent: IntentUnknown}
}

// matchKeyword reports whether kw occurs in body on word boundaries. Short
// keywords must not fire inside longer words ("cant" in "vacant", "pass" in
// "passed"), so any keyword edge that is alphanumeric requires a
// non-alphanumeric neighbor in the body. Punctuation keywords like "?" and
// "👍" have no alphanumeric edges and match anywhere.
func matchKeyword(body, kw string) bool {
	needBefore := isWordByte(kw[0])
	needAfter := isWordByte(kw[len(kw)-1])

	for from := 0; ; from++ {
		i := strings.Index(body[from:], kw)
		if i < 0 {
			return false
		}
		from += i
		end := from + len(kw)
		if (!needBefore || from == 0 || !isWordByte(body[from-1])) &&
			(!needAfter || end == len(body) || !isWordByte(body[end])) {
			return true
		}
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func verificationCode(s string) (string, bool) {
	if len(s) != 6 {
		return "", false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", false
		}
	}
	return s, true
}
