// Copyright 2026 The Commtrail Authors
// SPDX-License-Identifier: Apache-2.0

// Package phone normalizes and minimizes phone numbers for contact
// matching. Telephony events carry remote addresses as dial strings in
// whatever spelling the network or the user produced ("+1 555-0187",
// "(555) 018-7", "5550187p123"). Matching those against a contact
// directory needs a canonical form (Normalize) and a truncated
// comparison key (Minimize) that tolerates differing country-code and
// area-code prefixes the way telephony equipment does.
package phone

import (
	"strings"
)

// DefaultMatchLength is the number of trailing significant digits two
// numbers must share to be considered the same line. Seven matches
// common subscriber-number length; prefixes beyond it (country code,
// area code) are ignored for comparison.
const DefaultMatchLength = 7

// PhoneAccountPrefix marks local account UIDs whose remote addresses
// are phone numbers. An event with localUID "tel/sim1" compares its
// remote address by minimized key; any other account scheme ("xmpp/",
// "matrix/", ...) compares remote addresses literally.
const PhoneAccountPrefix = "tel/"

// IsPhoneLocalUID reports whether the local account UID addresses the
// cellular service, meaning remote UIDs on this account are phone
// numbers.
func IsPhoneLocalUID(localUID string) bool {
	return strings.HasPrefix(localUID, PhoneAccountPrefix)
}

// isDialSuffixStart reports whether the character begins a dial-string
// suffix: pause/wait controls and manual extensions appended after the
// subscriber number.
func isDialSuffixStart(c byte) bool {
	switch c {
	case 'p', 'P', 'w', 'W', 'x', 'X', ',', ';':
		return true
	}
	return false
}

// isSeparator reports whether the character is visual formatting that
// carries no dialing information.
func isSeparator(c byte) bool {
	switch c {
	case ' ', '\t', '-', '.', '(', ')', '/':
		return true
	}
	return false
}

// Normalize strips visual separators from a dial string, keeping a
// leading "+", the digits, and any dial-string suffix (pause, wait,
// extension) verbatim. Returns "" when the input contains characters
// that cannot appear in a dialable number, such as alphanumeric sender
// identifiers used by SMS gateways.
func Normalize(number string) string {
	trimmed := strings.TrimSpace(number)
	if trimmed == "" {
		return ""
	}

	var out strings.Builder
	out.Grow(len(trimmed))
	for i := 0; i < len(trimmed); i++ {
		c := trimmed[i]
		switch {
		case c >= '0' && c <= '9':
			out.WriteByte(c)
		case c == '+' && out.Len() == 0:
			out.WriteByte(c)
		case c == '#' || c == '*':
			// Network service codes dial as-is.
			out.WriteByte(c)
		case isSeparator(c):
			// Dropped.
		case isDialSuffixStart(c) && out.Len() > 0:
			// Everything from here on is dialed after the connection
			// is established; keep it untouched.
			out.WriteString(trimmed[i:])
			return out.String()
		default:
			return ""
		}
	}

	result := out.String()
	if result == "+" {
		return ""
	}
	return result
}

// Minimize returns the comparison key for a remote address: the last
// matchLength digits of the normalized number, with both the "+"
// prefix and any dial suffix removed. Two spellings of one line
// ("+1 555 0187" and "5550187") minimize identically.
//
// Addresses that do not normalize to a dialable number (alphanumeric
// sender IDs) minimize to their upper-cased trimmed form so that
// "Google" and "GOOGLE" still match each other.
func Minimize(number string) string {
	return MinimizeWithLength(number, DefaultMatchLength)
}

// MinimizeWithLength is Minimize with an explicit trailing-digit
// count. A length of zero or less keeps all digits.
func MinimizeWithLength(number string, matchLength int) string {
	normalized := Normalize(number)
	if normalized == "" {
		return strings.ToUpper(strings.TrimSpace(number))
	}

	digits := significantDigits(normalized)
	if matchLength > 0 && len(digits) > matchLength {
		digits = digits[len(digits)-matchLength:]
	}
	return digits
}

// significantDigits extracts the digit, "#", and "*" characters of a
// normalized number up to the dial suffix.
func significantDigits(normalized string) string {
	var out strings.Builder
	out.Grow(len(normalized))
	for i := 0; i < len(normalized); i++ {
		c := normalized[i]
		switch {
		case c >= '0' && c <= '9', c == '#', c == '*':
			out.WriteByte(c)
		case c == '+':
			// Not significant for comparison.
		default:
			// Dial suffix begins; nothing after it identifies the line.
			return out.String()
		}
	}
	return out.String()
}

// MatchDetails carries the derived lookup forms of one remote address
// so they are computed once per comparison sweep instead of per
// candidate.
type MatchDetails struct {
	// Number is the address as it appeared on the event.
	Number string

	// Normalized is the canonical dial string, or "" when the address
	// is not a dialable number.
	Normalized string

	// Minimized is the comparison key (trailing significant digits, or
	// the upper-cased address for non-numeric senders).
	Minimized string
}

// NewMatchDetails derives the lookup forms of a remote address.
func NewMatchDetails(number string) MatchDetails {
	return MatchDetails{
		Number:     number,
		Normalized: Normalize(number),
		Minimized:  Minimize(number),
	}
}

// Matches reports whether another address identifies the same line,
// comparing by minimized key.
func (d MatchDetails) Matches(number string) bool {
	return d.Minimized != "" && d.Minimized == Minimize(number)
}
