package classify

import (
	"regexp"
	"strings"
)

// phonePattern matches a North-American number with an optional +1 / 1
// prefix. The number must not be part of a longer digit run; group 1 is the
// number without the boundary characters.
var phonePattern = regexp.MustCompile(`(?:^|\D)((?:\+?1[\s.\-]?)?\(?(\d{3})\)?[\s.\-]?(\d{3})[\s.\-]?(\d{4}))(?:\D|$)`)

// phoneMatch is a located phone number inside a string.
type phoneMatch struct {
	digits     string
	start, end int
}

func findPhone(s string) (phoneMatch, bool) {
	loc := phonePattern.FindStringSubmatchIndex(s)
	if loc == nil {
		return phoneMatch{}, false
	}
	digits := s[loc[4]:loc[5]] + s[loc[6]:loc[7]] + s[loc[8]:loc[9]]
	return phoneMatch{digits: digits, start: loc[2], end: loc[3]}, true
}

// identity is the phone key and display name extracted from a row.
type identity struct {
	phoneKey string
	name     string
	display  string
}

// extractIdentity derives the canonical phone key for a row: the number in
// the contact text, else a number anywhere in the row text, else the raw
// contact string itself.
func extractIdentity(contact, text string) identity {
	contact = strings.TrimSpace(contact)

	if m, ok := findPhone(contact); ok {
		name := cleanName(contact[:m.start] + " " + contact[m.end:])
		return identity{phoneKey: m.digits, name: name, display: contact}
	}

	if m, ok := findPhone(text); ok {
		display := contact
		if display == "" {
			display = FormatPhone(m.digits)
		}
		return identity{phoneKey: m.digits, name: cleanName(contact), display: display}
	}

	return identity{phoneKey: contact, name: cleanName(contact), display: contact}
}

// cleanName trims the separators left behind when a number is cut out of
// a "Name (555) 123-4567" style field.
func cleanName(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.Trim(s, " -,:;|/()[]<>")
}

// FormatPhone renders a 10-digit key as (NNN) NNN-NNNN. Other keys are
// returned unchanged.
func FormatPhone(key string) string {
	if len(key) != 10 || strings.Trim(key, "0123456789") != "" {
		return key
	}
	return "(" + key[:3] + ") " + key[3:6] + "-" + key[6:]
}
