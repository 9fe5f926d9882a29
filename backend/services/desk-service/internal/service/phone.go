package service

import (
	"fmt"
	"strings"
	"unicode"
)

// NormalizePhone converts a Kenyan mobile number to the 2547XXXXXXXX form the network expects.
// Accepted inputs are 07XXXXXXXX, 7XXXXXXXX and 2547XXXXXXXX, optionally with spaces, hyphens
// or a leading plus.
func NormalizePhone(input string) (string, error) {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' {
			return -1
		}
		return r
	}, input)
	cleaned = strings.TrimPrefix(cleaned, "+")

	if !isDigits(cleaned) {
		return "", fmt.Errorf("%w: phone %q", ErrInvalidInput, input)
	}
	if len(cleaned) == 9 && cleaned[0] == '7' {
		cleaned = "0" + cleaned
	}

	switch {
	case len(cleaned) == 10 && strings.HasPrefix(cleaned, "07"):
		return "254" + cleaned[1:], nil
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "2547"):
		return cleaned, nil
	default:
		return "", fmt.Errorf("%w: phone %q", ErrInvalidInput, input)
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
