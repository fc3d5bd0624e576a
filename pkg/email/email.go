// Package email normalizes and checks the addresses stored on customers and
// employees.
package email

import (
	"net/mail"
	"strings"
	"unicode"

	dErrors "opsdesk/pkg/domain-errors"
)

const maxLength = 254

// Normalize trims and lowercases an address; uniqueness checks compare the
// normalized form.
func Normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Validate rejects anything that is not a bare addr-spec.
func Validate(address string) error {
	if address == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	if len(address) > maxLength {
		return dErrors.New(dErrors.CodeValidation, "email is too long")
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address || parsed.Name != "" {
		return dErrors.New(dErrors.CodeValidation, "invalid email address")
	}
	at := strings.LastIndexByte(address, '@')
	if at <= 0 || !strings.Contains(address[at+1:], ".") {
		return dErrors.New(dErrors.CodeValidation, "invalid email address")
	}
	return nil
}

// DeriveNameFromEmail guesses first and last names from the local part,
// e.g. "jane.doe@x.io" gives ("Jane", "Doe").
func DeriveNameFromEmail(address string) (string, string) {
	localPart := address
	if at := strings.IndexByte(address, '@'); at > 0 {
		localPart = address[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+'
	})
	if len(parts) == 0 {
		return "", ""
	}

	first := capitalize(parts[0])
	last := ""
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
