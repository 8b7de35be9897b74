// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CHMS Contributors

package account

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

// MinPasswordLength is the shortest password registration accepts.
const MinPasswordLength = 8

var (
	emailPattern = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	// Accepts +1234567890, 123-456-7890, (123) 456-7890 and similar.
	phonePattern = regexp.MustCompile(`^[+]?[(]?[0-9]{1,4}[)]?[-\s.]?[(]?[0-9]{1,4}[)]?[-\s.]?[0-9]{1,9}$`)
	namePattern  = regexp.MustCompile(`^[a-zA-Z\s]+$`)

	stripTags = bluemonday.StrictPolicy()
)

// SanitizeName strips markup from a display name and trims it.
func SanitizeName(name string) string {
	return strings.TrimSpace(stripTags.Sanitize(name))
}

// ValidEmail reports whether email has an acceptable address shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(strings.TrimSpace(email))
}

// ValidPhone reports whether phone looks like a telephone number.
func ValidPhone(phone string) bool {
	return phonePattern.MatchString(strings.TrimSpace(phone))
}

// ValidName reports whether name holds only letters and spaces.
func ValidName(name string) bool {
	return namePattern.MatchString(name)
}

type passwordClasses struct {
	upper, lower, digit, special bool
}

func classify(password string) passwordClasses {
	var c passwordClasses
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			c.upper = true
		case unicode.IsLower(r):
			c.lower = true
		case unicode.IsDigit(r):
			c.digit = true
		case !unicode.IsLetter(r):
			c.special = true
		}
	}
	return c
}

// PasswordAcceptable reports whether password meets the registration policy:
// at least MinPasswordLength characters with an upper-case letter, a
// lower-case letter, and a digit.
func PasswordAcceptable(password string) bool {
	if len([]rune(password)) < MinPasswordLength {
		return false
	}
	c := classify(password)
	return c.upper && c.lower && c.digit
}

// PasswordStrength describes password for display next to a registration
// form. The first failing rule wins; acceptable passwords are graded by
// length and the presence of a non-alphanumeric character.
func PasswordStrength(password string) string {
	n := len([]rune(password))
	if n == 0 {
		return "Password cannot be empty"
	}
	if n < MinPasswordLength {
		return "Password must be at least 8 characters long"
	}

	c := classify(password)
	switch {
	case !c.upper:
		return "Password must contain at least one uppercase letter"
	case !c.lower:
		return "Password must contain at least one lowercase letter"
	case !c.digit:
		return "Password must contain at least one digit"
	case n >= 12 && c.special:
		return "Strong password"
	case n >= 10:
		return "Good password"
	default:
		return "Acceptable password (consider making it longer)"
	}
}
