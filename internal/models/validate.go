// Package models provides permissive per-type format validation for
// extracted field values.
package models

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidateFieldValue applies the permissive-but-real format check for the
// given field type. The intent is to reject obviously-invalid input (so the
// bot asks for a correction) without second-guessing unusual-but-plausible
// values. An empty type or FieldTypeText accepts any non-empty value.
func ValidateFieldValue(ft FieldType, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("value is empty")
	}

	switch ft {
	case "", FieldTypeText:
		return nil
	case FieldTypeEmail:
		return validateEmail(trimmed)
	case FieldTypePhone:
		return validatePhone(trimmed)
	case FieldTypeURL:
		return validateURL(trimmed)
	case FieldTypeDate:
		return validateDate(trimmed)
	case FieldTypeNumber:
		return validateNumber(trimmed)
	default:
		// Unknown types behave as text rather than blocking extraction.
		return nil
	}
}

// validateEmail requires an @ with a non-empty local part and a domain
// containing a dot. Any international mailbox shape passes.
func validateEmail(v string) error {
	at := strings.Index(v, "@")
	if at <= 0 || at == len(v)-1 {
		return fmt.Errorf("email %q is missing a local part or domain", v)
	}
	domain := v[at+1:]
	if !strings.Contains(domain, ".") || strings.ContainsAny(v, " \t") {
		return fmt.Errorf("email %q has an invalid domain", v)
	}
	return nil
}

// validatePhone accepts any international shape carrying at least seven
// digits. Separators, parentheses, and a leading + are all fine.
func validatePhone(v string) error {
	digits := 0
	for _, r := range v {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '+' || r == '-' || r == '(' || r == ')' || r == '.' || r == ' ':
			// common separators
		default:
			return fmt.Errorf("phone %q contains unexpected character %q", v, r)
		}
	}
	if digits < 7 {
		return fmt.Errorf("phone %q has too few digits", v)
	}
	return nil
}

// validateURL accepts anything that looks like a web address: a scheme, a
// www prefix, or a bare host with a dot and no spaces.
func validateURL(v string) error {
	if strings.ContainsAny(v, " \t") {
		return fmt.Errorf("url %q contains whitespace", v)
	}
	lower := strings.ToLower(v)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "www.") {
		return nil
	}
	if strings.Contains(v, ".") {
		return nil
	}
	return fmt.Errorf("url %q does not look like a web address", v)
}

// validateDate accepts any string carrying at least one digit, which covers
// numeric dates as well as "March 5th". Purely verbal answers ("someday")
// are rejected so the bot asks again.
func validateDate(v string) error {
	for _, r := range v {
		if unicode.IsDigit(r) {
			return nil
		}
	}
	return fmt.Errorf("date %q contains no digits", v)
}

// validateNumber requires at least one numeric token among the fields.
func validateNumber(v string) error {
	for _, field := range strings.Fields(v) {
		cleaned := strings.Trim(field, "$€£%,.")
		if cleaned == "" {
			continue
		}
		numeric := true
		for _, r := range cleaned {
			if !unicode.IsDigit(r) && r != '.' && r != ',' && r != '-' {
				numeric = false
				break
			}
		}
		if numeric {
			return nil
		}
	}
	return fmt.Errorf("number %q contains no numeric token", v)
}
