// utils/validation.go
package utils

import (
	"errors"
	"regexp"
	"strings"
)

var ErrInvalidPhone = errors.New("invalid philippine mobile number")

var (
	intlPhone = regexp.MustCompile(`^\+?[1-9]\d{1,14}$`)
	phMobile  = regexp.MustCompile(`^639\d{9}$`)
)

func cleanPhone(phone string) string {
	return strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "").Replace(strings.TrimSpace(phone))
}

// ValidatePhone checks if a phone number is in a valid international format
func ValidatePhone(phone string) bool {
	return intlPhone.MatchString(cleanPhone(phone))
}

// NormalizePHMobile converts local and international spellings of a
// Philippine mobile number to the gateway form 63XXXXXXXXXX (no "+", no
// leading "0").
//
//	0917 123 4567   -> 639171234567
//	+63 917 1234567 -> 639171234567
//	9171234567      -> 639171234567
func NormalizePHMobile(phone string) (string, error) {
	p := strings.TrimPrefix(cleanPhone(phone), "+")
	switch {
	case len(p) == 11 && strings.HasPrefix(p, "09"):
		p = "63" + p[1:]
	case len(p) == 10 && strings.HasPrefix(p, "9"):
		p = "63" + p
	case len(p) == 13 && strings.HasPrefix(p, "630"):
		p = "63" + p[3:]
	}
	if !phMobile.MatchString(p) {
		return "", ErrInvalidPhone
	}
	return p, nil
}
