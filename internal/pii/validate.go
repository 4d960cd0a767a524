package pii

import (
	"strings"
	"unicode"
)

// ValidateSSN applies the SSA structural rules: area not 000, 666 or 9xx,
// group not 00, serial not 0000.
func ValidateSSN(ssn string) bool {
	clean := strings.ReplaceAll(strings.ReplaceAll(ssn, "-", ""), " ", "")
	if len(clean) != 9 {
		return false
	}

	for _, c := range clean {
		if !unicode.IsDigit(c) {
			return false
		}
	}

	area := 0
	for i := 0; i < 3; i++ {
		area = area*10 + int(clean[i]-'0')
	}

	if area == 0 || area == 666 || area >= 900 {
		return false
	}

	group := int(clean[3]-'0')*10 + int(clean[4]-'0')
	if group == 0 {
		return false
	}

	serial := 0
	for i := 5; i < 9; i++ {
		serial = serial*10 + int(clean[i]-'0')
	}
	return serial != 0
}

// ValidateLuhn checks the mod-10 checksum over the digits of number,
// ignoring separators. Only 13 to 19 digit numbers can pass.
func ValidateLuhn(number string) bool {
	var clean strings.Builder
	for _, c := range number {
		if c >= '0' && c <= '9' {
			clean.WriteRune(c)
		}
	}
	digits := clean.String()

	if len(digits) < 13 || len(digits) > 19 {
		return false
	}

	sum := 0
	alternate := false

	for i := len(digits) - 1; i >= 0; i-- {
		n := int(digits[i] - '0')

		if alternate {
			n *= 2
			if n > 9 {
				n = n%10 + 1
			}
		}

		sum += n
		alternate = !alternate
	}

	return sum%10 == 0
}
