package customers

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// FormatPhoneNumber formats a 10-digit phone number as (XXX) XXX-XXXX.
// Input with any other number of digits is returned unchanged.
func FormatPhoneNumber(phone string) string {
	digits := onlyDigits(phone)
	if len(digits) != 10 {
		return phone
	}
	return "(" + digits[:3] + ") " + digits[3:6] + "-" + digits[6:]
}

// FormatRNC formats a tax id: 9 digits as XXX-XXXXX-X, 11 digits (cédula)
// as XXX-XXXXXXX-X. Input with any other number of digits is returned unchanged.
func FormatRNC(rnc string) string {
	digits := onlyDigits(rnc)
	switch len(digits) {
	case 9:
		return digits[:3] + "-" + digits[3:8] + "-" + digits[8:]
	case 11:
		return digits[:3] + "-" + digits[3:10] + "-" + digits[10:]
	default:
		return rnc
	}
}

// FormatName converts a name to title case, e.g. "JOSE DE LOS SANTOS"
// becomes "Jose De Los Santos". Spacing is preserved.
func FormatName(name string) string {
	words := strings.Split(strings.ToLower(name), " ")
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		if size == 0 {
			continue
		}
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// TruncateText shortens text to maxLength characters followed by "...".
// Text that already fits is returned unchanged.
func TruncateText(text string, maxLength int) string {
	if maxLength < 0 || utf8.RuneCountInString(text) <= maxLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxLength]) + "..."
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
