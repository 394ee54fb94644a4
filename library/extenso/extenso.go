// Package extenso spells numbers out in Brazilian Portuguese.
package extenso

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Laisky/errors/v2"
)

// ErrOutOfRange is returned for values outside the supported range.
var ErrOutOfRange = errors.New("number out of supported range")

var (
	units = [...]string{"zero", "um", "dois", "três", "quatro", "cinco", "seis", "sete", "oito", "nove"}
	teens = [...]string{"dez", "onze", "doze", "treze", "quatorze", "quinze", "dezesseis", "dezessete", "dezoito", "dezenove"}
	tens  = [...]string{"", "", "vinte", "trinta", "quarenta", "cinquenta", "sessenta", "setenta", "oitenta", "noventa"}
)

// below100 spells 0 <= n < 100.
func below100(n int) string {
	switch {
	case n < 10:
		return units[n]
	case n < 20:
		return teens[n-10]
	}

	d, r := n/10, n%10
	if r == 0 {
		return tens[d]
	}

	return tens[d] + " e " + units[r]
}

// Cardinal spells 0 <= n <= 59 in the masculine form, which covers every
// hour, minute and second component of a wall clock.
func Cardinal(n int) (string, error) {
	if n < 0 || n > 59 {
		return "", errors.Wrapf(ErrOutOfRange, "cardinal %d", n)
	}

	return below100(n), nil
}

// Feminine rewrites the whole words "um" and "dois" into "uma" and "duas",
// the agreement required before a feminine noun such as "horas".
func Feminine(phrase string) string {
	words := strings.Split(phrase, " ")
	for i, w := range words {
		switch w {
		case "um":
			words[i] = "uma"
		case "dois":
			words[i] = "duas"
		}
	}

	return strings.Join(words, " ")
}

// Year spells years between 1900 and 2099; other years are rendered as digits.
func Year(year int) string {
	switch {
	case year >= 2000 && year <= 2099:
		if rest := year - 2000; rest != 0 {
			return "dois mil e " + below100(rest)
		}
		return "dois mil"
	case year >= 1900 && year <= 1999:
		if rest := year - 1900; rest != 0 {
			return "mil novecentos e " + below100(rest)
		}
		return "mil novecentos"
	default:
		return strconv.Itoa(year)
	}
}

// Capitalize upper-cases the first rune of s.
func Capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}

	return string(unicode.ToUpper(r)) + s[size:]
}
