package totals

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// NumberSystem selects how large numbers are grouped when spelled out.
type NumberSystem string

const (
	// International groups by thousands: thousand, million, billion.
	International NumberSystem = "international"

	// Indian groups by thousand, lakh and crore.
	Indian NumberSystem = "indian"
)

// ParseNumberSystem validates a configured number system name.
// An empty name selects International.
func ParseNumberSystem(name string) (NumberSystem, error) {
	switch NumberSystem(strings.ToLower(strings.TrimSpace(name))) {
	case "", International:
		return International, nil
	case Indian:
		return Indian, nil
	}
	return "", fmt.Errorf("unknown number system %q", name)
}

var ones = [...]string{
	"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
	"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
	"seventeen", "eighteen", "nineteen",
}

var tens = [...]string{
	"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
}

var internationalScales = [...]string{
	"", "thousand", "million", "billion", "trillion", "quadrillion", "quintillion",
}

// Cardinal spells out n in lower case words separated by single spaces,
// without "and" and without hyphens: 295 -> "two hundred ninety five".
func Cardinal(n int64, system NumberSystem) string {
	if n == 0 {
		return ones[0]
	}

	// Work on the magnitude as uint64 so math.MinInt64 does not overflow.
	var prefix string
	u := uint64(n)
	if n < 0 {
		prefix = "minus "
		u = uint64(-(n + 1)) + 1
	}

	var words []string
	if system == Indian {
		words = indian(u)
	} else {
		words = international(u)
	}
	return prefix + strings.Join(words, " ")
}

// TitleCase capitalizes every word. A Caser is stateful, so one is built per call.
func TitleCase(s string) string {
	return cases.Title(language.English).String(s)
}

func international(n uint64) []string {
	var groups []uint64
	for n > 0 {
		groups = append(groups, n%1000)
		n /= 1000
	}

	var words []string
	for i := len(groups) - 1; i >= 0; i-- {
		if groups[i] == 0 {
			continue
		}
		words = append(words, belowThousand(groups[i])...)
		if internationalScales[i] != "" {
			words = append(words, internationalScales[i])
		}
	}
	return words
}

// indian spells n as [crores] crore [lakhs] lakh [thousands] thousand [rest].
// Crores above ninety nine are spelled recursively ("one hundred crore").
func indian(n uint64) []string {
	var words []string

	if crores := n / 10_000_000; crores > 0 {
		words = append(words, indian(crores)...)
		words = append(words, "crore")
		n %= 10_000_000
	}
	if lakhs := n / 100_000; lakhs > 0 {
		words = append(words, belowThousand(lakhs)...)
		words = append(words, "lakh")
		n %= 100_000
	}
	if thousands := n / 1000; thousands > 0 {
		words = append(words, belowThousand(thousands)...)
		words = append(words, "thousand")
		n %= 1000
	}
	if n > 0 {
		words = append(words, belowThousand(n)...)
	}
	return words
}

func belowThousand(n uint64) []string {
	var words []string
	if h := n / 100; h > 0 {
		words = append(words, ones[h], "hundred")
		n %= 100
	}
	switch {
	case n == 0:
	case n < 20:
		words = append(words, ones[n])
	default:
		words = append(words, tens[n/10])
		if n%10 != 0 {
			words = append(words, ones[n%10])
		}
	}
	return words
}
