// Package phone normalizes Vietnamese phone numbers between the local
// trunk-prefix form (0xxxxxxxxx) and the international form (+84xxxxxxxxx).
package phone

import "strings"

const (
	countryCode = "84"
	trunkPrefix = "0"
)

// Clean strips whitespace, dots and dashes.
func Clean(raw string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '(', ')', '\t':
			return -1
		}
		return r
	}, raw)
}

// ToInternational converts 0xxx and 84xxx to +84xxx. Other values are returned cleaned.
func ToInternational(raw string) string {
	p := Clean(raw)
	switch {
	case strings.HasPrefix(p, "+"):
		return p
	case strings.HasPrefix(p, trunkPrefix):
		return "+" + countryCode + strings.TrimPrefix(p, trunkPrefix)
	case strings.HasPrefix(p, countryCode):
		return "+" + p
	}
	return p
}

// ToLocal converts +84xxx and 84xxx to 0xxx. Other values are returned cleaned.
func ToLocal(raw string) string {
	p := Clean(raw)
	switch {
	case strings.HasPrefix(p, "+"+countryCode):
		return trunkPrefix + strings.TrimPrefix(p, "+"+countryCode)
	case strings.HasPrefix(p, countryCode) && len(p) > 10:
		return trunkPrefix + strings.TrimPrefix(p, countryCode)
	}
	return p
}

// Candidates returns the lookup order used to resolve an owner: the raw value,
// then the international form, then the local form, without repeats.
func Candidates(raw string) []string {
	out := make([]string, 0, 3)
	seen := make(map[string]bool, 3)
	for _, c := range []string{strings.TrimSpace(raw), ToInternational(raw), ToLocal(raw)} {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

// Valid accepts E.164-ish numbers: optional leading +, then 8 to 15 digits.
func Valid(raw string) bool {
	p := strings.TrimPrefix(Clean(raw), "+")
	if len(p) < 8 || len(p) > 15 {
		return false
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
