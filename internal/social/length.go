package social

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// URLLength is the weight of any link once the service wraps it.
const URLLength = 23

// Character weights follow the service's counting rules: Latin and common
// punctuation weigh 1, everything else (CJK, emoji) weighs 2.
var lightRanges = []struct{ lo, hi rune }{
	{0x0000, 0x10FF},
	{0x2000, 0x200D},
	{0x2010, 0x201F},
	{0x2032, 0x2037},
}

// Length returns the weighted length of text as the posting API counts it.
// Links count as URLLength. Tokens that might be auto-linked (bare domains)
// are charged URLLength on top of their own weight, so the result can
// overestimate but never underestimates.
func Length(text string) int {
	n := 0
	for len(text) > 0 {
		i := strings.IndexFunc(text, unicode.IsSpace)
		if i == 0 {
			r, size := utf8.DecodeRuneInString(text)
			n += runeWeight(r)
			text = text[size:]
			continue
		}
		token := text
		if i > 0 {
			token = text[:i]
		}
		text = text[len(token):]
		n += tokenWeight(token)
	}
	return n
}

// Fits reports whether text is within MaxPostLength.
func Fits(text string) bool {
	return Length(text) <= MaxPostLength
}

func tokenWeight(token string) int {
	switch {
	case isPlainLink(token):
		return URLLength
	case strings.Contains(token, "://") || hasDottedName(token):
		return URLLength + weight(token)
	default:
		return weight(token)
	}
}

func weight(s string) int {
	n := 0
	for _, r := range s {
		n += runeWeight(r)
	}
	return n
}

func runeWeight(r rune) int {
	for _, lr := range lightRanges {
		if r >= lr.lo && r <= lr.hi {
			return 1
		}
	}
	return 2
}

// isPlainLink matches an http(s) link with nothing around it that the
// service would count separately.
func isPlainLink(token string) bool {
	rest, ok := strings.CutPrefix(token, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(token, "http://")
	}
	if !ok || rest == "" {
		return false
	}
	if strings.ContainsAny(token[len(token)-1:], ".,:;!?)]}'\"") {
		return false
	}
	for _, r := range rest {
		if r > unicode.MaxASCII || !(isAlnum(r) || strings.ContainsRune("-._~:/?#[]@!$&'()*+,;=%", r)) {
			return false
		}
	}
	return true
}

// hasDottedName reports a token that looks like a domain, as in "serde.rs":
// dot-separated labels ending in an alphabetic top-level label.
func hasDottedName(token string) bool {
	token = strings.TrimRight(token, ".,:;!?)]}'\"")
	labels := strings.Split(token, ".")
	if len(labels) < 2 || labels[0] == "" {
		return false
	}
	tld := labels[len(labels)-1]
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isAlnum(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}
