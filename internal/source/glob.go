package source

import (
	"regexp"
	"strings"
)

// globRegexp compiles a shell-style wildcard pattern into an anchored regexp.
// Unlike path.Match, "*" and "?" also match "/", so "*.sav" matches every
// .sav object under a prefix. Supported syntax: "*", "?", "[seq]" and
// "[!seq]"; an unterminated "[" is a literal bracket.
func globRegexp(pattern string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)\A`)

	for i, n := 0, len(pattern); i < n; {
		c := pattern[i]
		i++
		switch c {
		case '*':
			for i < n && pattern[i] == '*' {
				i++
			}
			b.WriteString(`.*`)
		case '?':
			b.WriteString(`.`)
		case '[':
			j := i
			if j < n && pattern[j] == '!' {
				j++
			}
			if j < n && pattern[j] == ']' {
				j++
			}
			for j < n && pattern[j] != ']' {
				j++
			}
			if j >= n {
				b.WriteString(`\[`)
				continue
			}
			set := pattern[i:j]
			i = j + 1
			b.WriteString(bracketClass(set))
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}

	b.WriteString(`\z`)
	return regexp.Compile(b.String())
}

// bracketClass renders the body of a "[...]" set as a regexp class.
func bracketClass(set string) string {
	negate := strings.HasPrefix(set, "!")
	if negate {
		set = set[1:]
	}

	var b strings.Builder
	b.WriteByte('[')
	if negate {
		b.WriteByte('^')
	}
	for _, r := range set {
		switch r {
		case '\\', '[', ']', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte(']')
	return b.String()
}
