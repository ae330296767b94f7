// SPDX-License-Identifier: MPL-2.0

package executor

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MatchName reports whether name selects requested. Both are trimmed and
// compared case-insensitively. name must equal requested or be followed in
// it by whitespace; the text after that boundary is returned trimmed, in
// the request's original case.
func MatchName(name, requested string) (trailing string, ok bool) {
	name = strings.TrimSpace(name)
	requested = strings.TrimSpace(requested)
	if name == "" {
		return "", false
	}

	rest, ok := cutPrefixFold(requested, name)
	if !ok {
		return "", false
	}
	if rest == "" {
		return "", true
	}
	if r, _ := utf8.DecodeRuneInString(rest); !unicode.IsSpace(r) {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

// matchNames returns the longest name in names that selects requested.
func matchNames(names []string, requested string) (Match, bool) {
	var (
		best  Match
		found bool
	)
	for _, name := range names {
		trailing, ok := MatchName(name, requested)
		if !ok {
			continue
		}
		if !found || len(name) > len(best.Name) {
			best = Match{Name: name, Trailing: trailing}
			found = true
		}
	}
	return best, found
}

// cutPrefixFold removes prefix from s under Unicode case folding. Invalid
// UTF-8 bytes only match themselves.
func cutPrefixFold(s, prefix string) (string, bool) {
	for prefix != "" {
		if s == "" {
			return "", false
		}
		pr, pn := utf8.DecodeRuneInString(prefix)
		sr, sn := utf8.DecodeRuneInString(s)
		if (pr == utf8.RuneError && pn == 1) || (sr == utf8.RuneError && sn == 1) {
			if prefix[0] != s[0] {
				return "", false
			}
			pn, sn = 1, 1
		} else if !strings.EqualFold(prefix[:pn], s[:sn]) {
			return "", false
		}
		prefix = prefix[pn:]
		s = s[sn:]
	}
	return s, true
}
