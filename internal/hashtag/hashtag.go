// Package hashtag maps raw user tag strings onto their canonical names.
//
// A canonical name is the input with surrounding whitespace removed and
// converted to lower case. Two inputs that differ only by case or surrounding
// whitespace always resolve to the same hashtag.
package hashtag

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// MaxLen is the longest canonical name accepted, in characters.
const MaxLen = 100

var (
	ErrEmpty   = errors.New("hashtag may not be blank")
	ErrTooLong = errors.New("hashtag is longer than 100 characters")
)

// Normalize returns the canonical name for raw.
func Normalize(raw string) (string, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(name) > MaxLen {
		return "", ErrTooLong
	}
	return name, nil
}

// NormalizeAll canonicalizes every tag in raw and drops repeats, keeping the
// position of each name's first occurrence. The result is never nil.
func NormalizeAll(raw []string) ([]string, error) {
	names := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, r := range raw {
		name, err := Normalize(r)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

// Filter canonicalizes a query-string filter value. An empty result matches
// no hashtag.
func Filter(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
