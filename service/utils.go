package service

import (
	"regexp"
	"strings"
)

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Pop removes the string from the set
func (ss StringSet) Pop(s string) {
	delete(ss, s)
}

// Slice returns a slice from the set
func (ss StringSet) Slice() []string {
	sl := make([]string, 0, len(ss))
	for k := range ss {
		sl = append(sl, k)
	}
	return sl
}

// Exists returns true if the string already exists in the Set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

/**
 * FormatBrackets replaces in <str> all {keys} of <info> by the corresponding value
 * Unknown keys are left untouched.
 */
func FormatBrackets(str string, infos ...map[string]string) string {
	for _, info := range infos {
		for k, v := range info {
			str = strings.ReplaceAll(str, "{"+k+"}", v)
		}
	}
	return str
}

// Truncate shortens the string to at most n runes
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

var slugRegexp = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Slugify turns an arbitrary identifier into a filesystem-safe name
func Slugify(s string) string {
	s = slugRegexp.ReplaceAllString(strings.TrimSpace(s), "-")
	return strings.Trim(s, "-")
}
