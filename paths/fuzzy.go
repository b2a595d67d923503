package paths

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

// smash smashes "funny characters" (anything that's remotely tricky to type into a command line) into '_'
func smash(in string) string {
	out := []rune{}
	for _, c := range in {
		if unicode.IsLetter(c) || unicode.IsDigit(c) {
			out = append(out, c)
		} else {
			out = append(out, '_')
		}
	}
	return string(out)
}

// backing_name turns a compiler-generated auto-property field name ("<Coins>k__BackingField") into the property name.
func backing_name(member string) string {
	if strings.HasPrefix(member, "<") {
		if end := strings.Index(member, ">k__BackingField"); end > 0 {
			return member[1:end]
		}
	}
	return member
}

// name matching functions, in strictly increasing order of desperation
var fuzzy = []func(input string, candidate string) bool{
	func(i string, c string) bool { return i == c },
	func(i string, c string) bool { return strings.EqualFold(i, c) },
	func(i string, c string) bool { return strings.EqualFold(i, backing_name(c)) },
	func(i string, c string) bool {
		return smash(strings.ToUpper(i)) == smash(strings.ToUpper(backing_name(c)))
	},
}

// match finds input among candidates.  The first level of fuzziness that matches anything decides:
// one match is the answer, more than one is ambiguous.
//
// what: the kind of thing being looked for, as a human-readable string, for error messages
func match(candidates []string, input string, what string) (int, error) {
	for _, m := range fuzzy {
		matches := []int{}
		for i, c := range candidates {
			if m(input, c) {
				matches = append(matches, i)
			}
		}
		if len(matches) == 0 {
			continue
		}
		if len(matches) > 1 {
			names := []string{}
			for _, i := range matches {
				names = append(names, candidates[i])
			}
			return -1, errors.Errorf("ambiguous %v %q could be any of {%v}", what, input, strings.Join(names, ", "))
		}
		return matches[0], nil
	}

	return -1, errors.Errorf("%q could not be matched to a %v (have: %v)", input, what, strings.Join(candidates, ", "))
}
