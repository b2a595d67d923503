package paths

// Path syntax:
//
//	coins                         member of the root object
//	userSettings.energyCap        dot for members
//	paths[0].memberIDs[2]         brackets for list/array indices
//	inventory.potion              members of a Dictionary<K,V> are its keys
//	["<Coins>k__BackingField"]    quoted brackets for names that are not identifiers

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Step struct {
	Key     string
	Index   int
	IsIndex bool
}

func (s Step) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	if !plain(s.Key) {
		return "[" + strconv.Quote(s.Key) + "]"
	}
	return "." + s.Key
}

// plain keys can be written with a dot
func plain(key string) bool {
	if key == "" || !is_ident_start(key[0]) {
		return false
	}
	for i := 1; i < len(key); i++ {
		if !is_ident(key[i]) {
			return false
		}
	}
	return true
}

func is_ident_start(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func is_ident(c byte) bool {
	return is_ident_start(c) || (c >= '0' && c <= '9')
}

// Parse splits a path expression into steps.
func Parse(s string) ([]Step, error) {
	steps := []Step{}
	pos := 0

	ident := func() string {
		start := pos
		for pos < len(s) && is_ident(s[pos]) {
			pos++
		}
		return s[start:pos]
	}

	for pos < len(s) {
		c := s[pos]
		switch {
		case pos == 0 && is_ident_start(c):
			steps = append(steps, Step{Key: ident()})

		case c == '.':
			pos++
			if pos >= len(s) || !is_ident_start(s[pos]) {
				return nil, errors.Errorf("invalid path near: %v", s[pos-1:])
			}
			steps = append(steps, Step{Key: ident()})

		case c == '[':
			end := strings.IndexByte(s[pos:], ']')
			if end < 0 {
				return nil, errors.Errorf("unterminated [ in path near: %v", s[pos:])
			}
			inner := s[pos+1 : pos+end]
			step, err := parse_bracket(inner)
			if err != nil {
				return nil, errors.WithMessagef(err, "invalid path near: %v", s[pos:])
			}
			steps = append(steps, step)
			pos += end + 1

		default:
			return nil, errors.Errorf("invalid path near: %v", s[pos:])
		}
	}

	if len(steps) == 0 {
		return nil, errors.New("empty path")
	}
	return steps, nil
}

func parse_bracket(inner string) (Step, error) {
	if len(inner) >= 2 && (inner[0] == '"' || inner[0] == '\'') && inner[len(inner)-1] == inner[0] {
		return Step{Key: inner[1 : len(inner)-1]}, nil
	}
	if inner == "" {
		return Step{}, errors.New("empty index")
	}
	for i := 0; i < len(inner); i++ {
		if inner[i] < '0' || inner[i] > '9' {
			return Step{}, errors.Errorf("index %q is not a number (quote it to use it as a key)", inner)
		}
	}
	n, err := strconv.Atoi(inner)
	if err != nil {
		return Step{}, errors.Wrapf(err, "index %q", inner)
	}
	return Step{Index: n, IsIndex: true}, nil
}

func Format(steps []Step) string {
	out := ""
	for i, s := range steps {
		str := s.String()
		if i == 0 && !s.IsIndex && plain(s.Key) {
			str = s.Key
		}
		out += str
	}
	return out
}
