package paths

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type LiteralKind int

const (
	LK_STRING LiteralKind = iota
	LK_BOOL
	LK_NULL
	LK_INT
	LK_BIG_INT // an integer too big for int64; Text holds the digits
	LK_FLOAT
)

// Literal is a parsed override value.  Text is the value as the user meant it
// (quotes removed), which is what ends up in string-typed fields.
type Literal struct {
	Kind  LiteralKind
	Text  string
	Bool  bool
	Int   int64
	Float float64
}

// ParseLiteral types an override value:
// quoted (single or double) is always a string; true/false/null in any case;
// digit strings with a leading zero stay strings ("00123");
// anything with '.' or 'e' that parses is a float; then integers; everything else is a string.
func ParseLiteral(s string) Literal {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return Literal{Kind: LK_STRING, Text: s[1 : len(s)-1]}
	}

	lower := strings.ToLower(s)
	switch lower {
	case "true":
		return Literal{Kind: LK_BOOL, Text: s, Bool: true}
	case "false":
		return Literal{Kind: LK_BOOL, Text: s, Bool: false}
	case "null":
		return Literal{Kind: LK_NULL, Text: s}
	}

	str := Literal{Kind: LK_STRING, Text: s}
	if len(s) > 1 && s[0] == '0' && s[1] >= '0' && s[1] <= '9' {
		return str
	}

	if strings.ContainsAny(lower, ".e") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return str
		}
		return Literal{Kind: LK_FLOAT, Text: s, Float: f}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err == nil {
		return Literal{Kind: LK_INT, Text: s, Int: n}
	}
	if errors.Is(err, strconv.ErrRange) {
		return Literal{Kind: LK_BIG_INT, Text: strings.TrimPrefix(s, "+")}
	}
	return str
}

func (l Literal) Numeric() bool {
	return l.Kind == LK_INT || l.Kind == LK_BIG_INT || l.Kind == LK_FLOAT
}
