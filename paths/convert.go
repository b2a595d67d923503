package paths

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"

	"katedit/types"
)

// Layouts accepted for DateTime fields, most specific first.
var date_layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func int_in_range(lit Literal, lo, hi int64) (int64, bool) {
	if lit.Kind != LK_INT || lit.Int < lo || lit.Int > hi {
		return 0, false
	}
	return lit.Int, true
}

// primitive converts a literal to a primitive of exactly type pt, or explains why not.
// old is the value being replaced, if any; DateTime fields keep its kind.
func primitive(lit Literal, pt types.PrimitiveType, old any) (types.Primitive, error) {
	out := types.Primitive{Type: pt}
	bad := func(why string) (types.Primitive, error) {
		return out, errors.Errorf("cannot store %v in a %v field: %v", lit.Text, pt, why)
	}

	if lit.Kind == LK_NULL {
		if pt == types.PT_NULL {
			return out, nil
		}
		return bad("it cannot be null")
	}

	if pt.Integer() {
		if lit.Kind != LK_INT && lit.Kind != LK_BIG_INT {
			return bad("not an integer")
		}
		ranges := map[types.PrimitiveType][2]int64{
			types.PT_BYTE:   {0, math.MaxUint8},
			types.PT_SBYTE:  {math.MinInt8, math.MaxInt8},
			types.PT_INT16:  {math.MinInt16, math.MaxInt16},
			types.PT_UINT16: {0, math.MaxUint16},
			types.PT_INT32:  {math.MinInt32, math.MaxInt32},
			types.PT_UINT32: {0, math.MaxUint32},
			types.PT_INT64:  {math.MinInt64, math.MaxInt64},
		}
		if pt == types.PT_UINT64 {
			n, err := strconv.ParseUint(strings.TrimPrefix(lit.Text, "+"), 10, 64)
			if err != nil {
				return bad("out of range")
			}
			out.Value = n
			return out, nil
		}
		r := ranges[pt]
		n, ok := int_in_range(lit, r[0], r[1])
		if !ok {
			return bad("out of range")
		}
		switch pt {
		case types.PT_BYTE:
			out.Value = uint8(n)
		case types.PT_SBYTE:
			out.Value = int8(n)
		case types.PT_INT16:
			out.Value = int16(n)
		case types.PT_UINT16:
			out.Value = uint16(n)
		case types.PT_INT32:
			out.Value = int32(n)
		case types.PT_UINT32:
			out.Value = uint32(n)
		case types.PT_INT64:
			out.Value = n
		}
		return out, nil
	}

	switch pt {
	case types.PT_BOOLEAN:
		if lit.Kind != LK_BOOL {
			return bad("not true or false")
		}
		out.Value = lit.Bool

	case types.PT_DOUBLE, types.PT_SINGLE:
		if !lit.Numeric() {
			return bad("not a number")
		}
		f, err := strconv.ParseFloat(lit.Text, 64)
		if err != nil {
			return bad(err.Error())
		}
		if pt == types.PT_DOUBLE {
			out.Value = f
		} else {
			if math.Abs(f) > math.MaxFloat32 {
				return bad("out of range")
			}
			out.Value = float32(f)
		}

	case types.PT_DECIMAL:
		switch lit.Kind {
		case LK_INT, LK_BIG_INT:
			out.Value = strings.TrimPrefix(lit.Text, "+")
		case LK_FLOAT:
			// .NET parses decimals without exponent support
			out.Value = strconv.FormatFloat(lit.Float, 'f', -1, 64)
		default:
			return bad("not a number")
		}

	case types.PT_CHAR:
		if utf8.RuneCountInString(lit.Text) != 1 {
			return bad("not a single character")
		}
		r, _ := utf8.DecodeRuneInString(lit.Text)
		out.Value = r

	case types.PT_STRING:
		out.Value = lit.Text

	case types.PT_DATETIME:
		kind := types.DTK_UNSPECIFIED
		if p, ok := old.(types.Primitive); ok {
			if dt, ok := p.Value.(types.DateTime); ok {
				kind = dt.Kind()
			}
		}
		for _, layout := range date_layouts {
			t, err := time.Parse(layout, lit.Text)
			if err == nil {
				out.Value = types.MakeDateTime(t.UTC(), kind)
				return out, nil
			}
		}
		return bad("not a date (try 2006-01-02T15:04:05Z)")

	case types.PT_TIMESPAN:
		if lit.Kind == LK_INT {
			out.Value = types.TimeSpan(lit.Int)
			return out, nil
		}
		d, err := time.ParseDuration(lit.Text)
		if err != nil {
			return bad("not a tick count or a duration like 1h30m")
		}
		out.Value = types.TimeSpan(d / 100)

	case types.PT_NULL:
		return bad("only null fits")

	default:
		return bad("unsupported field type")
	}
	return out, nil
}

// infer picks a primitive type for a value going into an untyped (Object) slot.
func infer(lit Literal) (types.Primitive, bool) {
	switch lit.Kind {
	case LK_BOOL:
		return types.Primitive{Type: types.PT_BOOLEAN, Value: lit.Bool}, true
	case LK_INT:
		if lit.Int >= math.MinInt32 && lit.Int <= math.MaxInt32 {
			return types.Primitive{Type: types.PT_INT32, Value: int32(lit.Int)}, true
		}
		return types.Primitive{Type: types.PT_INT64, Value: lit.Int}, true
	case LK_BIG_INT:
		return types.Primitive{Type: types.PT_DECIMAL, Value: lit.Text}, true
	case LK_FLOAT:
		return types.Primitive{Type: types.PT_DOUBLE, Value: lit.Float}, true
	}
	return types.Primitive{}, false
}

// convert builds the new slot value for a literal, keeping the slot's declared type.
// old is the (resolved) value currently in the slot.
func (e *Editor) convert(lit Literal, mt types.MemberType, old any) (any, error) {
	switch mt.Binary {
	case types.BT_PRIMITIVE:
		return primitive(lit, mt.Primitive, old)

	case types.BT_STRING:
		if lit.Kind == LK_NULL {
			return &types.Null{}, nil
		}
		// A fresh object rather than an in-place edit: the old string may be referenced from elsewhere.
		return &types.String{ObjectID: e.index.NextID(), Value: lit.Text}, nil

	case types.BT_OBJECT:
		if lit.Kind == LK_NULL {
			return &types.Null{}, nil
		}
		if pt, ok := old.(*types.PrimitiveTyped); ok && lit.Kind != LK_STRING {
			// Boxed primitive: keep its type if the new value fits
			if p, err := primitive(lit, pt.Value.Type, old); err == nil {
				return &types.PrimitiveTyped{Value: p}, nil
			}
		}
		if p, ok := infer(lit); ok {
			return &types.PrimitiveTyped{Value: p}, nil
		}
		return &types.String{ObjectID: e.index.NextID(), Value: lit.Text}, nil
	}

	if lit.Kind == LK_NULL {
		return &types.Null{}, nil
	}
	return nil, errors.Errorf("cannot store %v in a %v field: only null can replace an object", lit.Text, mt)
}
