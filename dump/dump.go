// Package dump turns a decoded save into JSON (and, for poking at unfamiliar saves, a record listing).
package dump

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"katedit/types"
)

// system classes have no BinaryLibrary record; they live in mscorlib
const SYSTEM_ASSEMBLY = "mscorlib"

// object is a JSON object that keeps its keys in insertion order.
// Member order in a save is the class's field order, which is worth keeping.
type object struct {
	keys   []string
	values []any
}

func (o *object) add(key string, value any) {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
}

func marshal(v any) ([]byte, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	// backing field names look like <coins>k__BackingField
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func (o *object) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshal(o.values[i])
		if err != nil {
			return nil, errors.WithMessagef(err, "member %v", k)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func ref(id int32) *object {
	o := &object{}
	o.add("$ref", id)
	return o
}

type converter struct {
	index *types.Index
	seen  map[int32]bool
}

// first reports whether id is being emitted for the first time, and marks it.
func (c *converter) first(id int32) bool {
	if c.seen[id] {
		return false
	}
	c.seen[id] = true
	return true
}

func (c *converter) value(v any) any {
	switch v := v.(type) {
	case types.Primitive:
		return primitive(v)
	case *types.PrimitiveTyped:
		return primitive(v.Value)
	case *types.String:
		return v.Value
	case *types.Reference:
		target := c.index.Object(v.IDRef)
		if target == nil {
			return ref(v.IDRef)
		}
		return c.value(target)
	case *types.Class:
		if !c.first(v.ObjectID) {
			return ref(v.ObjectID)
		}
		return c.class(v)
	case *types.Array:
		if !c.first(v.ObjectID) {
			return ref(v.ObjectID)
		}
		return c.array(v.Elements())
	case *types.Null, *types.NullMultiple, nil:
		return nil
	}
	return fmt.Sprintf("%v", v)
}

func (c *converter) class(cl *types.Class) any {
	switch {
	case cl.IsGuid():
		if g, ok := guid(cl); ok {
			return g
		}

	case cl.IsList():
		items, size, err := c.index.ListItems(cl)
		if err != nil {
			break
		}
		if items == nil {
			return []any{}
		}
		c.first(items.ObjectID)
		return c.array(items.Elements()[:size])

	case cl.IsDictionary():
		pairs, err := c.index.DictionaryPairs(cl)
		if err != nil {
			break
		}
		out := &object{}
		for _, p := range pairs {
			out.add(c.index.KeyString(p.Get("key")), c.value(p.Get("value")))
		}
		return out
	}

	out := &object{}
	out.add("$type", cl.Meta.Name)
	if cl.Meta.System {
		out.add("$assembly", SYSTEM_ASSEMBLY)
	} else {
		out.add("$assembly", c.index.Library(cl.Meta.Library))
	}
	for i, name := range cl.Meta.Members {
		out.add(name, c.value(cl.Values[i]))
	}
	return out
}

// Byte arrays come out as lists of ints, not base64, because elements go through []any.
func (c *converter) array(elements []any) any {
	out := make([]any, 0, len(elements))
	for _, e := range elements {
		out = append(out, c.value(e))
	}
	return out
}

// A .NET Guid is written as its fields; the string form puts them back together.
func guid(cl *types.Class) (string, bool) {
	parts := []string{}
	widths := map[string]int{"_a": 8, "_b": 4, "_c": 4}
	for i, name := range []string{"_a", "_b", "_c", "_d", "_e", "_f", "_g", "_h", "_i", "_j", "_k"} {
		p, ok := cl.Get(name).(types.Primitive)
		if !ok {
			return "", false
		}
		var n uint64
		switch v := p.Value.(type) {
		case int32:
			n = uint64(uint32(v))
		case int16:
			n = uint64(uint16(v))
		case uint8:
			n = uint64(v)
		default:
			return "", false
		}
		width, ok := widths[name]
		if !ok {
			width = 2
		}
		if i == 3 || i == 5 {
			parts = append(parts, "-")
		}
		parts = append(parts, fmt.Sprintf("%0*x", width, n))
		if i < 2 {
			parts = append(parts, "-")
		}
	}
	return strings.Join(parts, ""), true
}

func float_value(f float64, bits int) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'g', -1, bits)
	}
	return json.Number(strconv.FormatFloat(f, 'g', -1, bits))
}

func primitive(p types.Primitive) any {
	if p.Type == types.PT_CHAR {
		if r, ok := p.Value.(rune); ok {
			return string(r)
		}
	}
	switch v := p.Value.(type) {
	case float32:
		return float_value(float64(v), 32)
	case float64:
		return float_value(v, 64)
	case string:
		if p.Type == types.PT_DECIMAL {
			if _, err := strconv.ParseFloat(v, 64); err == nil && json.Valid([]byte(v)) {
				return json.Number(v)
			}
		}
		return v
	case types.DateTime:
		t := v.Time()
		out := t.Format("2006-01-02T15:04:05.0000000")
		switch v.Kind() {
		case types.DTK_UTC:
			out += "Z"
		case types.DTK_LOCAL:
			// local wall clock time, so the offset is this machine's at that time
			local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.Local)
			out += local.Format("-07:00")
		}
		return out
	case types.TimeSpan:
		return v.Duration().String()
	}
	return p.Value
}

// Value converts one value (as found by a path lookup) to something encoding/json can write.
func Value(ix *types.Index, v any) any {
	c := &converter{index: ix, seen: map[int32]bool{}}
	return c.value(v)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return errors.Wrap(enc.Encode(v), "writing JSON")
}

// Write dumps v (resolved against ix) as indented JSON.
func Write(w io.Writer, ix *types.Index, v any) error {
	return encode(w, Value(ix, v))
}

// Stream dumps the whole save, starting at the root object.
func Stream(w io.Writer, s *types.Stream) error {
	ix := s.Index()
	root, err := ix.Root()
	if err != nil {
		return err
	}
	return Write(w, ix, root)
}
