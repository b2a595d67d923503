package writers

// BinaryFormatter (MS-NRBF) stream writer; the mirror image of readers.
// A stream that has been read and not modified is written back byte for byte.

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"

	"katedit/types"
)

type encoder struct {
	w *bufio.Writer
	// Sticky error: once something fails, everything else is a no-op
	err error
}

func WriteStream(w io.Writer, s *types.Stream) error {
	e := &encoder{w: bufio.NewWriter(w)}

	e.write_byte(byte(types.RT_HEADER))
	e.write_int32(s.Header.RootID)
	e.write_int32(s.Header.HeaderID)
	e.write_int32(s.Header.Major)
	e.write_int32(s.Header.Minor)

	for i, rec := range s.Records {
		e.write_record(rec)
		if e.err != nil {
			return errors.WithMessagef(e.err, "top-level record %v (%v)", i, rec.Type())
		}
	}
	e.write_byte(byte(types.RT_MESSAGE_END))

	if e.err != nil {
		return e.err
	}
	return e.w.Flush()
}

func (e *encoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = errors.Errorf(format, args...)
	}
}

func (e *encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

func (e *encoder) write_byte(b byte) {
	e.write([]byte{b})
}

func (e *encoder) write_int32(i int32) {
	e.write(binary.LittleEndian.AppendUint32(nil, uint32(i)))
}

// write_string writes a LengthPrefixedString (7-bit varint length, then UTF-8)
func (e *encoder) write_string(s string) {
	length := uint32(len(s))
	prefix := []byte{}
	for length >= 0x80 {
		prefix = append(prefix, byte(length)|0x80)
		length >>= 7
	}
	prefix = append(prefix, byte(length))
	e.write(prefix)
	e.write([]byte(s))
}

func (e *encoder) write_primitive(p types.Primitive) {
	wrong := func() {
		e.fail("%v primitive holds a %T (%v)", p.Type, p.Value, p.Value)
	}
	le := binary.LittleEndian

	switch p.Type {
	case types.PT_BOOLEAN:
		v, ok := p.Value.(bool)
		if !ok {
			wrong()
			return
		}
		b := byte(0)
		if v {
			b = 1
		}
		e.write_byte(b)
	case types.PT_BYTE:
		v, ok := p.Value.(uint8)
		if !ok {
			wrong()
			return
		}
		e.write_byte(v)
	case types.PT_SBYTE:
		v, ok := p.Value.(int8)
		if !ok {
			wrong()
			return
		}
		e.write_byte(byte(v))
	case types.PT_INT16:
		v, ok := p.Value.(int16)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint16(nil, uint16(v)))
	case types.PT_UINT16:
		v, ok := p.Value.(uint16)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint16(nil, v))
	case types.PT_INT32:
		v, ok := p.Value.(int32)
		if !ok {
			wrong()
			return
		}
		e.write_int32(v)
	case types.PT_UINT32:
		v, ok := p.Value.(uint32)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint32(nil, v))
	case types.PT_SINGLE:
		v, ok := p.Value.(float32)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint32(nil, math.Float32bits(v)))
	case types.PT_INT64:
		v, ok := p.Value.(int64)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint64(nil, uint64(v)))
	case types.PT_UINT64:
		v, ok := p.Value.(uint64)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint64(nil, v))
	case types.PT_DOUBLE:
		v, ok := p.Value.(float64)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint64(nil, math.Float64bits(v)))
	case types.PT_TIMESPAN:
		v, ok := p.Value.(types.TimeSpan)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint64(nil, uint64(v)))
	case types.PT_DATETIME:
		v, ok := p.Value.(types.DateTime)
		if !ok {
			wrong()
			return
		}
		e.write(le.AppendUint64(nil, uint64(v)))
	case types.PT_CHAR:
		v, ok := p.Value.(rune)
		if !ok || !utf8.ValidRune(v) {
			wrong()
			return
		}
		e.write(utf8.AppendRune(nil, v))
	case types.PT_DECIMAL, types.PT_STRING:
		v, ok := p.Value.(string)
		if !ok {
			wrong()
			return
		}
		e.write_string(v)
	case types.PT_NULL:
		if p.Value != nil {
			wrong()
		}
	default:
		e.fail("primitive type %v has no wire format", p.Type)
	}
}

func (e *encoder) write_member_type_info(mt types.MemberType) {
	switch mt.Binary {
	case types.BT_PRIMITIVE, types.BT_PRIMITIVE_ARRAY:
		e.write_byte(byte(mt.Primitive))
	case types.BT_SYSTEM_CLASS:
		e.write_string(mt.Class)
	case types.BT_CLASS:
		e.write_string(mt.Class)
		e.write_int32(mt.Library)
	}
}

func (e *encoder) write_libraries(libs []*types.Library) {
	for _, lib := range libs {
		e.write_record(lib)
	}
}

func (e *encoder) write_record(v any) {
	if e.err != nil {
		return
	}
	switch r := v.(type) {
	case *types.Library:
		e.write_byte(byte(types.RT_LIBRARY))
		e.write_int32(r.ID)
		e.write_string(r.Name)

	case *types.Class:
		e.write_libraries(r.Libraries)
		e.write_class(r)

	case *types.Array:
		e.write_libraries(r.Libraries)
		e.write_array(r)

	case *types.String:
		e.write_byte(byte(types.RT_STRING))
		e.write_int32(r.ObjectID)
		e.write_string(r.Value)

	case *types.PrimitiveTyped:
		if r.Value.Type == types.PT_NULL || r.Value.Type == types.PT_STRING {
			e.fail("MemberPrimitiveTyped cannot hold a %v", r.Value.Type)
			return
		}
		e.write_byte(byte(types.RT_MEMBER_PRIMITIVE_TYPED))
		e.write_byte(byte(r.Value.Type))
		e.write_primitive(r.Value)

	case *types.Reference:
		e.write_byte(byte(types.RT_MEMBER_REFERENCE))
		e.write_int32(r.IDRef)

	case *types.Null:
		e.write_byte(byte(types.RT_NULL))

	case *types.NullMultiple:
		if r.Small {
			if r.Count > 255 {
				e.fail("null run of %v does not fit ObjectNullMultiple256", r.Count)
				return
			}
			e.write_byte(byte(types.RT_NULL_MULTIPLE_256))
			e.write_byte(byte(r.Count))
		} else {
			e.write_byte(byte(types.RT_NULL_MULTIPLE))
			e.write_int32(r.Count)
		}

	case types.Primitive:
		e.fail("inline %v primitive where a record was expected", r.Type)

	default:
		e.fail("cannot write %T as a record", v)
	}
}

func (e *encoder) write_class(c *types.Class) {
	e.write_byte(byte(c.Type()))
	e.write_int32(c.ObjectID)

	meta := c.Meta
	if c.ViaID {
		e.write_int32(meta.ObjectID)
	} else {
		e.write_string(meta.Name)
		e.write_int32(int32(len(meta.Members)))
		for _, name := range meta.Members {
			e.write_string(name)
		}
		if meta.Typed() {
			for _, mt := range meta.Types {
				e.write_byte(byte(mt.Binary))
			}
			for _, mt := range meta.Types {
				e.write_member_type_info(mt)
			}
		}
		if !meta.System {
			e.write_int32(meta.Library)
		}
	}

	if len(c.Values) != len(meta.Members) {
		e.fail("%v object %v has %v values for %v members", meta.Name, c.ObjectID, len(c.Values), len(meta.Members))
		return
	}
	for i, v := range c.Values {
		e.write_slot(meta.MemberType(i), v)
		if e.err != nil {
			e.err = errors.WithMessagef(e.err, "member %v of %v", meta.Members[i], meta.Name)
			return
		}
	}
}

// write_slot writes one member or element: raw for primitive slots, a record otherwise.
func (e *encoder) write_slot(mt types.MemberType, v any) {
	if mt.Binary != types.BT_PRIMITIVE {
		e.write_record(v)
		return
	}
	p, ok := v.(types.Primitive)
	if !ok {
		e.fail("%v slot holds a %T", mt, v)
		return
	}
	if p.Type != mt.Primitive {
		e.fail("%v slot holds a %v", mt, p.Type)
		return
	}
	e.write_primitive(p)
}

func (e *encoder) write_array(a *types.Array) {
	e.write_byte(byte(a.Shape))
	e.write_int32(a.ObjectID)

	switch a.Shape {
	case types.RT_BINARY_ARRAY:
		e.write_byte(byte(a.Kind))
		e.write_int32(int32(len(a.Lengths)))
		for _, l := range a.Lengths {
			e.write_int32(l)
		}
		if a.Kind.HasLowerBounds() {
			if len(a.LowerBounds) != len(a.Lengths) {
				e.fail("array %v has %v lower bounds for rank %v", a.ObjectID, len(a.LowerBounds), len(a.Lengths))
				return
			}
			for _, l := range a.LowerBounds {
				e.write_int32(l)
			}
		}
		e.write_byte(byte(a.Elem.Binary))
		e.write_member_type_info(a.Elem)

	case types.RT_ARRAY_SINGLE_PRIMITIVE, types.RT_ARRAY_SINGLE_OBJECT, types.RT_ARRAY_SINGLE_STRING:
		if len(a.Lengths) != 1 {
			e.fail("single-dimension array %v has rank %v", a.ObjectID, len(a.Lengths))
			return
		}
		e.write_int32(a.Lengths[0])
		if a.Shape == types.RT_ARRAY_SINGLE_PRIMITIVE {
			e.write_byte(byte(a.Elem.Primitive))
		}

	default:
		e.fail("%v is not an array record", a.Shape)
		return
	}

	covered := 0
	for i, v := range a.Values {
		e.write_slot(a.Elem, v)
		if e.err != nil {
			e.err = errors.WithMessagef(e.err, "element %v of array %v", i, a.ObjectID)
			return
		}
		if nm, ok := v.(*types.NullMultiple); ok {
			covered += int(nm.Count)
		} else {
			covered++
		}
	}
	if covered != a.Len() {
		e.fail("array %v has %v elements but claims length %v", a.ObjectID, covered, a.Len())
	}
}
