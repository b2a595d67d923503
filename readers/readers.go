package readers

// BinaryFormatter (MS-NRBF) stream reader.
//
// Stream format:
//
// 1 SerializedStreamHeader: record type 0, then RootId, HeaderId, MajorVersion, MinorVersion (int32 each, little-endian)
// 2 Records, each starting with a RecordTypeEnumeration byte
// 3 MessageEnd: record type 11
//
// Records nest: a class record is followed directly by its member values, and
// any member that is not a primitive is itself a record (often just a
// MemberReference to an object that is written later at the top level).
// Member values of primitive type are written raw, with no record byte.

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"unicode/utf8"

	"github.com/pkg/errors"

	"katedit/types"
)

// MAX_RANK is the most dimensions a .NET array can have.
const MAX_RANK = 32

// Reads bigger than this grow their buffer as the bytes arrive, so a corrupt
// length costs no more memory than the input actually holds.
const small_read = 64 * 1024

type decoder struct {
	r      *bufio.Reader
	offset int64
	metas  map[int32]*types.ClassMeta
}

// ReadStream decodes a whole BinaryFormatter payload.
func ReadStream(r io.Reader) (*types.Stream, error) {
	d := &decoder{r: bufio.NewReader(r), metas: map[int32]*types.ClassMeta{}}

	rt, err := d.read_byte()
	if err != nil {
		return nil, errors.Wrap(err, "reading stream header")
	}
	if types.RecordType(rt) != types.RT_HEADER {
		return nil, errors.Errorf("not a BinaryFormatter stream: first record is %v", types.RecordType(rt))
	}
	out := &types.Stream{}
	for _, field := range []*int32{&out.Header.RootID, &out.Header.HeaderID, &out.Header.Major, &out.Header.Minor} {
		*field, err = d.read_int32()
		if err != nil {
			return nil, errors.Wrap(err, "reading stream header")
		}
	}
	if out.Header.Major != 1 || out.Header.Minor != 0 {
		return nil, errors.Errorf("unsupported stream version %v.%v", out.Header.Major, out.Header.Minor)
	}

	for {
		start := d.offset
		rec, err := d.read_record()
		if err != nil {
			return nil, errors.WithMessagef(err, "record at offset %v", start)
		}
		if rec == nil {
			// MessageEnd
			return out, nil
		}
		out.Records = append(out.Records, rec)
	}
}

func (d *decoder) read_fixed(size int) ([]byte, error) {
	if size > small_read {
		into, err := io.ReadAll(io.LimitReader(d.r, int64(size)))
		d.offset += int64(len(into))
		if err == nil && len(into) < size {
			err = io.ErrUnexpectedEOF
		}
		if err != nil {
			return nil, errors.Wrapf(err, "reading %v bytes at offset %v", size, d.offset)
		}
		return into, nil
	}

	into := make([]byte, size)
	n, err := io.ReadFull(d.r, into)
	d.offset += int64(n)
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %v bytes at offset %v", size, d.offset)
	}
	return into, nil
}

func (d *decoder) read_byte() (byte, error) {
	b, err := d.read_fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *decoder) read_int32() (int32, error) {
	b, err := d.read_fixed(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

// read_count reads an int32 that must not be negative (lengths, member counts...)
func (d *decoder) read_count(what string) (int, error) {
	n, err := d.read_int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.Errorf("negative %v (%v) at offset %v", what, n, d.offset-4)
	}
	return int(n), nil
}

// read_string reads a LengthPrefixedString: 7 bits of length per byte, high bit means "more", at most 5 bytes.
func (d *decoder) read_string() (string, error) {
	length := 0
	for i := 0; ; i++ {
		if i == 5 {
			return "", errors.Errorf("string length prefix too long at offset %v", d.offset)
		}
		b, err := d.read_byte()
		if err != nil {
			return "", err
		}
		length |= int(b&0x7F) << (7 * i)
		if b&0x80 == 0 {
			break
		}
	}
	if length > math.MaxInt32 {
		return "", errors.Errorf("string length %v out of range at offset %v", length, d.offset)
	}
	b, err := d.read_fixed(length)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) read_char() (rune, error) {
	first, err := d.read_byte()
	if err != nil {
		return 0, err
	}
	size := 1
	switch {
	case first&0xE0 == 0xC0:
		size = 2
	case first&0xF0 == 0xE0:
		size = 3
	case first&0xF8 == 0xF0:
		size = 4
	}
	buf := []byte{first}
	if size > 1 {
		rest, err := d.read_fixed(size - 1)
		if err != nil {
			return 0, err
		}
		buf = append(buf, rest...)
	}
	r, _ := utf8.DecodeRune(buf)
	if r == utf8.RuneError {
		return 0, errors.Errorf("invalid UTF-8 char at offset %v", d.offset-int64(size))
	}
	return r, nil
}

func (d *decoder) read_primitive_type() (types.PrimitiveType, error) {
	b, err := d.read_byte()
	if err != nil {
		return 0, err
	}
	pt := types.PrimitiveType(b)
	if !pt.Valid() {
		return 0, errors.Errorf("unknown primitive type %v at offset %v", b, d.offset-1)
	}
	return pt, nil
}

func (d *decoder) read_primitive(pt types.PrimitiveType) (types.Primitive, error) {
	out := types.Primitive{Type: pt}
	var err error
	var b []byte

	fixed := map[types.PrimitiveType]int{
		types.PT_BOOLEAN: 1, types.PT_BYTE: 1, types.PT_SBYTE: 1,
		types.PT_INT16: 2, types.PT_UINT16: 2,
		types.PT_INT32: 4, types.PT_UINT32: 4, types.PT_SINGLE: 4,
		types.PT_INT64: 8, types.PT_UINT64: 8, types.PT_DOUBLE: 8, types.PT_TIMESPAN: 8, types.PT_DATETIME: 8,
	}
	if size, ok := fixed[pt]; ok {
		b, err = d.read_fixed(size)
		if err != nil {
			return out, err
		}
	}

	switch pt {
	case types.PT_BOOLEAN:
		out.Value = b[0] != 0
	case types.PT_BYTE:
		out.Value = b[0]
	case types.PT_SBYTE:
		out.Value = int8(b[0])
	case types.PT_INT16:
		out.Value = int16(binary.LittleEndian.Uint16(b))
	case types.PT_UINT16:
		out.Value = binary.LittleEndian.Uint16(b)
	case types.PT_INT32:
		out.Value = int32(binary.LittleEndian.Uint32(b))
	case types.PT_UINT32:
		out.Value = binary.LittleEndian.Uint32(b)
	case types.PT_SINGLE:
		out.Value = math.Float32frombits(binary.LittleEndian.Uint32(b))
	case types.PT_INT64:
		out.Value = int64(binary.LittleEndian.Uint64(b))
	case types.PT_UINT64:
		out.Value = binary.LittleEndian.Uint64(b)
	case types.PT_DOUBLE:
		out.Value = math.Float64frombits(binary.LittleEndian.Uint64(b))
	case types.PT_TIMESPAN:
		out.Value = types.TimeSpan(int64(binary.LittleEndian.Uint64(b)))
	case types.PT_DATETIME:
		out.Value = types.DateTime(binary.LittleEndian.Uint64(b))
	case types.PT_CHAR:
		out.Value, err = d.read_char()
	case types.PT_DECIMAL, types.PT_STRING:
		out.Value, err = d.read_string()
	case types.PT_NULL:
		out.Value = nil
	default:
		err = errors.Errorf("primitive type %v has no wire format", pt)
	}
	return out, err
}

// read_member_type reads the AdditionalInfo for one BinaryTypeEnumeration
func (d *decoder) read_member_type(bt types.BinaryType) (types.MemberType, error) {
	mt := types.MemberType{Binary: bt}
	var err error
	switch bt {
	case types.BT_PRIMITIVE, types.BT_PRIMITIVE_ARRAY:
		mt.Primitive, err = d.read_primitive_type()
	case types.BT_SYSTEM_CLASS:
		mt.Class, err = d.read_string()
	case types.BT_CLASS:
		mt.Class, err = d.read_string()
		if err == nil {
			mt.Library, err = d.read_int32()
		}
	case types.BT_STRING, types.BT_OBJECT, types.BT_OBJECT_ARRAY, types.BT_STRING_ARRAY:
		// no additional info
	default:
		err = errors.Errorf("unknown binary type %v at offset %v", byte(bt), d.offset)
	}
	return mt, err
}

func (d *decoder) read_binary_type() (types.BinaryType, error) {
	b, err := d.read_byte()
	return types.BinaryType(b), err
}

// read_record reads one record of any kind.  MessageEnd comes back as nil, nil.
func (d *decoder) read_record() (types.Record, error) {
	b, err := d.read_byte()
	if err != nil {
		return nil, err
	}
	rt := types.RecordType(b)

	switch rt {
	case types.RT_MESSAGE_END:
		return nil, nil

	case types.RT_LIBRARY:
		lib := &types.Library{}
		if lib.ID, err = d.read_int32(); err != nil {
			return nil, err
		}
		if lib.Name, err = d.read_string(); err != nil {
			return nil, err
		}
		return lib, nil

	case types.RT_CLASS_WITH_ID,
		types.RT_SYSTEM_CLASS_WITH_MEMBERS, types.RT_CLASS_WITH_MEMBERS,
		types.RT_SYSTEM_CLASS_WITH_MEMBERS_AND_TYPES, types.RT_CLASS_WITH_MEMBERS_AND_TYPES:
		c, err := d.read_class(rt)
		return c, errors.WithMessagef(err, "in %v", rt)

	case types.RT_STRING:
		s := &types.String{}
		if s.ObjectID, err = d.read_int32(); err != nil {
			return nil, err
		}
		if s.Value, err = d.read_string(); err != nil {
			return nil, err
		}
		return s, nil

	case types.RT_BINARY_ARRAY, types.RT_ARRAY_SINGLE_PRIMITIVE, types.RT_ARRAY_SINGLE_OBJECT, types.RT_ARRAY_SINGLE_STRING:
		a, err := d.read_array(rt)
		return a, errors.WithMessagef(err, "in %v", rt)

	case types.RT_MEMBER_PRIMITIVE_TYPED:
		pt, err := d.read_primitive_type()
		if err != nil {
			return nil, err
		}
		if pt == types.PT_NULL || pt == types.PT_STRING {
			return nil, errors.Errorf("MemberPrimitiveTyped cannot hold a %v", pt)
		}
		p, err := d.read_primitive(pt)
		if err != nil {
			return nil, err
		}
		return &types.PrimitiveTyped{Value: p}, nil

	case types.RT_MEMBER_REFERENCE:
		ref := &types.Reference{}
		ref.IDRef, err = d.read_int32()
		return ref, err

	case types.RT_NULL:
		return &types.Null{}, nil

	case types.RT_NULL_MULTIPLE_256:
		n, err := d.read_byte()
		return &types.NullMultiple{Count: int32(n), Small: true}, err

	case types.RT_NULL_MULTIPLE:
		n, err := d.read_count("null count")
		return &types.NullMultiple{Count: int32(n)}, err

	case types.RT_HEADER, types.RT_METHOD_CALL, types.RT_METHOD_RETURN:
		return nil, errors.Errorf("unsupported record %v", rt)
	}

	return nil, errors.Errorf("unknown record type %v at offset %v", b, d.offset-1)
}

// read_slot reads a record in a value position.
// BinaryLibrary records may sit in front of the record that needs them; they get attached to it.
func (d *decoder) read_slot() (types.Record, error) {
	libs := []*types.Library{}
	for {
		rec, err := d.read_record()
		if err != nil {
			return nil, err
		}
		switch r := rec.(type) {
		case nil:
			return nil, errors.Errorf("unexpected MessageEnd in a value at offset %v", d.offset-1)
		case *types.Library:
			libs = append(libs, r)
			continue
		case *types.Class:
			if len(libs) > 0 {
				r.Libraries = libs
			}
		case *types.Array:
			if len(libs) > 0 {
				r.Libraries = libs
			}
		default:
			if len(libs) > 0 {
				return nil, errors.Errorf("BinaryLibrary followed by %v at offset %v", rec.Type(), d.offset)
			}
		}
		return rec, nil
	}
}

func (d *decoder) read_class(rt types.RecordType) (*types.Class, error) {
	c := &types.Class{}
	var err error
	if c.ObjectID, err = d.read_int32(); err != nil {
		return nil, err
	}

	if rt == types.RT_CLASS_WITH_ID {
		meta_id, err := d.read_int32()
		if err != nil {
			return nil, err
		}
		meta, ok := d.metas[meta_id]
		if !ok {
			return nil, errors.Errorf("object %v refers to unknown class metadata %v", c.ObjectID, meta_id)
		}
		c.Meta = meta
		c.ViaID = true
	} else {
		c.Meta, err = d.read_class_meta(rt, c.ObjectID)
		if err != nil {
			return nil, err
		}
		d.metas[c.ObjectID] = c.Meta
	}

	c.Values = make([]any, len(c.Meta.Members))
	for i := range c.Meta.Members {
		mt := c.Meta.MemberType(i)
		if mt.Binary == types.BT_PRIMITIVE {
			c.Values[i], err = d.read_primitive(mt.Primitive)
		} else {
			c.Values[i], err = d.read_slot()
			if _, ok := c.Values[i].(*types.NullMultiple); ok {
				err = errors.Errorf("null run in member %v", c.Meta.Members[i])
			}
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "member %v of %v", c.Meta.Members[i], c.Meta.Name)
		}
	}

	return c, nil
}

// read_class_meta reads ClassInfo, then MemberTypeInfo and LibraryId as the record type demands.
func (d *decoder) read_class_meta(rt types.RecordType, object_id int32) (*types.ClassMeta, error) {
	meta := &types.ClassMeta{ObjectID: object_id}
	var err error
	if meta.Name, err = d.read_string(); err != nil {
		return nil, err
	}
	count, err := d.read_count("member count")
	if err != nil {
		return nil, err
	}
	meta.Members = []string{}
	for range count {
		name, err := d.read_string()
		if err != nil {
			return nil, err
		}
		meta.Members = append(meta.Members, name)
	}

	meta.System = rt == types.RT_SYSTEM_CLASS_WITH_MEMBERS || rt == types.RT_SYSTEM_CLASS_WITH_MEMBERS_AND_TYPES

	if rt == types.RT_SYSTEM_CLASS_WITH_MEMBERS_AND_TYPES || rt == types.RT_CLASS_WITH_MEMBERS_AND_TYPES {
		// All the BinaryTypeEnums come first, then the additional infos in the same order
		bts := make([]types.BinaryType, count)
		for i := range bts {
			if bts[i], err = d.read_binary_type(); err != nil {
				return nil, err
			}
		}
		meta.Types = []types.MemberType{}
		for _, bt := range bts {
			mt, err := d.read_member_type(bt)
			if err != nil {
				return nil, err
			}
			meta.Types = append(meta.Types, mt)
		}
	}

	if !meta.System {
		if meta.Library, err = d.read_int32(); err != nil {
			return nil, err
		}
	}
	return meta, nil
}

func (d *decoder) read_array(rt types.RecordType) (*types.Array, error) {
	a := &types.Array{Shape: rt, Kind: types.AT_SINGLE}
	var err error
	if a.ObjectID, err = d.read_int32(); err != nil {
		return nil, err
	}

	switch rt {
	case types.RT_BINARY_ARRAY:
		kind, err := d.read_byte()
		if err != nil {
			return nil, err
		}
		a.Kind = types.ArrayType(kind)
		if a.Kind > types.AT_RECTANGULAR_OFFSET {
			return nil, errors.Errorf("unknown array type %v", kind)
		}
		rank, err := d.read_count("rank")
		if err != nil {
			return nil, err
		}
		if rank < 1 || rank > MAX_RANK {
			return nil, errors.Errorf("array %v has rank %v", a.ObjectID, rank)
		}
		a.Lengths = make([]int32, rank)
		for i := range a.Lengths {
			n, err := d.read_count("array length")
			if err != nil {
				return nil, err
			}
			a.Lengths[i] = int32(n)
		}
		if a.Kind.HasLowerBounds() {
			a.LowerBounds = make([]int32, rank)
			for i := range a.LowerBounds {
				if a.LowerBounds[i], err = d.read_int32(); err != nil {
					return nil, err
				}
			}
		}
		bt, err := d.read_binary_type()
		if err != nil {
			return nil, err
		}
		if a.Elem, err = d.read_member_type(bt); err != nil {
			return nil, err
		}

	default:
		n, err := d.read_count("array length")
		if err != nil {
			return nil, err
		}
		a.Lengths = []int32{int32(n)}
		switch rt {
		case types.RT_ARRAY_SINGLE_PRIMITIVE:
			a.Elem.Binary = types.BT_PRIMITIVE
			if a.Elem.Primitive, err = d.read_primitive_type(); err != nil {
				return nil, err
			}
		case types.RT_ARRAY_SINGLE_OBJECT:
			a.Elem.Binary = types.BT_OBJECT
		case types.RT_ARRAY_SINGLE_STRING:
			a.Elem.Binary = types.BT_STRING
		}
	}

	total, ok := a.Size()
	if !ok {
		return nil, errors.Errorf("array %v has more than %v elements (lengths %v)", a.ObjectID, math.MaxInt32, a.Lengths)
	}
	if a.Elem.Binary == types.BT_PRIMITIVE {
		a.Values = []any{}
		for i := range total {
			p, err := d.read_primitive(a.Elem.Primitive)
			if err != nil {
				return nil, errors.WithMessagef(err, "element %v of array %v", i, a.ObjectID)
			}
			a.Values = append(a.Values, p)
		}
		return a, nil
	}

	for filled := 0; filled < total; {
		v, err := d.read_slot()
		if err != nil {
			return nil, errors.WithMessagef(err, "element %v of array %v", filled, a.ObjectID)
		}
		filled++
		if nm, ok := v.(*types.NullMultiple); ok {
			filled += int(nm.Count) - 1
			if nm.Count < 1 || filled > total {
				return nil, errors.Errorf("null run of %v overflows array %v (length %v)", nm.Count, a.ObjectID, total)
			}
		}
		a.Values = append(a.Values, v)
	}
	return a, nil
}
