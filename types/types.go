package types

// Record model for .NET BinaryFormatter streams (MS-NRBF).
//
// A stream is a header record, a flat list of records and a MessageEnd marker.
// Objects refer to each other by object id; the first record carrying a given
// class layout defines it, and later ClassWithId records reuse that layout by
// pointing at the defining record's id.
//
// Nothing in here knows about any particular game.  Game classes are just
// class records with a name, a library and a list of named members.

import (
	"fmt"
)

type RecordType byte

const (
	RT_HEADER                              RecordType = 0
	RT_CLASS_WITH_ID                       RecordType = 1
	RT_SYSTEM_CLASS_WITH_MEMBERS           RecordType = 2
	RT_CLASS_WITH_MEMBERS                  RecordType = 3
	RT_SYSTEM_CLASS_WITH_MEMBERS_AND_TYPES RecordType = 4
	RT_CLASS_WITH_MEMBERS_AND_TYPES        RecordType = 5
	RT_STRING                              RecordType = 6
	RT_BINARY_ARRAY                        RecordType = 7
	RT_MEMBER_PRIMITIVE_TYPED              RecordType = 8
	RT_MEMBER_REFERENCE                    RecordType = 9
	RT_NULL                                RecordType = 10
	RT_MESSAGE_END                         RecordType = 11
	RT_LIBRARY                             RecordType = 12
	RT_NULL_MULTIPLE_256                   RecordType = 13
	RT_NULL_MULTIPLE                       RecordType = 14
	RT_ARRAY_SINGLE_PRIMITIVE              RecordType = 15
	RT_ARRAY_SINGLE_OBJECT                 RecordType = 16
	RT_ARRAY_SINGLE_STRING                 RecordType = 17
	RT_METHOD_CALL                         RecordType = 21
	RT_METHOD_RETURN                       RecordType = 22
)

var record_names = map[RecordType]string{
	RT_HEADER:                              "SerializedStreamHeader",
	RT_CLASS_WITH_ID:                       "ClassWithId",
	RT_SYSTEM_CLASS_WITH_MEMBERS:           "SystemClassWithMembers",
	RT_CLASS_WITH_MEMBERS:                  "ClassWithMembers",
	RT_SYSTEM_CLASS_WITH_MEMBERS_AND_TYPES: "SystemClassWithMembersAndTypes",
	RT_CLASS_WITH_MEMBERS_AND_TYPES:        "ClassWithMembersAndTypes",
	RT_STRING:                              "BinaryObjectString",
	RT_BINARY_ARRAY:                        "BinaryArray",
	RT_MEMBER_PRIMITIVE_TYPED:              "MemberPrimitiveTyped",
	RT_MEMBER_REFERENCE:                    "MemberReference",
	RT_NULL:                                "ObjectNull",
	RT_MESSAGE_END:                         "MessageEnd",
	RT_LIBRARY:                             "BinaryLibrary",
	RT_NULL_MULTIPLE_256:                   "ObjectNullMultiple256",
	RT_NULL_MULTIPLE:                       "ObjectNullMultiple",
	RT_ARRAY_SINGLE_PRIMITIVE:              "ArraySinglePrimitive",
	RT_ARRAY_SINGLE_OBJECT:                 "ArraySingleObject",
	RT_ARRAY_SINGLE_STRING:                 "ArraySingleString",
	RT_METHOD_CALL:                         "MethodCall",
	RT_METHOD_RETURN:                       "MethodReturn",
}

func (rt RecordType) String() string {
	name, ok := record_names[rt]
	if !ok {
		return fmt.Sprintf("RecordType(%d)", byte(rt))
	}
	return name
}

// BinaryType says how a member value is laid out (BinaryTypeEnumeration).
type BinaryType byte

const (
	BT_PRIMITIVE BinaryType = iota
	BT_STRING
	BT_OBJECT
	BT_SYSTEM_CLASS
	BT_CLASS
	BT_OBJECT_ARRAY
	BT_STRING_ARRAY
	BT_PRIMITIVE_ARRAY
)

func (bt BinaryType) String() string {
	names := []string{"Primitive", "String", "Object", "SystemClass", "Class", "ObjectArray", "StringArray", "PrimitiveArray"}
	if int(bt) < len(names) {
		return names[bt]
	}
	return fmt.Sprintf("BinaryType(%d)", byte(bt))
}

// ArrayType is the BinaryArrayTypeEnumeration.  The *_OFFSET variants carry lower bounds.
type ArrayType byte

const (
	AT_SINGLE ArrayType = iota
	AT_JAGGED
	AT_RECTANGULAR
	AT_SINGLE_OFFSET
	AT_JAGGED_OFFSET
	AT_RECTANGULAR_OFFSET
)

func (at ArrayType) HasLowerBounds() bool {
	return at == AT_SINGLE_OFFSET || at == AT_JAGGED_OFFSET || at == AT_RECTANGULAR_OFFSET
}

// MemberType is a BinaryType plus its additional info.
//
// Primitive is set for BT_PRIMITIVE and BT_PRIMITIVE_ARRAY.
// Class is set for BT_SYSTEM_CLASS and BT_CLASS; Library only for BT_CLASS.
type MemberType struct {
	Binary    BinaryType
	Primitive PrimitiveType
	Class     string
	Library   int32
}

func (mt MemberType) String() string {
	switch mt.Binary {
	case BT_PRIMITIVE, BT_PRIMITIVE_ARRAY:
		return fmt.Sprintf("%v(%v)", mt.Binary, mt.Primitive)
	case BT_SYSTEM_CLASS, BT_CLASS:
		return fmt.Sprintf("%v(%v)", mt.Binary, mt.Class)
	}
	return mt.Binary.String()
}

// Header is the SerializedStreamHeader record.
type Header struct {
	RootID   int32
	HeaderID int32
	Major    int32
	Minor    int32
}

// Stream is a whole decoded BinaryFormatter payload.
// Records are the top-level records in file order (MessageEnd is implied).
type Stream struct {
	Header  Header
	Records []Record
}

// Record is anything with a record type byte.
//
// Slots (class members, array elements) hold either a Primitive, for members
// whose declared type is primitive, or a Record.
type Record interface {
	Type() RecordType
}

type Library struct {
	ID   int32
	Name string
}

func (*Library) Type() RecordType { return RT_LIBRARY }

// ClassMeta is a class layout: the ClassInfo and (for the typed variants) MemberTypeInfo.
// It is shared by the defining record and every ClassWithId that reuses it.
type ClassMeta struct {
	ObjectID int32 // id of the defining record
	Name     string
	Members  []string
	Types    []MemberType // nil for the untyped variants
	Library  int32        // only meaningful when !System
	System   bool
}

func (m *ClassMeta) Typed() bool {
	return m.Types != nil
}

// MemberType returns the declared type of member i.  Untyped layouts say BT_OBJECT for everything.
func (m *ClassMeta) MemberType(i int) MemberType {
	if m.Types == nil {
		return MemberType{Binary: BT_OBJECT}
	}
	return m.Types[i]
}

func (m *ClassMeta) Member(name string) int {
	for i, n := range m.Members {
		if n == name {
			return i
		}
	}
	return -1
}

// Class is any of the class record variants.
// ViaID means it was (and will be) written as ClassWithId, reusing Meta from an earlier record.
type Class struct {
	ObjectID  int32
	Meta      *ClassMeta
	ViaID     bool
	Values    []any
	Libraries []*Library // BinaryLibrary records written immediately before this one
}

func (c *Class) Type() RecordType {
	switch {
	case c.ViaID:
		return RT_CLASS_WITH_ID
	case c.Meta.System && c.Meta.Typed():
		return RT_SYSTEM_CLASS_WITH_MEMBERS_AND_TYPES
	case c.Meta.System:
		return RT_SYSTEM_CLASS_WITH_MEMBERS
	case c.Meta.Typed():
		return RT_CLASS_WITH_MEMBERS_AND_TYPES
	}
	return RT_CLASS_WITH_MEMBERS
}

// Get returns the value of the named member, or nil if there is no such member.
func (c *Class) Get(name string) any {
	i := c.Meta.Member(name)
	if i < 0 {
		return nil
	}
	return c.Values[i]
}

type String struct {
	ObjectID int32
	Value    string
}

func (*String) Type() RecordType { return RT_STRING }

type PrimitiveTyped struct {
	Value Primitive
}

func (*PrimitiveTyped) Type() RecordType { return RT_MEMBER_PRIMITIVE_TYPED }

type Reference struct {
	IDRef int32
}

func (*Reference) Type() RecordType { return RT_MEMBER_REFERENCE }

type Null struct{}

func (*Null) Type() RecordType { return RT_NULL }

// NullMultiple is a run of Count nulls inside an array.  Small runs use the one-byte count variant.
type NullMultiple struct {
	Count int32
	Small bool
}

func (n *NullMultiple) Type() RecordType {
	if n.Small {
		return RT_NULL_MULTIPLE_256
	}
	return RT_NULL_MULTIPLE
}

// NullRun makes the record BinaryFormatter itself would write for n consecutive nulls.
func NullRun(n int) Record {
	switch {
	case n == 1:
		return &Null{}
	case n < 256:
		return &NullMultiple{Count: int32(n), Small: true}
	}
	return &NullMultiple{Count: int32(n)}
}
