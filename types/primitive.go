package types

import (
	"fmt"
	"time"
)

type PrimitiveType byte

const (
	PT_BOOLEAN  PrimitiveType = 1
	PT_BYTE     PrimitiveType = 2
	PT_CHAR     PrimitiveType = 3
	PT_DECIMAL  PrimitiveType = 5
	PT_DOUBLE   PrimitiveType = 6
	PT_INT16    PrimitiveType = 7
	PT_INT32    PrimitiveType = 8
	PT_INT64    PrimitiveType = 9
	PT_SBYTE    PrimitiveType = 10
	PT_SINGLE   PrimitiveType = 11
	PT_TIMESPAN PrimitiveType = 12
	PT_DATETIME PrimitiveType = 13
	PT_UINT16   PrimitiveType = 14
	PT_UINT32   PrimitiveType = 15
	PT_UINT64   PrimitiveType = 16
	PT_NULL     PrimitiveType = 17
	PT_STRING   PrimitiveType = 18
)

var primitive_names = map[PrimitiveType]string{
	PT_BOOLEAN:  "Boolean",
	PT_BYTE:     "Byte",
	PT_CHAR:     "Char",
	PT_DECIMAL:  "Decimal",
	PT_DOUBLE:   "Double",
	PT_INT16:    "Int16",
	PT_INT32:    "Int32",
	PT_INT64:    "Int64",
	PT_SBYTE:    "SByte",
	PT_SINGLE:   "Single",
	PT_TIMESPAN: "TimeSpan",
	PT_DATETIME: "DateTime",
	PT_UINT16:   "UInt16",
	PT_UINT32:   "UInt32",
	PT_UINT64:   "UInt64",
	PT_NULL:     "Null",
	PT_STRING:   "String",
}

func (pt PrimitiveType) String() string {
	name, ok := primitive_names[pt]
	if !ok {
		return fmt.Sprintf("PrimitiveType(%d)", byte(pt))
	}
	return name
}

func (pt PrimitiveType) Valid() bool {
	_, ok := primitive_names[pt]
	return ok
}

func (pt PrimitiveType) Integer() bool {
	switch pt {
	case PT_BYTE, PT_SBYTE, PT_INT16, PT_INT32, PT_INT64, PT_UINT16, PT_UINT32, PT_UINT64:
		return true
	}
	return false
}

// Primitive is an inline primitive value.
//
// Go types by PrimitiveType:
//
//	Boolean bool, Byte uint8, SByte int8, Char rune, Decimal string (as written by .NET),
//	Double float64, Single float32, Int16/32/64 int16/32/64, UInt16/32/64 uint16/32/64,
//	TimeSpan TimeSpan, DateTime DateTime, String string, Null nil.
type Primitive struct {
	Type  PrimitiveType
	Value any
}

func (p Primitive) String() string {
	return fmt.Sprintf("%v(%v)", p.Type, p.Value)
}

// TimeSpan is a .NET TimeSpan: signed 100ns ticks.
type TimeSpan int64

func (ts TimeSpan) Duration() time.Duration {
	return time.Duration(int64(ts) * 100)
}

// DateTime is the raw 64-bit .NET DateTime: 62 bits of ticks since 0001-01-01 and 2 bits of kind.
type DateTime uint64

type DateTimeKind int

const (
	DTK_UNSPECIFIED DateTimeKind = iota
	DTK_UTC
	DTK_LOCAL
)

// seconds between 0001-01-01 and the unix epoch
const dotnet_epoch_offset = 62135596800

func (dt DateTime) Ticks() int64 {
	return int64(uint64(dt) & 0x3FFFFFFFFFFFFFFF)
}

func (dt DateTime) Kind() DateTimeKind {
	return DateTimeKind(uint64(dt) >> 62)
}

// Time converts to a time.Time.  Kind is not a time zone, so the result is always in UTC.
func (dt DateTime) Time() time.Time {
	ticks := dt.Ticks()
	return time.Unix(ticks/10000000-dotnet_epoch_offset, (ticks%10000000)*100).UTC()
}

func MakeDateTime(t time.Time, kind DateTimeKind) DateTime {
	ticks := (t.Unix()+dotnet_epoch_offset)*10000000 + int64(t.Nanosecond()/100)
	return DateTime(uint64(ticks)&0x3FFFFFFFFFFFFFFF | uint64(kind)<<62)
}
