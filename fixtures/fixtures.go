// Package fixtures builds small BinaryFormatter streams shaped like a PersData.kat
// save, for tests that need a realistic object graph without shipping a real save.
package fixtures

import (
	"bytes"
	"time"

	"katedit/types"
	"katedit/writers"
)

const (
	SAVING_LIBRARY = "Everbyte.TextGame.Saving, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null"
	MSCORLIB       = "mscorlib, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b77a5c561934e089"

	PATH_DATA_LIST = "System.Collections.Generic.List`1[[Everbyte.TextGame.Saving.PathData, " + SAVING_LIBRARY + "]]"
	INVENTORY      = "System.Collections.Generic.Dictionary`2[[System.String, " + MSCORLIB + "],[System.Int32, " + MSCORLIB + "]]"
	INVENTORY_PAIR = "System.Collections.Generic.KeyValuePair`2[[System.String, " + MSCORLIB + "],[System.Int32, " + MSCORLIB + "]]"
	STRING_COMPARE = "System.Collections.Generic.GenericEqualityComparer`1[[System.String, " + MSCORLIB + "]]"
)

// LAST_LOGIN is the lastLogin value stored in PersData.
var LAST_LOGIN = time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)

func prim(pt types.PrimitiveType, v any) types.Primitive {
	return types.Primitive{Type: pt, Value: v}
}

func typed(pt types.PrimitiveType) types.MemberType {
	return types.MemberType{Binary: types.BT_PRIMITIVE, Primitive: pt}
}

func ref(id int32) *types.Reference {
	return &types.Reference{IDRef: id}
}

// PersData builds a save with the shapes a real one has:
// plain members, an auto-property backing field, a nested object, a List<T> of
// objects (with a ClassWithId record and spare capacity as a null run), a
// Dictionary<string,int>, a boxed primitive, a Guid struct and a DateTime.
//
// Object ids:
//
//	1 PersData (root)      4 UserSettings       5 List<PathData>
//	6 Dictionary           7 PathData[]         8, 9 PathData
//	10, 11 int[]           12 comparer          13 KeyValuePair[]
//	14, 16 KeyValuePair    3, 15, 17 strings    18 Guid
func PersData() *types.Stream {
	lib := &types.Library{ID: 2, Name: SAVING_LIBRARY}

	guid := &types.Class{
		ObjectID: 18,
		Meta: &types.ClassMeta{
			ObjectID: 18,
			Name:     types.GUID_NAME,
			System:   true,
			Members:  []string{"_a", "_b", "_c", "_d", "_e", "_f", "_g", "_h", "_i", "_j", "_k"},
			Types: []types.MemberType{
				typed(types.PT_INT32), typed(types.PT_INT16), typed(types.PT_INT16),
				typed(types.PT_BYTE), typed(types.PT_BYTE), typed(types.PT_BYTE), typed(types.PT_BYTE),
				typed(types.PT_BYTE), typed(types.PT_BYTE), typed(types.PT_BYTE), typed(types.PT_BYTE),
			},
		},
		Values: []any{
			prim(types.PT_INT32, int32(0x12345678)), prim(types.PT_INT16, int16(0x1234)), prim(types.PT_INT16, int16(0x5678)),
			prim(types.PT_BYTE, uint8(0x9a)), prim(types.PT_BYTE, uint8(0xbc)), prim(types.PT_BYTE, uint8(0xde)), prim(types.PT_BYTE, uint8(0xf0)),
			prim(types.PT_BYTE, uint8(0x01)), prim(types.PT_BYTE, uint8(0x23)), prim(types.PT_BYTE, uint8(0x45)), prim(types.PT_BYTE, uint8(0x67)),
		},
	}

	root := &types.Class{
		ObjectID: 1,
		Meta: &types.ClassMeta{
			ObjectID: 1,
			Name:     "Everbyte.TextGame.Saving.PersData",
			Library:  2,
			Members:  []string{"coins", "diamonds", "<username>k__BackingField", "userSettings", "paths", "inventory", "score", "lastLogin", "deviceId"},
			Types: []types.MemberType{
				typed(types.PT_INT32),
				typed(types.PT_INT32),
				{Binary: types.BT_STRING},
				{Binary: types.BT_CLASS, Class: "Everbyte.TextGame.Saving.UserSettings", Library: 2},
				{Binary: types.BT_SYSTEM_CLASS, Class: PATH_DATA_LIST},
				{Binary: types.BT_SYSTEM_CLASS, Class: INVENTORY},
				{Binary: types.BT_OBJECT},
				typed(types.PT_DATETIME),
				{Binary: types.BT_SYSTEM_CLASS, Class: types.GUID_NAME},
			},
		},
		Values: []any{
			prim(types.PT_INT32, int32(150)),
			prim(types.PT_INT32, int32(7)),
			&types.String{ObjectID: 3, Value: "Bob"},
			ref(4),
			ref(5),
			ref(6),
			&types.PrimitiveTyped{Value: prim(types.PT_INT64, int64(12))},
			prim(types.PT_DATETIME, types.MakeDateTime(LAST_LOGIN, types.DTK_UTC)),
			guid,
		},
	}

	settings := &types.Class{
		ObjectID: 4,
		Meta: &types.ClassMeta{
			ObjectID: 4,
			Name:     "Everbyte.TextGame.Saving.UserSettings",
			Library:  2,
			Members:  []string{"energyCap", "sound", "volume"},
			Types:    []types.MemberType{typed(types.PT_INT32), typed(types.PT_BOOLEAN), typed(types.PT_SINGLE)},
		},
		Values: []any{
			prim(types.PT_INT32, int32(100)),
			prim(types.PT_BOOLEAN, true),
			prim(types.PT_SINGLE, float32(0.5)),
		},
	}

	list := &types.Class{
		ObjectID: 5,
		Meta: &types.ClassMeta{
			ObjectID: 5,
			Name:     PATH_DATA_LIST,
			System:   true,
			Members:  []string{"_items", "_size", "_version"},
			Types: []types.MemberType{
				{Binary: types.BT_CLASS, Class: "Everbyte.TextGame.Saving.PathData[]", Library: 2},
				typed(types.PT_INT32),
				typed(types.PT_INT32),
			},
		},
		Values: []any{ref(7), prim(types.PT_INT32, int32(2)), prim(types.PT_INT32, int32(2))},
	}

	comparer := &types.Class{
		ObjectID: 12,
		Meta:     &types.ClassMeta{ObjectID: 12, Name: STRING_COMPARE, System: true, Members: []string{}, Types: []types.MemberType{}},
		Values:   []any{},
	}

	dict := &types.Class{
		ObjectID: 6,
		Meta: &types.ClassMeta{
			ObjectID: 6,
			Name:     INVENTORY,
			System:   true,
			Members:  []string{"Version", "Comparer", "HashSize", "KeyValuePairs"},
			Types: []types.MemberType{
				typed(types.PT_INT32),
				{Binary: types.BT_SYSTEM_CLASS, Class: STRING_COMPARE},
				typed(types.PT_INT32),
				{Binary: types.BT_SYSTEM_CLASS, Class: INVENTORY_PAIR + "[]"},
			},
		},
		Values: []any{prim(types.PT_INT32, int32(2)), ref(12), prim(types.PT_INT32, int32(3)), ref(13)},
	}

	path_meta := &types.ClassMeta{
		ObjectID: 8,
		Name:     "Everbyte.TextGame.Saving.PathData",
		Library:  2,
		Members:  []string{"activeState", "memberIDs"},
		Types:    []types.MemberType{typed(types.PT_BOOLEAN), {Binary: types.BT_PRIMITIVE_ARRAY, Primitive: types.PT_INT32}},
	}
	items := &types.Array{
		Shape:    types.RT_BINARY_ARRAY,
		ObjectID: 7,
		Kind:     types.AT_SINGLE,
		Lengths:  []int32{4},
		Elem:     types.MemberType{Binary: types.BT_CLASS, Class: "Everbyte.TextGame.Saving.PathData", Library: 2},
		Values: []any{
			&types.Class{ObjectID: 8, Meta: path_meta, Values: []any{prim(types.PT_BOOLEAN, false), ref(10)}},
			&types.Class{ObjectID: 9, Meta: path_meta, ViaID: true, Values: []any{prim(types.PT_BOOLEAN, true), ref(11)}},
			&types.NullMultiple{Count: 2, Small: true},
		},
	}

	int_array := func(id int32, values ...int32) *types.Array {
		a := &types.Array{
			Shape:    types.RT_ARRAY_SINGLE_PRIMITIVE,
			ObjectID: id,
			Kind:     types.AT_SINGLE,
			Lengths:  []int32{int32(len(values))},
			Elem:     typed(types.PT_INT32),
		}
		for _, v := range values {
			a.Values = append(a.Values, prim(types.PT_INT32, v))
		}
		return a
	}

	pair_meta := &types.ClassMeta{
		ObjectID: 14,
		Name:     INVENTORY_PAIR,
		System:   true,
		Members:  []string{"key", "value"},
		Types:    []types.MemberType{{Binary: types.BT_STRING}, typed(types.PT_INT32)},
	}
	pairs := &types.Array{
		Shape:    types.RT_BINARY_ARRAY,
		ObjectID: 13,
		Kind:     types.AT_SINGLE,
		Lengths:  []int32{2},
		Elem:     types.MemberType{Binary: types.BT_SYSTEM_CLASS, Class: INVENTORY_PAIR},
		Values: []any{
			&types.Class{ObjectID: 14, Meta: pair_meta, Values: []any{&types.String{ObjectID: 15, Value: "potion"}, prim(types.PT_INT32, int32(3))}},
			&types.Class{ObjectID: 16, Meta: pair_meta, ViaID: true, Values: []any{&types.String{ObjectID: 17, Value: "sword"}, prim(types.PT_INT32, int32(1))}},
		},
	}

	return &types.Stream{
		Header: types.Header{RootID: 1, HeaderID: -1, Major: 1, Minor: 0},
		Records: []types.Record{
			lib, root, settings, list, dict, items,
			int_array(10, 1, 2, 3), int_array(11, 4),
			comparer, pairs,
		},
	}
}

// PersDataBytes is PersData encoded.
func PersDataBytes() []byte {
	buf := &bytes.Buffer{}
	if err := writers.WriteStream(buf, PersData()); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

// Minimal is a hand-assembled stream: one class with an Int32 "coins" member
// and a String "name" member ("Bob").
var Minimal = []byte{
	0x00, 0x01, 0x00, 0x00, 0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // header, root 1
	0x0C, 0x02, 0x00, 0x00, 0x00, 0x04, 'G', 'a', 'm', 'e', // BinaryLibrary 2 "Game"
	0x05, 0x01, 0x00, 0x00, 0x00, // ClassWithMembersAndTypes, id 1
	0x09, 'G', 'a', 'm', 'e', '.', 'S', 'a', 'v', 'e', // name
	0x02, 0x00, 0x00, 0x00, // 2 members
	0x05, 'c', 'o', 'i', 'n', 's',
	0x04, 'n', 'a', 'm', 'e',
	0x00, 0x01, // Primitive, String
	0x08,                   // Int32
	0x02, 0x00, 0x00, 0x00, // library 2
	0x2A, 0x00, 0x00, 0x00, // coins = 42
	0x06, 0x03, 0x00, 0x00, 0x00, 0x03, 'B', 'o', 'b', // name: BinaryObjectString id 3
	0x0B, // MessageEnd
}
