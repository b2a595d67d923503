package writers_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"katedit/fixtures"
	"katedit/types"
	"katedit/writers"
)

func one_member(mt types.MemberType, v any) *types.Stream {
	return &types.Stream{
		Header: types.Header{RootID: 1, HeaderID: -1, Major: 1},
		Records: []types.Record{&types.Class{
			ObjectID: 1,
			Meta:     &types.ClassMeta{ObjectID: 1, Name: "Game.Save", Library: 2, Members: []string{"x"}, Types: []types.MemberType{mt}},
			Values:   []any{v},
		}},
	}
}

func TestWriteMinimal(t *testing.T) {
	s := &types.Stream{
		Header: types.Header{RootID: 1, HeaderID: -1, Major: 1},
		Records: []types.Record{
			&types.Library{ID: 2, Name: "Game"},
			&types.Class{
				ObjectID: 1,
				Meta: &types.ClassMeta{
					ObjectID: 1, Name: "Game.Save", Library: 2,
					Members: []string{"coins", "name"},
					Types:   []types.MemberType{{Binary: types.BT_PRIMITIVE, Primitive: types.PT_INT32}, {Binary: types.BT_STRING}},
				},
				Values: []any{types.Primitive{Type: types.PT_INT32, Value: int32(42)}, &types.String{ObjectID: 3, Value: "Bob"}},
			},
		},
	}
	buf := &bytes.Buffer{}
	require.NoError(t, writers.WriteStream(buf, s))
	require.Equal(t, fixtures.Minimal, buf.Bytes())
}

func TestWriteRejectsMismatchedPrimitive(t *testing.T) {
	int32_slot := types.MemberType{Binary: types.BT_PRIMITIVE, Primitive: types.PT_INT32}

	// Go type does not match the declared primitive type
	err := writers.WriteStream(&bytes.Buffer{}, one_member(int32_slot, types.Primitive{Type: types.PT_INT32, Value: int64(5)}))
	require.ErrorContains(t, err, "Int32 primitive holds a int64")

	// Primitive type does not match the slot
	err = writers.WriteStream(&bytes.Buffer{}, one_member(int32_slot, types.Primitive{Type: types.PT_INT64, Value: int64(5)}))
	require.ErrorContains(t, err, "holds a Int64")

	// A record in a primitive slot
	err = writers.WriteStream(&bytes.Buffer{}, one_member(int32_slot, &types.Null{}))
	require.Error(t, err)

	// An inline primitive in a record slot
	err = writers.WriteStream(&bytes.Buffer{}, one_member(types.MemberType{Binary: types.BT_OBJECT}, types.Primitive{Type: types.PT_INT32, Value: int32(1)}))
	require.ErrorContains(t, err, "where a record was expected")
}

func TestWriteRejectsBadArrays(t *testing.T) {
	arr := &types.Array{
		Shape:    types.RT_ARRAY_SINGLE_OBJECT,
		ObjectID: 1,
		Lengths:  []int32{3},
		Elem:     types.MemberType{Binary: types.BT_OBJECT},
		Values:   []any{&types.Null{}, &types.NullMultiple{Count: 1, Small: true}},
	}
	s := &types.Stream{Header: types.Header{RootID: 1, HeaderID: -1, Major: 1}, Records: []types.Record{arr}}
	require.ErrorContains(t, writers.WriteStream(&bytes.Buffer{}, s), "has 2 elements but claims length 3")

	arr.Values = []any{&types.NullMultiple{Count: 300, Small: true}}
	arr.Lengths = []int32{300}
	require.ErrorContains(t, writers.WriteStream(&bytes.Buffer{}, s), "does not fit")

	arr.Values = []any{&types.NullMultiple{Count: 300}}
	require.NoError(t, writers.WriteStream(&bytes.Buffer{}, s))
}

func TestWriteMemberCountMismatch(t *testing.T) {
	s := one_member(types.MemberType{Binary: types.BT_STRING}, &types.Null{})
	c := s.Records[0].(*types.Class)
	c.Values = append(c.Values, &types.Null{})
	require.ErrorContains(t, writers.WriteStream(&bytes.Buffer{}, s), "has 2 values for 1 members")
}
