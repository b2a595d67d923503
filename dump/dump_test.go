package dump

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"katedit/fixtures"
	"katedit/types"
)

func TestStream(t *testing.T) {
	buf := &bytes.Buffer{}
	require.NoError(t, Stream(buf, fixtures.PersData()))
	text := buf.String()

	// no HTML escaping of backing field names
	require.Contains(t, text, `"<username>k__BackingField": "Bob"`)

	got := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	require.Equal(t, "Everbyte.TextGame.Saving.PersData", got["$type"])
	require.Equal(t, fixtures.SAVING_LIBRARY, got["$assembly"])
	require.Equal(t, float64(150), got["coins"])
	require.Equal(t, float64(7), got["diamonds"])
	require.Equal(t, float64(12), got["score"])
	require.Equal(t, "2024-03-01T12:30:00.0000000Z", got["lastLogin"])
	require.Equal(t, "12345678-1234-5678-9abc-def001234567", got["deviceId"])

	require.Equal(t, map[string]any{
		"$type":     "Everbyte.TextGame.Saving.UserSettings",
		"$assembly": fixtures.SAVING_LIBRARY,
		"energyCap": float64(100),
		"sound":     true,
		"volume":    0.5,
	}, got["userSettings"])

	// the list is cut to _size, the spare capacity is not shown
	paths := got["paths"].([]any)
	require.Len(t, paths, 2)
	require.Equal(t, []any{float64(1), float64(2), float64(3)}, paths[0].(map[string]any)["memberIDs"])
	require.Equal(t, true, paths[1].(map[string]any)["activeState"])

	require.Equal(t, map[string]any{"potion": float64(3), "sword": float64(1)}, got["inventory"])

	// members stay in stream order
	order := []string{`"$type"`, `"$assembly"`, `"coins"`, `"diamonds"`, `"<username>k__BackingField"`, `"userSettings"`, `"paths"`, `"inventory"`, `"score"`, `"lastLogin"`, `"deviceId"`}
	last := -1
	for _, key := range order {
		at := strings.Index(text, key)
		require.Greater(t, at, last, key)
		last = at
	}
}

func TestRepeatedObjectsBecomeRefs(t *testing.T) {
	settings := &types.Class{
		ObjectID: 4,
		Meta: &types.ClassMeta{
			ObjectID: 4,
			Name:     "Game.Settings",
			Library:  2,
			Members:  []string{"volume"},
			Types:    []types.MemberType{{Binary: types.BT_PRIMITIVE, Primitive: types.PT_DOUBLE}},
		},
		Values: []any{types.Primitive{Type: types.PT_DOUBLE, Value: 0.25}},
	}
	s := &types.Stream{
		Header: types.Header{RootID: 1, HeaderID: -1, Major: 1},
		Records: []types.Record{
			&types.Library{ID: 2, Name: "Game"},
			&types.Class{
				ObjectID: 1,
				Meta: &types.ClassMeta{
					ObjectID: 1,
					Name:     "Game.Save",
					Library:  2,
					Members:  []string{"current", "saved", "missing"},
				},
				Values: []any{settings, &types.Reference{IDRef: 4}, &types.Reference{IDRef: 99}},
			},
		},
	}

	buf := &bytes.Buffer{}
	require.NoError(t, Stream(buf, s))
	got := map[string]any{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))

	require.Equal(t, "Game", got["$assembly"])
	require.Equal(t, 0.25, got["current"].(map[string]any)["volume"])
	require.Equal(t, map[string]any{"$ref": float64(4)}, got["saved"])
	require.Equal(t, map[string]any{"$ref": float64(99)}, got["missing"])
}

func TestPrimitives(t *testing.T) {
	cases := []struct {
		in   types.Primitive
		want string
	}{
		{types.Primitive{Type: types.PT_CHAR, Value: 'é'}, `"é"`},
		{types.Primitive{Type: types.PT_DECIMAL, Value: "12.50"}, `12.50`},
		{types.Primitive{Type: types.PT_DECIMAL, Value: "+1"}, `"+1"`},
		{types.Primitive{Type: types.PT_SINGLE, Value: float32(0.1)}, `0.1`},
		{types.Primitive{Type: types.PT_INT32, Value: int32(-5)}, `-5`},
		{types.Primitive{Type: types.PT_BYTE, Value: uint8(200)}, `200`},
		{types.Primitive{Type: types.PT_TIMESPAN, Value: types.TimeSpan(15 * 60 * 10000000)}, `"15m0s"`},
		{types.Primitive{Type: types.PT_NULL}, `null`},
	}
	for _, c := range cases {
		out, err := marshal(primitive(c.in))
		require.NoError(t, err)
		require.Equal(t, c.want, string(out), c.in.String())
	}
}

func TestByteArraysAreLists(t *testing.T) {
	arr := &types.Array{
		Shape:    types.RT_ARRAY_SINGLE_PRIMITIVE,
		ObjectID: 3,
		Lengths:  []int32{3},
		Elem:     types.MemberType{Binary: types.BT_PRIMITIVE, Primitive: types.PT_BYTE},
		Values: []any{
			types.Primitive{Type: types.PT_BYTE, Value: uint8(1)},
			types.Primitive{Type: types.PT_BYTE, Value: uint8(2)},
			types.Primitive{Type: types.PT_BYTE, Value: uint8(255)},
		},
	}
	out, err := marshal(Value((&types.Stream{}).Index(), arr))
	require.NoError(t, err)
	require.Equal(t, `[1,2,255]`, string(out))
}

func TestRecords(t *testing.T) {
	lines := Records(fixtures.PersData())
	require.Equal(t, "Header: root 1, header -1, version 1.0", lines[0])
	require.Contains(t, lines, "BinaryLibrary #2: "+fixtures.SAVING_LIBRARY)
	require.Contains(t, lines, "   userSettings: -> #4")
	require.Contains(t, lines, "   coins: Int32(150)")
	require.Contains(t, lines, "   score: MemberPrimitiveTyped Int64(12)")
	require.Contains(t, lines, "   1: ClassWithId #9: Everbyte.TextGame.Saving.PathData (layout of #8) [library 2]")
	require.Contains(t, lines, "   2: ObjectNullMultiple256 x2")
}

func TestDateTimes(t *testing.T) {
	saved := time.Local
	time.Local = time.FixedZone("CEST", 2*60*60)
	defer func() { time.Local = saved }()

	when := time.Date(2024, 3, 1, 12, 30, 0, 1500, time.UTC)
	cases := map[types.DateTimeKind]string{
		types.DTK_UNSPECIFIED: `"2024-03-01T12:30:00.0000015"`,
		types.DTK_UTC:         `"2024-03-01T12:30:00.0000015Z"`,
		types.DTK_LOCAL:       `"2024-03-01T12:30:00.0000015+02:00"`,
	}
	for kind, want := range cases {
		out, err := marshal(primitive(types.Primitive{Type: types.PT_DATETIME, Value: types.MakeDateTime(when, kind)}))
		require.NoError(t, err)
		require.Equal(t, want, string(out))
	}
}
