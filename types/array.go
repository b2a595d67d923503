package types

import (
	"math"

	"github.com/pkg/errors"
)

// Array is any of the array record variants.
//
// Shape is the record type it was read as (BinaryArray, ArraySinglePrimitive,
// ArraySingleObject or ArraySingleString).  For the ArraySingle* shapes Kind is
// always AT_SINGLE, Lengths has one entry and Elem is implied by the shape.
//
// Values holds the slots as written, so a run of nulls is one NullMultiple
// entry covering several elements.  Use Len/Get/Set for element-wise access.
type Array struct {
	Shape       RecordType
	ObjectID    int32
	Kind        ArrayType
	Lengths     []int32
	LowerBounds []int32
	Elem        MemberType
	Values      []any
	Libraries   []*Library
}

func (a *Array) Type() RecordType { return a.Shape }

// Len is the number of elements (all dimensions multiplied out).
// An array whose size does not fit an int32 has length 0.
func (a *Array) Len() int {
	n, _ := a.Size()
	return n
}

// Size is Len, but says whether the lengths are sane: none negative, and the
// product no bigger than math.MaxInt32.
func (a *Array) Size() (int, bool) {
	n := int64(1)
	for _, l := range a.Lengths {
		if l < 0 {
			return 0, false
		}
		n *= int64(l)
		if n > math.MaxInt32 {
			return 0, false
		}
	}
	return int(n), true
}

func span(v any) int {
	if nm, ok := v.(*NullMultiple); ok {
		return int(nm.Count)
	}
	return 1
}

// locate finds the slot holding element i: its position in Values and the element index the slot starts at.
func (a *Array) locate(i int) (int, int, error) {
	if i < 0 || i >= a.Len() {
		return 0, 0, errors.Errorf("index %v out of range (length %v)", i, a.Len())
	}
	start := 0
	for pos, v := range a.Values {
		n := span(v)
		if i < start+n {
			return pos, start, nil
		}
		start += n
	}
	return 0, 0, errors.Errorf("index %v not covered by array %v data", i, a.ObjectID)
}

func (a *Array) Get(i int) (any, error) {
	pos, _, err := a.locate(i)
	if err != nil {
		return nil, err
	}
	if _, ok := a.Values[pos].(*NullMultiple); ok {
		return &Null{}, nil
	}
	return a.Values[pos], nil
}

// Set replaces element i.  If i sits inside a null run, the run is split around it.
func (a *Array) Set(i int, v any) error {
	pos, start, err := a.locate(i)
	if err != nil {
		return err
	}
	nm, ok := a.Values[pos].(*NullMultiple)
	if !ok {
		a.Values[pos] = v
		return nil
	}

	replacement := []any{}
	if before := i - start; before > 0 {
		replacement = append(replacement, NullRun(before))
	}
	replacement = append(replacement, v)
	if after := start + int(nm.Count) - i - 1; after > 0 {
		replacement = append(replacement, NullRun(after))
	}

	values := append([]any{}, a.Values[:pos]...)
	values = append(values, replacement...)
	a.Values = append(values, a.Values[pos+1:]...)
	return nil
}

// Elements expands null runs, one entry per element.
func (a *Array) Elements() []any {
	out := []any{}
	for _, v := range a.Values {
		if nm, ok := v.(*NullMultiple); ok {
			for range nm.Count {
				out = append(out, &Null{})
			}
			continue
		}
		out = append(out, v)
	}
	return out
}
