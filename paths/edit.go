package paths

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"katedit/types"
)

// Editor applies path=value overrides to a decoded stream, in place.
type Editor struct {
	stream *types.Stream
	index  *types.Index
}

func New(s *types.Stream) *Editor {
	return &Editor{stream: s, index: s.Index()}
}

func (e *Editor) Index() *types.Index {
	return e.index
}

// slot is somewhere a value lives: a class member, an array element or a dictionary value.
type slot struct {
	mt  types.MemberType
	get func() any
	set func(any) error
}

// walk follows a path from the root object.  It also returns the path with every step
// spelled the way the stream spells it, which is what gets reported back to the user.
func (e *Editor) walk(steps []Step) (slot, []Step, error) {
	root, err := e.index.Root()
	if err != nil {
		return slot{}, nil, err
	}
	cur := slot{
		mt:  types.MemberType{Binary: types.BT_OBJECT},
		get: func() any { return root },
		set: func(any) error { return errors.New("cannot replace the root object") },
	}

	canonical := []Step{}
	for _, st := range steps {
		next, name, err := e.step(cur, st)
		if err != nil {
			return slot{}, nil, errors.WithMessagef(err, "at %v", Format(append(canonical, st)))
		}
		cur = next
		canonical = append(canonical, name)
	}
	return cur, canonical, nil
}

func (e *Editor) step(cur slot, st Step) (slot, Step, error) {
	switch v := e.index.Resolve(cur.get()).(type) {
	case *types.Class:
		switch {
		case v.IsList():
			if !st.IsIndex {
				return slot{}, st, errors.Errorf("%v is a list, use [index]", v.Meta.Name)
			}
			items, size, err := e.index.ListItems(v)
			if err != nil {
				return slot{}, st, err
			}
			if st.Index >= size {
				return slot{}, st, errors.Errorf("index %v out of range (list has %v items)", st.Index, size)
			}
			return array_slot(items, st.Index), st, nil

		case v.IsDictionary():
			return e.dictionary_step(v, st)
		}

		if st.IsIndex {
			return slot{}, st, errors.Errorf("%v is an object, not a list", v.Meta.Name)
		}
		i, err := match(v.Meta.Members, st.Key, "member of "+v.Meta.Name)
		if err != nil {
			return slot{}, st, err
		}
		return member_slot(v, i), Step{Key: v.Meta.Members[i]}, nil

	case *types.Array:
		if !st.IsIndex {
			return slot{}, st, errors.Errorf("array %v needs an [index], not .%v", v.ObjectID, st.Key)
		}
		if st.Index >= v.Len() {
			return slot{}, st, errors.Errorf("index %v out of range (array has %v elements)", st.Index, v.Len())
		}
		return array_slot(v, st.Index), st, nil

	case *types.Null, nil:
		return slot{}, st, errors.New("value is null")

	case *types.Reference:
		return slot{}, st, errors.Errorf("reference to missing object %v", v.IDRef)

	default:
		return slot{}, st, errors.Errorf("a %v has nothing inside it", describe(v))
	}
}

func (e *Editor) dictionary_step(dict *types.Class, st Step) (slot, Step, error) {
	pairs, err := e.index.DictionaryPairs(dict)
	if err != nil {
		return slot{}, st, err
	}
	key := st.Key
	if st.IsIndex {
		key = strconv.Itoa(st.Index)
	}

	keys := []string{}
	for _, p := range pairs {
		keys = append(keys, e.index.KeyString(p.Get("key")))
	}
	i, err := match(keys, key, "key of "+dict.Meta.Name)
	if err != nil {
		return slot{}, st, err
	}
	pair := pairs[i]
	return member_slot(pair, pair.Meta.Member("value")), Step{Key: keys[i]}, nil
}

func member_slot(c *types.Class, i int) slot {
	return slot{
		mt:  c.Meta.MemberType(i),
		get: func() any { return c.Values[i] },
		set: func(v any) error {
			c.Values[i] = v
			return nil
		},
	}
}

func array_slot(a *types.Array, i int) slot {
	return slot{
		mt: a.Elem,
		get: func() any {
			v, _ := a.Get(i)
			return v
		},
		set: func(v any) error { return a.Set(i, v) },
	}
}

func describe(v any) string {
	switch v := v.(type) {
	case types.Primitive:
		return v.Type.String()
	case *types.PrimitiveTyped:
		return v.Value.Type.String()
	case types.Record:
		return v.Type().String()
	}
	return "value"
}

// Get returns whatever is at path, with references followed.
func (e *Editor) Get(path string) (any, error) {
	steps, err := Parse(path)
	if err != nil {
		return nil, err
	}
	s, _, err := e.walk(steps)
	if err != nil {
		return nil, err
	}
	return e.index.Resolve(s.get()), nil
}

// Set stores value at path, converting it to the type the slot is declared with.
// It returns the path as the stream spells it.
func (e *Editor) Set(path string, value string) (string, error) {
	steps, err := Parse(path)
	if err != nil {
		return "", err
	}
	s, canonical, err := e.walk(steps)
	if err != nil {
		return "", err
	}
	where := Format(canonical)
	lit := ParseLiteral(value)
	old := e.index.Resolve(s.get())

	// Boxed enums are edited through their value__ member so they stay enums
	if c, ok := old.(*types.Class); ok && c.IsEnum() && lit.Numeric() {
		v, err := e.convert(lit, c.Meta.MemberType(0), c.Values[0])
		if err != nil {
			return "", errors.WithMessage(err, where)
		}
		c.Values[0] = v
		return where, nil
	}

	raw := s.get()
	as_string := lit.Kind == LK_STRING || (s.mt.Binary == types.BT_STRING && lit.Kind != LK_NULL)
	if str, ok := old.(*types.String); ok && as_string && str.Value == lit.Text {
		// same text, keep the same object
		return where, nil
	}

	v, err := e.convert(lit, s.mt, old)
	if err != nil {
		return "", errors.WithMessage(err, where)
	}
	if err := s.set(v); err != nil {
		return "", errors.WithMessage(err, where)
	}
	e.release(raw)
	return where, nil
}

// release lets go of what a slot held before it was overwritten.  Only records
// written inline in the slot can take anything else in the stream down with them.
func (e *Editor) release(raw any) {
	switch r := raw.(type) {
	case *types.String, *types.Class, *types.Array:
		e.index = e.stream.Release(r.(types.Record), e.index)
	}
}

type Override struct {
	Path  string
	Value string
}

func (o Override) String() string {
	return o.Path + "=" + o.Value
}

// ParseOverride splits a --set argument on its first '='.
func ParseOverride(s string) (Override, error) {
	path, value, ok := strings.Cut(s, "=")
	if !ok {
		return Override{}, errors.Errorf("--set must be path=value, got: %v", s)
	}
	o := Override{Path: strings.TrimSpace(path), Value: strings.TrimSpace(value)}
	if o.Path == "" {
		return Override{}, errors.Errorf("--set has an empty path: %v", s)
	}
	return o, nil
}

func ParseOverrides(args []string) ([]Override, error) {
	out := []Override{}
	for _, a := range args {
		o, err := ParseOverride(a)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

// Apply sets each override in order and stops at the first failure.
// The returned paths are the canonical spellings of the ones that succeeded.
func (e *Editor) Apply(overrides []Override) ([]string, error) {
	done := []string{}
	for _, o := range overrides {
		where, err := e.Set(o.Path, o.Value)
		if err != nil {
			return done, errors.WithMessagef(err, "cannot apply %v", o)
		}
		done = append(done, where)
	}
	return done, nil
}
