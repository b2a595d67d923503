package types

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// BinaryFormatter writes generic collections through ISerializable/field dumps, so they
// show up as ordinary system classes.  These helpers know their member names.
const (
	LIST_PREFIX       = "System.Collections.Generic.List`1"
	DICTIONARY_PREFIX = "System.Collections.Generic.Dictionary`2"
	GUID_NAME         = "System.Guid"
)

func (c *Class) IsList() bool {
	return c.Meta.System && strings.HasPrefix(c.Meta.Name, LIST_PREFIX)
}

func (c *Class) IsDictionary() bool {
	return c.Meta.System && strings.HasPrefix(c.Meta.Name, DICTIONARY_PREFIX)
}

func (c *Class) IsGuid() bool {
	return c.Meta.System && c.Meta.Name == GUID_NAME
}

// IsEnum is true for boxed enums, which are written as a class with a single value__ member.
func (c *Class) IsEnum() bool {
	return len(c.Meta.Members) == 1 && c.Meta.Members[0] == "value__"
}

func int_value(v any) (int, bool) {
	p, ok := v.(Primitive)
	if !ok {
		return 0, false
	}
	switch n := p.Value.(type) {
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case int16:
		return int(n), true
	}
	return 0, false
}

// ListItems returns the backing array of a List<T> and how many of its elements are live.
// A list that has never held anything may have a null _items.
func (ix *Index) ListItems(c *Class) (*Array, int, error) {
	size, ok := int_value(c.Get("_size"))
	if !ok {
		return nil, 0, errors.Errorf("%v has no usable _size", c.Meta.Name)
	}
	items := ix.Resolve(c.Get("_items"))
	switch items := items.(type) {
	case *Array:
		if size < 0 || size > items.Len() {
			return nil, 0, errors.Errorf("%v claims %v items but has room for %v", c.Meta.Name, size, items.Len())
		}
		return items, size, nil
	case *Null, nil:
		if size != 0 {
			return nil, 0, errors.Errorf("%v claims %v items but has no storage", c.Meta.Name, size)
		}
		return nil, 0, nil
	}
	return nil, 0, errors.Errorf("%v _items is a %T, not an array", c.Meta.Name, items)
}

// DictionaryPairs returns the KeyValuePair records of a Dictionary<K,V>, in stream order.
// Empty dictionaries omit KeyValuePairs entirely.
func (ix *Index) DictionaryPairs(c *Class) ([]*Class, error) {
	raw := ix.Resolve(c.Get("KeyValuePairs"))
	switch raw.(type) {
	case nil, *Null:
		return nil, nil
	}
	arr, ok := raw.(*Array)
	if !ok {
		return nil, errors.Errorf("%v KeyValuePairs is a %T, not an array", c.Meta.Name, raw)
	}

	pairs := []*Class{}
	for i, elem := range arr.Elements() {
		pair, ok := ix.Resolve(elem).(*Class)
		if !ok {
			return nil, errors.Errorf("%v pair %v is not a KeyValuePair", c.Meta.Name, i)
		}
		if pair.Meta.Member("key") < 0 || pair.Meta.Member("value") < 0 {
			return nil, errors.Errorf("%v pair %v has no key/value members", c.Meta.Name, i)
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

// KeyString renders a value the way it is matched as a dictionary key.
func (ix *Index) KeyString(v any) string {
	switch k := ix.Resolve(v).(type) {
	case *String:
		return k.Value
	case Primitive:
		return primitive_text(k)
	case *PrimitiveTyped:
		return primitive_text(k.Value)
	case *Class:
		if k.IsEnum() {
			return ix.KeyString(k.Values[0])
		}
		return fmt.Sprintf("%v#%v", k.Meta.Name, k.ObjectID)
	case *Null, nil:
		return "null"
	}
	return fmt.Sprint(v)
}

func primitive_text(p Primitive) string {
	switch v := p.Value.(type) {
	case rune:
		if p.Type == PT_CHAR {
			return string(v)
		}
	case DateTime:
		return v.Time().Format("2006-01-02T15:04:05.0000000")
	}
	return fmt.Sprint(p.Value)
}
