package types

import (
	"github.com/pkg/errors"
)

// Index maps object ids to the records that define them.
// Build it with Stream.Index after the stream changes shape; NextID hands out ids nothing uses yet.
type Index struct {
	objects   map[int32]Record
	libraries map[int32]string
	refs      map[int32]int
	root      int32
	max_id    int32
}

func (s *Stream) Index() *Index {
	ix := &Index{
		objects:   map[int32]Record{},
		libraries: map[int32]string{},
		refs:      map[int32]int{},
		root:      s.Header.RootID,
	}
	for _, r := range s.Records {
		ix.add(r)
	}
	if s.Header.RootID > ix.max_id {
		ix.max_id = s.Header.RootID
	}
	return ix
}

func (ix *Index) add_libraries(libs []*Library) {
	for _, l := range libs {
		ix.libraries[l.ID] = l.Name
	}
}

func (ix *Index) add_object(id int32, r Record) {
	ix.objects[id] = r
	if id > ix.max_id {
		ix.max_id = id
	}
}

func (ix *Index) add(v any) {
	switch r := v.(type) {
	case *Library:
		ix.libraries[r.ID] = r.Name
	case *Class:
		ix.add_libraries(r.Libraries)
		ix.add_object(r.ObjectID, r)
		for _, member := range r.Values {
			ix.add(member)
		}
	case *Array:
		ix.add_libraries(r.Libraries)
		ix.add_object(r.ObjectID, r)
		for _, elem := range r.Values {
			ix.add(elem)
		}
	case *String:
		ix.add_object(r.ObjectID, r)
	case *Reference:
		ix.refs[r.IDRef]++
	}
}

func (ix *Index) Object(id int32) Record {
	return ix.objects[id]
}

// Referenced is true if some MemberReference points at id.
func (ix *Index) Referenced(id int32) bool {
	return ix.refs[id] > 0
}

func (ix *Index) Library(id int32) string {
	return ix.libraries[id]
}

// Resolve follows MemberReferences until it reaches something that is not a reference.
// A dangling reference resolves to itself.
func (ix *Index) Resolve(v any) any {
	for hops := 0; hops < 64; hops++ {
		ref, ok := v.(*Reference)
		if !ok {
			return v
		}
		target, ok := ix.objects[ref.IDRef]
		if !ok {
			return v
		}
		v = target
	}
	return v
}

func (ix *Index) NextID() int32 {
	ix.max_id++
	return ix.max_id
}

// Root returns the record named by the header's root id.
func (ix *Index) Root() (Record, error) {
	root, ok := ix.objects[ix.root]
	if !ok {
		return nil, errors.Errorf("root object %v not found in stream", ix.root)
	}
	return root, nil
}
