package types

// Release tidies the stream after old, a record that was written inline in some slot,
// has been replaced there.  ix is the index from before the replacement.
//
// Anything inside old that the rest of the stream still points at moves to the top
// level.  Class layouts and libraries that were declared inside old are declared again
// where their first remaining user is written.  The returned index describes the stream
// as it is now, and never hands out an id that was in use before.
func (s *Stream) Release(old Record, ix *Index) *Index {
	for s.rehome(old) {
	}
	l := &layout{metas: map[*ClassMeta]bool{}, libs: map[int32]bool{}, names: ix}
	for _, r := range s.Records {
		l.visit(r)
	}

	out := s.Index()
	if ix.max_id > out.max_id {
		out.max_id = ix.max_id
	}
	return out
}

// rehome moves the outermost objects in old that are still referenced to the top level.
// Moving one can make others referenced, so it reports whether it moved anything.
func (s *Stream) rehome(old Record) bool {
	ix := s.Index()
	moved := false

	var visit func(v any)
	visit = func(v any) {
		var id int32
		var inside []any
		switch r := v.(type) {
		case *Class:
			id, inside = r.ObjectID, r.Values
		case *Array:
			id, inside = r.ObjectID, r.Values
		case *String:
			id = r.ObjectID
		default:
			return
		}
		if ix.objects[id] != nil {
			// already back in the stream
			return
		}
		if ix.Referenced(id) {
			s.Records = append(s.Records, v.(Record))
			moved = true
			return
		}
		for _, x := range inside {
			visit(x)
		}
	}
	visit(old)
	return moved
}

// layout walks records in the order they are written, making sure every ClassWithId
// comes after the record that defines its layout, and every library is declared once,
// before anything uses it.
type layout struct {
	metas map[*ClassMeta]bool
	libs  map[int32]bool
	names *Index
}

// declared drops libraries that were already declared earlier in the stream.
func (l *layout) declared(libs []*Library) []*Library {
	var out []*Library
	for _, lib := range libs {
		if !l.libs[lib.ID] {
			l.libs[lib.ID] = true
			out = append(out, lib)
		}
	}
	return out
}

// need declares any of the library ids in uses that nobody has declared yet.
func (l *layout) need(libs []*Library, uses ...int32) []*Library {
	for _, id := range uses {
		if l.libs[id] {
			continue
		}
		name := l.names.Library(id)
		if name == "" {
			continue
		}
		l.libs[id] = true
		libs = append(libs, &Library{ID: id, Name: name})
	}
	return libs
}

func (l *layout) visit(v any) {
	switch r := v.(type) {
	case *Library:
		l.libs[r.ID] = true

	case *Class:
		r.Libraries = l.declared(r.Libraries)
		switch {
		case r.ViaID && !l.metas[r.Meta]:
			// its defining record is gone or comes later: this one defines it now
			r.ViaID = false
			r.Meta.ObjectID = r.ObjectID
		case !r.ViaID && l.metas[r.Meta]:
			r.ViaID = true
		}
		if !r.ViaID {
			l.metas[r.Meta] = true
			uses := []int32{}
			if !r.Meta.System {
				uses = append(uses, r.Meta.Library)
			}
			for _, mt := range r.Meta.Types {
				if mt.Binary == BT_CLASS {
					uses = append(uses, mt.Library)
				}
			}
			r.Libraries = l.need(r.Libraries, uses...)
		}
		for _, x := range r.Values {
			l.visit(x)
		}

	case *Array:
		r.Libraries = l.declared(r.Libraries)
		if r.Elem.Binary == BT_CLASS {
			r.Libraries = l.need(r.Libraries, r.Elem.Library)
		}
		for _, x := range r.Values {
			l.visit(x)
		}
	}
}
