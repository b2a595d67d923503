package dump

import (
	"fmt"
	"strings"

	"katedit/types"
)

// Records lists the stream record by record, the way it sits in the file.
// Unlike the JSON dump, nothing is interpreted: lists are arrays plus a size,
// references stay references and null runs stay runs.
func Records(s *types.Stream) []string {
	out := []string{}
	out = append(out, fmt.Sprintf("Header: root %v, header %v, version %v.%v", s.Header.RootID, s.Header.HeaderID, s.Header.Major, s.Header.Minor))
	for _, r := range s.Records {
		out = append(out, "")
		out = append(out, record_lines("", r)...)
	}
	return out
}

func library_lines(indent string, libs []*types.Library) []string {
	out := []string{}
	for _, l := range libs {
		out = append(out, fmt.Sprintf("%v%v #%v: %v", indent, l.Type(), l.ID, l.Name))
	}
	return out
}

func record_lines(indent string, v any) []string {
	switch r := v.(type) {
	case types.Primitive:
		return []string{indent + r.String()}

	case *types.PrimitiveTyped:
		return []string{fmt.Sprintf("%v%v %v", indent, r.Type(), r.Value)}

	case *types.String:
		return []string{fmt.Sprintf("%v%v #%v: %q", indent, r.Type(), r.ObjectID, r.Value)}

	case *types.Reference:
		return []string{fmt.Sprintf("%v-> #%v", indent, r.IDRef)}

	case *types.NullMultiple:
		return []string{fmt.Sprintf("%v%v x%v", indent, r.Type(), r.Count)}

	case *types.Library:
		return library_lines(indent, []*types.Library{r})

	case *types.Class:
		out := library_lines(indent, r.Libraries)
		head := fmt.Sprintf("%v%v #%v: %v", indent, r.Type(), r.ObjectID, r.Meta.Name)
		if r.ViaID {
			head += fmt.Sprintf(" (layout of #%v)", r.Meta.ObjectID)
		}
		if !r.Meta.System {
			head += fmt.Sprintf(" [library %v]", r.Meta.Library)
		}
		out = append(out, head)
		for i, name := range r.Meta.Members {
			lines := record_lines(indent+"   ", r.Values[i])
			lines[0] = indent + "   " + name + ": " + strings.TrimLeft(lines[0], " ")
			out = append(out, lines...)
		}
		return out

	case *types.Array:
		out := library_lines(indent, r.Libraries)
		out = append(out, fmt.Sprintf("%v%v #%v: %v %v", indent, r.Type(), r.ObjectID, r.Elem, r.Lengths))
		for i, e := range r.Values {
			lines := record_lines(indent+"   ", e)
			lines[0] = fmt.Sprintf("%v   %v: %v", indent, i, strings.TrimLeft(lines[0], " "))
			out = append(out, lines...)
		}
		return out

	case types.Record:
		return []string{indent + r.Type().String()}
	}
	return []string{fmt.Sprintf("%v%v", indent, v)}
}
