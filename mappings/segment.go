package mappings

import "fmt"

// Kind tells which optional parts of a Segment are present.
type Kind uint8

const (
	// Gap segments only carry a generated column; the generated code at that
	// position has no original source.
	Gap Kind = iota
	// Mapped segments point at a position in an original source.
	Mapped
	// MappedNamed segments additionally reference an entry of the names list.
	MappedNamed
)

func (k Kind) String() string {
	switch k {
	case Gap:
		return "gap"
	case Mapped:
		return "mapped"
	case MappedNamed:
		return "named"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Segment is one decoded mapping entry. Fields not covered by Kind are zero.
// All values are 0-based.
type Segment struct {
	Kind            Kind
	GeneratedColumn int
	SourceIndex     int
	SourceLine      int
	SourceColumn    int
	NameIndex       int
}

// Fields returns the segment as the variable-length tuple used by the source
// map format: [column], [column, source, line, column] or
// [column, source, line, column, name].
func (s Segment) Fields() []int {
	switch s.Kind {
	case Mapped:
		return []int{s.GeneratedColumn, s.SourceIndex, s.SourceLine, s.SourceColumn}
	case MappedNamed:
		return []int{s.GeneratedColumn, s.SourceIndex, s.SourceLine, s.SourceColumn, s.NameIndex}
	default:
		return []int{s.GeneratedColumn}
	}
}

func (s Segment) String() string {
	return fmt.Sprint(s.Fields())
}

// materializeSegment unpacks the record at recordIndex, deriving the kind from
// which biased fields are non-zero.
func materializeSegment(buf []uint32, recordIndex int) Segment {
	rec := buf[recordIndex*recordSize : (recordIndex+1)*recordSize]
	s := Segment{GeneratedColumn: int(rec[fieldGeneratedColumn])}
	if rec[fieldSourceIndex] == 0 {
		return s
	}
	s.Kind = Mapped
	s.SourceIndex = int(rec[fieldSourceIndex]) - 1
	s.SourceLine = int(rec[fieldSourceLine]) - 1
	s.SourceColumn = int(rec[fieldSourceColumn]) - 1
	if rec[fieldNameIndex] != 0 {
		s.Kind = MappedNamed
		s.NameIndex = int(rec[fieldNameIndex]) - 1
	}
	return s
}
