// Package mappings decodes the "mappings" field of a source map (revision 3)
// into a compact in-memory form and answers "where did this generated position
// come from" queries against it.
//
// Segments of all lines are stored back to back in one []uint32, five fields
// per segment, plus a table of per-line offsets into it. Nothing is expanded
// into per-segment values until a query or DecodedMappings asks for it.
package mappings

import (
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Map is a decoded mappings string.
//
// Map is safe for concurrent use once constructed. TraceSegment serializes
// callers on an internal cursor; use NewCursor to query without locking.
type Map struct {
	encoded string
	buf     []uint32
	lines   []int // Record offset of every line, plus the total record count.

	mu     sync.Mutex
	cursor *Cursor
}

// Decode parses an encoded mappings string. Errors returned for malformed input
// match ErrMalformedMapping.
func Decode(encoded string) (*Map, error) {
	buf, lines, err := decode(encoded)
	if err != nil {
		return nil, err
	}
	return &Map{encoded: encoded, buf: buf, lines: lines}, nil
}

// EncodedMappings returns the string the map was decoded from.
func (m *Map) EncodedMappings() string {
	return m.encoded
}

// LineCount returns the number of generated lines, including empty ones.
func (m *Map) LineCount() int {
	if len(m.lines) == 0 {
		return 0
	}
	return len(m.lines) - 1
}

// SegmentCount returns the number of segments across all lines.
func (m *Map) SegmentCount() int {
	return len(m.buf) / recordSize
}

// Line returns the segments of a generated line ordered by generated column,
// or nil if the line is out of range.
func (m *Map) Line(line int) []Segment {
	if line < 0 || line >= m.LineCount() {
		return nil
	}
	start, end := m.lines[line], m.lines[line+1]
	segments := make([]Segment, 0, end-start)
	for r := start; r < end; r++ {
		segments = append(segments, materializeSegment(m.buf, r))
	}
	return segments
}

// Lines iterates over all generated lines with their segments. Segments are
// materialized on each iteration; nothing is retained between calls.
func (m *Map) Lines() iter.Seq2[int, []Segment] {
	return func(yield func(int, []Segment) bool) {
		for line := 0; line < m.LineCount(); line++ {
			if !yield(line, m.Line(line)) {
				return
			}
		}
	}
}

// DecodedMappings returns the segments of every generated line.
func (m *Map) DecodedMappings() [][]Segment {
	decoded := make([][]Segment, 0, m.LineCount())
	for _, segments := range m.Lines() {
		decoded = append(decoded, segments)
	}
	return decoded
}

// TraceSegment is Cursor.TraceSegment on a cursor shared by all callers of
// this method.
func (m *Map) TraceSegment(line, column int) (Segment, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor == nil {
		m.cursor = m.NewCursor()
	}
	return m.cursor.TraceSegment(line, column)
}

// Equal reports whether both maps hold the same decoded segments.
func (m *Map) Equal(other *Map) bool {
	return slices.Equal(m.buf, other.buf) && slices.Equal(m.lines, other.lines)
}

// snapshot is the serialized form of a Map.
type snapshot struct {
	Encoded string
	Buf     []uint32
	Lines   []int
}

// Write serializes the decoded map with the given encode function, typically
// gob.Encoder.Encode.
func (m *Map) Write(encode func(any) error) error {
	return encode(snapshot{Encoded: m.encoded, Buf: m.buf, Lines: m.lines})
}

// Read restores a map previously serialized with Write. The receiver must not
// be in use by other goroutines.
func (m *Map) Read(decode func(any) error) error {
	var s snapshot
	if err := decode(&s); err != nil {
		return err
	}
	if err := s.validate(); err != nil {
		return err
	}
	m.encoded, m.buf, m.lines = s.Encoded, s.Buf, s.Lines
	m.cursor = nil
	return nil
}

func (s *snapshot) validate() error {
	if len(s.Lines) == 0 || s.Lines[0] != 0 {
		return fmt.Errorf("invalid line table: must start with 0")
	}
	if !slices.IsSorted(s.Lines) {
		return fmt.Errorf("invalid line table: offsets must not decrease")
	}
	if last := s.Lines[len(s.Lines)-1]; last*recordSize != len(s.Buf) {
		return fmt.Errorf("invalid line table: %d records, buffer holds %d", last, len(s.Buf)/recordSize)
	}
	for line := 0; line+1 < len(s.Lines); line++ {
		if !lineSorted(s.Buf, s.Lines[line], s.Lines[line+1]) {
			return fmt.Errorf("invalid buffer: line %d is not sorted by generated column", line)
		}
	}
	return nil
}
