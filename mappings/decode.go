package mappings

import (
	"math"
	"strings"
)

// recordSize is the number of uint32 fields each segment occupies in the
// packed buffer.
const recordSize = 5

// Field offsets within a packed record. All fields except the generated column
// are stored with a +1 bias, zero means the field is absent.
const (
	fieldGeneratedColumn = iota
	fieldSourceIndex
	fieldSourceLine
	fieldSourceColumn
	fieldNameIndex
)

// accumulator keeps the running value of one delta-encoded field.
type accumulator struct {
	value int64
	name  string
}

// add applies the delta read at offset and returns the new running value.
// Biased fields must stay in [0, MaxUint32-1] so that value+1 fits the buffer.
func (a *accumulator) add(delta int64, offset int, bias int64) (uint32, error) {
	a.value += delta
	if a.value < 0 {
		return 0, malformed(offset, "%s is negative (%d)", a.name, a.value)
	}
	if a.value+bias > math.MaxUint32 {
		return 0, malformed(offset, "%s overflows 32 bits (%d)", a.name, a.value)
	}
	return uint32(a.value + bias), nil
}

// decode converts the mappings string into a packed record buffer and a line
// offset table. Each line is normalized as soon as its closing ';' (or the end
// of input) is seen.
func decode(encoded string) (buf []uint32, lines []int, err error) {
	buf = make([]uint32, 0, estimateRecords(encoded)*recordSize)
	lines = make([]int, 1, strings.Count(encoded, ";")+2)

	generatedColumn := accumulator{name: "generated column"}
	// Source fields carry over from line to line.
	sourceFields := [...]accumulator{
		{name: "source index"},
		{name: "source line"},
		{name: "source column"},
		{name: "name index"},
	}

	lineStart := 0
	closeLine := func() {
		records := len(buf) / recordSize
		normalizeLine(buf, lineStart, records)
		lines = append(lines, records)
		lineStart = records
	}

	pos := 0
	for pos < len(encoded) {
		switch encoded[pos] {
		case ',':
			pos++
			continue
		case ';':
			closeLine()
			generatedColumn.value = 0
			pos++
			continue
		}

		var rec [recordSize]uint32
		fields := 0
		for !isSeparator(encoded, pos) {
			if fields == recordSize {
				return nil, nil, malformed(pos, "segment has more than %d fields", recordSize)
			}
			start := pos
			var delta int64
			if delta, pos, err = readVLQ(encoded, pos); err != nil {
				return nil, nil, err
			}
			if fields == fieldGeneratedColumn {
				rec[fields], err = generatedColumn.add(delta, start, 0)
			} else {
				rec[fields], err = sourceFields[fields-1].add(delta, start, 1)
			}
			if err != nil {
				return nil, nil, err
			}
			fields++
		}
		switch fields {
		case 1, 4, 5:
		default:
			return nil, nil, malformed(pos, "segment has %d fields, want 1, 4 or 5", fields)
		}
		buf = append(buf, rec[:]...)
	}
	closeLine()

	return shrink(buf), shrink(lines), nil
}

// shrink returns s backed by an array of exactly len(s) elements, so that the
// over-estimated decode buffers can be collected.
func shrink[S ~[]E, E any](s S) S {
	if cap(s) == len(s) {
		return s
	}
	exact := make(S, len(s))
	copy(exact, s)
	return exact
}

// estimateRecords guesses the record count from the separator count, which is
// exact for inputs without empty records.
func estimateRecords(encoded string) int {
	n := 0
	for i := 0; i < len(encoded); i++ {
		if encoded[i] == ',' || encoded[i] == ';' {
			n++
		}
	}
	return n + 1
}
