package mappings

import (
	"sort"

	"github.com/gopherjs/smtrace/internal/experiments"
)

// Cursor answers point queries against a Map and remembers the previous query
// to speed up the next one. Queries for the same generated line with growing
// columns, e.g. when walking tokens left to right, only search the part of the
// line after the previous result.
//
// A Cursor is not safe for concurrent use, but any number of cursors may query
// the same Map concurrently.
type Cursor struct {
	m    *Map
	memo bool

	lastLine   int
	lastColumn int
	lastIndex  int // Record index of the last result, -1 if not found.
}

// NewCursor returns a fresh cursor over the map.
func (m *Map) NewCursor() *Cursor {
	return &Cursor{
		m:          m,
		memo:       !experiments.Env.NoMemo,
		lastLine:   -1,
		lastColumn: -1,
		lastIndex:  -1,
	}
}

// TraceSegment returns the segment in effect at the given 0-based generated
// position: the rightmost segment of the line with a generated column not
// greater than column. The second result is false if the line is not covered by
// the map or the column precedes the line's first segment.
func (c *Cursor) TraceSegment(line, column int) (Segment, bool) {
	if line < 0 || line >= len(c.m.lines)-1 || column < 0 {
		c.remember(line, column, -1)
		return Segment{}, false
	}
	index := c.search(line, column)
	if index < 0 {
		return Segment{}, false
	}
	return materializeSegment(c.m.buf, index), true
}

// search finds the last record of the line whose generated column is <= column
// and returns its index, or -1.
func (c *Cursor) search(line, column int) int {
	buf := c.m.buf
	start, end := c.m.lines[line], c.m.lines[line+1]

	low := start
	if c.memo && line == c.lastLine && column >= c.lastColumn && c.lastIndex >= start {
		// The previous result has a column <= lastColumn <= column, so the
		// answer can't be to the left of it.
		low = c.lastIndex
	}
	upper := low + sort.Search(end-low, func(i int) bool {
		return int(buf[(low+i)*recordSize+fieldGeneratedColumn]) > column
	})

	index := upper - 1
	if index < start {
		index = -1
	}
	c.remember(line, column, index)
	return index
}

func (c *Cursor) remember(line, column, index int) {
	c.lastLine = line
	c.lastColumn = column
	c.lastIndex = index
}
