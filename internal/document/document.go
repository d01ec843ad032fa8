// Package document loads source map files and resolves traced segments into
// source file names and symbol names.
package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gopherjs/smtrace/internal/cache"
	"github.com/gopherjs/smtrace/mappings"
	"github.com/neelance/sourcemap"
	log "github.com/sirupsen/logrus"
)

// ErrUnsupportedVersion is returned for source maps other than revision 3.
var ErrUnsupportedVersion = errors.New("unsupported source map version")

// Document is a parsed source map.
type Document struct {
	File       string
	SourceRoot string
	Sources    []string
	Names      []string
	Mappings   *mappings.Map
}

// Position is an original source location a generated position maps to.
type Position struct {
	Segment mappings.Segment
	Source  string // Empty for gaps or unknown source indices.
	Line    int    // 0-based.
	Column  int    // 0-based.
	Name    string // Empty unless the segment is named.
}

func (p Position) String() string {
	if p.Segment.Kind == mappings.Gap {
		return "-"
	}
	s := fmt.Sprintf("%s:%d:%d", p.Source, p.Line+1, p.Column+1)
	if p.Name != "" {
		s += " (" + p.Name + ")"
	}
	return s
}

// Read parses a source map from r. Decoded mappings are looked up in and saved
// to mc, which may be nil.
func Read(r io.Reader, mc *cache.MapCache) (*Document, error) {
	sm, err := sourcemap.ReadFrom(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse source map: %w", err)
	}
	if sm.Version != 3 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, sm.Version)
	}

	m, err := decodeCached(sm.Mappings, mc)
	if err != nil {
		return nil, err
	}
	return &Document{
		File:       sm.File,
		SourceRoot: sm.SourceRoot,
		Sources:    sm.Sources,
		Names:      sm.Names,
		Mappings:   m,
	}, nil
}

// Load reads the source map file at path.
func Load(path string, mc *cache.MapCache) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	d, err := Read(f, mc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

func decodeCached(encoded string, mc *cache.MapCache) (*mappings.Map, error) {
	cached := &mappings.Map{}
	if mc.Load(cached, encoded) && cached.EncodedMappings() == encoded {
		return cached, nil
	}

	start := time.Now()
	m, err := mappings.Decode(encoded)
	if err != nil {
		return nil, err
	}
	log.Debugf("Decoded %d lines, %d segments in %v.", m.LineCount(), m.SegmentCount(), time.Since(start).Round(time.Microsecond))
	mc.Store(m, encoded)
	return m, nil
}

// Trace returns the original position for a 0-based generated position, using
// the map's shared cursor.
func (d *Document) Trace(line, column int) (Position, bool) {
	s, ok := d.Mappings.TraceSegment(line, column)
	if !ok {
		return Position{}, false
	}
	return d.Resolve(s), true
}

// TraceCursor is Trace on a caller owned cursor.
func (d *Document) TraceCursor(c *mappings.Cursor, line, column int) (Position, bool) {
	s, ok := c.TraceSegment(line, column)
	if !ok {
		return Position{}, false
	}
	return d.Resolve(s), true
}

// Resolve looks up the source and name strings referenced by s.
func (d *Document) Resolve(s mappings.Segment) Position {
	p := Position{Segment: s}
	if s.Kind == mappings.Gap {
		return p
	}
	p.Line, p.Column = s.SourceLine, s.SourceColumn
	if s.SourceIndex < len(d.Sources) {
		p.Source = d.source(s.SourceIndex)
	}
	if s.Kind == mappings.MappedNamed && s.NameIndex < len(d.Names) {
		p.Name = d.Names[s.NameIndex]
	}
	return p
}

func (d *Document) source(i int) string {
	root := d.SourceRoot
	if root == "" {
		return d.Sources[i]
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root + d.Sources[i]
}
