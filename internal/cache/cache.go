// Package cache keeps decoded mappings on disk so that large source maps don't
// have to be decoded again every time a tool starts.
package cache

import (
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

// Cacheable is implemented by values that can be serialized into the cache.
//
// The encode and decode functions are gob.Encoder.Encode and gob.Decoder.Decode.
type Cacheable interface {
	Write(encode func(any) error) error
	Read(decode func(any) error) error
}

// DefaultDir returns the cache location used when MapCache.Dir is empty.
func DefaultDir() string {
	if path, err := os.UserCacheDir(); err == nil {
		return filepath.Join(path, "smtrace", "maps")
	}
	return filepath.Join(os.TempDir(), "smtrace_maps")
}

// MapCache stores decoded maps keyed by their encoded mappings string.
//
// The cache is non-durable: store and load errors are logged and turn into
// cache misses, callers must always be able to decode from scratch. A nil
// *MapCache is valid and disables caching.
//
// Entries are gzip compressed, gzip's checksum doubles as an integrity check
// when reading them back.
type MapCache struct {
	// Dir is the cache root, DefaultDir() if empty.
	Dir string
	// Version is mixed into every key. Changing it invalidates all entries, it
	// should change whenever the serialized form of a decoded map does.
	Version string
}

// header precedes the payload of every cache entry.
type header struct {
	Version  string
	StoredAt time.Time
}

func (mc *MapCache) String() string {
	return fmt.Sprintf("MapCache{Dir: %q, Version: %q}", mc.dir(), mc.Version)
}

func (mc *MapCache) dir() string {
	if mc.Dir == "" {
		return DefaultDir()
	}
	return mc.Dir
}

// path returns the location of the entry for the given mappings.
func (mc *MapCache) path(mappings string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%q\n", mc.Version)
	io.WriteString(h, mappings)
	sum := fmt.Sprintf("%x", h.Sum(nil))
	return filepath.Join(mc.dir(), sum[0:2], sum)
}

// Clear removes all entries of all versions.
func (mc *MapCache) Clear() error {
	if mc == nil {
		return nil
	}
	return os.RemoveAll(mc.dir())
}

// Store saves c as the decoded form of mappings.
func (mc *MapCache) Store(c Cacheable, mappings string) bool {
	if mc == nil {
		return false // Caching is disabled.
	}

	start := time.Now()
	path := mc.path(mappings)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		log.Warningf("Failed to create map cache directory: %v", err)
		return false
	}
	// Write into a temporary file first so that concurrent readers never see a
	// partial entry.
	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path))
	if err != nil {
		log.Warningf("Failed to create temporary map cache file: %v", err)
		return false
	}
	defer f.Close()
	if err := mc.serialize(c, start, f); err != nil {
		log.Warningf("Failed to write map cache entry %q: %v", path, err)
		os.Remove(f.Name())
		return false
	}
	f.Close()
	if err := os.Rename(f.Name(), path); err != nil {
		log.Warningf("Failed to rename map cache entry %q to %q: %v", f.Name(), path, err)
		os.Remove(f.Name())
		return false
	}
	log.Debugf("Stored decoded map (%d bytes of mappings) as %q (%v).", len(mappings), path, time.Since(start).Round(time.Millisecond))
	return true
}

// Load populates c from the entry for mappings, if there is one.
func (mc *MapCache) Load(c Cacheable, mappings string) bool {
	if mc == nil {
		return false // Caching is disabled.
	}

	start := time.Now()
	path := mc.path(mappings)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Debugf("No cached map at %q.", path)
		} else {
			log.Warningf("Failed to open cached map at %q: %v", path, err)
		}
		return false
	}
	defer f.Close()
	h, err := mc.deserialize(c, f)
	if err != nil {
		log.Warningf("Failed to read cached map at %q: %v", path, err)
		return false // Corrupted entry, cache miss.
	}
	log.Debugf("Found cached map %q, stored at %v (%v).", path, h.StoredAt, time.Since(start).Round(time.Millisecond))
	return true
}

func (mc *MapCache) serialize(c Cacheable, storedAt time.Time, w io.Writer) (err error) {
	zw := gzip.NewWriter(w)
	defer func() {
		// Flushes the gzip stream, w stays open.
		if closeErr := zw.Close(); err == nil {
			err = closeErr
		}
	}()

	ge := gob.NewEncoder(zw)
	if err := ge.Encode(header{Version: mc.Version, StoredAt: storedAt}); err != nil {
		return err
	}
	return c.Write(ge.Encode)
}

func (mc *MapCache) deserialize(c Cacheable, r io.Reader) (h header, err error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return h, err
	}
	defer func() {
		// Verifies the gzip checksum, r stays open.
		if closeErr := zr.Close(); err == nil {
			err = closeErr
		}
	}()

	gd := gob.NewDecoder(zr)
	if err := gd.Decode(&h); err != nil {
		return h, err
	}
	if h.Version != mc.Version {
		return h, fmt.Errorf("entry version %q doesn't match cache version %q", h.Version, mc.Version)
	}
	return h, c.Read(gd.Decode)
}
