// Package experiments holds the feature switches that can be flipped without
// a rebuild or a config change.
//
// The SMTRACE_EXPERIMENT environment variable lists the enabled switches, e.g.
// SMTRACE_EXPERIMENT=nomemo,nocache=false.
package experiments

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
)

// EnvVar is the environment variable Env is read from.
const EnvVar = "SMTRACE_EXPERIMENT"

var (
	// ErrInvalidDest is returned by parseFlags() when dest is not a non-nil
	// pointer to a struct of boolean flag fields.
	ErrInvalidDest = errors.New("invalid flag struct")
	// ErrInvalidFormat is returned by parseFlags() for a malformed flag string.
	ErrInvalidFormat = errors.New("invalid flag string format")
)

// Env contains the switches set in the SMTRACE_EXPERIMENT environment variable.
var Env Flags

func init() {
	if err := parseFlags(os.Getenv(EnvVar), &Env); err != nil {
		panic(fmt.Errorf("failed to parse %s: %w", EnvVar, err))
	}
}

// Flags contains the supported switches.
type Flags struct {
	// NoMemo makes every point query run a full binary search over the line
	// instead of resuming from the previous result.
	NoMemo bool `flag:"nomemo"`
	// NoCache bypasses the decoded map cache even if the config enables it.
	NoCache bool `flag:"nocache"`
}

// Enabled returns the names of switches that are on, in declaration order.
func (f Flags) Enabled() []string {
	var names []string
	v := reflect.ValueOf(f)
	for i := 0; i < v.NumField(); i++ {
		name, ok := v.Type().Field(i).Tag.Lookup("flag")
		if ok && v.Field(i).Bool() {
			names = append(names, name)
		}
	}
	return names
}

// parseFlags fills the tagged boolean fields of dest from raw.
//
// raw is a comma separated list of `name` or `name=value` entries; a bare name
// means true. Whitespace around names and values is ignored and the last
// occurrence of a name wins. Names without a matching `flag` tag are skipped so
// that a retired switch left in someone's environment doesn't break them.
// Values are parsed with strconv.ParseBool().
func parseFlags(raw string, dest any) error {
	ptr := reflect.ValueOf(dest)
	if ptr.Kind() != reflect.Pointer || ptr.Type().Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: must be a pointer to a struct", ErrInvalidDest)
	}
	if ptr.IsNil() {
		return fmt.Errorf("%w: must not be nil", ErrInvalidDest)
	}
	fields := taggedFields(ptr.Elem())

	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		key, val, hasVal := strings.Cut(entry, "=")
		key = strings.TrimSpace(key)
		val = strings.TrimSpace(val)
		if !hasVal {
			val = "true"
		}
		if key == "" {
			return fmt.Errorf("%w: empty flag name in %q", ErrInvalidFormat, entry)
		}

		field, ok := fields[key]
		if !ok {
			continue
		}
		if field.Kind() != reflect.Bool {
			return fmt.Errorf("%w: flag %q is not boolean", ErrInvalidDest, key)
		}
		b, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("%w: can't parse %q as boolean for flag %q", ErrInvalidFormat, val, key)
		}
		field.SetBool(b)
	}
	return nil
}

// taggedFields indexes the fields of struct s by their `flag` tag.
func taggedFields(s reflect.Value) map[string]reflect.Value {
	typ := s.Type()
	result := map[string]reflect.Value{}
	for i := 0; i < typ.NumField(); i++ {
		if name, ok := typ.Field(i).Tag.Lookup("flag"); ok {
			result[name] = s.Field(i)
		}
	}
	return result
}
