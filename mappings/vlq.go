package mappings

import (
	"errors"
	"fmt"
)

const base64Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqBaseShift       = 5
	vlqBaseMask        = 1<<vlqBaseShift - 1
	vlqContinuationBit = 1 << vlqBaseShift
	vlqMaxShift        = 32
	invalidDigit       = 0xff
)

// base64Decode maps a byte to its base64 digit value or invalidDigit.
var base64Decode [256]byte

func init() {
	for i := range base64Decode {
		base64Decode[i] = invalidDigit
	}
	for i := 0; i < len(base64Alphabet); i++ {
		base64Decode[base64Alphabet[i]] = byte(i)
	}
}

// ErrMalformedMapping is matched by every error returned from Decode for an
// input that is not a well-formed mappings string.
var ErrMalformedMapping = errors.New("malformed mappings")

// MalformedMappingError describes where and why decoding failed.
type MalformedMappingError struct {
	Offset int    // Byte offset in the encoded string.
	Reason string // Human readable cause.
}

func (e *MalformedMappingError) Error() string {
	return fmt.Sprintf("%s at offset %d: %s", ErrMalformedMapping, e.Offset, e.Reason)
}

func (e *MalformedMappingError) Is(target error) bool {
	return target == ErrMalformedMapping
}

func malformed(offset int, format string, args ...any) error {
	return &MalformedMappingError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// isSeparator reports whether the position is past the current record: end of
// input or a record/line separator.
func isSeparator(s string, pos int) bool {
	return pos >= len(s) || s[pos] == ',' || s[pos] == ';'
}

// readVLQ decodes one base64 VLQ value starting at pos and returns it along
// with the position right after its last digit.
//
// Digits are little-endian groups of 5 bits, bit 5 of each digit marks that
// more digits follow. The lowest bit of the reassembled value is the sign.
func readVLQ(s string, pos int) (value int64, next int, err error) {
	start := pos
	var v uint64
	shift := uint(0)
	for {
		if pos >= len(s) {
			return 0, pos, malformed(start, "unterminated VLQ value")
		}
		digit := base64Decode[s[pos]]
		if digit == invalidDigit {
			if s[pos] == ',' || s[pos] == ';' {
				return 0, pos, malformed(start, "unterminated VLQ value")
			}
			return 0, pos, malformed(pos, "unexpected character %q", s[pos])
		}
		if shift > vlqMaxShift {
			return 0, pos, malformed(start, "VLQ value exceeds 32 bits")
		}
		v |= uint64(digit&vlqBaseMask) << shift
		pos++
		if digit&vlqContinuationBit == 0 {
			break
		}
		shift += vlqBaseShift
	}
	if v>>1 > 1<<32-1 {
		return 0, pos, malformed(start, "VLQ value exceeds 32 bits")
	}
	if v&1 != 0 {
		return -int64(v >> 1), pos, nil
	}
	return int64(v >> 1), pos, nil
}
