// Package spirv holds the binary-level plumbing for SPIR-V modules: the word
// codec, opcode tables, an instruction walker, the cursor-tracking Buffer the
// patcher mutates in place, and a section-ordered Builder for new modules.
package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"

	"fortio.org/safecast"
)

// Header layout.
const (
	Magic        uint32 = 0x07230203
	HeaderWords         = 5
	HeaderBound         = 3
	Version10    uint32 = 0x00010000
	GeneratorID  uint32 = 0x00080001
	wordByteSize        = 4
)

// ErrMalformed is the sentinel wrapped by every structural decode failure.
var ErrMalformed = errors.New("malformed SPIR-V module")

// DecodeError locates a structural problem in a module.
type DecodeError struct {
	Offset int // word offset; -1 when the failure is about the byte stream itself
	Msg    string
}

func (e *DecodeError) Error() string {
	if e.Offset < 0 {
		return "spirv: " + e.Msg
	}
	return fmt.Sprintf("spirv: word %d: %s", e.Offset, e.Msg)
}

func (e *DecodeError) Unwrap() error { return ErrMalformed }

func malformed(offset int, format string, args ...any) error {
	return &DecodeError{Offset: offset, Msg: fmt.Sprintf(format, args...)}
}

// Decode converts little-endian bytes into words and checks the header.
// The byte slice is never aliased by the result.
func Decode(data []byte) ([]uint32, error) {
	if len(data)%wordByteSize != 0 {
		return nil, malformed(-1, "length %d is not a multiple of 4", len(data))
	}
	if len(data) < HeaderWords*wordByteSize {
		return nil, malformed(-1, "length %d is shorter than the %d-word header", len(data), HeaderWords)
	}
	words := make([]uint32, len(data)/wordByteSize)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*wordByteSize:])
	}
	if err := CheckHeader(words); err != nil {
		return nil, err
	}
	return words, nil
}

// CheckHeader validates the magic number and bound of a decoded module.
func CheckHeader(words []uint32) error {
	if len(words) < HeaderWords {
		return malformed(-1, "missing header (%d words)", len(words))
	}
	switch words[0] {
	case Magic:
	case swap32(Magic):
		return malformed(0, "big-endian module is not supported")
	default:
		return malformed(0, "bad magic 0x%08x", words[0])
	}
	if words[HeaderBound] == 0 {
		return malformed(HeaderBound, "bound is zero")
	}
	return nil
}

// Encode converts words back into little-endian bytes.
func Encode(words []uint32) []byte {
	out := make([]byte, len(words)*wordByteSize)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*wordByteSize:], w)
	}
	return out
}

func swap32(v uint32) uint32 {
	return v>>24 | (v>>8)&0xFF00 | (v<<8)&0xFF0000 | v<<24
}

// EncodeString packs a literal string: UTF-8, null terminated, padded to a word.
func EncodeString(s string) []uint32 {
	b := []byte(s)
	b = append(b, 0)
	for len(b)%wordByteSize != 0 {
		b = append(b, 0)
	}
	out := make([]uint32, len(b)/wordByteSize)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(b[i*wordByteSize:])
	}
	return out
}

// DecodeString reads a literal string from the start of operands and returns
// it together with the number of words it occupied.
func DecodeString(operands []uint32) (string, int, error) {
	var sb strings.Builder
	for i, w := range operands {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return sb.String(), i + 1, nil
			}
			sb.WriteByte(c)
		}
	}
	return "", 0, malformed(-1, "unterminated string literal")
}

// MakeOpWord builds the first word of an instruction.
func MakeOpWord(op Op, wordCount int) (uint32, error) {
	wc, err := safecast.Conv[uint16](wordCount)
	if err != nil {
		return 0, malformed(-1, "instruction %s too long (%d words)", op, wordCount)
	}
	return uint32(wc)<<16 | uint32(op), nil
}

// SplitOpWord decodes the first word of an instruction.
func SplitOpWord(w uint32) (Op, int) {
	return Op(w & 0xFFFF), int(w >> 16)
}

// Instr builds a complete instruction from its opcode and operands.
func Instr(op Op, operands ...uint32) []uint32 {
	first, err := MakeOpWord(op, len(operands)+1)
	if err != nil {
		panic(err)
	}
	out := make([]uint32, 0, len(operands)+1)
	out = append(out, first)
	return append(out, operands...)
}
