package spirv

import (
	"errors"
	"fmt"
	"slices"
)

// Cursor names one of the insertion points a Buffer keeps in sync with its words.
type Cursor uint8

const (
	CursorScan Cursor = iota
	CursorTypes
	CursorMemoryModel
	CursorEntry
	CursorLastLabel
	CursorBody
	CursorLocals
	cursorCount
)

var cursorNames = [...]string{
	CursorScan:        "scan",
	CursorTypes:       "types",
	CursorMemoryModel: "memory-model",
	CursorEntry:       "entry",
	CursorLastLabel:   "last-label",
	CursorBody:        "body",
	CursorLocals:      "locals",
}

func (c Cursor) String() string {
	if int(c) < len(cursorNames) {
		return cursorNames[c]
	}
	return fmt.Sprintf("cursor(%d)", uint8(c))
}

const unset = -1

// ErrFinalized reports a mutation attempted after Finalize.
var ErrFinalized = errors.New("spirv: buffer already finalized")

// Buffer owns a module's words during a transform. Every insertion shifts the
// cursors at or after the insertion point so they keep pointing at the same
// instruction boundary.
type Buffer struct {
	words     []uint32
	bound     uint32
	cursors   [cursorCount]int
	finalized bool
}

// NewBuffer copies words into a fresh buffer. The header must already be valid.
func NewBuffer(words []uint32) (*Buffer, error) {
	if err := CheckHeader(words); err != nil {
		return nil, err
	}
	b := &Buffer{
		words: slices.Clone(words),
		bound: words[HeaderBound],
	}
	for i := range b.cursors {
		b.cursors[i] = unset
	}
	return b, nil
}

// FromBytes decodes data and wraps it in a Buffer.
func FromBytes(data []byte) (*Buffer, error) {
	words, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return NewBuffer(words)
}

// Len is the current number of words, header included.
func (b *Buffer) Len() int { return len(b.words) }

// Words exposes the backing slice. It is invalidated by the next insertion.
func (b *Buffer) Words() []uint32 { return b.words }

// Bound is the next id NewID will hand out.
func (b *Buffer) Bound() uint32 { return b.bound }

// NewID mints a fresh identifier.
func (b *Buffer) NewID() uint32 {
	id := b.bound
	b.bound++
	return id
}

// Word reads word i.
func (b *Buffer) Word(i int) (uint32, error) {
	if i < 0 || i >= len(b.words) {
		return 0, malformed(i, "word read out of range (len %d)", len(b.words))
	}
	return b.words[i], nil
}

// SetWord overwrites word i without growing the buffer.
func (b *Buffer) SetWord(i int, v uint32) error {
	if b.finalized {
		return ErrFinalized
	}
	if i < HeaderWords || i >= len(b.words) {
		return malformed(i, "word write out of range (len %d)", len(b.words))
	}
	b.words[i] = v
	return nil
}

// Inst decodes the instruction at word offset i.
func (b *Buffer) Inst(i int) (Inst, error) {
	return At(b.words, i)
}

// Cursor returns the offset of c and whether it has been set.
func (b *Buffer) Cursor(c Cursor) (int, bool) {
	v := b.cursors[c]
	return v, v != unset
}

// MustCursor returns the offset of c or a malformed-module error when it is unset.
func (b *Buffer) MustCursor(c Cursor) (int, error) {
	v := b.cursors[c]
	if v == unset {
		return 0, malformed(-1, "%s cursor is not set", c)
	}
	return v, nil
}

// SetCursor places c at word offset at.
func (b *Buffer) SetCursor(c Cursor, at int) error {
	if at < HeaderWords || at > len(b.words) {
		return malformed(at, "%s cursor outside of module (len %d)", c, len(b.words))
	}
	b.cursors[c] = at
	return nil
}

// ClearCursor unsets c so later insertions leave it alone.
func (b *Buffer) ClearCursor(c Cursor) { b.cursors[c] = unset }

// InsertWords splices ws in at offset at. Every set cursor whose offset is
// at or after at moves forward by len(ws).
func (b *Buffer) InsertWords(at int, ws ...uint32) error {
	if b.finalized {
		return ErrFinalized
	}
	if at < HeaderWords || at > len(b.words) {
		return malformed(at, "insertion outside of instruction stream (len %d)", len(b.words))
	}
	if len(ws) == 0 {
		return nil
	}
	b.words = slices.Insert(b.words, at, ws...)
	for i, c := range b.cursors {
		if c != unset && c >= at {
			b.cursors[i] = c + len(ws)
		}
	}
	return nil
}

// InsertAt inserts ws at cursor c. The cursor itself ends up just after the
// inserted words, so consecutive calls append in order.
func (b *Buffer) InsertAt(c Cursor, ws ...uint32) error {
	at, err := b.MustCursor(c)
	if err != nil {
		return err
	}
	return b.InsertWords(at, ws...)
}

// Finalize writes the bound into the header. It may run only once.
func (b *Buffer) Finalize() error {
	if b.finalized {
		return ErrFinalized
	}
	b.words[HeaderBound] = b.bound
	b.finalized = true
	return nil
}

// Bytes encodes the buffer. It requires a finalized buffer so a stale bound
// is never written out.
func (b *Buffer) Bytes() ([]byte, error) {
	if !b.finalized {
		return nil, errors.New("spirv: encoding a buffer before Finalize")
	}
	return Encode(b.words), nil
}
