package spirv

import (
	"errors"
	"math/rand"
	"slices"
	"testing"
)

func header(bound uint32) []uint32 {
	return []uint32{Magic, Version10, GeneratorID, bound, 0}
}

func TestBuffer_InsertShiftsCursorsAtOrAfter(t *testing.T) {
	words := append(header(1), 10, 11, 12, 13)
	b, err := NewBuffer(words)
	if err != nil {
		t.Fatal(err)
	}
	_ = b.SetCursor(CursorTypes, 6)
	_ = b.SetCursor(CursorBody, 7)
	_ = b.SetCursor(CursorScan, 5)
	if err := b.InsertWords(6, 90, 91); err != nil {
		t.Fatal(err)
	}
	if c, _ := b.Cursor(CursorScan); c != 5 {
		t.Fatalf("scan = %d, want 5", c)
	}
	if c, _ := b.Cursor(CursorTypes); c != 8 {
		t.Fatalf("types = %d, want 8", c)
	}
	if c, _ := b.Cursor(CursorBody); c != 9 {
		t.Fatalf("body = %d, want 9", c)
	}
	if _, ok := b.Cursor(CursorLocals); ok {
		t.Fatal("unset cursor became set")
	}
	want := append(header(1), 10, 90, 91, 11, 12, 13)
	if !slices.Equal(b.Words(), want) {
		t.Fatalf("words = %v", b.Words())
	}
}

func TestBuffer_InsertAtAppendsInOrder(t *testing.T) {
	b, _ := NewBuffer(append(header(1), 1, 2))
	_ = b.SetCursor(CursorBody, 6)
	for _, w := range []uint32{7, 8, 9} {
		if err := b.InsertAt(CursorBody, w); err != nil {
			t.Fatal(err)
		}
	}
	want := append(header(1), 1, 7, 8, 9, 2)
	if !slices.Equal(b.Words(), want) {
		t.Fatalf("words = %v", b.Words())
	}
}

// Курсоры сверяются с наивной пересборкой: каждый курсор следит за конкретным
// словом (все слова уникальны), поэтому после вставки его позиция ищется поиском.
func TestBuffer_CursorConsistencyRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		next := uint32(1000)
		fresh := func() uint32 { next++; return next }

		body := make([]uint32, 1+rng.Intn(20))
		for i := range body {
			body[i] = fresh()
		}
		oracle := append(header(1), body...)
		b, err := NewBuffer(oracle)
		if err != nil {
			t.Fatal(err)
		}

		// tracked[c] is the word a cursor points at, or 0 for end of buffer.
		tracked := map[Cursor]uint32{}
		for c := Cursor(0); c < cursorCount; c++ {
			if rng.Intn(4) == 0 {
				continue
			}
			at := HeaderWords + rng.Intn(len(oracle)-HeaderWords+1)
			if err := b.SetCursor(c, at); err != nil {
				t.Fatal(err)
			}
			if at < len(oracle) {
				tracked[c] = oracle[at]
			} else {
				tracked[c] = 0
			}
		}

		for step := 0; step < 30; step++ {
			at := HeaderWords + rng.Intn(len(oracle)-HeaderWords+1)
			ins := make([]uint32, rng.Intn(5))
			for i := range ins {
				ins[i] = fresh()
			}
			if err := b.InsertWords(at, ins...); err != nil {
				t.Fatal(err)
			}
			rebuilt := make([]uint32, 0, len(oracle)+len(ins))
			rebuilt = append(rebuilt, oracle[:at]...)
			rebuilt = append(rebuilt, ins...)
			rebuilt = append(rebuilt, oracle[at:]...)
			oracle = rebuilt

			if !slices.Equal(b.Words(), oracle) {
				t.Fatalf("round %d step %d: words diverged", round, step)
			}
			for c := Cursor(0); c < cursorCount; c++ {
				got, ok := b.Cursor(c)
				target, want := tracked[c]
				if ok != want {
					t.Fatalf("round %d: cursor %s set=%v, want %v", round, c, ok, want)
				}
				if !ok {
					continue
				}
				exp := len(oracle)
				if target != 0 {
					exp = slices.Index(oracle, target)
				}
				if got != exp {
					t.Fatalf("round %d step %d: cursor %s = %d, want %d", round, step, c, got, exp)
				}
			}
		}
	}
}

func TestBuffer_FinalizeOnce(t *testing.T) {
	b, _ := NewBuffer(append(header(4), 1))
	b.NewID()
	b.NewID()
	if b.Bound() != 6 {
		t.Fatalf("bound = %d", b.Bound())
	}
	if _, err := b.Bytes(); err == nil {
		t.Fatal("Bytes before Finalize succeeded")
	}
	if err := b.Finalize(); err != nil {
		t.Fatal(err)
	}
	if b.Words()[HeaderBound] != 6 {
		t.Fatalf("header bound = %d", b.Words()[HeaderBound])
	}
	if err := b.Finalize(); !errors.Is(err, ErrFinalized) {
		t.Fatalf("second finalize: %v", err)
	}
	if err := b.InsertWords(5, 1); !errors.Is(err, ErrFinalized) {
		t.Fatalf("insert after finalize: %v", err)
	}
}

func TestBuffer_RangeChecks(t *testing.T) {
	b, _ := NewBuffer(append(header(1), 1))
	if err := b.InsertWords(2, 9); !errors.Is(err, ErrMalformed) {
		t.Fatalf("insert into header: %v", err)
	}
	if err := b.SetWord(6, 1); !errors.Is(err, ErrMalformed) {
		t.Fatalf("write past end: %v", err)
	}
	if _, err := b.MustCursor(CursorEntry); !errors.Is(err, ErrMalformed) {
		t.Fatalf("unset cursor: %v", err)
	}
}
