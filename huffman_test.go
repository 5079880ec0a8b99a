package jpegc

import (
	"errors"
	"testing"
)

// TestBuildHuffmanTable verifies canonical code assignment: with one 1-bit
// code and one 2-bit code, the symbols decode from "0" and "10".
func TestBuildHuffmanTable(t *testing.T) {
	counts := [16]int{1, 1}
	table, err := buildHuffmanTable(&counts, []byte{5, 9})
	if err != nil {
		t.Fatalf("buildHuffmanTable failed: %v", err)
	}

	// Bits: 0, 10, then 1-padding.
	r := bitReader{data: []byte{0x5F}}

	if got := table.decode(&r); got != 5 {
		t.Fatalf("first symbol = %d, want 5", got)
	}

	if got := table.decode(&r); got != 9 {
		t.Fatalf("second symbol = %d, want 9", got)
	}
}

// TestBuildHuffmanTableOverflow verifies that a BITS layout exceeding the
// code space of its length is rejected.
func TestBuildHuffmanTableOverflow(t *testing.T) {
	counts := [16]int{3} // only two 1-bit codes exist
	if _, err := buildHuffmanTable(&counts, []byte{1, 2, 3}); !errors.Is(err, ErrInvalidHuffmanTable) {
		t.Fatalf("err = %v, want ErrInvalidHuffmanTable", err)
	}
}

// TestHuffmanDecodeInvalidSequence verifies that walking off the tree is a
// fatal entropy error.
func TestHuffmanDecodeInvalidSequence(t *testing.T) {
	counts := [16]int{0, 1} // single code "00"; "1..." leads nowhere
	table, err := buildHuffmanTable(&counts, []byte{7})
	if err != nil {
		t.Fatalf("buildHuffmanTable failed: %v", err)
	}

	defer func() {
		rec := recover()
		de, ok := rec.(errDecode)
		if !ok || !errors.Is(de.error, ErrInvalidHuffmanSequence) {
			t.Fatalf("panic = %v, want ErrInvalidHuffmanSequence", rec)
		}
	}()

	r := bitReader{data: []byte{0xFF, 0x00}} // all 1-bits
	table.decode(&r)
}
