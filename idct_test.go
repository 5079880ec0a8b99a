package jpegc

import "testing"

var flatQuantTable = func() []int32 {
	qt := make([]int32, 64)
	for i := range qt {
		qt[i] = 1
	}

	return qt
}()

// idctHelper runs dequantization and the full 2D IDCT over one block.
func idctHelper(blk []int32, qt []int32) [64]byte {
	var out [64]byte
	var scratch [64]int32

	quantizeAndInverse(blk, qt, &out, &scratch)

	return out
}

// TestIDCTDCOnly verifies the DC-only fast paths. A block whose single
// coefficient is DC=512 must produce a flat block of (512/8) + 128 = 192.
func TestIDCTDCOnly(t *testing.T) {
	testCases := []struct {
		name string
		dc   int32
		want byte
	}{
		{"Zero", 0, 128},
		{"Positive", 512, 192},
		{"Negative", -512, 64},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			blk := make([]int32, 64)
			blk[0] = tc.dc

			out := idctHelper(blk, flatQuantTable)
			for i, v := range out {
				if v != tc.want {
					t.Fatalf("sample %d = %d, want %d", i, v, tc.want)
				}
			}
		})
	}
}

// TestIDCTDequantization verifies that coefficients are multiplied by the
// quantization table before the transform.
func TestIDCTDequantization(t *testing.T) {
	qt := make([]int32, 64)
	copy(qt, flatQuantTable)
	qt[0] = 256

	blk := make([]int32, 64)
	blk[0] = 2 // dequantizes to 512

	out := idctHelper(blk, qt)
	for i, v := range out {
		if v != 192 {
			t.Fatalf("sample %d = %d, want 192", i, v)
		}
	}
}

// TestIDCTClamping verifies that out-of-range samples clamp to [0, 255].
func TestIDCTClamping(t *testing.T) {
	blk := make([]int32, 64)
	blk[0] = 4096 // far above the representable sample range

	out := idctHelper(blk, flatQuantTable)
	for i, v := range out {
		if v != 255 {
			t.Fatalf("sample %d = %d, want 255", i, v)
		}
	}

	blk[0] = -4096
	out = idctHelper(blk, flatQuantTable)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %d, want 0", i, v)
		}
	}
}
