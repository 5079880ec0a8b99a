package jpegc

// Dequantization and inverse DCT.
//
// The transform is a fixed-point AAN-style factorization with coefficients
// scaled by 2^12, run as two 1-D passes: rows first at intermediate
// precision, then columns, then a final descale, level shift and clamp.

const (
	dctCos1    = 4017 // cos(pi/16) << 12
	dctSin1    = 799  // sin(pi/16) << 12
	dctCos3    = 3406 // cos(3*pi/16) << 12
	dctSin3    = 2276 // sin(3*pi/16) << 12
	dctCos6    = 1567 // cos(6*pi/16) << 12
	dctSin6    = 3784 // sin(6*pi/16) << 12
	dctSqrt2   = 5793 // sqrt(2) << 12
	dctSqrt1d2 = 2896 // sqrt(2)/2 << 12
)

// quantizeAndInverse dequantizes one coefficient block, applies the 8x8
// inverse DCT in place in p, and writes level-shifted, clamped samples to out.
// The quantization table is in natural order; the zig-zag permutation was
// already applied when the table and the coefficients were stored.
func quantizeAndInverse(zz []int32, qt []int32, out *[64]byte, p *[64]int32) {
	for i := 0; i < 64; i++ {
		p[i] = zz[i] * qt[i]
	}

	var v0, v1, v2, v3, v4, v5, v6, v7, t int32

	// Inverse DCT on rows.
	for i := 0; i < 8; i++ {
		row := 8 * i

		// All-zero AC fast path: the row collapses to its scaled DC value.
		if p[1+row] == 0 && p[2+row] == 0 && p[3+row] == 0 && p[4+row] == 0 &&
			p[5+row] == 0 && p[6+row] == 0 && p[7+row] == 0 {
			t = (dctSqrt2*p[0+row] + 512) >> 10
			p[0+row] = t
			p[1+row] = t
			p[2+row] = t
			p[3+row] = t
			p[4+row] = t
			p[5+row] = t
			p[6+row] = t
			p[7+row] = t

			continue
		}

		// Stage 4
		v0 = (dctSqrt2*p[0+row] + 128) >> 8
		v1 = (dctSqrt2*p[4+row] + 128) >> 8
		v2 = p[2+row]
		v3 = p[6+row]
		v4 = (dctSqrt1d2*(p[1+row]-p[7+row]) + 128) >> 8
		v7 = (dctSqrt1d2*(p[1+row]+p[7+row]) + 128) >> 8
		v5 = p[3+row] << 4
		v6 = p[5+row] << 4

		// Stage 3
		t = (v0 - v1 + 1) >> 1
		v0 = (v0 + v1 + 1) >> 1
		v1 = t
		t = (v2*dctSin6 + v3*dctCos6 + 128) >> 8
		v2 = (v2*dctCos6 - v3*dctSin6 + 128) >> 8
		v3 = t
		t = (v4 - v6 + 1) >> 1
		v4 = (v4 + v6 + 1) >> 1
		v6 = t
		t = (v7 + v5 + 1) >> 1
		v5 = (v7 - v5 + 1) >> 1
		v7 = t

		// Stage 2
		t = (v0 - v3 + 1) >> 1
		v0 = (v0 + v3 + 1) >> 1
		v3 = t
		t = (v1 - v2 + 1) >> 1
		v1 = (v1 + v2 + 1) >> 1
		v2 = t
		t = (v4*dctSin3 + v7*dctCos3 + 2048) >> 12
		v4 = (v4*dctCos3 - v7*dctSin3 + 2048) >> 12
		v7 = t
		t = (v5*dctSin1 + v6*dctCos1 + 2048) >> 12
		v5 = (v5*dctCos1 - v6*dctSin1 + 2048) >> 12
		v6 = t

		// Stage 1
		p[0+row] = v0 + v7
		p[7+row] = v0 - v7
		p[1+row] = v1 + v6
		p[6+row] = v1 - v6
		p[2+row] = v2 + v5
		p[5+row] = v2 - v5
		p[3+row] = v3 + v4
		p[4+row] = v3 - v4
	}

	// Inverse DCT on columns.
	for col := 0; col < 8; col++ {
		if p[8+col] == 0 && p[16+col] == 0 && p[24+col] == 0 && p[32+col] == 0 &&
			p[40+col] == 0 && p[48+col] == 0 && p[56+col] == 0 {
			t = (dctSqrt2*p[col] + 8192) >> 14
			p[0+col] = t
			p[8+col] = t
			p[16+col] = t
			p[24+col] = t
			p[32+col] = t
			p[40+col] = t
			p[48+col] = t
			p[56+col] = t

			continue
		}

		// Stage 4
		v0 = (dctSqrt2*p[0+col] + 2048) >> 12
		v1 = (dctSqrt2*p[32+col] + 2048) >> 12
		v2 = p[16+col]
		v3 = p[48+col]
		v4 = (dctSqrt1d2*(p[8+col]-p[56+col]) + 2048) >> 12
		v7 = (dctSqrt1d2*(p[8+col]+p[56+col]) + 2048) >> 12
		v5 = p[24+col]
		v6 = p[40+col]

		// Stage 3
		t = (v0 - v1 + 1) >> 1
		v0 = (v0 + v1 + 1) >> 1
		v1 = t
		t = (v2*dctSin6 + v3*dctCos6 + 2048) >> 12
		v2 = (v2*dctCos6 - v3*dctSin6 + 2048) >> 12
		v3 = t
		t = (v4 - v6 + 1) >> 1
		v4 = (v4 + v6 + 1) >> 1
		v6 = t
		t = (v7 + v5 + 1) >> 1
		v5 = (v7 - v5 + 1) >> 1
		v7 = t

		// Stage 2
		t = (v0 - v3 + 1) >> 1
		v0 = (v0 + v3 + 1) >> 1
		v3 = t
		t = (v1 - v2 + 1) >> 1
		v1 = (v1 + v2 + 1) >> 1
		v2 = t
		t = (v4*dctSin3 + v7*dctCos3 + 2048) >> 12
		v4 = (v4*dctCos3 - v7*dctSin3 + 2048) >> 12
		v7 = t
		t = (v5*dctSin1 + v6*dctCos1 + 2048) >> 12
		v5 = (v5*dctCos1 - v6*dctSin1 + 2048) >> 12
		v6 = t

		// Stage 1
		p[0+col] = v0 + v7
		p[56+col] = v0 - v7
		p[8+col] = v1 + v6
		p[48+col] = v1 - v6
		p[16+col] = v2 + v5
		p[40+col] = v2 - v5
		p[24+col] = v3 + v4
		p[32+col] = v3 - v4
	}

	// Descale, level shift and clamp to 8-bit samples.
	for i := 0; i < 64; i++ {
		out[i] = clamp(128 + ((p[i] + 8) >> 4))
	}
}

// buildComponentData reconstructs the component's sample plane from its
// decoded coefficient blocks. Padding blocks allocated for MCU alignment
// carry no image data and are not transformed.
func (d *decoder) buildComponentData(c *component) error {
	width := c.blocksPerLine << 3
	height := c.blocksPerColumn << 3

	if err := d.budget.request(width * height); err != nil {
		return err
	}

	c.pixels = make([]byte, width*height)
	c.stride = width

	var samples [64]byte
	var scratch [64]int32

	for blockRow := 0; blockRow < c.blocksPerColumn; blockRow++ {
		for blockCol := 0; blockCol < c.blocksPerLine; blockCol++ {
			quantizeAndInverse(c.block(blockRow, blockCol), c.quantizationTable, &samples, &scratch)

			offset := (blockRow<<3)*c.stride + blockCol<<3
			for j := 0; j < 8; j++ {
				copy(c.pixels[offset+j*c.stride:offset+j*c.stride+8], samples[j*8:j*8+8])
			}
		}
	}

	return nil
}
