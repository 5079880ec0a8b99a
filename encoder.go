package jpegc

// Baseline sequential JPEG encoder.
//
// The encoder writes a JFIF file with three 4:4:4 YCbCr components, the
// Annex K default Huffman tables, and quantization tables scaled from the
// reference tables by the requested quality. Blocks go through a
// floating-point AAN forward DCT and are quantized with precomputed
// reciprocals.

// Reference luminance and chrominance quantization tables, in natural order.
var encYQT = [64]int{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

var encUVQT = [64]int{
	17, 18, 24, 47, 99, 99, 99, 99,
	18, 21, 26, 66, 99, 99, 99, 99,
	24, 26, 56, 99, 99, 99, 99, 99,
	47, 66, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
	99, 99, 99, 99, 99, 99, 99, 99,
}

// AAN DCT scale factors for the quantization reciprocals.
var encAASF = [8]float64{
	1.0, 1.387039845, 1.306562965, 1.175875602,
	1.0, 0.785694958, 0.541196100, 0.275899379,
}

// Annex K default Huffman table definitions. The nrcodes arrays are indexed
// 1..16 by code length.
var (
	stdDCLuminanceNRCodes = [17]int{0, 0, 1, 5, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0, 0, 0}
	stdDCLuminanceValues  = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

	stdACLuminanceNRCodes = [17]int{0, 0, 2, 1, 3, 3, 2, 4, 3, 5, 5, 4, 4, 0, 0, 1, 0x7D}
	stdACLuminanceValues  = []int{
		0x01, 0x02, 0x03, 0x00, 0x04, 0x11, 0x05, 0x12,
		0x21, 0x31, 0x41, 0x06, 0x13, 0x51, 0x61, 0x07,
		0x22, 0x71, 0x14, 0x32, 0x81, 0x91, 0xA1, 0x08,
		0x23, 0x42, 0xB1, 0xC1, 0x15, 0x52, 0xD1, 0xF0,
		0x24, 0x33, 0x62, 0x72, 0x82, 0x09, 0x0A, 0x16,
		0x17, 0x18, 0x19, 0x1A, 0x25, 0x26, 0x27, 0x28,
		0x29, 0x2A, 0x34, 0x35, 0x36, 0x37, 0x38, 0x39,
		0x3A, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48, 0x49,
		0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58, 0x59,
		0x5A, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68, 0x69,
		0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78, 0x79,
		0x7A, 0x83, 0x84, 0x85, 0x86, 0x87, 0x88, 0x89,
		0x8A, 0x92, 0x93, 0x94, 0x95, 0x96, 0x97, 0x98,
		0x99, 0x9A, 0xA2, 0xA3, 0xA4, 0xA5, 0xA6, 0xA7,
		0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4, 0xB5, 0xB6,
		0xB7, 0xB8, 0xB9, 0xBA, 0xC2, 0xC3, 0xC4, 0xC5,
		0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2, 0xD3, 0xD4,
		0xD5, 0xD6, 0xD7, 0xD8, 0xD9, 0xDA, 0xE1, 0xE2,
		0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9, 0xEA,
		0xF1, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7, 0xF8,
		0xF9, 0xFA,
	}

	stdDCChrominanceNRCodes = [17]int{0, 0, 3, 1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0, 0, 0}
	stdDCChrominanceValues  = []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}

	stdACChrominanceNRCodes = [17]int{0, 0, 2, 1, 2, 4, 4, 3, 4, 7, 5, 4, 4, 0, 1, 2, 0x77}
	stdACChrominanceValues  = []int{
		0x00, 0x01, 0x02, 0x03, 0x11, 0x04, 0x05, 0x21,
		0x31, 0x06, 0x12, 0x41, 0x51, 0x07, 0x61, 0x71,
		0x13, 0x22, 0x32, 0x81, 0x08, 0x14, 0x42, 0x91,
		0xA1, 0xB1, 0xC1, 0x09, 0x23, 0x33, 0x52, 0xF0,
		0x15, 0x62, 0x72, 0xD1, 0x0A, 0x16, 0x24, 0x34,
		0xE1, 0x25, 0xF1, 0x17, 0x18, 0x19, 0x1A, 0x26,
		0x27, 0x28, 0x29, 0x2A, 0x35, 0x36, 0x37, 0x38,
		0x39, 0x3A, 0x43, 0x44, 0x45, 0x46, 0x47, 0x48,
		0x49, 0x4A, 0x53, 0x54, 0x55, 0x56, 0x57, 0x58,
		0x59, 0x5A, 0x63, 0x64, 0x65, 0x66, 0x67, 0x68,
		0x69, 0x6A, 0x73, 0x74, 0x75, 0x76, 0x77, 0x78,
		0x79, 0x7A, 0x82, 0x83, 0x84, 0x85, 0x86, 0x87,
		0x88, 0x89, 0x8A, 0x92, 0x93, 0x94, 0x95, 0x96,
		0x97, 0x98, 0x99, 0x9A, 0xA2, 0xA3, 0xA4, 0xA5,
		0xA6, 0xA7, 0xA8, 0xA9, 0xAA, 0xB2, 0xB3, 0xB4,
		0xB5, 0xB6, 0xB7, 0xB8, 0xB9, 0xBA, 0xC2, 0xC3,
		0xC4, 0xC5, 0xC6, 0xC7, 0xC8, 0xC9, 0xCA, 0xD2,
		0xD3, 0xD4, 0xD5, 0xD6, 0xD7, 0xD8, 0xD9, 0xDA,
		0xE2, 0xE3, 0xE4, 0xE5, 0xE6, 0xE7, 0xE8, 0xE9,
		0xEA, 0xF2, 0xF3, 0xF4, 0xF5, 0xF6, 0xF7, 0xF8,
		0xF9, 0xFA,
	}
)

// bitString is a Huffman or magnitude code: a value emitted MSB first in the
// given number of bits.
type bitString struct {
	value  int
	length int
}

// Static encoding tables, shared by every encoder instance.
var (
	ydcHuffman  [256]bitString
	yacHuffman  [256]bitString
	uvdcHuffman [256]bitString
	uvacHuffman [256]bitString

	// encCategory and encBitCode map a coefficient value v (indexed 32767+v)
	// to its magnitude category and magnitude bits.
	encCategory [65535]int
	encBitCode  [65535]bitString

	// encRGBYUV holds fixed-point RGB->YCbCr conversion terms in eight
	// 256-entry segments, one per (coefficient, channel) pair.
	encRGBYUV [2048]int32
)

func computeHuffmanTable(nrcodes *[17]int, values []int, out *[256]bitString) {
	code := 0
	k := 0

	for length := 1; length <= 16; length++ {
		for j := 1; j <= nrcodes[length]; j++ {
			out[values[k]] = bitString{value: code, length: length}
			k++
			code++
		}

		code <<= 1
	}
}

func initCategoryTables() {
	lower, upper := 1, 2

	for cat := 1; cat <= 15; cat++ {
		for nr := lower; nr < upper; nr++ {
			encCategory[32767+nr] = cat
			encBitCode[32767+nr] = bitString{value: nr, length: cat}
		}

		for nr := -(upper - 1); nr <= -lower; nr++ {
			encCategory[32767+nr] = cat
			encBitCode[32767+nr] = bitString{value: upper - 1 + nr, length: cat}
		}

		lower <<= 1
		upper <<= 1
	}
}

func initRGBYUVTable() {
	for i := int32(0); i < 256; i++ {
		encRGBYUV[i] = 19595 * i
		encRGBYUV[i+256] = 38470 * i
		encRGBYUV[i+512] = 7471*i + 0x8000
		encRGBYUV[i+768] = -11059 * i
		encRGBYUV[i+1024] = -21709 * i
		encRGBYUV[i+1280] = 32768*i + 0x807FFF
		encRGBYUV[i+1536] = -27439 * i
		encRGBYUV[i+1792] = -5329 * i
	}
}

func init() {
	computeHuffmanTable(&stdDCLuminanceNRCodes, stdDCLuminanceValues, &ydcHuffman)
	computeHuffmanTable(&stdACLuminanceNRCodes, stdACLuminanceValues, &yacHuffman)
	computeHuffmanTable(&stdDCChrominanceNRCodes, stdDCChrominanceValues, &uvdcHuffman)
	computeHuffmanTable(&stdACChrominanceNRCodes, stdACChrominanceValues, &uvacHuffman)
	initCategoryTables()
	initRGBYUVTable()
}

// encoder holds the per-call state of one encode: the quality-scaled
// quantization tables, their FDCT reciprocals, and the output bit writer.
type encoder struct {
	out []byte

	yTable  [64]int
	uvTable [64]int
	fdtblY  [64]float64
	fdtblUV [64]float64

	byteNew int
	bytePos int

	ydu, udu, vdu [64]float64
	du            [64]int32
}

// newEncoder derives the quantization state for the given quality, which the
// caller has already clamped to [1, 100].
func newEncoder(quality int) *encoder {
	e := &encoder{bytePos: 7}

	sf := 200 - quality*2
	if quality < 50 {
		sf = 5000 / quality
	}

	for i := 0; i < 64; i++ {
		t := (encYQT[i]*sf + 50) / 100
		if t < 1 {
			t = 1
		} else if t > 255 {
			t = 255
		}
		e.yTable[zigZagIndex[i]] = t

		u := (encUVQT[i]*sf + 50) / 100
		if u < 1 {
			u = 1
		} else if u > 255 {
			u = 255
		}
		e.uvTable[zigZagIndex[i]] = u
	}

	k := 0
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			e.fdtblY[k] = 1.0 / (float64(e.yTable[zigZagIndex[k]]) * encAASF[row] * encAASF[col] * 8.0)
			e.fdtblUV[k] = 1.0 / (float64(e.uvTable[zigZagIndex[k]]) * encAASF[row] * encAASF[col] * 8.0)
			k++
		}
	}

	return e
}

// Bit writing

func (e *encoder) writeByte(b byte) {
	e.out = append(e.out, b)
}

func (e *encoder) writeWord(w int) {
	e.writeByte(byte(w >> 8))
	e.writeByte(byte(w))
}

// writeBits emits a code MSB first, inserting a 0x00 stuffing byte after
// every literal 0xFF produced in the entropy stream.
func (e *encoder) writeBits(bs bitString) {
	for pos := bs.length - 1; pos >= 0; pos-- {
		if bs.value&(1<<uint(pos)) != 0 {
			e.byteNew |= 1 << uint(e.bytePos)
		}

		e.bytePos--
		if e.bytePos < 0 {
			if e.byteNew == 0xFF {
				e.writeByte(0xFF)
				e.writeByte(0x00)
			} else {
				e.writeByte(byte(e.byteNew))
			}

			e.bytePos = 7
			e.byteNew = 0
		}
	}
}

// Segment writers

func (e *encoder) writeAPP0() {
	e.writeWord(0xFFE0)
	e.writeWord(16)
	e.writeByte('J')
	e.writeByte('F')
	e.writeByte('I')
	e.writeByte('F')
	e.writeByte(0)
	e.writeByte(1) // version 1.1
	e.writeByte(1)
	e.writeByte(0) // density units: none
	e.writeWord(1) // x density
	e.writeWord(1) // y density
	e.writeByte(0) // no thumbnail
	e.writeByte(0)
}

func (e *encoder) writeCOM(comments []string) {
	for _, c := range comments {
		e.writeWord(0xFFFE)
		e.writeWord(len(c) + 2)
		for i := 0; i < len(c); i++ {
			e.writeByte(c[i])
		}
	}
}

func (e *encoder) writeAPP1(exifData []byte) {
	if len(exifData) == 0 {
		return
	}

	hasPreamble := len(exifData) >= 4 &&
		exifData[0] == 'E' && exifData[1] == 'x' && exifData[2] == 'i' && exifData[3] == 'f'

	length := len(exifData)
	if !hasPreamble {
		length += 6
	}

	e.writeWord(0xFFE1)
	e.writeWord(length + 2)

	if !hasPreamble {
		e.writeByte('E')
		e.writeByte('x')
		e.writeByte('i')
		e.writeByte('f')
		e.writeByte(0)
		e.writeByte(0)
	}

	for _, b := range exifData {
		e.writeByte(b)
	}
}

func (e *encoder) writeDQT() {
	e.writeWord(0xFFDB)
	e.writeWord(132)
	e.writeByte(0)
	for i := 0; i < 64; i++ {
		e.writeByte(byte(e.yTable[i]))
	}
	e.writeByte(1)
	for i := 0; i < 64; i++ {
		e.writeByte(byte(e.uvTable[i]))
	}
}

func (e *encoder) writeSOF0(width, height int) {
	e.writeWord(0xFFC0)
	e.writeWord(17)
	e.writeByte(8) // precision
	e.writeWord(height)
	e.writeWord(width)
	e.writeByte(3) // number of components

	e.writeByte(1) // Y
	e.writeByte(0x11)
	e.writeByte(0)

	e.writeByte(2) // Cb
	e.writeByte(0x11)
	e.writeByte(1)

	e.writeByte(3) // Cr
	e.writeByte(0x11)
	e.writeByte(1)
}

func (e *encoder) writeDHT() {
	e.writeWord(0xFFC4)
	e.writeWord(0x01A2)

	e.writeByte(0) // luminance DC
	for i := 1; i <= 16; i++ {
		e.writeByte(byte(stdDCLuminanceNRCodes[i]))
	}
	for _, v := range stdDCLuminanceValues {
		e.writeByte(byte(v))
	}

	e.writeByte(0x10) // luminance AC
	for i := 1; i <= 16; i++ {
		e.writeByte(byte(stdACLuminanceNRCodes[i]))
	}
	for _, v := range stdACLuminanceValues {
		e.writeByte(byte(v))
	}

	e.writeByte(1) // chrominance DC
	for i := 1; i <= 16; i++ {
		e.writeByte(byte(stdDCChrominanceNRCodes[i]))
	}
	for _, v := range stdDCChrominanceValues {
		e.writeByte(byte(v))
	}

	e.writeByte(0x11) // chrominance AC
	for i := 1; i <= 16; i++ {
		e.writeByte(byte(stdACChrominanceNRCodes[i]))
	}
	for _, v := range stdACChrominanceValues {
		e.writeByte(byte(v))
	}
}

func (e *encoder) writeSOS() {
	e.writeWord(0xFFDA)
	e.writeWord(12)
	e.writeByte(3)
	e.writeByte(1)
	e.writeByte(0x00)
	e.writeByte(2)
	e.writeByte(0x11)
	e.writeByte(3)
	e.writeByte(0x11)
	e.writeByte(0)    // spectral start
	e.writeByte(0x3F) // spectral end
	e.writeByte(0)    // successive approximation
}

// fDCTQuant runs the forward AAN DCT over one block and quantizes the result
// with the precomputed reciprocals, rounding half away from zero.
func (e *encoder) fDCTQuant(data *[64]float64, fdtbl *[64]float64) *[64]int32 {
	// Pass 1: rows.
	for off := 0; off < 64; off += 8 {
		d0, d1, d2, d3 := data[off], data[off+1], data[off+2], data[off+3]
		d4, d5, d6, d7 := data[off+4], data[off+5], data[off+6], data[off+7]

		tmp0 := d0 + d7
		tmp7 := d0 - d7
		tmp1 := d1 + d6
		tmp6 := d1 - d6
		tmp2 := d2 + d5
		tmp5 := d2 - d5
		tmp3 := d3 + d4
		tmp4 := d3 - d4

		tmp10 := tmp0 + tmp3
		tmp13 := tmp0 - tmp3
		tmp11 := tmp1 + tmp2
		tmp12 := tmp1 - tmp2

		data[off] = tmp10 + tmp11
		data[off+4] = tmp10 - tmp11

		z1 := (tmp12 + tmp13) * 0.707106781
		data[off+2] = tmp13 + z1
		data[off+6] = tmp13 - z1

		tmp10 = tmp4 + tmp5
		tmp11 = tmp5 + tmp6
		tmp12 = tmp6 + tmp7

		z5 := (tmp10 - tmp12) * 0.382683433
		z2 := 0.541196100*tmp10 + z5
		z4 := 1.306562965*tmp12 + z5
		z3 := tmp11 * 0.707106781

		z11 := tmp7 + z3
		z13 := tmp7 - z3

		data[off+5] = z13 + z2
		data[off+3] = z13 - z2
		data[off+1] = z11 + z4
		data[off+7] = z11 - z4
	}

	// Pass 2: columns.
	for off := 0; off < 8; off++ {
		d0, d1, d2, d3 := data[off], data[off+8], data[off+16], data[off+24]
		d4, d5, d6, d7 := data[off+32], data[off+40], data[off+48], data[off+56]

		tmp0 := d0 + d7
		tmp7 := d0 - d7
		tmp1 := d1 + d6
		tmp6 := d1 - d6
		tmp2 := d2 + d5
		tmp5 := d2 - d5
		tmp3 := d3 + d4
		tmp4 := d3 - d4

		tmp10 := tmp0 + tmp3
		tmp13 := tmp0 - tmp3
		tmp11 := tmp1 + tmp2
		tmp12 := tmp1 - tmp2

		data[off] = tmp10 + tmp11
		data[off+32] = tmp10 - tmp11

		z1 := (tmp12 + tmp13) * 0.707106781
		data[off+16] = tmp13 + z1
		data[off+48] = tmp13 - z1

		tmp10 = tmp4 + tmp5
		tmp11 = tmp5 + tmp6
		tmp12 = tmp6 + tmp7

		z5 := (tmp10 - tmp12) * 0.382683433
		z2 := 0.541196100*tmp10 + z5
		z4 := 1.306562965*tmp12 + z5
		z3 := tmp11 * 0.707106781

		z11 := tmp7 + z3
		z13 := tmp7 - z3

		data[off+40] = z13 + z2
		data[off+24] = z13 - z2
		data[off+8] = z11 + z4
		data[off+56] = z11 - z4
	}

	for i := 0; i < 64; i++ {
		fq := data[i] * fdtbl[i]
		if fq > 0 {
			e.du[i] = int32(fq + 0.5)
		} else {
			e.du[i] = int32(fq - 0.5)
		}
	}

	return &e.du
}

// processDU encodes one data unit: the DC difference against the running
// predictor, then run-length plus Huffman coded AC coefficients. It returns
// the new DC predictor.
func (e *encoder) processDU(cdu *[64]float64, fdtbl *[64]float64, dc int32,
	htdc, htac *[256]bitString) int32 {

	eob := htac[0x00]
	zrl := htac[0xF0]

	duDCT := e.fDCTQuant(cdu, fdtbl)

	// Zig-zag reorder into stream order.
	var du [64]int32
	for j := 0; j < 64; j++ {
		du[zigZagIndex[j]] = duDCT[j]
	}

	diff := du[0] - dc
	dc = du[0]

	if diff == 0 {
		e.writeBits(htdc[0])
	} else {
		pos := 32767 + diff
		e.writeBits(htdc[encCategory[pos]])
		e.writeBits(encBitCode[pos])
	}

	end0pos := 63
	for end0pos > 0 && du[end0pos] == 0 {
		end0pos--
	}

	if end0pos == 0 {
		e.writeBits(eob)

		return dc
	}

	i := 1
	for i <= end0pos {
		startpos := i
		for du[i] == 0 && i <= end0pos {
			i++
		}

		nrzeroes := i - startpos
		if nrzeroes >= 16 {
			for nr := 1; nr <= nrzeroes>>4; nr++ {
				e.writeBits(zrl)
			}

			nrzeroes &= 0xF
		}

		pos := 32767 + du[i]
		e.writeBits(htac[nrzeroes<<4+encCategory[pos]])
		e.writeBits(encBitCode[pos])
		i++
	}

	if end0pos != 63 {
		e.writeBits(eob)
	}

	return dc
}

// Encode compresses an RGBA image into a baseline JFIF JPEG. Quality is
// clamped to [1, 100]; zero selects the default of 50.
func Encode(img *RawImage, quality int) (*EncodedImage, error) {
	if img == nil || img.Width <= 0 || img.Height <= 0 ||
		len(img.Data) != 4*img.Width*img.Height {
		return nil, ErrInvalidImage
	}

	switch {
	case quality == 0:
		quality = 50
	case quality < 1:
		quality = 1
	case quality > 100:
		quality = 100
	}

	e := newEncoder(quality)

	e.writeWord(0xFFD8) // SOI
	e.writeAPP0()
	e.writeCOM(img.Comments)
	e.writeAPP1(img.ExifData)
	e.writeDQT()
	e.writeSOF0(img.Width, img.Height)
	e.writeDHT()
	e.writeSOS()

	var dcY, dcU, dcV int32
	width, height := img.Width, img.Height
	data := img.Data

	for y := 0; y < height; y += 8 {
		for x := 0; x < width; x += 8 {
			for pos := 0; pos < 64; pos++ {
				// Bottom and right edges replicate the last valid pixel.
				row := y + pos>>3
				if row >= height {
					row = height - 1
				}

				col := x + pos&7
				if col >= width {
					col = width - 1
				}

				p := (row*width + col) * 4
				r := int32(data[p])
				g := int32(data[p+1])
				b := int32(data[p+2])

				e.ydu[pos] = float64((encRGBYUV[r]+encRGBYUV[g+256]+encRGBYUV[b+512])>>16) - 128
				e.udu[pos] = float64((encRGBYUV[r+768]+encRGBYUV[g+1024]+encRGBYUV[b+1280])>>16) - 128
				e.vdu[pos] = float64((encRGBYUV[r+1280]+encRGBYUV[g+1536]+encRGBYUV[b+1792])>>16) - 128
			}

			dcY = e.processDU(&e.ydu, &e.fdtblY, dcY, &ydcHuffman, &yacHuffman)
			dcU = e.processDU(&e.udu, &e.fdtblUV, dcU, &uvdcHuffman, &uvacHuffman)
			dcV = e.processDU(&e.vdu, &e.fdtblUV, dcV, &uvdcHuffman, &uvacHuffman)
		}
	}

	// Pad the final partial byte with 1-bits.
	if e.bytePos >= 0 {
		e.writeBits(bitString{value: 1<<uint(e.bytePos+1) - 1, length: e.bytePos + 1})
	}

	e.writeWord(0xFFD9) // EOI

	return &EncodedImage{Width: width, Height: height, Data: e.out}, nil
}
