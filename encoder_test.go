package jpegc

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"
)

// solidImage builds a RawImage filled with a single RGBA color.
func solidImage(width, height int, r, g, b byte) *RawImage {
	data := make([]byte, 4*width*height)
	for i := 0; i < len(data); i += 4 {
		data[i] = r
		data[i+1] = g
		data[i+2] = b
		data[i+3] = 255
	}

	return &RawImage{Width: width, Height: height, Data: data}
}

// maxChannelDiff returns the largest absolute per-byte difference between two
// equally sized buffers.
func maxChannelDiff(a, b []byte) int {
	max := 0
	for i := range a {
		d := int(a[i]) - int(b[i])
		if d < 0 {
			d = -d
		}

		if d > max {
			max = d
		}
	}

	return max
}

// TestEncodeStructure verifies the segment layout of the encoder output:
// SOI, a 16-byte JFIF APP0, then DQT/SOF0/DHT/SOS in order, ending with EOI.
func TestEncodeStructure(t *testing.T) {
	out, err := Encode(solidImage(16, 16, 255, 0, 0), 50)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	data := out.Data
	if !bytes.HasPrefix(data, []byte{0xFF, 0xD8}) {
		t.Fatal("output does not start with SOI")
	}

	if !bytes.HasSuffix(data, []byte{0xFF, 0xD9}) {
		t.Fatal("output does not end with EOI")
	}

	wantAPP0 := []byte{
		0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
		0x01, 0x01, // version 1.1
		0x00,       // density units
		0x00, 0x01, // x density
		0x00, 0x01, // y density
		0x00, 0x00, // no thumbnail
	}
	if !bytes.Equal(data[2:2+len(wantAPP0)], wantAPP0) {
		t.Fatalf("APP0 = % x, want % x", data[2:2+len(wantAPP0)], wantAPP0)
	}

	markers := [][]byte{
		{0xFF, 0xDB}, // DQT
		{0xFF, 0xC0}, // SOF0
		{0xFF, 0xC4}, // DHT
		{0xFF, 0xDA}, // SOS
	}

	last := 0
	for _, m := range markers {
		idx := bytes.Index(data[last:], m)
		if idx < 0 {
			t.Fatalf("marker % x not found after offset %d", m, last)
		}

		last += idx
	}
}

// TestEncodeQualityDefaults verifies the quality clamp and default.
func TestEncodeQualityDefaults(t *testing.T) {
	img := solidImage(8, 8, 10, 20, 30)

	def, err := Encode(img, 0)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	fifty, err := Encode(img, 50)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !bytes.Equal(def.Data, fifty.Data) {
		t.Fatal("quality 0 does not default to 50")
	}

	low, err := Encode(img, -10)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	one, err := Encode(img, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !bytes.Equal(low.Data, one.Data) {
		t.Fatal("negative quality does not clamp to 1")
	}
}

func TestEncodeInvalidInput(t *testing.T) {
	if _, err := Encode(nil, 50); err == nil {
		t.Fatal("Encode(nil) did not fail")
	}

	short := &RawImage{Width: 8, Height: 8, Data: make([]byte, 16)}
	if _, err := Encode(short, 50); err == nil {
		t.Fatal("Encode with short data did not fail")
	}
}

// TestEncodeDecodeRoundTrip pushes a flat color through the encoder and back
// through this package's decoder.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	src := solidImage(33, 21, 200, 120, 80)

	out, err := Encode(src, 90)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	img, err := Decode(out.Data, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if img.Width != 33 || img.Height != 21 {
		t.Fatalf("dimensions = %dx%d, want 33x21", img.Width, img.Height)
	}

	if len(img.Data) != 4*33*21 {
		t.Fatalf("data length = %d, want %d", len(img.Data), 4*33*21)
	}

	for i := 3; i < len(img.Data); i += 4 {
		if img.Data[i] != 255 {
			t.Fatalf("alpha at %d = %d, want 255", i, img.Data[i])
		}
	}

	if diff := maxChannelDiff(img.Data, src.Data); diff > 6 {
		t.Fatalf("max channel difference = %d, want <= 6", diff)
	}
}

// TestEncodeStdlibDecodable cross-checks the wire format against the
// standard library decoder.
func TestEncodeStdlibDecodable(t *testing.T) {
	src := solidImage(32, 24, 40, 180, 220)

	out, err := Encode(src, 90)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	m, err := jpeg.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("stdlib decode of encoder output failed: %v", err)
	}

	bounds := m.Bounds()
	if bounds.Dx() != 32 || bounds.Dy() != 24 {
		t.Fatalf("stdlib dimensions = %dx%d, want 32x24", bounds.Dx(), bounds.Dy())
	}

	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.RGBAModel.Convert(m.At(x, y)).(color.RGBA)
			if diff := maxChannelDiff(
				[]byte{c.R, c.G, c.B},
				[]byte{40, 180, 220},
			); diff > 6 {
				t.Fatalf("pixel (%d,%d) = %v, want close to (40,180,220)", x, y, c)
			}
		}
	}
}

// TestDecodeStdlibEncoded cross-checks the decoder against streams produced
// by the standard library encoder, including 4:2:0 chroma subsampling.
func TestDecodeStdlibEncoded(t *testing.T) {
	m := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i] = 90
		m.Pix[i+1] = 140
		m.Pix[i+2] = 200
		m.Pix[i+3] = 255
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("stdlib encode failed: %v", err)
	}

	img, err := Decode(buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("Decode of stdlib output failed: %v", err)
	}

	if img.Width != 32 || img.Height != 24 {
		t.Fatalf("dimensions = %dx%d, want 32x24", img.Width, img.Height)
	}

	for i := 0; i < len(img.Data); i += 4 {
		if diff := maxChannelDiff(img.Data[i:i+3], []byte{90, 140, 200}); diff > 6 {
			t.Fatalf("pixel %d = %v, want close to (90,140,200)", i/4, img.Data[i:i+4])
		}
	}
}

// TestDecodeStdlibGrayscale verifies single-component decoding against a
// stdlib-encoded grayscale image.
func TestDecodeStdlibGrayscale(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 24, 16))
	for i := range m.Pix {
		m.Pix[i] = 77
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("stdlib encode failed: %v", err)
	}

	img, err := Decode(buf.Bytes(), &DecoderOptions{FormatAsRGBA: Bool(false)})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(img.Data) != 24*16 {
		t.Fatalf("grayscale data length = %d, want %d", len(img.Data), 24*16)
	}

	for i, v := range img.Data {
		if d := int(v) - 77; d > 4 || d < -4 {
			t.Fatalf("sample %d = %d, want close to 77", i, v)
		}
	}
}

// TestDecodeStdlibGradient compares decodes of a stdlib-encoded grayscale
// gradient, which carries strong AC coefficients through the full transform.
func TestDecodeStdlibGradient(t *testing.T) {
	m := image.NewGray(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			m.Pix[y*m.Stride+x] = byte(x * 10)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, m, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("stdlib encode failed: %v", err)
	}

	ref, err := jpeg.Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("stdlib decode failed: %v", err)
	}

	img, err := Decode(buf.Bytes(), &DecoderOptions{FormatAsRGBA: Bool(false)})
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	grayRef, ok := ref.(*image.Gray)
	if !ok {
		t.Fatalf("stdlib decode returned %T, want *image.Gray", ref)
	}

	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			a := int(img.Data[y*24+x])
			b := int(grayRef.Pix[y*grayRef.Stride+x])
			if d := a - b; d > 4 || d < -4 {
				t.Fatalf("sample (%d,%d): got %d, stdlib %d", x, y, a, b)
			}
		}
	}
}

// TestEncodeMetadataRoundTrip verifies that comments and the EXIF payload
// survive an encode/decode cycle byte for byte.
func TestEncodeMetadataRoundTrip(t *testing.T) {
	src := solidImage(16, 16, 10, 200, 30)
	src.Comments = []string{"first comment", "second comment"}
	src.ExifData = []byte{0x4D, 0x4D, 0x00, 0x2A, 0x00, 0x00, 0x00, 0x08, 0x00, 0x00}

	out, err := Encode(src, 75)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	img, err := Decode(out.Data, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if len(img.Comments) != 2 || img.Comments[0] != "first comment" || img.Comments[1] != "second comment" {
		t.Fatalf("comments = %q", img.Comments)
	}

	if !bytes.Equal(img.ExifData, src.ExifData) {
		t.Fatalf("exif = % x, want % x", img.ExifData, src.ExifData)
	}

	if img.JFIF == nil || img.JFIF.VersionMajor != 1 || img.JFIF.VersionMinor != 1 {
		t.Fatalf("JFIF = %+v, want version 1.1", img.JFIF)
	}
}

// FuzzDecode checks that arbitrary inputs never panic the decoder.
func FuzzDecode(f *testing.F) {
	f.Add(grayBaseline8())
	f.Add(grayProgressive8())

	if out, err := Encode(solidImage(16, 16, 1, 2, 3), 50); err == nil {
		f.Add(out.Data)
	}

	f.Fuzz(func(t *testing.T, data []byte) {
		_, _ = Decode(data, nil)
		_, _ = Decode(data, &DecoderOptions{FormatAsRGBA: Bool(false), TolerantDecoding: Bool(false)})
	})
}
