package jpegc

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestDecodeConfig(t *testing.T) {
	out, err := Encode(solidImage(40, 30, 1, 2, 3), 50)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	cfg, err := DecodeConfig(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("DecodeConfig failed: %v", err)
	}

	if cfg.Width != 40 || cfg.Height != 30 {
		t.Fatalf("config = %dx%d, want 40x30", cfg.Width, cfg.Height)
	}

	if cfg.ColorModel != color.YCbCrModel {
		t.Fatalf("color model = %v, want YCbCr", cfg.ColorModel)
	}
}

func TestDecodeImage(t *testing.T) {
	out, err := Encode(solidImage(16, 8, 250, 10, 10), 90)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	m, err := DecodeImage(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("DecodeImage failed: %v", err)
	}

	rgba, ok := m.(*image.RGBA)
	if !ok {
		t.Fatalf("DecodeImage returned %T, want *image.RGBA", m)
	}

	if got := rgba.Bounds(); got.Dx() != 16 || got.Dy() != 8 {
		t.Fatalf("bounds = %v, want 16x8", got)
	}
}

func TestEncodeImage(t *testing.T) {
	m := image.NewRGBA(image.Rect(0, 0, 24, 24))
	for i := 0; i < len(m.Pix); i += 4 {
		m.Pix[i] = 5
		m.Pix[i+1] = 250
		m.Pix[i+2] = 128
		m.Pix[i+3] = 255
	}

	out, err := EncodeImage(m, 90)
	if err != nil {
		t.Fatalf("EncodeImage failed: %v", err)
	}

	img, err := Decode(out.Data, nil)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if diff := maxChannelDiff(img.Data, m.Pix); diff > 6 {
		t.Fatalf("max channel difference = %d, want <= 6", diff)
	}
}

// TestRegisterFormat verifies that image.Decode dispatches JPEG streams to
// this package.
func TestRegisterFormat(t *testing.T) {
	out, err := Encode(solidImage(8, 8, 9, 9, 9), 50)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, format, err := image.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatalf("image.Decode failed: %v", err)
	}

	if format != "jpeg" {
		t.Fatalf("format = %q, want \"jpeg\"", format)
	}
}
