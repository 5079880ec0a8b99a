package jpegc

import (
	"image"
	"image/color"
	"image/draw"
	"io"
)

// Adapters between the raw-buffer codec API and the standard image package.

// DecodeImage reads a JPEG image from r and returns it as an [image.Image].
// The result is always an *image.RGBA with every alpha byte set to 255.
func DecodeImage(r io.Reader) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	img, err := Decode(data, nil)
	if err != nil {
		return nil, err
	}

	return &image.RGBA{
		Pix:    img.Data,
		Stride: img.Width * 4,
		Rect:   image.Rect(0, 0, img.Width, img.Height),
	}, nil
}

// DecodeConfig returns the color model and dimensions of a JPEG image without
// decoding the entire image data. The dimensions are as stored in the SOF
// segment.
func DecodeConfig(r io.Reader) (image.Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return image.Config{}, err
	}

	d := &decoder{
		data:       data,
		opts:       resolveOptions(nil),
		configOnly: true,
	}
	d.budget.reset(d.opts.maxMemoryUsageMB << 20)

	if err := d.parse(); err != nil {
		return image.Config{}, err
	}

	if d.frame == nil {
		return image.Config{}, ErrSyntax
	}

	var cm color.Model
	switch len(d.frame.componentsOrder) {
	case 1:
		cm = color.GrayModel
	case 3:
		cm = color.YCbCrModel
	case 4:
		cm = color.CMYKModel
	default:
		cm = color.RGBAModel
	}

	return image.Config{
		ColorModel: cm,
		Width:      d.frame.samplesPerLine,
		Height:     d.frame.scanLines,
	}, nil
}

// EncodeImage compresses any image.Image into a baseline JPEG by first
// rendering it into the RGBA layout the encoder consumes.
func EncodeImage(m image.Image, quality int) (*EncodedImage, error) {
	bounds := m.Bounds()
	rgba, ok := m.(*image.RGBA)
	if !ok || bounds.Min != (image.Point{}) || rgba.Stride != 4*bounds.Dx() {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), m, bounds.Min, draw.Src)
	}

	return Encode(&RawImage{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		Data:   rgba.Pix,
	}, quality)
}

// init registers the JPEG format with the standard library's image package so
// that image.Decode recognizes JPEG streams using this package.
func init() {
	image.RegisterFormat("jpeg", "\xff\xd8", DecodeImage, DecodeConfig)
}
