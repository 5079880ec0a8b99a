// Package jpegc implements a baseline, extended sequential, and progressive
// JPEG decoder and a baseline JPEG encoder operating on raw pixel buffers.
package jpegc

// Default decoding limits, overridable per call through DecoderOptions.
const (
	// DefaultMaxResolutionMP is the default frame resolution ceiling in megapixels.
	DefaultMaxResolutionMP = 100
	// DefaultMaxMemoryUsageMB is the default cumulative allocation ceiling in megabytes.
	DefaultMaxMemoryUsageMB = 512
)

// DecoderOptions specifies decoding parameters. All fields are optional; nil
// pointer fields and zero limits select the defaults.
type DecoderOptions struct {
	// ColorTransform controls the YCbCr->RGB (3 components) or YCbCrK->CMYK
	// (4 components) transform. When nil the transform is selected from the
	// stream's markers; true forces it on and false passes samples through.
	ColorTransform *bool
	// FormatAsRGBA selects 4-byte RGBA output with alpha 255 (the default).
	// When set to false the output is 3 bytes per pixel, 1 for grayscale, or
	// 4 bytes of inverted CMYK for four components. Two-component images stay
	// 2 interleaved bytes per pixel either way.
	FormatAsRGBA *bool
	// TolerantDecoding silently drops blocks addressed outside the allocated
	// coefficient grid instead of failing. Enabled by default.
	TolerantDecoding *bool
	// MaxResolutionMP caps the frame pixel count, checked at SOF time.
	MaxResolutionMP int
	// MaxMemoryUsageMB caps the cumulative size of large decoder allocations.
	MaxMemoryUsageMB int
}

// Bool returns a pointer to v, for use in DecoderOptions literals.
func Bool(v bool) *bool {
	return &v
}

// options is the resolved form of DecoderOptions.
type options struct {
	colorTransform   *bool
	formatAsRGBA     bool
	tolerantDecoding bool
	maxResolutionMP  int
	maxMemoryUsageMB int
}

func resolveOptions(opts *DecoderOptions) options {
	o := options{
		formatAsRGBA:     true,
		tolerantDecoding: true,
		maxResolutionMP:  DefaultMaxResolutionMP,
		maxMemoryUsageMB: DefaultMaxMemoryUsageMB,
	}

	if opts == nil {
		return o
	}

	o.colorTransform = opts.ColorTransform
	if opts.FormatAsRGBA != nil {
		o.formatAsRGBA = *opts.FormatAsRGBA
	}

	if opts.TolerantDecoding != nil {
		o.tolerantDecoding = *opts.TolerantDecoding
	}

	if opts.MaxResolutionMP > 0 {
		o.maxResolutionMP = opts.MaxResolutionMP
	}

	if opts.MaxMemoryUsageMB > 0 {
		o.maxMemoryUsageMB = opts.MaxMemoryUsageMB
	}

	return o
}

// DecodedImage is the result of a decode call.
type DecodedImage struct {
	Width  int
	Height int
	// Data holds interleaved pixel samples; see DecoderOptions.FormatAsRGBA
	// for the channel layout.
	Data []byte
	// ExifData holds the raw APP1 EXIF payload without its "Exif\0\0"
	// preamble, or nil when the stream carries none. The bytes are not parsed.
	ExifData []byte
	// Comments holds the contents of every COM segment in stream order.
	Comments []string
	// ColorSpace identifies the colorspace of Data; always "srgb".
	ColorSpace string

	JFIF  *JFIF
	Adobe *Adobe
}

// Decode parses a complete JPEG byte stream and returns the decoded image.
// The whole compressed image must be in memory; no streaming input is
// supported.
func Decode(data []byte, opts *DecoderOptions) (*DecodedImage, error) {
	d := &decoder{
		data: data,
		opts: resolveOptions(opts),
	}
	d.budget.reset(d.opts.maxMemoryUsageMB << 20)

	if err := d.parse(); err != nil {
		return nil, err
	}

	pixels, err := d.copyToPixels(d.opts.formatAsRGBA)
	if err != nil {
		return nil, err
	}

	return &DecodedImage{
		Width:      d.width,
		Height:     d.height,
		Data:       pixels,
		ExifData:   d.exifData,
		Comments:   d.comments,
		ColorSpace: "srgb",
		JFIF:       d.jfif,
		Adobe:      d.adobe,
	}, nil
}

// RawImage is the encoder's input: interleaved RGBA bytes, 4 per pixel.
// Comments and ExifData, when present, are embedded as COM and APP1 segments.
type RawImage struct {
	Width    int
	Height   int
	Data     []byte
	Comments []string
	ExifData []byte
}

// EncodedImage is the encoder's output.
type EncodedImage struct {
	Width  int
	Height int
	Data   []byte
}
