package jpegc

// Color conversion.
//
// getData maps the component sample planes onto the output grid with
// nearest-neighbor sampling and applies the color transform selected by the
// component count, the Adobe marker, and the decoder options. copyToPixels
// then renders the interleaved component data as grayscale, RGB(A), or CMYK.

// clampTo8bit clamps a floating-point channel value to [0, 255]; fractional
// parts are truncated toward zero when stored.
func clampTo8bit(a float64) float64 {
	if a < 0 {
		return 0
	}

	if a > 255 {
		return 255
	}

	return a
}

// getData produces width*height interleaved component samples, one byte per
// component per pixel.
func (d *decoder) getData(width, height int) ([]byte, error) {
	scaleX := float64(d.width) / float64(width)
	scaleY := float64(d.height) / float64(height)
	numComponents := len(d.components)

	dataLength := width * height * numComponents
	if err := d.budget.request(dataLength); err != nil {
		return nil, err
	}

	data := make([]byte, dataLength)

	for i, c := range d.components {
		componentScaleX := c.scaleX * scaleX
		componentScaleY := c.scaleY * scaleY
		offset := i

		for y := 0; y < height; y++ {
			lineStart := int(float64(y)*componentScaleY) * c.stride
			if lineStart >= len(c.pixels) {
				lineStart = len(c.pixels) - c.stride
			}
			line := c.pixels[lineStart : lineStart+c.stride]

			for x := 0; x < width; x++ {
				sx := int(float64(x) * componentScaleX)
				if sx >= c.stride {
					sx = c.stride - 1
				}

				data[offset] = line[sx]
				offset += numComponents
			}
		}
	}

	switch numComponents {
	case 1, 2:
		// Grayscale, or an undefined two-channel colorspace: pass through.

	case 3:
		// The default transform for three components is on; a nonzero Adobe
		// transform code turns it on, and the option, when set, decides last.
		colorTransform := true
		if d.adobe != nil && d.adobe.TransformCode != 0 {
			colorTransform = true
		}
		if d.opts.colorTransform != nil {
			colorTransform = *d.opts.colorTransform
		}

		if colorTransform {
			for i := 0; i < dataLength; i += 3 {
				y := float64(data[i])
				cb := float64(data[i+1])
				cr := float64(data[i+2])

				data[i] = byte(clampTo8bit(y + 1.402*(cr-128)))
				data[i+1] = byte(clampTo8bit(y - 0.3441363*(cb-128) - 0.71413636*(cr-128)))
				data[i+2] = byte(clampTo8bit(y + 1.772*(cb-128)))
			}
		}

	case 4:
		if d.adobe == nil {
			return nil, ErrUnsupportedColorMode
		}

		// The default transform for four components is off; a nonzero Adobe
		// transform code turns it on, and the option, when set, decides last.
		colorTransform := false
		if d.adobe.TransformCode != 0 {
			colorTransform = true
		}
		if d.opts.colorTransform != nil {
			colorTransform = *d.opts.colorTransform
		}

		if colorTransform {
			for i := 0; i < dataLength; i += 4 {
				y := float64(data[i])
				cb := float64(data[i+1])
				cr := float64(data[i+2])

				data[i] = byte(255 - clampTo8bit(y+1.402*(cr-128)))
				data[i+1] = byte(255 - clampTo8bit(y-0.3441363*(cb-128)-0.71413636*(cr-128)))
				data[i+2] = byte(255 - clampTo8bit(y+1.772*(cb-128)))
				// K passes through.
			}
		}

	default:
		return nil, ErrUnsupportedColorMode
	}

	return data, nil
}

// copyToPixels renders the decoded image into its final pixel buffer. With
// formatAsRGBA set the output is 4 bytes per pixel with alpha 255; otherwise
// 1 byte for grayscale, 2 for the two-channel case, 3 for RGB, and inverted
// CMYK for four components.
func (d *decoder) copyToPixels(formatAsRGBA bool) ([]byte, error) {
	data, err := d.getData(d.width, d.height)
	if err != nil {
		return nil, err
	}

	numComponents := len(d.components)
	pixelCount := d.width * d.height

	// The two-channel case has no RGBA rendition; it stays two bytes per pixel.
	channels := numComponents
	if formatAsRGBA && numComponents != 2 {
		channels = 4
	}

	if err := d.budget.request(pixelCount * channels); err != nil {
		return nil, err
	}

	out := make([]byte, pixelCount*channels)

	switch numComponents {
	case 1:
		if formatAsRGBA {
			j := 0
			for _, y := range data {
				out[j] = y
				out[j+1] = y
				out[j+2] = y
				out[j+3] = 255
				j += 4
			}
		} else {
			copy(out, data)
		}

	case 2:
		// Two channels interleaved, colorspace undefined.
		copy(out, data)

	case 3:
		if formatAsRGBA {
			i, j := 0, 0
			for p := 0; p < pixelCount; p++ {
				out[j] = data[i]
				out[j+1] = data[i+1]
				out[j+2] = data[i+2]
				out[j+3] = 255
				i += 3
				j += 4
			}
		} else {
			copy(out, data)
		}

	case 4:
		if formatAsRGBA {
			i, j := 0, 0
			for p := 0; p < pixelCount; p++ {
				c := float64(data[i])
				m := float64(data[i+1])
				ye := float64(data[i+2])
				k := float64(data[i+3])

				out[j] = byte(255 - clampTo8bit(c*(1-k/255)+k))
				out[j+1] = byte(255 - clampTo8bit(m*(1-k/255)+k))
				out[j+2] = byte(255 - clampTo8bit(ye*(1-k/255)+k))
				out[j+3] = 255
				i += 4
				j += 4
			}
		} else {
			for i := range data {
				out[i] = 255 - data[i]
			}
		}
	}

	return out, nil
}
