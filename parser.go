package jpegc

import (
	"fmt"
)

// component stores the per-scan and per-frame state of a single color
// component (e.g. Y, Cb, Cr, or K).
type component struct {
	id              int // Component identifier from the SOF segment.
	h, v            int // Horizontal and vertical sampling factors.
	quantizationIdx int // DQT destination slot, resolved after EOI.

	quantizationTable []int32

	// Coefficient storage, allocated once at SOF time. The grid is sized for
	// whole MCUs (blocksWidth x blocksHeight blocks of 64 coefficients) and
	// is never reallocated; blocksPerLine/blocksPerColumn describe the part
	// that carries image data.
	blocksPerLine   int
	blocksPerColumn int
	blocksWidth     int
	blocksHeight    int
	blocks          []int32

	huffmanTableDC *huffTable
	huffmanTableAC *huffTable
	pred           int32 // DC predictor, reset at scan start and at every restart.

	// Assembled sample plane, produced after all scans.
	pixels []byte
	stride int
	scaleX float64
	scaleY float64
}

// block returns the 64-coefficient slice at the given grid position.
func (c *component) block(row, col int) []int32 {
	offset := (row*c.blocksWidth + col) * 64

	return c.blocks[offset : offset+64]
}

// frame holds the image geometry parsed from the SOF segment. It is immutable
// once parsed.
type frame struct {
	extended    bool
	progressive bool

	precision      int
	scanLines      int
	samplesPerLine int

	components      map[int]*component
	componentsOrder []int

	maxH, maxV    int
	mcusPerLine   int
	mcusPerColumn int
}

// JFIF holds the fields of an APP0 JFIF application segment.
type JFIF struct {
	VersionMajor byte
	VersionMinor byte
	DensityUnits byte
	XDensity     int
	YDensity     int
	ThumbWidth   int
	ThumbHeight  int
	ThumbData    []byte
}

// Adobe holds the fields of an APP14 Adobe application segment. TransformCode
// selects the color transform applied to 3- and 4-component images.
type Adobe struct {
	Version       byte
	Flags0        int
	Flags1        int
	TransformCode byte
}

// decoder holds the state of one JPEG decoding call.
type decoder struct {
	data   []byte
	offset int
	opts   options
	budget memoryBudget

	frame         *frame
	resetInterval int

	quantTables [4][]int32
	huffmanDC   [4]*huffTable
	huffmanAC   [4]*huffTable

	jfif     *JFIF
	adobe    *Adobe
	exifData []byte
	comments []string

	// components, in presentation order, after all scans are decoded.
	components    []*component
	width, height int

	configOnly      bool
	malformedOffset int
}

// byteAt reads a single byte, treating positions past the end of the stream
// as zero the way the marker parser's loose header reads require.
func (d *decoder) byteAt(pos int) int {
	if pos >= 0 && pos < len(d.data) {
		return int(d.data[pos])
	}

	return 0
}

// readUint16 reads a 16-bit big-endian integer and advances.
func (d *decoder) readUint16() int {
	v := d.byteAt(d.offset)<<8 | d.byteAt(d.offset+1)
	d.offset += 2

	return v
}

// readDataBlock reads one length-prefixed marker segment payload.
func (d *decoder) readDataBlock() ([]byte, error) {
	length := d.readUint16()
	if length < 2 {
		return nil, fmt.Errorf("%w: marker segment length %d is too short", ErrSyntax, length)
	}

	end := d.offset + length - 2
	if end > len(d.data) {
		end = len(d.data)
	}

	block := d.data[d.offset:end]
	d.offset += length - 2

	return block, nil
}

// parse walks the marker stream, populating tables, the frame, and metadata,
// and dispatching every SOS segment to the scan decoder. It stops at EOI.
func (d *decoder) parse() error {
	maxResolutionInPixels := d.opts.maxResolutionMP * 1000 * 1000
	d.malformedOffset = -1

	if d.readUint16() != 0xFFD8 {
		return ErrMissingSOI
	}

	fileMarker := d.readUint16()

	for fileMarker != 0xFFD9 { // EOI
		switch {
		case fileMarker == 0xFF00:
			// Escaped 0xFF data byte outside entropy-coded data; skip.

		case fileMarker >= 0xFFE0 && fileMarker <= 0xFFEF, fileMarker == 0xFFFE:
			if err := d.parseAppData(fileMarker); err != nil {
				return err
			}

		case fileMarker == 0xFFDB: // DQT
			if err := d.parseDQT(); err != nil {
				return err
			}

		case fileMarker == 0xFFC0, fileMarker == 0xFFC1, fileMarker == 0xFFC2: // SOF0/1/2
			if d.frame != nil {
				return ErrMultipleFrames
			}

			if err := d.parseSOF(fileMarker, maxResolutionInPixels); err != nil {
				return err
			}

			if d.configOnly {
				return nil
			}

		case fileMarker == 0xFFC4: // DHT
			if err := d.parseDHT(); err != nil {
				return err
			}

		case fileMarker == 0xFFDD: // DRI
			d.readUint16() // segment length
			d.resetInterval = d.readUint16()

		case fileMarker == 0xFFDC: // DNL, number of lines; contents ignored
			length := d.readUint16()
			if length > 2 {
				d.offset += length - 2
			}

		case fileMarker == 0xFFDA: // SOS
			if err := d.parseSOS(); err != nil {
				return err
			}

		case fileMarker == 0xFFFF: // Fill bytes
			if d.byteAt(d.offset) != 0xFF {
				// Not a padding run; the last byte belongs to the next marker.
				d.offset--
			}

		default:
			if d.byteAt(d.offset-3) == 0xFF &&
				d.byteAt(d.offset-2) >= 0xC0 && d.byteAt(d.offset-2) <= 0xFE {
				// The last 0xFF of the previous segment was eaten by a broken
				// encoder; rewind to the marker prefix and resume.
				d.offset -= 3
				break
			}

			if fileMarker == 0x00E0 || fileMarker == 0x00E1 {
				// Misaligned APP0/APP1 segment that lost its 0xFF prefix.
				// Recoverable at most once per file.
				if d.malformedOffset != -1 {
					return &DualMalformedMarkerError{
						FirstOffset:  d.malformedOffset,
						SecondOffset: d.offset - 1,
						Marker:       uint16(fileMarker),
					}
				}

				d.malformedOffset = d.offset - 1

				nextOffset := d.readUint16()
				if d.byteAt(d.offset+nextOffset-2) == 0xFF {
					d.offset += nextOffset - 2
					break
				}
			}

			return &UnknownMarkerError{Offset: d.offset - 2, Marker: uint16(fileMarker)}
		}

		if d.offset >= len(d.data) {
			// Ran off the end of the stream without seeing EOI.
			return &UnknownMarkerError{Offset: d.offset, Marker: 0}
		}

		fileMarker = d.readUint16()
	}

	if d.frame == nil {
		return fmt.Errorf("%w: no frame header before EOI", ErrSyntax)
	}

	return d.finish()
}

// parseAppData handles APPn and COM segments: JFIF (APP0), EXIF (APP1), Adobe
// (APP14) payloads are captured, comments are decoded one byte per character,
// and everything else is skipped.
func (d *decoder) parseAppData(fileMarker int) error {
	appData, err := d.readDataBlock()
	if err != nil {
		return err
	}

	switch fileMarker {
	case 0xFFFE: // COM
		d.comments = append(d.comments, string(appData))

	case 0xFFE0: // APP0
		if len(appData) >= 14 &&
			appData[0] == 'J' && appData[1] == 'F' && appData[2] == 'I' &&
			appData[3] == 'F' && appData[4] == 0 {
			thumbSize := 3 * int(appData[12]) * int(appData[13])
			thumbEnd := 14 + thumbSize
			if thumbEnd > len(appData) {
				thumbEnd = len(appData)
			}

			d.jfif = &JFIF{
				VersionMajor: appData[5],
				VersionMinor: appData[6],
				DensityUnits: appData[7],
				XDensity:     int(appData[8])<<8 | int(appData[9]),
				YDensity:     int(appData[10])<<8 | int(appData[11]),
				ThumbWidth:   int(appData[12]),
				ThumbHeight:  int(appData[13]),
				ThumbData:    appData[14:thumbEnd],
			}
		}

	case 0xFFE1: // APP1
		if len(appData) >= 6 &&
			appData[0] == 'E' && appData[1] == 'x' && appData[2] == 'i' &&
			appData[3] == 'f' && appData[4] == 0 {
			d.exifData = appData[6:]
		}

	case 0xFFEE: // APP14
		if len(appData) >= 12 &&
			appData[0] == 'A' && appData[1] == 'd' && appData[2] == 'o' &&
			appData[3] == 'b' && appData[4] == 'e' && appData[5] == 0 {
			d.adobe = &Adobe{
				Version:       appData[6],
				Flags0:        int(appData[7])<<8 | int(appData[8]),
				Flags1:        int(appData[9])<<8 | int(appData[10]),
				TransformCode: appData[11],
			}
		}
	}

	return nil
}

// parseDQT reads quantization tables until the segment is exhausted. Entries
// arrive in stream order and are deposited in natural order through the
// zig-zag permutation.
func (d *decoder) parseDQT() error {
	length := d.readUint16()
	end := d.offset + length - 2

	for d.offset < end {
		spec := d.byteAt(d.offset)
		d.offset++

		precision := spec >> 4
		if precision > 1 {
			return ErrInvalidQuantSpec
		}

		destID := spec & 15
		if destID > 3 {
			return fmt.Errorf("%w: DQT destination %d out of range", ErrSyntax, destID)
		}

		if err := d.budget.request(64 * 4); err != nil {
			return err
		}

		table := make([]int32, 64)
		if precision == 0 {
			for j := 0; j < 64; j++ {
				table[dctZigZag[j]] = int32(d.byteAt(d.offset))
				d.offset++
			}
		} else {
			for j := 0; j < 64; j++ {
				table[dctZigZag[j]] = int32(d.readUint16())
			}
		}

		d.quantTables[destID] = table
	}

	return nil
}

// parseDHT reads Huffman table definitions until the segment is exhausted and
// builds the decoding trees.
func (d *decoder) parseDHT() error {
	length := d.readUint16()

	for i := 2; i < length; {
		spec := d.byteAt(d.offset)
		d.offset++

		destID := spec & 15
		if destID > 3 {
			return fmt.Errorf("%w: DHT destination %d out of range", ErrSyntax, destID)
		}

		var counts [16]int
		total := 0
		for j := 0; j < 16; j++ {
			counts[j] = d.byteAt(d.offset)
			total += counts[j]
			d.offset++
		}

		if err := d.budget.request(16 + total); err != nil {
			return err
		}

		values := make([]byte, total)
		for j := 0; j < total; j++ {
			values[j] = byte(d.byteAt(d.offset))
			d.offset++
		}

		table, err := buildHuffmanTable(&counts, values)
		if err != nil {
			return err
		}

		if spec>>4 == 0 {
			d.huffmanDC[destID] = table
		} else {
			d.huffmanAC[destID] = table
		}

		i += 17 + total
	}

	return nil
}

// parseSOF reads the frame header, enforces the resolution ceiling, and
// allocates the per-component coefficient grids.
func (d *decoder) parseSOF(fileMarker, maxResolutionInPixels int) error {
	d.readUint16() // segment length

	f := &frame{
		extended:    fileMarker == 0xFFC1,
		progressive: fileMarker == 0xFFC2,
		components:  make(map[int]*component),
	}

	f.precision = d.byteAt(d.offset)
	d.offset++
	f.scanLines = d.readUint16()
	f.samplesPerLine = d.readUint16()

	if pixels := f.scanLines * f.samplesPerLine; pixels > maxResolutionInPixels {
		return &ResolutionError{ExcessMP: (pixels - maxResolutionInPixels + 1000000 - 1) / 1000000}
	}

	componentsCount := d.byteAt(d.offset)
	d.offset++

	for i := 0; i < componentsCount; i++ {
		id := d.byteAt(d.offset)
		h := d.byteAt(d.offset+1) >> 4
		v := d.byteAt(d.offset+1) & 15

		if h == 0 || v == 0 {
			return ErrInvalidSamplingFactor
		}

		f.componentsOrder = append(f.componentsOrder, id)
		f.components[id] = &component{
			id:              id,
			h:               h,
			v:               v,
			quantizationIdx: d.byteAt(d.offset + 2),
		}
		d.offset += 3
	}

	if !d.configOnly {
		if err := d.prepareComponents(f); err != nil {
			return err
		}
	}

	d.frame = f

	return nil
}

// prepareComponents derives the MCU geometry and allocates each component's
// coefficient grid, sized in whole MCUs.
func (d *decoder) prepareComponents(f *frame) error {
	maxH, maxV := 0, 0
	for _, id := range f.componentsOrder {
		c := f.components[id]
		if c.h > maxH {
			maxH = c.h
		}

		if c.v > maxV {
			maxV = c.v
		}
	}

	mcusPerLine := ceilDiv(f.samplesPerLine, 8*maxH)
	mcusPerColumn := ceilDiv(f.scanLines, 8*maxV)

	for _, id := range f.componentsOrder {
		c := f.components[id]
		c.blocksPerLine = ceilDiv(ceilDiv(f.samplesPerLine, 8)*c.h, maxH)
		c.blocksPerColumn = ceilDiv(ceilDiv(f.scanLines, 8)*c.v, maxV)
		c.blocksWidth = mcusPerLine * c.h
		c.blocksHeight = mcusPerColumn * c.v

		blocksToAllocate := c.blocksWidth * c.blocksHeight
		if err := d.budget.request(blocksToAllocate * 64 * 4); err != nil {
			return err
		}

		c.blocks = make([]int32, blocksToAllocate*64)
	}

	f.maxH = maxH
	f.maxV = maxV
	f.mcusPerLine = mcusPerLine
	f.mcusPerColumn = mcusPerColumn

	return nil
}

// parseSOS reads the scan header and hands the entropy-coded data to the scan
// decoder, advancing past the bytes it consumed.
func (d *decoder) parseSOS() error {
	if d.frame == nil {
		return fmt.Errorf("%w: scan data found before frame header", ErrSyntax)
	}

	d.readUint16() // segment length

	selectorsCount := d.byteAt(d.offset)
	d.offset++

	components := make([]*component, 0, selectorsCount)
	for i := 0; i < selectorsCount; i++ {
		id := d.byteAt(d.offset)
		c, ok := d.frame.components[id]
		if !ok {
			return fmt.Errorf("%w: scan references undefined component %d", ErrSyntax, id)
		}

		tableSpec := d.byteAt(d.offset + 1)
		if tableSpec>>4 > 3 || tableSpec&15 > 3 {
			return fmt.Errorf("%w: scan selects Huffman table out of range", ErrSyntax)
		}

		c.huffmanTableDC = d.huffmanDC[tableSpec>>4]
		c.huffmanTableAC = d.huffmanAC[tableSpec&15]
		components = append(components, c)
		d.offset += 2
	}

	spectralStart := d.byteAt(d.offset)
	spectralEnd := d.byteAt(d.offset + 1)
	successive := d.byteAt(d.offset + 2)
	d.offset += 3

	processed, err := d.decodeScan(d.offset, components, d.resetInterval,
		spectralStart, spectralEnd, successive>>4, successive&15)
	if err != nil {
		return err
	}

	d.offset += processed

	return nil
}

// finish resolves quantization table references, rebuilds sample planes from
// the decoded coefficients, and records the presentation-order component list.
func (d *decoder) finish() error {
	f := d.frame

	for _, id := range f.componentsOrder {
		c := f.components[id]
		qt := d.quantTables[c.quantizationIdx&3]
		if qt == nil {
			return fmt.Errorf("%w: component %d references undefined quantization table %d",
				ErrSyntax, c.id, c.quantizationIdx)
		}

		c.quantizationTable = qt
		c.quantizationIdx = 0
	}

	d.width = f.samplesPerLine
	d.height = f.scanLines
	d.components = d.components[:0]

	for _, id := range f.componentsOrder {
		c := f.components[id]
		if err := d.buildComponentData(c); err != nil {
			return err
		}

		c.scaleX = float64(c.h) / float64(f.maxH)
		c.scaleY = float64(c.v) / float64(f.maxV)
		d.components = append(d.components, c)
	}

	return nil
}

// ceilDiv returns ceil(a / b) for positive divisors.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
