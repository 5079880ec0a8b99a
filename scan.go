package jpegc

// Entropy-coded scan decoding.
//
// A scan covers either every interleaved MCU of the frame or, for a
// single-component scan, the blocks of that component in raster order. The
// five block decoders correspond to the sequential mode and the four
// progressive passes (DC/AC crossed with first/refinement).

// acState is the state of the successive-approximation AC refinement machine.
// A ZRL run returns to acInitial once its zeros are consumed; a run preceding
// a new value proceeds to acPlacing.
type acState int

const (
	acInitial acState = iota
	acSkippingToInitial
	acSkippingToPlace
	acPlacing
	acEOB
)

type scanDecoder struct {
	d *decoder
	r bitReader

	frame      *frame
	components []*component

	spectralStart int
	spectralEnd   int
	successiveHi  int
	successive    int

	// eobrun spans blocks within one restart interval of a progressive AC scan.
	eobrun int

	acState     acState
	acRemaining int
	acNextValue int32
}

// decodeScan decodes one entropy-coded scan starting at offset and returns
// the number of bytes consumed. Errors raised in the hot path arrive as
// errDecode panics and are converted back to plain errors here.
func (d *decoder) decodeScan(offset int, components []*component, resetInterval,
	spectralStart, spectralEnd, successiveHi, successive int) (processed int, err error) {

	defer func() {
		if r := recover(); r != nil {
			if de, ok := r.(errDecode); ok {
				err = de.error
			} else {
				panic(r)
			}
		}
	}()

	s := &scanDecoder{
		d:             d,
		r:             bitReader{data: d.data, offset: offset},
		frame:         d.frame,
		components:    components,
		spectralStart: spectralStart,
		spectralEnd:   spectralEnd,
		successiveHi:  successiveHi,
		successive:    successive,
	}

	var decodeFn func(*component, []int32)
	if d.frame.progressive {
		switch {
		case spectralStart == 0 && successiveHi == 0:
			decodeFn = s.decodeDCFirst
		case spectralStart == 0:
			decodeFn = s.decodeDCSuccessive
		case successiveHi == 0:
			decodeFn = s.decodeACFirst
		default:
			decodeFn = s.decodeACSuccessive
		}
	} else {
		decodeFn = s.decodeBaseline
	}

	var mcuExpected int
	if len(components) == 1 {
		mcuExpected = components[0].blocksPerLine * components[0].blocksPerColumn
	} else {
		mcuExpected = d.frame.mcusPerLine * d.frame.mcusPerColumn
	}

	// A zero interval means one interval covering the whole scan.
	if resetInterval == 0 {
		resetInterval = mcuExpected
	}

	mcu := 0
	for mcu < mcuExpected {
		// Predictors and the EOB run reset at scan start and after every
		// restart marker.
		for _, c := range components {
			c.pred = 0
		}
		s.eobrun = 0

		if len(components) == 1 {
			c := components[0]
			for n := 0; n < resetInterval && mcu < mcuExpected; n++ {
				s.decodeBlock(c, decodeFn, mcu)
				mcu++
			}
		} else {
			for n := 0; n < resetInterval && mcu < mcuExpected; n++ {
				for _, c := range components {
					for j := 0; j < c.v; j++ {
						for k := 0; k < c.h; k++ {
							s.decodeMcu(c, decodeFn, mcu, j, k)
						}
					}
				}

				mcu++
			}
		}

		// The bitstream is byte-aligned before a restart marker.
		s.r.align()

		marker := d.byteAt(s.r.offset)<<8 | d.byteAt(s.r.offset+1)
		if marker >= 0xFFD0 && marker <= 0xFFD7 { // RSTn
			s.r.offset += 2

			continue
		}

		if mcu >= mcuExpected {
			break
		}

		if marker < 0xFF00 {
			return 0, ErrMarkerNotFound
		}

		// Any other marker ends the scan early; the marker parser deals with it.
		break
	}

	// Skip trailing entropy bytes up to, but not including, the next marker.
	off := s.r.offset
	for off < len(d.data)-1 {
		if d.data[off] == 0xFF && d.data[off+1] != 0x00 {
			break
		}

		off++
	}
	s.r.offset = off

	return s.r.offset - offset, nil
}

// decodeMcu decodes one block of an interleaved MCU, located by the MCU index
// and the block's position inside the component's h x v sampling grid.
func (s *scanDecoder) decodeMcu(c *component, decodeFn func(*component, []int32), mcu, row, col int) {
	mcuRow := mcu / s.frame.mcusPerLine
	mcuCol := mcu % s.frame.mcusPerLine
	blockRow := mcuRow*c.v + row
	blockCol := mcuCol*c.h + col

	s.decodeAt(c, decodeFn, blockRow, blockCol)
}

// decodeBlock decodes one block of a single-component scan, traversed in
// raster order of that component.
func (s *scanDecoder) decodeBlock(c *component, decodeFn func(*component, []int32), mcu int) {
	blockRow := mcu / c.blocksPerLine
	blockCol := mcu % c.blocksPerLine

	s.decodeAt(c, decodeFn, blockRow, blockCol)
}

func (s *scanDecoder) decodeAt(c *component, decodeFn func(*component, []int32), blockRow, blockCol int) {
	if blockRow >= c.blocksHeight || blockCol >= c.blocksWidth {
		// The block falls outside the allocated grid. Tolerant mode drops it.
		if s.d.opts.tolerantDecoding {
			return
		}

		panic(errDecode{ErrBlockOutOfRange})
	}

	decodeFn(c, c.block(blockRow, blockCol))
}

// decodeHuffman reads one symbol using the given table.
func (s *scanDecoder) decodeHuffman(t *huffTable) int {
	if t == nil {
		panic(errDecode{ErrInvalidHuffmanSequence})
	}

	return t.decode(&s.r)
}

// decodeBaseline decodes a complete sequential block: the DC difference
// followed by run-length coded AC coefficients in zig-zag order.
func (s *scanDecoder) decodeBaseline(c *component, blk []int32) {
	t := s.decodeHuffman(c.huffmanTableDC)

	var diff int32
	if t != 0 {
		diff = s.r.receiveAndExtend(t)
	}

	c.pred += diff
	blk[0] = c.pred

	k := 1
	for k < 64 {
		rs := s.decodeHuffman(c.huffmanTableAC)
		sv, rr := rs&15, rs>>4

		if sv == 0 {
			if rr < 15 {
				break // EOB
			}

			k += 16 // ZRL

			continue
		}

		k += rr
		if k > 63 {
			panic(errDecode{ErrInvalidHuffmanSequence})
		}

		blk[dctZigZag[k]] = s.r.receiveAndExtend(sv)
		k++
	}
}

// decodeDCFirst decodes the first pass of a progressive DC scan.
func (s *scanDecoder) decodeDCFirst(c *component, blk []int32) {
	t := s.decodeHuffman(c.huffmanTableDC)

	var diff int32
	if t != 0 {
		diff = s.r.receiveAndExtend(t) << uint(s.successive)
	}

	c.pred += diff
	blk[0] = c.pred
}

// decodeDCSuccessive refines the DC coefficient by one bit.
func (s *scanDecoder) decodeDCSuccessive(c *component, blk []int32) {
	blk[0] |= s.r.refineBit() << uint(s.successive)
}

// decodeACFirst decodes the first pass of a progressive AC band, carrying an
// end-of-band run across blocks.
func (s *scanDecoder) decodeACFirst(c *component, blk []int32) {
	if s.eobrun > 0 {
		s.eobrun--

		return
	}

	k, e := s.spectralStart, s.spectralEnd
	for k <= e {
		rs := s.decodeHuffman(c.huffmanTableAC)
		sv, rr := rs&15, rs>>4

		if sv == 0 {
			if rr < 15 {
				s.eobrun = int(s.r.receive(rr)) + 1<<uint(rr) - 1

				break
			}

			k += 16

			continue
		}

		k += rr
		if k > 63 {
			panic(errDecode{ErrInvalidHuffmanSequence})
		}

		blk[dctZigZag[k]] = s.r.receiveAndExtend(sv) << uint(s.successive)
		k++
	}
}

// decodeACSuccessive refines an AC band by one bit plane. The machine state
// spans blocks: an end-of-band run or a pending zero run continues into the
// next block of the scan.
func (s *scanDecoder) decodeACSuccessive(c *component, blk []int32) {
	k, e := s.spectralStart, s.spectralEnd

	for k <= e {
		z := dctZigZag[k]

		// The refinement direction is computed from the stored coefficient
		// before dispatch, treating zero as positive, and applied only when a
		// nonzero coefficient is refined.
		var direction int32 = 1
		if blk[z] < 0 {
			direction = -1
		}

		switch s.acState {
		case acInitial:
			rs := s.decodeHuffman(c.huffmanTableAC)
			sv, rr := rs&15, rs>>4

			if sv == 0 {
				if rr < 15 {
					s.eobrun = 1<<uint(rr) + int(s.r.receive(rr))
					s.acState = acEOB
				} else {
					s.acRemaining = 16
					s.acState = acSkippingToInitial
				}
			} else {
				if sv != 1 {
					panic(errDecode{ErrInvalidACEncoding})
				}

				s.acNextValue = s.r.receiveAndExtend(sv)
				if rr != 0 {
					s.acRemaining = rr
					s.acState = acSkippingToPlace
				} else {
					s.acState = acPlacing
				}
			}

			continue

		case acSkippingToInitial, acSkippingToPlace:
			if blk[z] != 0 {
				blk[z] += s.r.refineBit() << uint(s.successive) * direction
			} else {
				s.acRemaining--
				if s.acRemaining == 0 {
					if s.acState == acSkippingToPlace {
						s.acState = acPlacing
					} else {
						s.acState = acInitial
					}
				}
			}

		case acPlacing:
			if blk[z] != 0 {
				blk[z] += s.r.refineBit() << uint(s.successive) * direction
			} else {
				blk[z] = s.acNextValue << uint(s.successive)
				s.acState = acInitial
			}

		case acEOB:
			if blk[z] != 0 {
				blk[z] += s.r.refineBit() << uint(s.successive) * direction
			}
		}

		k++
	}

	if s.acState == acEOB {
		s.eobrun--
		if s.eobrun == 0 {
			s.acState = acInitial
		}
	}
}
