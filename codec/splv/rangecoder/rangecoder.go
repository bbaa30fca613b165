/*
NAME
  rangecoder.go

DESCRIPTION
  rangecoder.go implements the adaptive range coder applied once per
  frame payload: a static (per-call) frequency model over a 257-symbol
  alphabet (byte values 0-255 plus a dedicated EOF symbol), narrowing a
  40-bit interval one symbol at a time.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package rangecoder implements the entropy coder used to compress each
// SPLV frame payload after brick serialization: a 257-symbol (256 byte
// values plus EOF) range coder with a per-block frequency table.
package rangecoder

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/spatialstudio/splv/internal/buffer"
	"github.com/spatialstudio/splv/splverrors"
)

const (
	stateBits = 40
	probBits  = 24

	maxRange   = (uint64(1) << stateBits) - 1
	minRange   = (uint64(1) << probBits) - 1
	MaxSymbols = minRange

	digitBits = 8
	normShift = stateBits - digitBits
	normMask  = (uint64(1) << normShift) - 1

	numSymbols = 257 // 256 possible byte values + EOF
	eofSymbol  = 256
)

// freqTable holds symbol frequencies and their cumulative distribution.
type freqTable struct {
	total      uint64
	frequency  [numSymbols]uint32
	cumulative [numSymbols + 1]uint64
}

func (t *freqTable) calculateCDF() {
	t.cumulative[0] = 0
	for i := 1; i <= numSymbols; i++ {
		t.cumulative[i] = t.cumulative[i-1] + uint64(t.frequency[i-1])
	}
	t.total = t.cumulative[numSymbols]
}

// Encode range-codes in, returning the encoded bytes: a 257-entry raw
// frequency table, an 8-byte encoded-payload size, then the coded
// stream. len(in) must not exceed MaxSymbols.
func Encode(in []byte) ([]byte, error) {
	if uint64(len(in)) > MaxSymbols {
		return nil, errors.Wrapf(splverrors.ErrInvalidInput, "input of %d bytes exceeds MaxSymbols (%d)", len(in), MaxSymbols)
	}

	var table freqTable
	for _, b := range in {
		table.frequency[b]++
	}
	table.frequency[eofSymbol] = 1
	table.calculateCDF()

	out := buffer.NewWriter(len(in) + numSymbols*4 + 16)

	freqBytes := make([]byte, 4)
	for _, f := range table.frequency {
		binary.LittleEndian.PutUint32(freqBytes, f)
		if err := out.Write(freqBytes); err != nil {
			return nil, errors.Wrap(err, "writing frequency table")
		}
	}

	sizeSlot := out.Pos()
	if err := out.Write(make([]byte, 8)); err != nil {
		return nil, errors.Wrap(err, "reserving size slot")
	}

	enc := rcEncoder{low: 0, rng: maxRange}
	for _, b := range in {
		if err := enc.encode(&table, out, uint32(b)); err != nil {
			return nil, err
		}
	}
	if err := enc.encode(&table, out, eofSymbol); err != nil {
		return nil, err
	}
	if err := enc.finish(out); err != nil {
		return nil, err
	}

	size := uint64(out.Pos() - sizeSlot - 8)
	sizeBytes := make([]byte, 8)
	binary.LittleEndian.PutUint64(sizeBytes, size)
	if err := out.PutAt(sizeSlot, sizeBytes); err != nil {
		return nil, errors.Wrap(err, "back-patching encoded size")
	}

	return out.Bytes(), nil
}

// Decode inverts Encode: decode(encode(s)) == s for any s with
// len(s) <= MaxSymbols.
func Decode(in []byte) ([]byte, error) {
	r := buffer.NewReader(in)

	var table freqTable
	for i := range table.frequency {
		fb, err := r.Read(4)
		if err != nil {
			return nil, errors.Wrap(err, "reading frequency table")
		}
		table.frequency[i] = binary.LittleEndian.Uint32(fb)
	}
	table.calculateCDF()

	if table.total > MaxSymbols {
		return nil, errors.Wrapf(splverrors.ErrInvalidInput, "encoded symbol total %d exceeds MaxSymbols (%d)", table.total, MaxSymbols)
	}

	sizeBytes, err := r.Read(8)
	if err != nil {
		return nil, errors.Wrap(err, "reading encoded payload size")
	}
	totalBytes := binary.LittleEndian.Uint64(sizeBytes)

	payload, err := r.Read(int(totalBytes))
	if err != nil {
		return nil, errors.Wrap(err, "reading encoded payload")
	}

	dec := newRCDecoder(payload)

	out := buffer.NewWriter(int(table.total))
	for {
		symbol := dec.decode(&table)
		if symbol == eofSymbol {
			break
		}
		if err := out.Put(byte(symbol)); err != nil {
			return nil, errors.Wrap(err, "writing decoded byte")
		}
	}

	return out.Bytes(), nil
}

// rcEncoder narrows a 40-bit interval one symbol at a time.
type rcEncoder struct {
	low uint64
	rng uint64
}

func (e *rcEncoder) encode(table *freqTable, out *buffer.Writer, symbol uint32) error {
	symLow := table.cumulative[symbol]
	symHigh := table.cumulative[symbol+1]
	symFreq := symHigh - symLow

	e.low = e.low + (symLow*e.rng)/table.total
	e.rng = (e.rng * symFreq) / table.total

	for e.rng < minRange {
		topDigit := byte(e.low >> normShift)
		if err := out.Put(topDigit); err != nil {
			return errors.Wrap(err, "emitting range coder digit")
		}

		if (e.low&normMask)+e.rng <= normMask {
			e.low = (e.low << digitBits) & ((uint64(1) << stateBits) - 1)
			e.rng = (e.rng << digitBits) & ((uint64(1) << stateBits) - 1)
		} else {
			e.low = (e.low << digitBits) & ((uint64(1) << stateBits) - 1)
			e.rng = maxRange - e.low
		}
	}

	return nil
}

func (e *rcEncoder) finish(out *buffer.Writer) error {
	for (e.low&normMask)+e.rng <= normMask {
		topDigit := byte(e.low >> normShift)
		if err := out.Put(topDigit); err != nil {
			return errors.Wrap(err, "emitting trailing range coder digit")
		}

		e.low = (e.low << digitBits) & ((uint64(1) << stateBits) - 1)
		e.rng = (e.rng << digitBits) & ((uint64(1) << stateBits) - 1)
	}

	code := e.low + e.rng/2
	for code > 0 {
		topDigit := byte(code >> normShift)
		if err := out.Put(topDigit); err != nil {
			return errors.Wrap(err, "emitting final code digit")
		}
		code = (code << digitBits) & ((uint64(1) << stateBits) - 1)
	}

	return nil
}

// rcDecoder mirrors rcEncoder, recovering symbols by binary-searching the
// cumulative distribution.
type rcDecoder struct {
	low  uint64
	rng  uint64
	code uint64

	buf      []byte
	bytesRead int
}

func newRCDecoder(buf []byte) *rcDecoder {
	d := &rcDecoder{rng: maxRange, buf: buf}
	for i := 0; i < stateBits/digitBits; i++ {
		d.code = (d.code << digitBits) | uint64(d.readDigit())
	}
	return d
}

func (d *rcDecoder) readDigit() byte {
	if d.bytesRead >= len(d.buf) {
		return 0
	}
	b := d.buf[d.bytesRead]
	d.bytesRead++
	return b
}

func (d *rcDecoder) decode(table *freqTable) uint32 {
	offset := d.code - d.low
	value := ((offset+1)*table.total - 1) / d.rng

	start, end := uint32(0), uint32(numSymbols)
	for end-start > 1 {
		mid := (start + end) >> 1
		if table.cumulative[mid] > value {
			end = mid
		} else {
			start = mid
		}
	}
	symbol := start

	symLow := table.cumulative[symbol]
	symHigh := table.cumulative[symbol+1]
	symFreq := symHigh - symLow

	d.low = d.low + (symLow*d.rng)/table.total
	d.rng = (d.rng * symFreq) / table.total

	for d.rng < minRange {
		if (d.low&normMask)+d.rng <= normMask {
			d.low = (d.low << digitBits) & ((uint64(1) << stateBits) - 1)
			d.rng = (d.rng << digitBits) & ((uint64(1) << stateBits) - 1)
		} else {
			d.low = (d.low << digitBits) & ((uint64(1) << stateBits) - 1)
			d.rng = maxRange - d.low
		}

		d.code = ((d.code << digitBits) | uint64(d.readDigit())) & ((uint64(1) << stateBits) - 1)
	}

	return symbol
}
