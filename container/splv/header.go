/*
NAME
  header.go

DESCRIPTION
  header.go implements the on-disk .splv file header, encoding
  parameters, and frame table entry encoding/decoding.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package splv implements the .splv container: the file header, frame
// table, and the sequential encoder/decoder built on top of
// codec/splv's brick and frame model.
package splv

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/spatialstudio/splv/splverrors"
)

// MagicWord identifies a .splv file: the ASCII bytes 's','p','l','v'
// packed big-endian into a uint32, then stored little-endian on disk
// (so the first byte of a valid file is 'v', 0x76).
const MagicWord = uint32('s')<<24 | uint32('p')<<16 | uint32('l')<<8 | uint32('v')

// Version is the format version this package reads and writes.
const Version = uint32(0)<<24 | uint32(2)<<16 | uint32(1)<<8 | uint32(0)

// headerSize is sizeof(SPLVfileHeader) in the reference C layout: six
// packed uint32 header fields, two floats, a 12-byte EncodingParams
// (9 bytes of fields rounded up to a 4-byte multiple), 4 bytes of
// padding to align the trailing uint64 to an 8-byte boundary, and the
// 8-byte frame table pointer. Must stay a fixed 56 bytes for on-disk
// compatibility.
const headerSize = 56

const encodingParamsSize = 12

// FrameEncodingType distinguishes an intra (I) frame from a predictive
// (P) frame in the frame table.
type FrameEncodingType uint8

const (
	FrameEncodingI FrameEncodingType = 0
	FrameEncodingP FrameEncodingType = 1
)

// EncodingParams controls how frames are encoded.
type EncodingParams struct {
	// GOPSize is the number of frames per group of pictures; frame k is
	// an I-frame iff k % GOPSize == 0.
	GOPSize uint32

	// MaxBrickGroupSize is preserved for on-disk compatibility with the
	// reference encoder's brick-group partitioning but is not
	// interpreted by this implementation; see DESIGN.md.
	MaxBrickGroupSize uint32

	// MotionVectors is preserved for on-disk compatibility but is not
	// interpreted by this implementation; see DESIGN.md.
	MotionVectors bool
}

// Validate reports whether p's fields are usable for encoding. It is
// checked once at NewEncoder time rather than via scattered assertions
// elsewhere.
func (p EncodingParams) Validate() error {
	if p.GOPSize == 0 {
		return errors.Wrap(splverrors.ErrInvalidArguments, "GOP size must be positive")
	}
	return nil
}

func (p EncodingParams) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], p.GOPSize)
	binary.LittleEndian.PutUint32(buf[4:8], p.MaxBrickGroupSize)
	buf[8] = 0
	if p.MotionVectors {
		buf[8] = 1
	}
	buf[9], buf[10], buf[11] = 0, 0, 0
}

func decodeEncodingParams(buf []byte) EncodingParams {
	return EncodingParams{
		GOPSize:           binary.LittleEndian.Uint32(buf[0:4]),
		MaxBrickGroupSize: binary.LittleEndian.Uint32(buf[4:8]),
		MotionVectors:     buf[8] != 0,
	}
}

// FileHeader is the fixed-size header at the start of every .splv file.
type FileHeader struct {
	Width, Height, Depth uint32
	Framerate            float32
	FrameCount           uint32
	Duration             float32
	EncodingParams       EncodingParams
	FrameTablePtr        uint64
}

// encode writes h as the fixed-size on-disk header layout, including the
// magic word and version, which are not stored in FileHeader itself
// since every file written by this package uses the current values.
func (h FileHeader) encode() []byte {
	buf := make([]byte, headerSize)

	binary.LittleEndian.PutUint32(buf[0:4], MagicWord)
	binary.LittleEndian.PutUint32(buf[4:8], Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.Width)
	binary.LittleEndian.PutUint32(buf[12:16], h.Height)
	binary.LittleEndian.PutUint32(buf[16:20], h.Depth)
	binary.LittleEndian.PutUint32(buf[20:24], math.Float32bits(h.Framerate))
	binary.LittleEndian.PutUint32(buf[24:28], h.FrameCount)
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(h.Duration))
	h.EncodingParams.encode(buf[32 : 32+encodingParamsSize])
	// buf[44:48] is alignment padding, left zero.
	binary.LittleEndian.PutUint64(buf[48:56], h.FrameTablePtr)

	return buf
}

func decodeFileHeader(buf []byte) (FileHeader, error) {
	if len(buf) < headerSize {
		return FileHeader{}, errors.Wrapf(splverrors.ErrInvalidInput, "header too short: got %d bytes, want %d", len(buf), headerSize)
	}

	magic := binary.LittleEndian.Uint32(buf[0:4])
	if magic != MagicWord {
		return FileHeader{}, errors.Wrapf(splverrors.ErrInvalidInput, "bad magic word: got %#x, want %#x", magic, MagicWord)
	}

	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != Version {
		return FileHeader{}, errors.Wrapf(splverrors.ErrInvalidInput, "unsupported version: got %#x, want %#x", version, Version)
	}

	h := FileHeader{
		Width:          binary.LittleEndian.Uint32(buf[8:12]),
		Height:         binary.LittleEndian.Uint32(buf[12:16]),
		Depth:          binary.LittleEndian.Uint32(buf[16:20]),
		Framerate:      math.Float32frombits(binary.LittleEndian.Uint32(buf[20:24])),
		FrameCount:     binary.LittleEndian.Uint32(buf[24:28]),
		Duration:       math.Float32frombits(binary.LittleEndian.Uint32(buf[28:32])),
		EncodingParams: decodeEncodingParams(buf[32 : 32+encodingParamsSize]),
		FrameTablePtr:  binary.LittleEndian.Uint64(buf[48:56]),
	}

	if h.Width == 0 || h.Height == 0 || h.Depth == 0 {
		return FileHeader{}, errors.Wrap(splverrors.ErrInvalidInput, "header has a zero dimension")
	}

	return h, nil
}

// frameTableEntrySize is the on-disk size of a single frame table entry.
const frameTableEntrySize = 8

// encodeFrameTableEntry packs an encoding type and absolute byte offset
// into a single uint64: the top byte is the encoding type, the low 56
// bits are the offset.
func encodeFrameTableEntry(typ FrameEncodingType, offset uint64) uint64 {
	return uint64(typ)<<56 | (offset & (1<<56 - 1))
}

func decodeFrameTableEntry(entry uint64) (FrameEncodingType, uint64) {
	return FrameEncodingType(entry >> 56), entry & (1<<56 - 1)
}
