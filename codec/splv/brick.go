/*
NAME
  brick.go

DESCRIPTION
  brick.go implements the per-brick codec: an 8x8x8 cube of voxels coded
  either intra (self-contained, RLE bitmap + median-offset colors) or
  predictively against the same-position brick of the previous frame
  (geometry diff bitstream + color deltas).

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package splv implements the core SPLV brick and frame codec: the
// sparse brick-grid frame model (§3 of the format spec) and the
// intra/predictive per-brick bitstream (§4.2).
package splv

import (
	"encoding/binary"
	"sort"

	"github.com/pkg/errors"

	"github.com/spatialstudio/splv/internal/buffer"
	"github.com/spatialstudio/splv/internal/morton"
	"github.com/spatialstudio/splv/splverrors"
)

// Brick dimension constants. A brick is a BrickSize^3 cube of voxels.
const (
	BrickSizeLog2   = 3
	BrickSize       = 1 << BrickSizeLog2 // 8
	BrickSize2Log2  = 2 * BrickSizeLog2
	BrickLen        = BrickSize * BrickSize * BrickSize // 512
	bitmapWords     = BrickLen / 32                      // 16

	// BrickIdxEmpty marks a Frame.Map slot as unoccupied.
	BrickIdxEmpty = ^uint32(0)
)

// brickGeomDiffBits is the number of bits used to encode a single
// geometry diff: one direction bit plus 3 bits each for x, y, z.
const brickGeomDiffBits = 1 + 3*BrickSizeLog2

type brickEncodingType uint8

const (
	brickEncodingIntra brickEncodingType = 0
	brickEncodingPred  brickEncodingType = 1
)

// Brick is a BrickSize^3 cube of voxels: a 512-bit occupancy bitmap and a
// 512-entry packed RGBA color array. Color at index i is only defined
// when bit i of Bitmap is set.
type Brick struct {
	Bitmap [bitmapWords]uint32
	Color  [BrickLen]uint32 // packed (r<<24)|(g<<16)|(b<<8)|255
}

func voxelIdx(x, y, z uint32) uint32 {
	return x | (y << BrickSizeLog2) | (z << BrickSize2Log2)
}

// Clear resets the occupancy bitmap; colors are left untouched (they are
// undefined at unoccupied positions regardless).
func (b *Brick) Clear() {
	for i := range b.Bitmap {
		b.Bitmap[i] = 0
	}
}

// SetVoxelFilled marks the voxel at (x, y, z) occupied with the given
// color.
func (b *Brick) SetVoxelFilled(x, y, z uint32, r, g, bl uint8) {
	idx := voxelIdx(x, y, z)
	b.Bitmap[idx>>5] |= 1 << (idx & 31)
	b.Color[idx] = uint32(r)<<24 | uint32(g)<<16 | uint32(bl)<<8 | 255
}

// SetVoxelEmpty marks the voxel at (x, y, z) unoccupied.
func (b *Brick) SetVoxelEmpty(x, y, z uint32) {
	idx := voxelIdx(x, y, z)
	b.Bitmap[idx>>5] &^= 1 << (idx & 31)
}

// GetVoxel reports whether the voxel at (x, y, z) is occupied.
func (b *Brick) GetVoxel(x, y, z uint32) bool {
	idx := voxelIdx(x, y, z)
	return b.Bitmap[idx>>5]&(1<<(idx&31)) != 0
}

// GetVoxelColor returns the color at (x, y, z) and whether it is
// occupied. The color is undefined (but still returned, as zero or
// stale data) when the voxel is unoccupied.
func (b *Brick) GetVoxelColor(x, y, z uint32) (r, g, bl uint8, filled bool) {
	idx := voxelIdx(x, y, z)
	c := b.Color[idx]
	r = uint8(c >> 24)
	g = uint8(c >> 16)
	bl = uint8(c >> 8)
	filled = b.Bitmap[idx>>5]&(1<<(idx&31)) != 0
	return r, g, bl, filled
}

// NumVoxels returns the number of occupied voxels in the brick.
func (b *Brick) NumVoxels() int {
	n := 0
	for _, word := range b.Bitmap {
		n += popcount32(word)
	}
	return n
}

func popcount32(x uint32) int {
	n := 0
	for x != 0 {
		x &= x - 1
		n++
	}
	return n
}

// EncodeIntra appends the brick's self-contained (intra) encoding to w:
// a voxel count, an RLE occupancy bitmap in Morton order, a
// channel-wise median color, and per-voxel color deltas from the
// median.
func (b *Brick) EncodeIntra(w *buffer.Writer) error {
	var bitmapBytes [BrickLen]byte // 1 byte per voxel, worst case
	numBitmapBytes := 0

	var colorBytes [BrickLen * 3]byte
	numColorBytes := 0

	var reds, greens, blues [BrickLen]uint8
	voxelCount := 0

	firstFilled := b.Bitmap[0]&1 != 0
	curRun := byte(0x00)
	if firstFilled {
		curRun = 0x80
	}

	for i := 0; i < BrickLen; i++ {
		idx := morton.ToIdx[i]
		filled := b.Bitmap[idx>>5]&(1<<(idx&31)) != 0

		if filled != (curRun&0x80 != 0) || curRun&0x7f == 127 {
			bitmapBytes[numBitmapBytes] = curRun
			numBitmapBytes++

			if filled {
				curRun = 0x80
			} else {
				curRun = 0x00
			}
		}
		curRun++

		if filled {
			c := b.Color[idx]
			r := uint8(c >> 24)
			g := uint8(c >> 16)
			bl := uint8(c >> 8)

			colorBytes[numColorBytes] = r
			colorBytes[numColorBytes+1] = g
			colorBytes[numColorBytes+2] = bl
			numColorBytes += 3

			reds[voxelCount] = r
			greens[voxelCount] = g
			blues[voxelCount] = bl
			voxelCount++
		}
	}
	bitmapBytes[numBitmapBytes] = curRun
	numBitmapBytes++

	redSamples := reds[:voxelCount]
	greenSamples := greens[:voxelCount]
	blueSamples := blues[:voxelCount]
	sort.Slice(redSamples, func(i, j int) bool { return redSamples[i] < redSamples[j] })
	sort.Slice(greenSamples, func(i, j int) bool { return greenSamples[i] < greenSamples[j] })
	sort.Slice(blueSamples, func(i, j int) bool { return blueSamples[i] < blueSamples[j] })

	var median [3]byte
	if voxelCount > 0 {
		median[0] = redSamples[voxelCount/2]
		median[1] = greenSamples[voxelCount/2]
		median[2] = blueSamples[voxelCount/2]
	}

	for i := 0; i < voxelCount; i++ {
		colorBytes[i*3+0] -= median[0]
		colorBytes[i*3+1] -= median[1]
		colorBytes[i*3+2] -= median[2]
	}

	if err := w.Put(byte(brickEncodingIntra)); err != nil {
		return errors.Wrap(err, "writing brick encoding type")
	}

	voxelCountBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(voxelCountBytes, uint32(voxelCount))
	if err := w.Write(voxelCountBytes); err != nil {
		return errors.Wrap(err, "writing voxel count")
	}
	if err := w.Write(bitmapBytes[:numBitmapBytes]); err != nil {
		return errors.Wrap(err, "writing RLE bitmap")
	}
	if err := w.Write(median[:]); err != nil {
		return errors.Wrap(err, "writing median color")
	}
	if err := w.Write(colorBytes[:numColorBytes]); err != nil {
		return errors.Wrap(err, "writing color deltas")
	}

	return nil
}

// EncodePredictive appends the brick's predictive encoding relative to
// the same-position brick of prev, falling back to EncodeIntra if there
// is no previous brick at (xMap, yMap, zMap) or if the geometry has
// changed too much to predict well.
func (b *Brick) EncodePredictive(xMap, yMap, zMap uint32, w *buffer.Writer, prev *Frame) error {
	lastMapIdx := prev.mapIdx(xMap, yMap, zMap)
	lastBrickIdx := prev.Map[lastMapIdx]
	if lastBrickIdx == BrickIdxEmpty {
		return b.EncodeIntra(w)
	}
	lastBrick := &prev.Bricks[lastBrickIdx]

	numGeomDiff := 0
	voxelCount := 0
	for z := uint32(0); z < BrickSize; z++ {
		for y := uint32(0); y < BrickSize; y++ {
			for x := uint32(0); x < BrickSize; x++ {
				filled := b.GetVoxel(x, y, z)
				wasFilled := lastBrick.GetVoxel(x, y, z)
				if filled != wasFilled {
					numGeomDiff++
				}
				if filled {
					voxelCount++
				}
			}
		}
	}

	// Exact reclassification rule per the format's bitstream contract;
	// must not be tuned without breaking compatibility with existing
	// files.
	if numGeomDiff >= voxelCount/2 {
		return b.EncodeIntra(w)
	}

	geomDiffBytes := make([]byte, (brickGeomDiffBits*BrickLen+7)/8)
	geomDiffBits := 0

	colorBytes := make([]byte, 0, BrickLen*3)

	for z := uint32(0); z < BrickSize; z++ {
		for y := uint32(0); y < BrickSize; y++ {
			for x := uint32(0); x < BrickSize; x++ {
				filled := b.GetVoxel(x, y, z)
				wasFilled := lastBrick.GetVoxel(x, y, z)

				if filled {
					r, g, bl, _ := b.GetVoxelColor(x, y, z)

					var er, eg, eb uint8
					if wasFilled {
						lr, lg, lb, _ := lastBrick.GetVoxelColor(x, y, z)
						er, eg, eb = r-lr, g-lg, bl-lb
					} else {
						er, eg, eb = r, g, bl
						encodeGeomDiff(true, x, y, z, geomDiffBytes, &geomDiffBits)
					}

					colorBytes = append(colorBytes, er, eg, eb)
				} else if wasFilled {
					encodeGeomDiff(false, x, y, z, geomDiffBytes, &geomDiffBits)
				}
			}
		}
	}

	if err := w.Put(byte(brickEncodingPred)); err != nil {
		return errors.Wrap(err, "writing brick encoding type")
	}

	numGeomDiffBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(numGeomDiffBytes, uint32(numGeomDiff))
	if err := w.Write(numGeomDiffBytes); err != nil {
		return errors.Wrap(err, "writing geom diff count")
	}
	if err := w.Write(geomDiffBytes[:(geomDiffBits+7)/8]); err != nil {
		return errors.Wrap(err, "writing geom diff bitstream")
	}
	if err := w.Write(colorBytes); err != nil {
		return errors.Wrap(err, "writing predictive color bytes")
	}

	return nil
}

// DecodeBrick reads one brick-encoded payload from r, reconstructing it
// against the same-position brick of prev when the payload is
// predictive.
func DecodeBrick(r *buffer.Reader, xMap, yMap, zMap uint32, prev *Frame) (*Brick, error) {
	typeByte, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "reading brick encoding type")
	}

	switch brickEncodingType(typeByte) {
	case brickEncodingIntra:
		return decodeBrickIntra(r)
	case brickEncodingPred:
		return decodeBrickPredictive(r, xMap, yMap, zMap, prev)
	default:
		return nil, errors.Wrapf(splverrors.ErrInvalidInput, "unknown brick encoding type %d", typeByte)
	}
}

func decodeBrickIntra(r *buffer.Reader) (*Brick, error) {
	countBytes, err := r.Read(4)
	if err != nil {
		return nil, errors.Wrap(err, "reading voxel count")
	}
	numVoxels := binary.LittleEndian.Uint32(countBytes)

	out := &Brick{}

	i := uint32(0)
	for i < BrickLen {
		b, err := r.ReadByte()
		if err != nil {
			return nil, errors.Wrap(err, "reading RLE bitmap byte")
		}

		if b&0x80 != 0 {
			run := b &^ 0x80
			for run > 0 {
				idx := morton.ToIdx[i]
				out.Bitmap[idx>>5] |= 1 << (idx & 31)
				i++
				run--
			}
		} else {
			i += uint32(b)
		}
	}

	if i != BrickLen {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "brick bitmap RLE decoded to the wrong voxel count")
	}

	median, err := r.Read(3)
	if err != nil {
		return nil, errors.Wrap(err, "reading median color")
	}

	readVoxels := uint32(0)
	for i := uint32(0); i < BrickLen; i++ {
		idx := morton.ToIdx[i]
		if out.Bitmap[idx>>5]&(1<<(idx&31)) == 0 {
			continue
		}

		rgb, err := r.Read(3)
		if err != nil {
			return nil, errors.Wrap(err, "reading color delta")
		}

		r8 := rgb[0] + median[0]
		g8 := rgb[1] + median[1]
		b8 := rgb[2] + median[2]
		out.Color[idx] = uint32(r8)<<24 | uint32(g8)<<16 | uint32(b8)<<8 | 255

		readVoxels++
	}

	if readVoxels != numVoxels {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "brick had incorrect number of voxels, possibly corrupted data")
	}

	return out, nil
}

func decodeBrickPredictive(r *buffer.Reader, xMap, yMap, zMap uint32, prev *Frame) (*Brick, error) {
	countBytes, err := r.Read(4)
	if err != nil {
		return nil, errors.Wrap(err, "reading geom diff count")
	}
	numGeomDiff := binary.LittleEndian.Uint32(countBytes)

	geomDiffBytes, err := r.Read((brickGeomDiffBits*int(numGeomDiff) + 7) / 8)
	if err != nil {
		return nil, errors.Wrap(err, "reading geom diff bitstream")
	}

	lastMapIdx := prev.mapIdx(xMap, yMap, zMap)
	lastBrickIdx := prev.Map[lastMapIdx]
	if lastBrickIdx == BrickIdxEmpty {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "predictive brick references an empty cell in the previous frame")
	}

	out := new(Brick)
	*out = prev.Bricks[lastBrickIdx]

	bitIdx := 0
	for i := uint32(0); i < numGeomDiff; i++ {
		add := geomDiffBytes[bitIdx/8]&(1<<(7-uint(bitIdx%8))) != 0
		bitIdx++

		x := decodeGeomDiffCoord(geomDiffBytes, &bitIdx)
		y := decodeGeomDiffCoord(geomDiffBytes, &bitIdx)
		z := decodeGeomDiffCoord(geomDiffBytes, &bitIdx)

		if add {
			out.SetVoxelFilled(uint32(x), uint32(y), uint32(z), 0, 0, 0)
		} else {
			out.SetVoxelEmpty(uint32(x), uint32(y), uint32(z))
		}
	}

	for z := uint32(0); z < BrickSize; z++ {
		for y := uint32(0); y < BrickSize; y++ {
			for x := uint32(0); x < BrickSize; x++ {
				idx := voxelIdx(x, y, z)
				if out.Bitmap[idx>>5]&(1<<(idx&31)) == 0 {
					continue
				}

				rgb, err := r.Read(3)
				if err != nil {
					return nil, errors.Wrap(err, "reading predictive color delta")
				}

				old := out.Color[idx]
				r8 := uint8(old>>24) + rgb[0]
				g8 := uint8(old>>16) + rgb[1]
				b8 := uint8(old>>8) + rgb[2]
				out.Color[idx] = uint32(r8)<<24 | uint32(g8)<<16 | uint32(b8)<<8 | 255
			}
		}
	}

	return out, nil
}

// encodeGeomDiff appends a single geometry-diff entry (direction bit
// then x, y, z each BrickSizeLog2 bits, low bit first) to buf at bit
// offset *bitIdx.
func encodeGeomDiff(add bool, x, y, z uint32, buf []byte, bitIdx *int) {
	putBit := func(bit uint32) {
		if bit != 0 {
			buf[*bitIdx/8] |= 1 << (7 - uint(*bitIdx%8))
		}
		*bitIdx++
	}

	if add {
		putBit(1)
	} else {
		putBit(0)
	}
	for i := 0; i < BrickSizeLog2; i++ {
		putBit((x >> uint(i)) & 1)
	}
	for i := 0; i < BrickSizeLog2; i++ {
		putBit((y >> uint(i)) & 1)
	}
	for i := 0; i < BrickSizeLog2; i++ {
		putBit((z >> uint(i)) & 1)
	}
}

// decodeGeomDiffCoord reads a single BrickSizeLog2-bit coordinate
// (low bit first) from buf at bit offset *bitIdx.
func decodeGeomDiffCoord(buf []byte, bitIdx *int) uint8 {
	var pos uint8
	for i := 0; i < BrickSizeLog2; i++ {
		bit := (buf[*bitIdx/8] >> (7 - uint(*bitIdx%8))) & 1
		pos |= bit << uint(i)
		*bitIdx++
	}
	return pos
}
