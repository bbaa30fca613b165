/*
NAME
  decoder.go

DESCRIPTION
  decoder.go implements random-access .splv decoding: header validation,
  frame table parsing, per-frame dependency queries, and single-frame
  decode given the frame(s) it depends on.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package splv

import (
	"bytes"
	"encoding/binary"
	"io"
	"os"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	splvcodec "github.com/spatialstudio/splv/codec/splv"
	"github.com/spatialstudio/splv/codec/splv/rangecoder"
	"github.com/spatialstudio/splv/internal/buffer"
	"github.com/spatialstudio/splv/splverrors"
)

// FrameDependency pairs a previously decoded frame with its index, for
// supplying the lookback a predictive frame needs to decode.
type FrameDependency struct {
	Index int
	Frame *splvcodec.Frame
}

// Decoder provides random-access decoding of a .splv stream: callers
// pick any frame index, learn what other frames it depends on via
// FrameDependencies, and supply those already-decoded frames to
// DecodeFrame.
type Decoder struct {
	src io.ReadSeeker
	log logging.Logger

	Width, Height, Depth          uint32
	widthMap, heightMap, depthMap uint32
	Framerate                     float32
	FrameCount                    uint32
	Duration                      float32
	Params                        EncodingParams

	frameTable []uint64
}

// NewDecoderFromFile opens path and prepares it for random-access
// decoding.
func NewDecoderFromFile(path string, log logging.Logger) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(splverrors.ErrFileOpen, err.Error())
	}
	return newDecoder(f, log)
}

// NewDecoderFromMem prepares an in-memory .splv buffer for random-access
// decoding.
func NewDecoderFromMem(buf []byte, log logging.Logger) (*Decoder, error) {
	return newDecoder(bytes.NewReader(buf), log)
}

func newDecoder(src io.ReadSeeker, log logging.Logger) (*Decoder, error) {
	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(src, headerBytes); err != nil {
		return nil, errors.Wrap(splverrors.ErrFileRead, "reading file header")
	}

	header, err := decodeFileHeader(headerBytes)
	if err != nil {
		return nil, errors.Wrap(err, "validating file header")
	}

	if header.Width%splvcodec.BrickSize != 0 || header.Height%splvcodec.BrickSize != 0 || header.Depth%splvcodec.BrickSize != 0 {
		return nil, errors.Wrapf(splverrors.ErrInvalidInput, "dimensions must be a multiple of %d", splvcodec.BrickSize)
	}
	if header.Framerate <= 0 {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "framerate must be positive")
	}
	if header.FrameCount == 0 {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "frame count must be positive")
	}

	expectedDuration := float32(header.FrameCount) / header.Framerate
	if abs32(header.Duration-expectedDuration) > 0.1 {
		log.Warning("duration did not match framerate and frameCount - potentially invalid SPLV file")
		header.Duration = expectedDuration
	}

	if _, err := src.Seek(int64(header.FrameTablePtr), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking to frame table")
	}

	tableBytes := make([]byte, int(header.FrameCount)*frameTableEntrySize)
	if _, err := io.ReadFull(src, tableBytes); err != nil {
		return nil, errors.Wrap(splverrors.ErrFileRead, "reading frame table")
	}

	frameTable := make([]uint64, header.FrameCount)
	for i := range frameTable {
		frameTable[i] = binary.LittleEndian.Uint64(tableBytes[i*frameTableEntrySize:])
	}

	d := &Decoder{
		src:        src,
		log:        log,
		Width:      header.Width,
		Height:     header.Height,
		Depth:      header.Depth,
		widthMap:   header.Width / splvcodec.BrickSize,
		heightMap:  header.Height / splvcodec.BrickSize,
		depthMap:   header.Depth / splvcodec.BrickSize,
		Framerate:  header.Framerate,
		FrameCount: header.FrameCount,
		Duration:   header.Duration,
		Params:     header.EncodingParams,
		frameTable: frameTable,
	}

	log.Info("decoder created", "frameCount", d.FrameCount, "width", d.Width, "height", d.Height, "depth", d.Depth)

	return d, nil
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// encodingTypeAt returns the encoding type of frame idx.
func (d *Decoder) encodingTypeAt(idx int) FrameEncodingType {
	typ, _ := decodeFrameTableEntry(d.frameTable[idx])
	return typ
}

// FrameDependencies returns the indices of the frames that must be
// decoded and supplied to DecodeFrame before frame idx can be decoded.
// An I-frame has no dependencies. A P-frame depends directly on frame
// idx-1; if recursive is true, the full dependency chain back to (and
// including) the preceding I-frame is returned instead.
func (d *Decoder) FrameDependencies(idx int, recursive bool) ([]int, error) {
	if idx < 0 || idx >= len(d.frameTable) {
		return nil, errors.Wrap(splverrors.ErrInvalidArguments, "frame index out of range")
	}

	switch d.encodingTypeAt(idx) {
	case FrameEncodingI:
		return nil, nil

	case FrameEncodingP:
		if idx == 0 {
			return nil, errors.Wrap(splverrors.ErrInvalidInput, "first frame cannot be a p-frame")
		}
		if !recursive {
			return []int{idx - 1}, nil
		}

		prevI := d.PrevIFrameIdx(idx)
		if prevI < 0 {
			return nil, errors.Wrap(splverrors.ErrInvalidInput, "first frame cannot be a p-frame")
		}

		deps := make([]int, 0, idx-prevI)
		for i := prevI; i < idx; i++ {
			deps = append(deps, i)
		}
		return deps, nil

	default:
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "unknown frame encoding type")
	}
}

// PrevIFrameIdx returns the index of the nearest I-frame at or before
// idx, or -1 if none exists (which indicates a malformed file, since a
// valid file's first frame is always an I-frame).
func (d *Decoder) PrevIFrameIdx(idx int) int {
	for i := idx; i >= 0; i-- {
		if d.encodingTypeAt(i) == FrameEncodingI {
			return i
		}
	}
	return -1
}

// NextIFrameIdx returns the index of the nearest I-frame at or after
// idx, or -1 if none exists.
func (d *Decoder) NextIFrameIdx(idx int) int {
	for i := idx; i < len(d.frameTable); i++ {
		if d.encodingTypeAt(i) == FrameEncodingI {
			return i
		}
	}
	return -1
}

// DecodeFrame decodes frame idx. If it is a P-frame, dependencies must
// include an entry for idx-1 (the caller is expected to have already
// decoded it, e.g. per FrameDependencies).
func (d *Decoder) DecodeFrame(idx int, dependencies []FrameDependency) (*splvcodec.Frame, error) {
	if idx < 0 || idx >= len(d.frameTable) {
		return nil, errors.Wrap(splverrors.ErrInvalidArguments, "frame index out of range")
	}

	typ, framePtr := decodeFrameTableEntry(d.frameTable[idx])

	var lastFrame *splvcodec.Frame
	switch typ {
	case FrameEncodingI:
		// no dependency needed
	case FrameEncodingP:
		if idx == 0 {
			return nil, errors.Wrap(splverrors.ErrInvalidInput, "first frame cannot be a p-frame")
		}
		for _, dep := range dependencies {
			if dep.Index == idx-1 {
				lastFrame = dep.Frame
				break
			}
		}
		if lastFrame == nil {
			return nil, errors.Wrap(splverrors.ErrRuntime, "necessary dependencies were not supplied for decoding frame")
		}
	default:
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "unknown frame encoding type")
	}

	var frameEnd int64
	if idx+1 < len(d.frameTable) {
		_, nextPtr := decodeFrameTableEntry(d.frameTable[idx+1])
		frameEnd = int64(nextPtr)
	} else {
		end, err := d.src.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, errors.Wrap(err, "seeking to end of stream")
		}
		frameEnd = end
	}

	if _, err := d.src.Seek(int64(framePtr), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking to frame")
	}

	compressed := make([]byte, frameEnd-int64(framePtr))
	if _, err := io.ReadFull(d.src, compressed); err != nil {
		return nil, errors.Wrap(splverrors.ErrFileRead, "reading compressed frame")
	}

	decompressed, err := rangecoder.Decode(compressed)
	if err != nil {
		return nil, errors.Wrap(err, "range decoding frame")
	}

	return decodeFramePayload(d.widthMap, d.heightMap, d.depthMap, decompressed, lastFrame)
}

func decodeFramePayload(widthMap, heightMap, depthMap uint32, payload []byte, lastFrame *splvcodec.Frame) (*splvcodec.Frame, error) {
	if len(payload) < 4 {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "frame payload too short")
	}

	numBricks := binary.LittleEndian.Uint32(payload[0:4])
	pos := 4

	mapLen := widthMap * heightMap * depthMap
	mapBitmapWords := (mapLen + 31) / 32
	mapBitmapBytes := int(mapBitmapWords) * 4
	if pos+mapBitmapBytes > len(payload) {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "frame payload truncated in map bitmap")
	}

	mapBitmap := make([]uint32, mapBitmapWords)
	for i := range mapBitmap {
		mapBitmap[i] = binary.LittleEndian.Uint32(payload[pos+i*4:])
	}
	pos += mapBitmapBytes

	frame, err := splvcodec.NewFrame(widthMap, heightMap, depthMap)
	if err != nil {
		return nil, err
	}

	type coord struct{ x, y, z uint32 }
	positions := make([]coord, 0, numBricks)

	for x := uint32(0); x < widthMap; x++ {
		for y := uint32(0); y < heightMap; y++ {
			for z := uint32(0); z < depthMap; z++ {
				idx := x + widthMap*(y+heightMap*z)
				if mapBitmap[idx/32]&(1<<(idx%32)) != 0 {
					positions = append(positions, coord{x, y, z})
				}
			}
		}
	}

	if uint32(len(positions)) != numBricks {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "map bitmap occupancy does not match brick count")
	}

	r := buffer.NewReader(payload[pos:])
	for _, c := range positions {
		brick, err := splvcodec.DecodeBrick(r, c.x, c.y, c.z, lastFrame)
		if err != nil {
			return nil, errors.Wrap(err, "decoding brick")
		}
		frame.PushNextBrick(c.x, c.y, c.z, *brick)
	}

	return frame, nil
}
