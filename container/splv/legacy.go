/*
NAME
  legacy.go

DESCRIPTION
  legacy.go implements just enough of the previous .splv header format
  to support Upgrade: reading a legacy file's metadata and frames so
  they can be re-encoded in the current format.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package splv

import (
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	splvcodec "github.com/spatialstudio/splv/codec/splv"
	"github.com/spatialstudio/splv/codec/splv/rangecoder"
	"github.com/spatialstudio/splv/splverrors"
)

// legacyHeaderSize is sizeof(SPLVfileHeaderLegacy): identical to the
// current FileHeader except encodingParams has no motionVectors byte,
// which happens to remove the padding before frameTablePtr too (8 bytes
// of params instead of 12, landing frameTablePtr on an 8-byte boundary
// with no gap).
const legacyHeaderSize = 48

// legacyDecoder reads the previous on-disk .splv format. The brick and
// frame bitstream itself is unchanged between versions; only the header
// shape differs.
type legacyDecoder struct {
	src io.ReadSeeker
	log logging.Logger

	width, height, depth          uint32
	widthMap, heightMap, depthMap uint32
	framerate                     float32
	frameCount                    uint32
	params                        EncodingParams

	frameTable []uint64
	curFrame   int
	lastFrame  *splvcodec.Frame
}

func newLegacyDecoder(path string, log logging.Logger) (*legacyDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(splverrors.ErrFileOpen, err.Error())
	}

	headerBytes := make([]byte, legacyHeaderSize)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, errors.Wrap(splverrors.ErrFileRead, "reading legacy file header")
	}

	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicWord {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "legacy file has mismatched magic word")
	}

	width := binary.LittleEndian.Uint32(headerBytes[8:12])
	height := binary.LittleEndian.Uint32(headerBytes[12:16])
	depth := binary.LittleEndian.Uint32(headerBytes[16:20])
	framerate := math.Float32frombits(binary.LittleEndian.Uint32(headerBytes[20:24]))
	frameCount := binary.LittleEndian.Uint32(headerBytes[24:28])
	gopSize := binary.LittleEndian.Uint32(headerBytes[32:36])
	maxBrickGroupSize := binary.LittleEndian.Uint32(headerBytes[36:40])
	frameTablePtr := binary.LittleEndian.Uint64(headerBytes[40:48])

	if width == 0 || height == 0 || depth == 0 {
		return nil, errors.Wrap(splverrors.ErrInvalidInput, "legacy file has a zero dimension")
	}

	if _, err := f.Seek(int64(frameTablePtr), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking to legacy frame table")
	}

	tableBytes := make([]byte, int(frameCount)*frameTableEntrySize)
	if _, err := io.ReadFull(f, tableBytes); err != nil {
		return nil, errors.Wrap(splverrors.ErrFileRead, "reading legacy frame table")
	}
	frameTable := make([]uint64, frameCount)
	for i := range frameTable {
		frameTable[i] = binary.LittleEndian.Uint64(tableBytes[i*frameTableEntrySize:])
	}

	return &legacyDecoder{
		src:        f,
		log:        log,
		width:      width,
		height:     height,
		depth:      depth,
		widthMap:   width / splvcodec.BrickSize,
		heightMap:  height / splvcodec.BrickSize,
		depthMap:   depth / splvcodec.BrickSize,
		framerate:  framerate,
		frameCount: frameCount,
		params: EncodingParams{
			GOPSize:           gopSize,
			MaxBrickGroupSize: maxBrickGroupSize,
		},
		frameTable: frameTable,
	}, nil
}

func (d *legacyDecoder) decodeNext() (*splvcodec.Frame, error) {
	if uint32(d.curFrame) >= d.frameCount {
		return nil, errors.Wrap(splverrors.ErrInvalidArguments, "no more frames to decode")
	}

	_, framePtr := decodeFrameTableEntry(d.frameTable[d.curFrame])

	var frameEnd int64
	if d.curFrame+1 < len(d.frameTable) {
		_, nextPtr := decodeFrameTableEntry(d.frameTable[d.curFrame+1])
		frameEnd = int64(nextPtr)
	} else {
		end, err := d.src.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, errors.Wrap(err, "seeking to end of legacy stream")
		}
		frameEnd = end
	}

	if _, err := d.src.Seek(int64(framePtr), io.SeekStart); err != nil {
		return nil, errors.Wrap(err, "seeking to legacy frame")
	}

	compressed := make([]byte, frameEnd-int64(framePtr))
	if _, err := io.ReadFull(d.src, compressed); err != nil {
		return nil, errors.Wrap(splverrors.ErrFileRead, "reading compressed legacy frame")
	}

	decompressed, err := rangecoder.Decode(compressed)
	if err != nil {
		return nil, errors.Wrap(err, "range decoding legacy frame")
	}

	frame, err := decodeFramePayload(d.widthMap, d.heightMap, d.depthMap, decompressed, d.lastFrame)
	if err != nil {
		return nil, err
	}

	d.lastFrame = frame
	d.curFrame++
	return frame, nil
}
