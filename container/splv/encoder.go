/*
NAME
  encoder.go

DESCRIPTION
  encoder.go implements the sequential .splv frame encoder: GOP-based
  I/P frame classification, the per-frame map bitmap plus brick
  bitstream, whole-frame range coding, and frame table accumulation.

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
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/realtime"
	"github.com/pkg/errors"

	splvcodec "github.com/spatialstudio/splv/codec/splv"
	"github.com/spatialstudio/splv/codec/splv/rangecoder"
	"github.com/spatialstudio/splv/internal/buffer"
	"github.com/spatialstudio/splv/splverrors"
)

// Option configures an Encoder at construction time.
type Option func(*Encoder) error

// WithRealTime attaches a realtime.RealTime clock. When one is attached,
// the encoder logs each frame's encode latency at Debug level; the
// latency is measured with time.Now, and the clock's own time is not
// read. It never affects the encoded bitstream.
func WithRealTime(rt *realtime.RealTime) Option {
	return func(e *Encoder) error {
		e.realTime = rt
		return nil
	}
}

// Encoder writes a sequence of frames to a .splv file in order, one at
// a time. It must be closed with Finish (success) or Abort (failure).
type Encoder struct {
	dst io.WriteSeeker
	log logging.Logger

	widthMap, heightMap, depthMap uint32 // brick-grid dimensions
	framerate                     float32
	params                        EncodingParams

	frameCount uint32
	frameTable []uint64

	frameWriter *buffer.Writer

	lastFrame *splvcodec.Frame

	realTime *realtime.RealTime
}

// NewEncoder returns an Encoder that writes a .splv stream to dst. width,
// height and depth are in voxels and must each be a positive multiple of
// splvcodec.BrickSize.
func NewEncoder(dst io.WriteSeeker, width, height, depth uint32, framerate float32, params EncodingParams, log logging.Logger, options ...Option) (*Encoder, error) {
	if width == 0 || height == 0 || depth == 0 {
		return nil, errors.Wrap(splverrors.ErrInvalidArguments, "volume dimensions must be positive")
	}
	if width%splvcodec.BrickSize != 0 || height%splvcodec.BrickSize != 0 || depth%splvcodec.BrickSize != 0 {
		return nil, errors.Wrapf(splverrors.ErrInvalidArguments, "volume dimensions must be a multiple of %d", splvcodec.BrickSize)
	}
	if framerate <= 0 {
		return nil, errors.Wrap(splverrors.ErrInvalidArguments, "framerate must be positive")
	}
	if err := params.Validate(); err != nil {
		return nil, errors.Wrap(err, "validating encoding params")
	}

	e := &Encoder{
		dst:         dst,
		log:         log,
		widthMap:    width / splvcodec.BrickSize,
		heightMap:   height / splvcodec.BrickSize,
		depthMap:    depth / splvcodec.BrickSize,
		framerate:   framerate,
		params:      params,
		frameWriter: buffer.NewWriter(0),
	}

	for _, option := range options {
		if err := option(e); err != nil {
			return nil, errors.Wrap(err, "applying encoder option")
		}
	}
	log.Debug("encoder options applied")

	if _, err := dst.Write(make([]byte, headerSize)); err != nil {
		return nil, errors.Wrap(err, "writing placeholder header")
	}

	log.Info("encoder created", "width", width, "height", height, "depth", depth, "framerate", framerate, "gopSize", params.GOPSize)

	return e, nil
}

// EncodeFrame encodes frame as the next frame in sequence, writing its
// range-coded payload immediately to dst. Frame k (0-indexed) is an
// I-frame iff k % GOPSize == 0; every other frame is predicted against
// the most recently encoded frame.
//
// canFree reports whether the frame just passed in can now be released
// by the caller: it is true iff the next frame will be encoded as an
// I-frame, meaning nothing will predict against this one.
func (e *Encoder) EncodeFrame(frame *splvcodec.Frame) (canFree bool, err error) {
	if frame.Width != e.widthMap || frame.Height != e.heightMap || frame.Depth != e.depthMap {
		return false, errors.Wrap(splverrors.ErrInvalidArguments, "frame dimensions must match those given to NewEncoder")
	}

	start := time.Now()

	isIFrame := e.frameCount%e.params.GOPSize == 0

	e.frameWriter.Reset()

	mapLen := e.widthMap * e.heightMap * e.depthMap
	mapBitmapWords := (mapLen + 31) / 32
	mapBitmap := make([]uint32, mapBitmapWords)

	type orderedBrick struct {
		x, y, z uint32
		brick   *splvcodec.Brick
	}
	ordered := make([]orderedBrick, 0, mapLen)

	// Bricks MUST be written in this exact nested order (x outermost, z
	// innermost); the decoder reads them back assuming the same order.
	for x := uint32(0); x < e.widthMap; x++ {
		for y := uint32(0); y < e.heightMap; y++ {
			for z := uint32(0); z < e.depthMap; z++ {
				writeIdx := x + e.widthMap*(y+e.heightMap*z)

				brick := frame.GetBrick(x, y, z)
				if brick != nil {
					mapBitmap[writeIdx/32] |= 1 << (writeIdx % 32)
					ordered = append(ordered, orderedBrick{x, y, z, brick})
				}
			}
		}
	}

	if len(ordered) != len(frame.Bricks) {
		return false, errors.Wrap(splverrors.ErrInternal, "ordered brick count does not match frame brick count")
	}

	numBricksOrderedBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(numBricksOrderedBytes, uint32(len(ordered)))
	if err := e.frameWriter.Write(numBricksOrderedBytes); err != nil {
		return false, errors.Wrap(err, "writing ordered brick count")
	}

	mapBitmapBytes := make([]byte, mapBitmapWords*4)
	for i, w := range mapBitmap {
		binary.LittleEndian.PutUint32(mapBitmapBytes[i*4:], w)
	}
	if err := e.frameWriter.Write(mapBitmapBytes); err != nil {
		return false, errors.Wrap(err, "writing map bitmap")
	}

	encodeAsIntra := isIFrame || e.lastFrame == nil

	for _, ob := range ordered {
		var err error
		if encodeAsIntra {
			err = ob.brick.EncodeIntra(e.frameWriter)
		} else {
			err = ob.brick.EncodePredictive(ob.x, ob.y, ob.z, e.frameWriter, e.lastFrame)
		}
		if err != nil {
			return false, errors.Wrap(err, "encoding brick")
		}
	}

	framePtr, err := e.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return false, errors.Wrap(err, "getting output write position")
	}

	frameType := FrameEncodingI
	if !encodeAsIntra {
		frameType = FrameEncodingP
	}
	e.frameTable = append(e.frameTable, encodeFrameTableEntry(frameType, uint64(framePtr)))

	encoded, err := rangecoder.Encode(e.frameWriter.Bytes())
	if err != nil {
		return false, errors.Wrap(err, "range coding frame")
	}

	if _, err := e.dst.Write(encoded); err != nil {
		return false, errors.Wrap(err, "writing encoded frame")
	}

	e.frameCount++
	e.lastFrame = frame.Clone()

	if e.realTime != nil {
		e.log.Debug("encoded frame", "frame", e.frameCount-1, "type", frameType, "numBricks", len(ordered), "elapsed", time.Since(start))
	}

	canFree = e.frameCount%e.params.GOPSize == 0
	return canFree, nil
}

// Finish writes the frame table and final header, completing the file.
// The Encoder must not be used again afterwards.
func (e *Encoder) Finish() error {
	frameTablePtr, err := e.dst.Seek(0, io.SeekCurrent)
	if err != nil {
		return errors.Wrap(err, "getting frame table write position")
	}

	tableBytes := make([]byte, len(e.frameTable)*frameTableEntrySize)
	for i, entry := range e.frameTable {
		binary.LittleEndian.PutUint64(tableBytes[i*frameTableEntrySize:], entry)
	}
	if _, err := e.dst.Write(tableBytes); err != nil {
		return errors.Wrap(err, "writing frame table")
	}

	header := FileHeader{
		Width:          e.widthMap * splvcodec.BrickSize,
		Height:         e.heightMap * splvcodec.BrickSize,
		Depth:          e.depthMap * splvcodec.BrickSize,
		Framerate:      e.framerate,
		FrameCount:     e.frameCount,
		Duration:       float32(e.frameCount) / e.framerate,
		EncodingParams: e.params,
		FrameTablePtr:  uint64(frameTablePtr),
	}

	if _, err := e.dst.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "seeking to start of output")
	}
	if _, err := e.dst.Write(header.encode()); err != nil {
		return errors.Wrap(err, "writing final header")
	}

	e.log.Info("encoding finished", "frameCount", e.frameCount)

	return nil
}

// Abort discards any buffered state. It does not attempt to leave dst in
// a valid, readable .splv state; callers that need that should truncate
// or remove the destination themselves.
func (e *Encoder) Abort() {
	e.log.Warning("encoding aborted", "framesEncoded", e.frameCount)
	e.frameTable = nil
	e.frameWriter = nil
	e.lastFrame = nil
}
