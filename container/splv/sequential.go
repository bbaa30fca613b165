/*
NAME
  sequential.go

DESCRIPTION
  sequential.go implements straight-through (non-random-access) decoding
  and the file-level operations built on it: Concat, Split, and Upgrade.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package splv

import (
	"fmt"
	"math"
	"os"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"

	splvcodec "github.com/spatialstudio/splv/codec/splv"
	"github.com/spatialstudio/splv/splverrors"
)

// sequentialDecoder decodes a .splv file frame by frame in order,
// tracking the previously decoded frame itself so callers never need to
// manage a dependency list: the reference implementation's decoder does
// this by ref-counting SPLVframeRef structs, which Go's garbage collector
// makes unnecessary here.
type sequentialDecoder struct {
	dec      *Decoder
	legacy   *legacyDecoder
	curFrame int
	lastFrame *splvcodec.Frame
}

func newSequentialDecoder(path string, log logging.Logger) (*sequentialDecoder, error) {
	dec, err := NewDecoderFromFile(path, log)
	if err != nil {
		return nil, err
	}
	return &sequentialDecoder{dec: dec}, nil
}

func newSequentialDecoderLegacy(path string, log logging.Logger) (*sequentialDecoder, error) {
	legacy, err := newLegacyDecoder(path, log)
	if err != nil {
		return nil, err
	}
	return &sequentialDecoder{legacy: legacy}, nil
}

func (s *sequentialDecoder) width() uint32 {
	if s.legacy != nil {
		return s.legacy.width
	}
	return s.dec.Width
}

func (s *sequentialDecoder) height() uint32 {
	if s.legacy != nil {
		return s.legacy.height
	}
	return s.dec.Height
}

func (s *sequentialDecoder) depth() uint32 {
	if s.legacy != nil {
		return s.legacy.depth
	}
	return s.dec.Depth
}

func (s *sequentialDecoder) framerate() float32 {
	if s.legacy != nil {
		return s.legacy.framerate
	}
	return s.dec.Framerate
}

func (s *sequentialDecoder) frameCount() uint32 {
	if s.legacy != nil {
		return s.legacy.frameCount
	}
	return s.dec.FrameCount
}

func (s *sequentialDecoder) params() EncodingParams {
	if s.legacy != nil {
		return s.legacy.params
	}
	return s.dec.Params
}

func (s *sequentialDecoder) decodeNext() (*splvcodec.Frame, error) {
	if s.legacy != nil {
		frame, err := s.legacy.decodeNext()
		if err != nil {
			return nil, err
		}
		s.curFrame++
		return frame, nil
	}

	var deps []FrameDependency
	if s.lastFrame != nil {
		deps = []FrameDependency{{Index: s.curFrame - 1, Frame: s.lastFrame}}
	}

	frame, err := s.dec.DecodeFrame(s.curFrame, deps)
	if err != nil {
		return nil, err
	}

	s.lastFrame = frame
	s.curFrame++
	return frame, nil
}

// Concat concatenates the .splv files at paths, in order, into a single
// new file at outPath. All inputs must share width, height and depth; a
// framerate mismatch is logged as a warning but does not abort the
// operation.
func Concat(paths []string, outPath string, log logging.Logger) error {
	if len(paths) == 0 {
		return errors.Wrap(splverrors.ErrInvalidArguments, "no input paths specified")
	}

	first, err := NewDecoderFromFile(paths[0], log)
	if err != nil {
		return err
	}
	width, height, depth := first.Width, first.Height, first.Depth
	framerate := first.Framerate
	params := first.Params

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(splverrors.ErrFileOpen, err.Error())
	}
	defer out.Close()

	enc, err := NewEncoder(out, width, height, depth, framerate, params, log)
	if err != nil {
		return err
	}

	for _, path := range paths {
		seq, err := newSequentialDecoder(path, log)
		if err != nil {
			enc.Abort()
			return err
		}

		if seq.width() != width || seq.height() != height || seq.depth() != depth {
			enc.Abort()
			return errors.Wrap(splverrors.ErrInvalidInput, "input files have mismatched dimensions")
		}
		if math.Abs(float64(seq.framerate()-framerate)) > 0.1 {
			log.Warning("framerate mismatch for concatenated files")
		}

		for i := uint32(0); i < seq.frameCount(); i++ {
			frame, err := seq.decodeNext()
			if err != nil {
				enc.Abort()
				return err
			}
			if _, err := enc.EncodeFrame(frame); err != nil {
				enc.Abort()
				return err
			}
		}
	}

	return enc.Finish()
}

// Split divides the .splv file at path into consecutive segments of
// approximately splitLength seconds each, writing them as
// split_0000.splv, split_0001.splv, ... in outDir. It returns the number
// of segments written.
func Split(path string, splitLength float32, outDir string, log logging.Logger) (int, error) {
	if splitLength <= 0 {
		return 0, errors.Wrap(splverrors.ErrInvalidArguments, "split length must be positive")
	}

	seq, err := newSequentialDecoder(path, log)
	if err != nil {
		return 0, err
	}

	framesPerSplit := uint32(splitLength * seq.framerate())
	if framesPerSplit == 0 {
		return 0, errors.Wrap(splverrors.ErrInvalidInput, "split length too small, would lead to 0 frames per split")
	}

	numSplits := (seq.frameCount() + framesPerSplit - 1) / framesPerSplit

	for splitIdx := uint32(0); splitIdx < numSplits; splitIdx++ {
		outPath := fmt.Sprintf("%s/split_%04d.splv", outDir, splitIdx)

		out, err := os.Create(outPath)
		if err != nil {
			return 0, errors.Wrap(splverrors.ErrFileOpen, err.Error())
		}

		enc, err := NewEncoder(out, seq.width(), seq.height(), seq.depth(), seq.framerate(), seq.params(), log)
		if err != nil {
			out.Close()
			return 0, err
		}

		start := splitIdx * framesPerSplit
		end := start + framesPerSplit
		if end > seq.frameCount() {
			end = seq.frameCount()
		}

		for i := start; i < end; i++ {
			frame, err := seq.decodeNext()
			if err != nil {
				enc.Abort()
				out.Close()
				return 0, err
			}
			if _, err := enc.EncodeFrame(frame); err != nil {
				enc.Abort()
				out.Close()
				return 0, err
			}
		}

		if err := enc.Finish(); err != nil {
			out.Close()
			return 0, err
		}
		out.Close()
	}

	return int(numSplits), nil
}

// Upgrade re-encodes the legacy-format .splv file at path into the
// current format at outPath.
func Upgrade(path, outPath string, log logging.Logger) error {
	seq, err := newSequentialDecoderLegacy(path, log)
	if err != nil {
		return err
	}

	out, err := os.Create(outPath)
	if err != nil {
		return errors.Wrap(splverrors.ErrFileOpen, err.Error())
	}
	defer out.Close()

	enc, err := NewEncoder(out, seq.width(), seq.height(), seq.depth(), seq.framerate(), seq.params(), log)
	if err != nil {
		return err
	}

	for i := uint32(0); i < seq.frameCount(); i++ {
		frame, err := seq.decodeNext()
		if err != nil {
			enc.Abort()
			return err
		}
		if _, err := enc.EncodeFrame(frame); err != nil {
			enc.Abort()
			return err
		}
	}

	return enc.Finish()
}
