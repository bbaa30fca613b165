/*
NAME
  container_test.go

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
	"os"
	"testing"

	splvcodec "github.com/spatialstudio/splv/codec/splv"
)

func singleBrickFrame(t *testing.T, r, g, b uint8) *splvcodec.Frame {
	t.Helper()

	frame, err := splvcodec.NewFrame(1, 1, 1)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	var brick splvcodec.Brick
	brick.SetVoxelFilled(0, 0, 0, r, g, b)
	frame.PushNextBrick(0, 0, 0, brick)

	return frame
}

func encodeFrames(t *testing.T, path string, frames []*splvcodec.Frame, params EncodingParams) []bool {
	t.Helper()

	out, err := os.Create(path)
	if err != nil {
		t.Fatalf("os.Create() error = %v", err)
	}
	defer out.Close()

	enc, err := NewEncoder(out, splvcodec.BrickSize, splvcodec.BrickSize, splvcodec.BrickSize, 30, params, &dumbLogger{})
	if err != nil {
		t.Fatalf("NewEncoder() error = %v", err)
	}

	canFree := make([]bool, len(frames))
	for i, frame := range frames {
		cf, err := enc.EncodeFrame(frame)
		if err != nil {
			t.Fatalf("EncodeFrame() error = %v", err)
		}
		canFree[i] = cf
	}

	if err := enc.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	return canFree
}

func TestEncodeDecodeSingleIFrame(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/single.splv"

	frame := singleBrickFrame(t, 10, 20, 30)
	encodeFrames(t, path, []*splvcodec.Frame{frame}, EncodingParams{GOPSize: 2})

	dec, err := NewDecoderFromFile(path, &dumbLogger{})
	if err != nil {
		t.Fatalf("NewDecoderFromFile() error = %v", err)
	}

	if dec.FrameCount != 1 {
		t.Fatalf("FrameCount = %d, want 1", dec.FrameCount)
	}

	deps, err := dec.FrameDependencies(0, false)
	if err != nil {
		t.Fatalf("FrameDependencies() error = %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("FrameDependencies(0) = %v, want empty (I-frame)", deps)
	}

	got, err := dec.DecodeFrame(0, nil)
	if err != nil {
		t.Fatalf("DecodeFrame() error = %v", err)
	}

	brick := got.GetBrick(0, 0, 0)
	if brick == nil {
		t.Fatal("decoded frame has no brick at (0,0,0)")
	}
	if r, g, b, filled := brick.GetVoxelColor(0, 0, 0); !filled || r != 10 || g != 20 || b != 30 {
		t.Fatalf("decoded voxel = (%d,%d,%d,%v), want (10,20,30,true)", r, g, b, filled)
	}
}

func TestEncodeDecodePFrameDependsOnPrevious(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/gop.splv"

	frames := []*splvcodec.Frame{
		singleBrickFrame(t, 1, 2, 3),
		singleBrickFrame(t, 1, 2, 3), // P-frame; its one-voxel brick is intra-coded (0 geom diffs >= 1/2)
	}
	encodeFrames(t, path, frames, EncodingParams{GOPSize: 10})

	dec, err := NewDecoderFromFile(path, &dumbLogger{})
	if err != nil {
		t.Fatalf("NewDecoderFromFile() error = %v", err)
	}

	deps, err := dec.FrameDependencies(1, false)
	if err != nil {
		t.Fatalf("FrameDependencies() error = %v", err)
	}
	if len(deps) != 1 || deps[0] != 0 {
		t.Fatalf("FrameDependencies(1) = %v, want [0]", deps)
	}

	frame0, err := dec.DecodeFrame(0, nil)
	if err != nil {
		t.Fatalf("DecodeFrame(0) error = %v", err)
	}

	frame1, err := dec.DecodeFrame(1, []FrameDependency{{Index: 0, Frame: frame0}})
	if err != nil {
		t.Fatalf("DecodeFrame(1) error = %v", err)
	}

	brick := frame1.GetBrick(0, 0, 0)
	if brick == nil {
		t.Fatal("decoded p-frame has no brick at (0,0,0)")
	}
	if r, g, b, filled := brick.GetVoxelColor(0, 0, 0); !filled || r != 1 || g != 2 || b != 3 {
		t.Fatalf("decoded voxel = (%d,%d,%d,%v), want (1,2,3,true)", r, g, b, filled)
	}
}

func TestEncodeDecodeGOPBoundaryForcesIFrame(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/gop2.splv"

	frames := []*splvcodec.Frame{
		singleBrickFrame(t, 1, 1, 1),
		singleBrickFrame(t, 2, 2, 2),
		singleBrickFrame(t, 3, 3, 3), // frame index 2, GOPSize 2 -> I-frame again
	}
	canFree := encodeFrames(t, path, frames, EncodingParams{GOPSize: 2})

	// Frame 0's successor (frame 1) is a P-frame, so frame 0 can't be
	// freed yet; frame 1's successor (frame 2) is an I-frame, so frame 1
	// can be freed; frame 2's successor (frame 3) would be a P-frame.
	wantCanFree := []bool{false, true, false}
	for i, want := range wantCanFree {
		if canFree[i] != want {
			t.Fatalf("canFree[%d] = %v, want %v (sequence %v)", i, canFree[i], want, canFree)
		}
	}

	dec, err := NewDecoderFromFile(path, &dumbLogger{})
	if err != nil {
		t.Fatalf("NewDecoderFromFile() error = %v", err)
	}

	deps, err := dec.FrameDependencies(2, false)
	if err != nil {
		t.Fatalf("FrameDependencies() error = %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("FrameDependencies(2) = %v, want empty (frame 2 is an I-frame on GOP boundary)", deps)
	}

	if got := dec.PrevIFrameIdx(2); got != 2 {
		t.Fatalf("PrevIFrameIdx(2) = %d, want 2", got)
	}
	if got := dec.PrevIFrameIdx(1); got != 0 {
		t.Fatalf("PrevIFrameIdx(1) = %d, want 0", got)
	}
}

func TestDecodeRejectsCorruptedMagicWord(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/bad.splv"

	frame := singleBrickFrame(t, 1, 1, 1)
	encodeFrames(t, path, []*splvcodec.Frame{frame}, EncodingParams{GOPSize: 1})

	buf, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("os.ReadFile() error = %v", err)
	}
	buf[0] ^= 0xFF // corrupt the first byte of the magic word

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	if _, err := NewDecoderFromFile(path, &dumbLogger{}); err == nil {
		t.Fatal("NewDecoderFromFile() with corrupted magic word: expected error, got nil")
	}
}

func TestSplitAndConcatRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srcPath := dir + "/src.splv"

	frames := make([]*splvcodec.Frame, 6)
	for i := range frames {
		frames[i] = singleBrickFrame(t, uint8(i), uint8(i*2), uint8(i*3))
	}
	encodeFrames(t, srcPath, frames, EncodingParams{GOPSize: 3})

	numSplits, err := Split(srcPath, 0.1, dir, &dumbLogger{})
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if numSplits == 0 {
		t.Fatal("Split() produced no segments")
	}

	splitPaths := make([]string, numSplits)
	for i := 0; i < numSplits; i++ {
		splitPaths[i] = fmt.Sprintf("%s/split_%04d.splv", dir, i)
	}

	concatPath := dir + "/concat.splv"
	if err := Concat(splitPaths, concatPath, &dumbLogger{}); err != nil {
		t.Fatalf("Concat() error = %v", err)
	}

	dec, err := NewDecoderFromFile(concatPath, &dumbLogger{})
	if err != nil {
		t.Fatalf("NewDecoderFromFile() on concatenated output error = %v", err)
	}
	if dec.FrameCount != uint32(len(frames)) {
		t.Fatalf("concatenated FrameCount = %d, want %d", dec.FrameCount, len(frames))
	}

	var lastFrame *splvcodec.Frame
	for i := 0; i < len(frames); i++ {
		var deps []FrameDependency
		if lastFrame != nil {
			deps = []FrameDependency{{Index: i - 1, Frame: lastFrame}}
		}

		frame, err := dec.DecodeFrame(i, deps)
		if err != nil {
			t.Fatalf("DecodeFrame(%d) error = %v", i, err)
		}

		brick := frame.GetBrick(0, 0, 0)
		if brick == nil {
			t.Fatalf("frame %d has no brick at (0,0,0)", i)
		}
		if r, _, _, filled := brick.GetVoxelColor(0, 0, 0); !filled || r != uint8(i) {
			t.Fatalf("frame %d voxel red = %d, want %d", i, r, i)
		}

		lastFrame = frame
	}
}

