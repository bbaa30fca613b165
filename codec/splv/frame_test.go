/*
NAME
  frame_test.go

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package splv

import "testing"

func TestNewFrameRejectsZeroDimensions(t *testing.T) {
	if _, err := NewFrame(0, 1, 1); err == nil {
		t.Fatal("NewFrame() with zero width: expected error, got nil")
	}
}

func TestFramePushAndGetBrick(t *testing.T) {
	f, err := NewFrame(2, 2, 2)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	if b := f.GetBrick(0, 0, 0); b != nil {
		t.Fatal("GetBrick() on empty frame: expected nil")
	}

	var brick Brick
	brick.SetVoxelFilled(0, 0, 0, 9, 9, 9)
	f.PushNextBrick(1, 0, 0, brick)

	got := f.GetBrick(1, 0, 0)
	if got == nil {
		t.Fatal("GetBrick() after push: expected non-nil")
	}
	if r, g, b, filled := got.GetVoxelColor(0, 0, 0); !filled || r != 9 || g != 9 || b != 9 {
		t.Fatalf("GetVoxelColor() = (%d,%d,%d,%v), want (9,9,9,true)", r, g, b, filled)
	}

	if got := f.GetBrick(0, 0, 0); got != nil {
		t.Fatal("GetBrick() on untouched cell: expected nil")
	}
}

func TestFrameGetNextBrickIteratesInMapIndexOrder(t *testing.T) {
	f, err := NewFrame(2, 2, 1)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	var b1, b2 Brick
	b1.SetVoxelFilled(0, 0, 0, 1, 0, 0)
	b2.SetVoxelFilled(0, 0, 0, 2, 0, 0)

	f.PushNextBrick(1, 0, 0, b1)
	f.PushNextBrick(0, 1, 0, b2)

	var cursor uint32
	x, y, z, brick, ok := f.GetNextBrick(&cursor)
	if !ok || x != 1 || y != 0 || z != 0 {
		t.Fatalf("first GetNextBrick() = (%d,%d,%d,%v), want (1,0,0,true)", x, y, z, ok)
	}
	if r, _, _, _ := brick.GetVoxelColor(0, 0, 0); r != 1 {
		t.Fatalf("first brick color mismatch: got r=%d want 1", r)
	}

	x, y, z, brick, ok = f.GetNextBrick(&cursor)
	if !ok || x != 0 || y != 1 || z != 0 {
		t.Fatalf("second GetNextBrick() = (%d,%d,%d,%v), want (0,1,0,true)", x, y, z, ok)
	}
	if r, _, _, _ := brick.GetVoxelColor(0, 0, 0); r != 2 {
		t.Fatalf("second brick color mismatch: got r=%d want 2", r)
	}

	_, _, _, _, ok = f.GetNextBrick(&cursor)
	if ok {
		t.Fatal("GetNextBrick() after last brick: expected ok=false")
	}
}

func TestFrameNumVoxelsAndSize(t *testing.T) {
	f, err := NewFrame(2, 1, 1)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	var b Brick
	b.SetVoxelFilled(0, 0, 0, 1, 1, 1)
	b.SetVoxelFilled(1, 1, 1, 1, 1, 1)
	f.PushNextBrick(0, 0, 0, b)

	if got := f.NumVoxels(); got != 2 {
		t.Fatalf("NumVoxels() = %d, want 2", got)
	}
	if got := f.Size(); got != BrickLen {
		t.Fatalf("Size() = %d, want %d", got, BrickLen)
	}
}

func TestFrameRemoveNonvisibleVoxelsKeepsBoundaryVoxels(t *testing.T) {
	f, err := NewFrame(1, 1, 1)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	var b Brick
	for z := uint32(0); z < BrickSize; z++ {
		for y := uint32(0); y < BrickSize; y++ {
			for x := uint32(0); x < BrickSize; x++ {
				b.SetVoxelFilled(x, y, z, 1, 1, 1)
			}
		}
	}
	f.PushNextBrick(0, 0, 0, b)

	f.RemoveNonvisibleVoxels()

	brick := f.GetBrick(0, 0, 0)
	// The fully interior voxel (not on any brick face) must be removed;
	// a face voxel must survive since it's conservatively visible.
	if brick.GetVoxel(4, 4, 4) {
		t.Fatal("interior voxel (4,4,4) should have been removed")
	}
	if !brick.GetVoxel(0, 0, 0) {
		t.Fatal("boundary voxel (0,0,0) should remain visible")
	}
}
