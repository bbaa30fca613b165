/*
NAME
  frame.go

DESCRIPTION
  frame.go implements the sparse brick-grid frame model: a per-frame map
  from grid cell to brick index, plus the dense array of occupied
  bricks.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package splv

import (
	"github.com/pkg/errors"

	"github.com/spatialstudio/splv/splverrors"
)

// Frame is a sparse grid of Width x Height x Depth brick cells. Map
// holds one entry per cell; a cell with no geometry is BrickIdxEmpty,
// otherwise it indexes into Bricks.
type Frame struct {
	Width, Height, Depth uint32

	Map    []uint32
	Bricks []Brick
}

// NewFrame allocates an empty frame of the given brick-grid dimensions.
// All cells start unoccupied.
func NewFrame(width, height, depth uint32) (*Frame, error) {
	if width == 0 || height == 0 || depth == 0 {
		return nil, errors.Wrap(splverrors.ErrInvalidArguments, "frame dimensions must be positive")
	}

	f := &Frame{
		Width:  width,
		Height: height,
		Depth:  depth,
		Map:    make([]uint32, width*height*depth),
	}
	for i := range f.Map {
		f.Map[i] = BrickIdxEmpty
	}
	return f, nil
}

// Clone returns a deep copy of f, used by the container encoder to keep
// an owned snapshot of the most recently encoded frame for predictive
// coding of the next one.
func (f *Frame) Clone() *Frame {
	c := &Frame{
		Width:  f.Width,
		Height: f.Height,
		Depth:  f.Depth,
		Map:    make([]uint32, len(f.Map)),
		Bricks: make([]Brick, len(f.Bricks)),
	}
	copy(c.Map, f.Map)
	copy(c.Bricks, f.Bricks)
	return c
}

// mapIdx computes the linear Map index for brick-grid cell (x, y, z).
func (f *Frame) mapIdx(x, y, z uint32) uint32 {
	return x + f.Width*(y+f.Height*z)
}

// GetMapIdx is the exported form of mapIdx, for callers outside the
// package that need to address Map directly.
func (f *Frame) GetMapIdx(x, y, z uint32) uint32 {
	return f.mapIdx(x, y, z)
}

// GetBrick returns the brick occupying cell (x, y, z), or nil if the
// cell is empty.
func (f *Frame) GetBrick(x, y, z uint32) *Brick {
	idx := f.Map[f.mapIdx(x, y, z)]
	if idx == BrickIdxEmpty {
		return nil
	}
	return &f.Bricks[idx]
}

// GetNextBrick returns the next occupied cell in ascending Map-index
// order starting the scan at *cursor, along with the grid coordinates of
// the cell, advancing *cursor past it. It reports ok=false once every
// cell has been visited. Callers that must match the container format's
// on-disk brick ordering (x outermost, z innermost) should iterate
// coordinates directly via GetBrick instead.
func (f *Frame) GetNextBrick(cursor *uint32) (x, y, z uint32, brick *Brick, ok bool) {
	total := f.Width * f.Height * f.Depth
	for *cursor < total {
		idx := *cursor
		*cursor++

		if f.Map[idx] == BrickIdxEmpty {
			continue
		}

		z = idx / (f.Width * f.Height)
		rem := idx % (f.Width * f.Height)
		y = rem / f.Width
		x = rem % f.Width

		return x, y, z, &f.Bricks[f.Map[idx]], true
	}
	return 0, 0, 0, nil, false
}

// PushNextBrick appends brick as the occupant of cell (x, y, z). Cells
// may be pushed in any order; Bricks simply grows by one entry per call
// and Map is updated to point at it.
func (f *Frame) PushNextBrick(x, y, z uint32, brick Brick) {
	idx := f.mapIdx(x, y, z)
	f.Bricks = append(f.Bricks, brick)
	f.Map[idx] = uint32(len(f.Bricks) - 1)
}

// NumVoxels returns the total number of occupied voxels across every
// brick in the frame.
func (f *Frame) NumVoxels() int {
	n := 0
	for i := range f.Bricks {
		n += f.Bricks[i].NumVoxels()
	}
	return n
}

// Size returns the frame's occupied volume in voxels: the number of
// occupied bricks times the voxels per brick, i.e. an upper bound on
// NumVoxels that ignores per-voxel occupancy within each brick.
func (f *Frame) Size() int {
	return len(f.Bricks) * BrickLen
}

// RemoveNonvisibleVoxels clears voxels that are fully enclosed by other
// occupied voxels on all six axis-aligned faces, since they can never be
// seen from outside the volume and so carry no useful information for
// rendering. A voxel at a brick boundary is conservatively treated as
// visible, since its neighbor may lie in an unloaded or absent
// neighboring brick.
func (f *Frame) RemoveNonvisibleVoxels() {
	type cell struct{ x, y, z uint32 }

	visible := func(bx, by, bz, x, y, z uint32) bool {
		neighbors := [6]cell{
			{x - 1, y, z}, {x + 1, y, z},
			{x, y - 1, z}, {x, y + 1, z},
			{x, y, z - 1}, {x, y, z + 1},
		}
		for _, n := range neighbors {
			if n.x >= BrickSize || n.y >= BrickSize || n.z >= BrickSize {
				return true
			}
		}
		brick := f.GetBrick(bx, by, bz)
		for _, n := range neighbors {
			if !brick.GetVoxel(n.x, n.y, n.z) {
				return true
			}
		}
		return false
	}

	for bz := uint32(0); bz < f.Depth; bz++ {
		for by := uint32(0); by < f.Height; by++ {
			for bx := uint32(0); bx < f.Width; bx++ {
				brick := f.GetBrick(bx, by, bz)
				if brick == nil {
					continue
				}

				var toClear [][3]uint32
				for z := uint32(0); z < BrickSize; z++ {
					for y := uint32(0); y < BrickSize; y++ {
						for x := uint32(0); x < BrickSize; x++ {
							if !brick.GetVoxel(x, y, z) {
								continue
							}
							if !visible(bx, by, bz, x, y, z) {
								toClear = append(toClear, [3]uint32{x, y, z})
							}
						}
					}
				}
				for _, c := range toClear {
					brick.SetVoxelEmpty(c[0], c[1], c[2])
				}
			}
		}
	}
}
