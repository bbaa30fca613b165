/*
NAME
  brick_test.go

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package splv

import (
	"math/rand"
	"testing"

	"github.com/spatialstudio/splv/internal/buffer"
)

func randomBrick(rng *rand.Rand, density float64) Brick {
	var b Brick
	for z := uint32(0); z < BrickSize; z++ {
		for y := uint32(0); y < BrickSize; y++ {
			for x := uint32(0); x < BrickSize; x++ {
				if rng.Float64() < density {
					b.SetVoxelFilled(x, y, z, byte(rng.Intn(256)), byte(rng.Intn(256)), byte(rng.Intn(256)))
				}
			}
		}
	}
	return b
}

func bricksEqual(t *testing.T, want, got *Brick) {
	t.Helper()
	for z := uint32(0); z < BrickSize; z++ {
		for y := uint32(0); y < BrickSize; y++ {
			for x := uint32(0); x < BrickSize; x++ {
				wr, wg, wb, wf := want.GetVoxelColor(x, y, z)
				gr, gg, gb, gf := got.GetVoxelColor(x, y, z)
				if wf != gf {
					t.Fatalf("voxel (%d,%d,%d) filled mismatch: want %v got %v", x, y, z, wf, gf)
				}
				if wf && (wr != gr || wg != gg || wb != gb) {
					t.Fatalf("voxel (%d,%d,%d) color mismatch: want (%d,%d,%d) got (%d,%d,%d)", x, y, z, wr, wg, wb, gr, gg, gb)
				}
			}
		}
	}
}

func TestBrickIntraRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	densities := []float64{0, 0.1, 0.5, 0.9, 1.0}
	for _, d := range densities {
		b := randomBrick(rng, d)

		w := buffer.NewWriter(64)
		if err := b.EncodeIntra(w); err != nil {
			t.Fatalf("EncodeIntra() error = %v", err)
		}

		r := buffer.NewReader(w.Bytes())
		decoded, err := DecodeBrick(r, 0, 0, 0, nil)
		if err != nil {
			t.Fatalf("DecodeBrick() error = %v", err)
		}

		bricksEqual(t, &b, decoded)
	}
}

func TestBrickPredictiveRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))

	prevFrame, err := NewFrame(1, 1, 1)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}
	prevBrick := randomBrick(rng, 0.3)
	prevFrame.PushNextBrick(0, 0, 0, prevBrick)

	// A brick with only a few voxels changed from prevBrick should
	// predict well.
	cur := prevBrick
	cur.SetVoxelEmpty(0, 0, 0)
	cur.SetVoxelFilled(1, 1, 1, 10, 20, 30)

	w := buffer.NewWriter(64)
	if err := cur.EncodePredictive(0, 0, 0, w, prevFrame); err != nil {
		t.Fatalf("EncodePredictive() error = %v", err)
	}

	r := buffer.NewReader(w.Bytes())
	decoded, err := DecodeBrick(r, 0, 0, 0, prevFrame)
	if err != nil {
		t.Fatalf("DecodeBrick() error = %v", err)
	}

	bricksEqual(t, &cur, decoded)
}

func TestBrickPredictiveFallsBackToIntraWhenNoPrevious(t *testing.T) {
	rng := rand.New(rand.NewSource(3))

	prevFrame, err := NewFrame(1, 1, 1)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	cur := randomBrick(rng, 0.4)

	w := buffer.NewWriter(64)
	if err := cur.EncodePredictive(0, 0, 0, w, prevFrame); err != nil {
		t.Fatalf("EncodePredictive() error = %v", err)
	}

	if got := brickEncodingType(w.Bytes()[0]); got != brickEncodingIntra {
		t.Fatalf("expected fallback to intra encoding, got type %d", got)
	}

	r := buffer.NewReader(w.Bytes())
	decoded, err := DecodeBrick(r, 0, 0, 0, prevFrame)
	if err != nil {
		t.Fatalf("DecodeBrick() error = %v", err)
	}
	bricksEqual(t, &cur, decoded)
}

func TestBrickPredictiveFallsBackToIntraOnLargeGeometryChange(t *testing.T) {
	prevFrame, err := NewFrame(1, 1, 1)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	var prevBrick Brick
	for z := uint32(0); z < BrickSize; z++ {
		for y := uint32(0); y < BrickSize; y++ {
			for x := uint32(0); x < BrickSize; x++ {
				prevBrick.SetVoxelFilled(x, y, z, 1, 2, 3)
			}
		}
	}
	prevFrame.PushNextBrick(0, 0, 0, prevBrick)

	// Completely different geometry: every voxel flips state, so
	// numGeomDiff (512) >= voxelCount/2 (0, the current brick is empty),
	// forcing intra.
	var cur Brick

	w := buffer.NewWriter(64)
	if err := cur.EncodePredictive(0, 0, 0, w, prevFrame); err != nil {
		t.Fatalf("EncodePredictive() error = %v", err)
	}
	if got := brickEncodingType(w.Bytes()[0]); got != brickEncodingIntra {
		t.Fatalf("expected fallback to intra encoding, got type %d", got)
	}
}

func TestBrickNumVoxels(t *testing.T) {
	var b Brick
	if got := b.NumVoxels(); got != 0 {
		t.Fatalf("NumVoxels() on empty brick = %d, want 0", got)
	}

	b.SetVoxelFilled(1, 2, 3, 1, 1, 1)
	b.SetVoxelFilled(4, 5, 6, 1, 1, 1)
	if got := b.NumVoxels(); got != 2 {
		t.Fatalf("NumVoxels() = %d, want 2", got)
	}

	b.SetVoxelEmpty(1, 2, 3)
	if got := b.NumVoxels(); got != 1 {
		t.Fatalf("NumVoxels() after clear = %d, want 1", got)
	}
}
