package s3out

import (
	"context"

	"github.com/terrascope/proj4go"

	"github.com/ungarj/mapchete-s3/raster"
	"github.com/ungarj/mapchete-s3/tile"
)

// Process is the orchestrator handle an InputTile reads through.
type Process interface {
	// RawOutput returns the process output for a tile, computing it on
	// demand when necessary.
	RawOutput(ctx context.Context, t tile.Tile) (*raster.Masked, error)
	// ProcessArea returns the configured process area with its CRS.
	ProcessArea() proj4go.Coverage
}

// InputTile exposes previously written (or freshly computed) output of one
// tile as a band-selectable read view for a downstream process. It holds no
// storage of its own.
type InputTile struct {
	Tile tile.Tile
	// Resampling names the resampling strategy downstream consumers apply.
	Resampling string

	process Process
}

// Read returns the tile's data restricted to the requested 1-based band
// indexes, preserving order; duplicates are allowed. Without indexes all
// profile bands are returned.
func (it *InputTile) Read(ctx context.Context, indexes ...int) (*raster.Masked, error) {
	arr, err := it.process.RawOutput(ctx, it.Tile)
	if err != nil {
		return nil, err
	}
	if len(indexes) == 0 {
		return arr, nil
	}
	return arr.Select(indexes...)
}

// IsEmpty reports whether the tile lies outside the configured process area.
// This is a geometric test; it says nothing about stored objects.
func (it *InputTile) IsEmpty() (bool, error) {
	area := it.process.ProcessArea()
	cov := it.Tile.Coverage()
	if area.Proj4 != "" && area.Proj4 != cov.Proj4 {
		var err error
		area, err = area.Transform(cov.Proj4)
		if err != nil {
			return false, err
		}
	}
	return !tile.Intersects(cov.BoundingBox, area.BoundingBox), nil
}

// Close releases the view. Nothing is cached in this driver, but consumers
// bracket reads with Close so caching drivers can invalidate here.
func (it *InputTile) Close() error { return nil }
