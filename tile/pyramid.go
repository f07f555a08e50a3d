// Package tile implements the tile pyramids used to address raster output:
// multi-resolution grids over a fixed extent, with optional metatiling and
// pixel buffers. A process pyramid and an output pyramid share zoom/row/col
// addressing but may differ in metatiling and buffering, so tiles of one can
// be mapped onto the tiles of the other they intersect.
package tile

import (
	"fmt"
	"math"

	"github.com/terrascope/geometry"
)

const (
	webMerc    = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +wktext  +no_defs"
	geographic = "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

	mercExtent = 20037508.342789244
)

// DefaultTileSize is the edge length in pixels of an unbuffered base tile.
const DefaultTileSize = 256

// Pyramid is a tile grid covering a fixed extent, one matrix per zoom level.
// The zero value is not usable; construct with NewPyramid.
type Pyramid struct {
	grid        string
	proj4       string
	bounds      geometry.BoundingBox
	cols0       int // columns at zoom 0, before metatiling
	rows0       int // rows at zoom 0, before metatiling
	tileSize    int
	metatiling  int
	pixelbuffer int
}

// Option adjusts pyramid construction.
type Option func(*Pyramid)

// Metatiling makes every pyramid tile cover an n×n block of base tiles.
// n must be a power of two.
func Metatiling(n int) Option { return func(p *Pyramid) { p.metatiling = n } }

// Pixelbuffer adds a buffer of px pixels around every tile, clipped at the
// pyramid bounds.
func Pixelbuffer(px int) Option { return func(p *Pyramid) { p.pixelbuffer = px } }

// TileSize overrides the base tile edge length.
func TileSize(n int) Option { return func(p *Pyramid) { p.tileSize = n } }

// NewPyramid returns a pyramid on one of the well-known grids:
// "geodetic" (EPSG:4326 extent, two columns at zoom 0) or
// "mercator" (web mercator extent, one column at zoom 0).
func NewPyramid(grid string, opts ...Option) (*Pyramid, error) {
	p := &Pyramid{
		grid:       grid,
		tileSize:   DefaultTileSize,
		metatiling: 1,
	}
	switch grid {
	case "geodetic":
		p.proj4 = geographic
		p.bounds = geometry.BBox(-180, -90, 180, 90)
		p.cols0, p.rows0 = 2, 1
	case "mercator":
		p.proj4 = webMerc
		p.bounds = geometry.BBox(-mercExtent, -mercExtent, mercExtent, mercExtent)
		p.cols0, p.rows0 = 1, 1
	default:
		return nil, fmt.Errorf("unknown grid %q", grid)
	}
	for _, o := range opts {
		o(p)
	}
	if p.tileSize <= 0 {
		return nil, fmt.Errorf("invalid tile size %d", p.tileSize)
	}
	if p.metatiling < 1 || p.metatiling&(p.metatiling-1) != 0 {
		return nil, fmt.Errorf("metatiling must be a power of two, got %d", p.metatiling)
	}
	if p.pixelbuffer < 0 {
		return nil, fmt.Errorf("pixelbuffer must not be negative, got %d", p.pixelbuffer)
	}
	return p, nil
}

// Grid returns the grid name the pyramid was constructed on.
func (p *Pyramid) Grid() string { return p.grid }

// Proj4 returns the proj4 string of the pyramid CRS.
func (p *Pyramid) Proj4() string { return p.proj4 }

// Bounds returns the full extent covered by the pyramid.
func (p *Pyramid) Bounds() geometry.BoundingBox { return p.bounds }

// Pixelbuffer returns the per-tile buffer in pixels.
func (p *Pyramid) Pixelbuffer() int { return p.pixelbuffer }

// Metatiling returns the metatile factor.
func (p *Pyramid) Metatiling() int { return p.metatiling }

// baseCols and baseRows are the matrix dimensions at zoom before metatiling.
func (p *Pyramid) baseCols(zoom int) int { return p.cols0 << uint(zoom) }
func (p *Pyramid) baseRows(zoom int) int { return p.rows0 << uint(zoom) }

// Matrix returns the number of rows and columns at the given zoom level,
// after metatiling.
func (p *Pyramid) Matrix(zoom int) (rows, cols int) {
	rows = (p.baseRows(zoom) + p.metatiling - 1) / p.metatiling
	cols = (p.baseCols(zoom) + p.metatiling - 1) / p.metatiling
	return rows, cols
}

// PixelSize returns the edge length of one pixel in CRS units at a zoom level.
func (p *Pyramid) PixelSize(zoom int) float64 {
	return (p.bounds.Max.X - p.bounds.Min.X) / float64(p.baseCols(zoom)) / float64(p.tileSize)
}

// Tile returns the tile at the given pyramid coordinate, or an error when the
// coordinate lies outside the zoom level's matrix.
func (p *Pyramid) Tile(zoom, row, col int) (Tile, error) {
	if zoom < 0 {
		return Tile{}, fmt.Errorf("tile %d/%d/%d: negative zoom", zoom, row, col)
	}
	rows, cols := p.Matrix(zoom)
	if row < 0 || row >= rows || col < 0 || col >= cols {
		return Tile{}, fmt.Errorf(
			"tile %d/%d/%d: outside matrix of %d rows x %d cols", zoom, row, col, rows, cols)
	}
	return Tile{Zoom: zoom, Row: row, Col: col, pyramid: p}, nil
}

// TilesFromBounds returns all tiles at a zoom level whose unbuffered extent
// overlaps b with positive area.
func (p *Pyramid) TilesFromBounds(b geometry.BoundingBox, zoom int) []Tile {
	rows, cols := p.Matrix(zoom)
	span := float64(p.metatiling*p.tileSize) * p.PixelSize(zoom)
	eps := span * 1e-9

	c0 := clamp(int(math.Floor((b.Min.X-p.bounds.Min.X+eps)/span)), 0, cols-1)
	c1 := clamp(int(math.Ceil((b.Max.X-p.bounds.Min.X-eps)/span))-1, 0, cols-1)
	r0 := clamp(int(math.Floor((p.bounds.Max.Y-b.Max.Y+eps)/span)), 0, rows-1)
	r1 := clamp(int(math.Ceil((p.bounds.Max.Y-b.Min.Y-eps)/span))-1, 0, rows-1)

	var tiles []Tile
	for r := r0; r <= r1; r++ {
		for c := c0; c <= c1; c++ {
			tiles = append(tiles, Tile{Zoom: zoom, Row: r, Col: c, pyramid: p})
		}
	}
	return tiles
}

// Intersecting returns the tiles of p that intersect t's unbuffered extent.
// t may belong to a different pyramid (typically the process pyramid when p
// is the output pyramid); both must lie on the same grid extent.
func (p *Pyramid) Intersecting(t Tile) []Tile {
	return p.TilesFromBounds(t.GridBounds(), t.Zoom)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
