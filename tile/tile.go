package tile

import (
	"fmt"
	"math"

	"github.com/terrascope/geometry"
	"github.com/terrascope/proj4go"
)

// Tile is one cell of a pyramid: a zoom/row/col coordinate plus the geometry
// derived from its owning pyramid (extent, pixel grid, optional buffer).
// Tiles are immutable values.
type Tile struct {
	Zoom, Row, Col int

	pyramid *Pyramid
}

// Pyramid returns the pyramid the tile belongs to.
func (t Tile) Pyramid() *Pyramid { return t.pyramid }

// String renders the coordinate as "zoom/row/col".
func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Zoom, t.Row, t.Col)
}

// PixelSize returns the pixel edge length in CRS units.
func (t Tile) PixelSize() float64 { return t.pyramid.PixelSize(t.Zoom) }

// GridBounds returns the tile extent without the pixel buffer. Metatiles at
// the right and bottom matrix edge are clipped to the pyramid bounds.
func (t Tile) GridBounds() geometry.BoundingBox {
	p := t.pyramid
	cellW := (p.bounds.Max.X - p.bounds.Min.X) / float64(p.baseCols(t.Zoom))
	cellH := (p.bounds.Max.Y - p.bounds.Min.Y) / float64(p.baseRows(t.Zoom))

	c0 := t.Col * p.metatiling
	c1 := min(c0+p.metatiling, p.baseCols(t.Zoom))
	r0 := t.Row * p.metatiling
	r1 := min(r0+p.metatiling, p.baseRows(t.Zoom))

	return geometry.BBox(
		p.bounds.Min.X+float64(c0)*cellW,
		p.bounds.Max.Y-float64(r1)*cellH,
		p.bounds.Min.X+float64(c1)*cellW,
		p.bounds.Max.Y-float64(r0)*cellH,
	)
}

// Bounds returns the tile extent including the pixel buffer, clipped at the
// pyramid bounds. This is the extent the tile's pixel data covers.
func (t Tile) Bounds() geometry.BoundingBox {
	b := t.GridBounds()
	buf := float64(t.pyramid.pixelbuffer) * t.PixelSize()
	g := t.pyramid.bounds
	return geometry.BBox(
		math.Max(b.Min.X-buf, g.Min.X),
		math.Max(b.Min.Y-buf, g.Min.Y),
		math.Min(b.Max.X+buf, g.Max.X),
		math.Min(b.Max.Y+buf, g.Max.Y),
	)
}

// Coverage pairs the buffered tile extent with the pyramid CRS.
func (t Tile) Coverage() proj4go.Coverage {
	return proj4go.Coverage{BoundingBox: t.Bounds(), Proj4: t.pyramid.proj4}
}

// Shape returns the pixel dimensions of the buffered tile.
func (t Tile) Shape() (height, width int) {
	b := t.Bounds()
	px := t.PixelSize()
	return int(math.Round((b.Max.Y - b.Min.Y) / px)), int(math.Round((b.Max.X - b.Min.X) / px))
}

// Height returns the buffered tile height in pixels.
func (t Tile) Height() int {
	h, _ := t.Shape()
	return h
}

// Width returns the buffered tile width in pixels.
func (t Tile) Width() int {
	_, w := t.Shape()
	return w
}

// Affine returns the GDAL-style geotransform of the buffered tile:
// {origin x, pixel width, 0, origin y, 0, -pixel height}.
func (t Tile) Affine() [6]float64 {
	b := t.Bounds()
	px := t.PixelSize()
	return [6]float64{b.Min.X, px, 0, b.Max.Y, 0, -px}
}

// Intersects reports whether two bounding boxes overlap with positive area.
func Intersects(a, b geometry.BoundingBox) bool {
	return a.Min.X < b.Max.X && b.Min.X < a.Max.X &&
		a.Min.Y < b.Max.Y && b.Min.Y < a.Max.Y
}
