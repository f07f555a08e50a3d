package tile

import (
	"math"
	"testing"
)

func almost(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMatrixAndPixelSize(t *testing.T) {
	p, err := NewPyramid("geodetic")
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := p.Matrix(5)
	if rows != 32 || cols != 64 {
		t.Fatalf("zoom 5 matrix: got %dx%d, want 32x64", rows, cols)
	}
	if px := p.PixelSize(5); !almost(px, 360.0/64/256) {
		t.Fatalf("pixel size: got %v", px)
	}

	meta, err := NewPyramid("geodetic", Metatiling(2))
	if err != nil {
		t.Fatal(err)
	}
	rows, cols = meta.Matrix(5)
	if rows != 16 || cols != 32 {
		t.Fatalf("metatiled matrix: got %dx%d, want 16x32", rows, cols)
	}
	// same resolution regardless of metatiling
	if meta.PixelSize(5) != p.PixelSize(5) {
		t.Fatal("metatiling must not change the pixel size")
	}
}

func TestTileBounds(t *testing.T) {
	p, err := NewPyramid("geodetic")
	if err != nil {
		t.Fatal(err)
	}
	tl, err := p.Tile(5, 15, 32)
	if err != nil {
		t.Fatal(err)
	}
	b := tl.Bounds()
	if !almost(b.Min.X, 0) || !almost(b.Min.Y, 0) || !almost(b.Max.X, 5.625) || !almost(b.Max.Y, 5.625) {
		t.Fatalf("bounds: got %+v", b)
	}
	if h, w := tl.Shape(); h != 256 || w != 256 {
		t.Fatalf("shape: got %dx%d", h, w)
	}
	a := tl.Affine()
	if !almost(a[0], 0) || !almost(a[3], 5.625) || !almost(a[1], tl.PixelSize()) || !almost(a[5], -tl.PixelSize()) {
		t.Fatalf("affine: got %v", a)
	}
}

func TestTileOutsideMatrix(t *testing.T) {
	p, _ := NewPyramid("geodetic")
	for _, coord := range [][3]int{{-1, 0, 0}, {5, 32, 0}, {5, 0, 64}, {5, -1, 0}} {
		if _, err := p.Tile(coord[0], coord[1], coord[2]); err == nil {
			t.Errorf("tile %v: expected error", coord)
		}
	}
}

func TestBufferedShape(t *testing.T) {
	p, err := NewPyramid("geodetic", Pixelbuffer(8))
	if err != nil {
		t.Fatal(err)
	}

	// interior tile grows by the buffer on every side
	tl, _ := p.Tile(5, 15, 32)
	if h, w := tl.Shape(); h != 272 || w != 272 {
		t.Fatalf("interior buffered shape: got %dx%d, want 272x272", h, w)
	}

	// corner tile is clipped at the grid bounds
	corner, _ := p.Tile(5, 0, 0)
	if h, w := corner.Shape(); h != 264 || w != 264 {
		t.Fatalf("corner buffered shape: got %dx%d, want 264x264", h, w)
	}
}

func TestIntersecting(t *testing.T) {
	process, err := NewPyramid("geodetic", Metatiling(2))
	if err != nil {
		t.Fatal(err)
	}
	output, err := NewPyramid("geodetic")
	if err != nil {
		t.Fatal(err)
	}

	pt, err := process.Tile(5, 7, 16)
	if err != nil {
		t.Fatal(err)
	}
	tiles := output.Intersecting(pt)
	if len(tiles) != 4 {
		t.Fatalf("got %d intersecting tiles, want 4", len(tiles))
	}
	want := map[string]bool{"5/14/32": true, "5/14/33": true, "5/15/32": true, "5/15/33": true}
	for _, tl := range tiles {
		if !want[tl.String()] {
			t.Errorf("unexpected tile %s", tl)
		}
	}

	// identical pyramids map a tile onto itself only
	self := output.Intersecting(tiles[0])
	if len(self) != 1 || self[0].String() != tiles[0].String() {
		t.Fatalf("self intersection: got %v", self)
	}
}

func TestIntersects(t *testing.T) {
	p, _ := NewPyramid("geodetic")
	a, _ := p.Tile(5, 15, 32)
	b, _ := p.Tile(5, 15, 33)
	c, _ := p.Tile(5, 15, 35)
	// neighbours share only an edge, which has no area
	if Intersects(a.Bounds(), b.Bounds()) {
		t.Error("edge-adjacent tiles must not intersect")
	}
	if Intersects(a.Bounds(), c.Bounds()) {
		t.Error("distant tiles must not intersect")
	}
	if !Intersects(a.Bounds(), a.Bounds()) {
		t.Error("tile must intersect itself")
	}
}

func TestNewPyramidValidation(t *testing.T) {
	if _, err := NewPyramid("unknown"); err == nil {
		t.Error("unknown grid accepted")
	}
	if _, err := NewPyramid("geodetic", Metatiling(3)); err == nil {
		t.Error("non power of two metatiling accepted")
	}
	if _, err := NewPyramid("geodetic", Pixelbuffer(-1)); err == nil {
		t.Error("negative pixelbuffer accepted")
	}
}
