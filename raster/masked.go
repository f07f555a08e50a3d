// Package raster holds the masked-array data model shared by the read and
// write paths: a bands × height × width numeric array with an element-wise
// validity mask. A masked element is "no data"; an array whose mask is fully
// set carries no data at all.
package raster

import (
	"errors"
	"fmt"
)

// ErrShape signals input data that cannot be reconciled with the expected
// band/shape contract.
var ErrShape = errors.New("raster: data shape mismatch")

// Masked is a band-sequential numeric array with a per-element mask.
// Values and Mask have length Bands*Height*Width; Mask[i] == true marks
// element i as nodata. Samples are held as float64 regardless of Dtype;
// Dtype records the storage type every value fits into.
type Masked struct {
	Bands  int
	Height int
	Width  int
	Dtype  Dtype
	Values []float64
	Mask   []bool
}

// New returns an all-valid, zero-filled array.
func New(dtype Dtype, bands, height, width int) *Masked {
	n := bands * height * width
	return &Masked{
		Bands:  bands,
		Height: height,
		Width:  width,
		Dtype:  dtype,
		Values: make([]float64, n),
		Mask:   make([]bool, n),
	}
}

// Empty returns a fully masked array filled with nodata. It is the canonical
// "never written" value for a tile of the given shape.
func Empty(dtype Dtype, bands, height, width int, nodata float64) *Masked {
	m := New(dtype, bands, height, width)
	for i := range m.Values {
		m.Values[i] = nodata
		m.Mask[i] = true
	}
	return m
}

// FromPlane wraps a single band plane of height*width samples as a 1-band
// array, the promotion applied to 2-D input.
func FromPlane(dtype Dtype, height, width int, values []float64) (*Masked, error) {
	if len(values) != height*width {
		return nil, fmt.Errorf("%w: %d values for %dx%d plane", ErrShape, len(values), height, width)
	}
	m := New(dtype, 1, height, width)
	copy(m.Values, values)
	return m, nil
}

func (m *Masked) index(band, y, x int) int {
	return (band*m.Height+y)*m.Width + x
}

// At returns the value and mask state at (band, y, x).
func (m *Masked) At(band, y, x int) (float64, bool) {
	i := m.index(band, y, x)
	return m.Values[i], m.Mask[i]
}

// Set stores a value and mask state at (band, y, x).
func (m *Masked) Set(band, y, x int, v float64, masked bool) {
	i := m.index(band, y, x)
	m.Values[i] = v
	m.Mask[i] = masked
}

// AllMasked reports whether every element is masked, i.e. the array is
// semantically empty.
func (m *Masked) AllMasked() bool {
	for _, masked := range m.Mask {
		if !masked {
			return false
		}
	}
	return true
}

// Plane returns the value and mask slices of one band, aliasing m.
func (m *Masked) Plane(band int) (values []float64, mask []bool) {
	off := band * m.Height * m.Width
	n := m.Height * m.Width
	return m.Values[off : off+n], m.Mask[off : off+n]
}

// Select returns a new array holding the requested bands in the requested
// order. Band indexes are 1-based; duplicates and reordering are allowed.
func (m *Masked) Select(indexes ...int) (*Masked, error) {
	out := New(m.Dtype, len(indexes), m.Height, m.Width)
	for bi, idx := range indexes {
		if idx < 1 || idx > m.Bands {
			return nil, fmt.Errorf("%w: band index %d outside 1..%d", ErrShape, idx, m.Bands)
		}
		vals, mask := m.Plane(idx - 1)
		ovals, omask := out.Plane(bi)
		copy(ovals, vals)
		copy(omask, mask)
	}
	return out, nil
}

// Window extracts a height×width view starting at pixel (y0, x0) of every
// band. Pixels outside the source extent are filled with nodata and masked,
// so a window may extend past the source array.
func (m *Masked) Window(y0, x0, height, width int, nodata float64) *Masked {
	out := New(m.Dtype, m.Bands, height, width)
	for b := 0; b < m.Bands; b++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				sy, sx := y0+y, x0+x
				if sy < 0 || sy >= m.Height || sx < 0 || sx >= m.Width {
					out.Set(b, y, x, nodata, true)
					continue
				}
				v, masked := m.At(b, sy, sx)
				out.Set(b, y, x, v, masked)
			}
		}
	}
	return out
}

// Prepare normalizes incoming data against the output contract: the result
// has exactly the target dtype and band count, masked elements hold nodata,
// and any unmasked element equal to nodata becomes masked. Input that is
// already masked keeps its mask, combined with the inferred nodata mask.
// A band-count mismatch fails with ErrShape.
func Prepare(in *Masked, dtype Dtype, nodata float64, bands int) (*Masked, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: nil input", ErrShape)
	}
	if in.Bands != bands {
		return nil, fmt.Errorf("%w: %d bands, expected %d", ErrShape, in.Bands, bands)
	}
	out := New(dtype, in.Bands, in.Height, in.Width)
	for i, v := range in.Values {
		v = dtype.Cast(v)
		masked := in.Mask[i] || v == nodata
		if masked {
			v = nodata
		}
		out.Values[i] = v
		out.Mask[i] = masked
	}
	return out, nil
}
