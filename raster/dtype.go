package raster

import (
	"fmt"
	"math"
)

// Dtype identifies the pixel data type of a raster band. Names follow the
// GDAL/numpy convention used in output profiles ("uint8", "float32", ...).
type Dtype int

const (
	Uint8 Dtype = iota
	Uint16
	Uint32
	Int16
	Int32
	Float32
	Float64
)

var dtypeNames = map[Dtype]string{
	Uint8:   "uint8",
	Uint16:  "uint16",
	Uint32:  "uint32",
	Int16:   "int16",
	Int32:   "int32",
	Float32: "float32",
	Float64: "float64",
}

// ParseDtype resolves a dtype name from an output profile.
func ParseDtype(s string) (Dtype, error) {
	for dt, name := range dtypeNames {
		if name == s {
			return dt, nil
		}
	}
	return 0, fmt.Errorf("unsupported dtype %q", s)
}

func (d Dtype) String() string { return dtypeNames[d] }

// Size returns the width of one sample in bytes.
func (d Dtype) Size() int {
	switch d {
	case Uint8:
		return 1
	case Uint16, Int16:
		return 2
	case Uint32, Int32, Float32:
		return 4
	default:
		return 8
	}
}

// Integer reports whether the dtype is an integer type.
func (d Dtype) Integer() bool {
	return d != Float32 && d != Float64
}

// Range returns the representable value range of an integer dtype.
func (d Dtype) Range() (lo, hi float64) {
	switch d {
	case Uint8:
		return 0, math.MaxUint8
	case Uint16:
		return 0, math.MaxUint16
	case Uint32:
		return 0, math.MaxUint32
	case Int16:
		return math.MinInt16, math.MaxInt16
	case Int32:
		return math.MinInt32, math.MaxInt32
	default:
		return math.Inf(-1), math.Inf(1)
	}
}

// Cast coerces v to the nearest value representable in the dtype: integer
// types round and saturate, Float32 loses excess precision, Float64 is
// returned unchanged.
func (d Dtype) Cast(v float64) float64 {
	switch d {
	case Float64:
		return v
	case Float32:
		return float64(float32(v))
	default:
		lo, hi := d.Range()
		v = math.Round(v)
		if v < lo {
			return lo
		}
		if v > hi {
			return hi
		}
		return v
	}
}
