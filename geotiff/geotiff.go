// Package geotiff encodes and decodes the raster containers stored per output
// tile: single-IFD little-endian GeoTIFFs with band-sequential strips, a
// nodata declaration, a geotransform, a CRS citation carrying the proj4
// string, and optional embedded metadata tags.
//
// Supported sample types are the raster.Dtype set; supported compressions are
// "none", "deflate" (zlib strips) and "zstd", optionally with the horizontal
// differencing predictor for integer samples.
package geotiff

import (
	"errors"
	"fmt"

	"github.com/ungarj/mapchete-s3/raster"
)

// ErrCorrupt marks a stored object that cannot be decoded as a tile
// container. It is distinct from a missing object.
var ErrCorrupt = errors.New("geotiff: corrupt or unsupported container")

// Profile carries the encoding parameters for one container.
type Profile struct {
	// Transform is the GDAL-style geotransform
	// {origin x, pixel width, 0, origin y, 0, -pixel height}.
	Transform [6]float64
	// Proj4 is the CRS proj4 string, stored as the GeoTIFF citation.
	Proj4 string
	// Nodata, when set, is written as the GDAL nodata declaration and fills
	// masked pixels.
	Nodata *float64
	// Compress selects the strip compression: "", "none", "deflate", "zstd".
	Compress string
	// Predictor 2 enables horizontal differencing (integer samples only).
	// 0 and 1 mean no prediction.
	Predictor int
	// Tags are embedded as GDAL metadata items.
	Tags map[string]string
}

// Info describes a decoded container.
type Info struct {
	Width, Height, Bands int
	Dtype                raster.Dtype
	Transform            [6]float64
	Proj4                string
	Nodata               *float64
	Tags                 map[string]string
}

// TIFF field types.
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

// TIFF tags.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGeoAsciiParams  = 34737
	tagGDALMetadata    = 42112
	tagGDALNodata      = 42113
)

// Compression codes.
const (
	compNone       = 1
	compDeflate    = 8
	compDeflateOld = 32946 // legacy deflate code, accepted on decode
	compZstd       = 50000 // GDAL zstd extension
)

// GeoTIFF keys.
const (
	keyModelType  = 1024
	keyRasterType = 1025
	keyCitation   = 1026

	modelTypeUserDefined = 32767
	rasterPixelIsArea    = 1
)

// sample format codes
const (
	sfUnsigned = 1
	sfSigned   = 2
	sfFloat    = 3
)

func dtypeFormat(d raster.Dtype) (bits, format uint16) {
	bits = uint16(d.Size() * 8)
	switch d {
	case raster.Int16, raster.Int32:
		format = sfSigned
	case raster.Float32, raster.Float64:
		format = sfFloat
	default:
		format = sfUnsigned
	}
	return bits, format
}

func formatDtype(bits, format uint16) (raster.Dtype, error) {
	switch {
	case format == sfUnsigned && bits == 8:
		return raster.Uint8, nil
	case format == sfUnsigned && bits == 16:
		return raster.Uint16, nil
	case format == sfUnsigned && bits == 32:
		return raster.Uint32, nil
	case format == sfSigned && bits == 16:
		return raster.Int16, nil
	case format == sfSigned && bits == 32:
		return raster.Int32, nil
	case format == sfFloat && bits == 32:
		return raster.Float32, nil
	case format == sfFloat && bits == 64:
		return raster.Float64, nil
	}
	return 0, fmt.Errorf("%w: sample format %d with %d bits", ErrCorrupt, format, bits)
}

func compressionCode(name string) (uint16, error) {
	switch name {
	case "", "none":
		return compNone, nil
	case "deflate":
		return compDeflate, nil
	case "zstd":
		return compZstd, nil
	}
	return 0, fmt.Errorf("unsupported compression %q", name)
}
