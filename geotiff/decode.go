package geotiff

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/ungarj/mapchete-s3/raster"
)

// field is one parsed IFD entry with its value bytes resolved.
type field struct {
	typ   uint16
	count uint32
	data  []byte
}

var typeSizes = map[uint16]uint32{
	1: 1, typeASCII: 1, typeShort: 2, typeLong: 4,
	6: 1, 7: 1, 8: 2, 9: 4, 11: 4, typeDouble: 8, 5: 8, 10: 8,
}

// Decode parses a tile container back into a masked array. The mask is
// rebuilt from the stored nodata declaration; without one the result is fully
// valid. Undecodable input fails with an error wrapping ErrCorrupt.
func Decode(b []byte) (*raster.Masked, *Info, error) {
	fields, err := parseIFD(b)
	if err != nil {
		return nil, nil, err
	}

	width, err := fieldInt(fields, tagImageWidth)
	if err != nil {
		return nil, nil, err
	}
	height, err := fieldInt(fields, tagImageLength)
	if err != nil {
		return nil, nil, err
	}
	bands := fieldIntDefault(fields, tagSamplesPerPixel, 1)
	if width < 1 || height < 1 || bands < 1 {
		return nil, nil, fmt.Errorf("%w: %dx%d with %d bands", ErrCorrupt, width, height, bands)
	}

	bits := uint16(fieldIntDefault(fields, tagBitsPerSample, 8))
	format := uint16(fieldIntDefault(fields, tagSampleFormat, sfUnsigned))
	dtype, err := formatDtype(bits, format)
	if err != nil {
		return nil, nil, err
	}

	planar := fieldIntDefault(fields, tagPlanarConfig, 1)
	if planar != 2 && bands != 1 {
		return nil, nil, fmt.Errorf("%w: interleaved multiband layout", ErrCorrupt)
	}
	rowsPerStrip := fieldIntDefault(fields, tagRowsPerStrip, height)
	if rowsPerStrip < height {
		return nil, nil, fmt.Errorf("%w: multiple strips per band", ErrCorrupt)
	}
	offsets, err := fieldInts(fields, tagStripOffsets)
	if err != nil {
		return nil, nil, err
	}
	counts, err := fieldInts(fields, tagStripByteCounts)
	if err != nil {
		return nil, nil, err
	}
	if len(offsets) != bands || len(counts) != bands {
		return nil, nil, fmt.Errorf("%w: %d strips for %d bands", ErrCorrupt, len(offsets), bands)
	}

	comp := uint16(fieldIntDefault(fields, tagCompression, compNone))
	predictor := fieldIntDefault(fields, tagPredictor, 1)
	if predictor != 1 && predictor != 2 {
		return nil, nil, fmt.Errorf("%w: predictor %d", ErrCorrupt, predictor)
	}

	info := &Info{Width: width, Height: height, Bands: bands, Dtype: dtype}
	if scale, tie := fields[tagModelPixelScale], fields[tagModelTiepoint]; scale != nil && tie != nil {
		sv := fieldDoubles(scale)
		tv := fieldDoubles(tie)
		if len(sv) >= 2 && len(tv) >= 5 {
			info.Transform = [6]float64{tv[3], sv[0], 0, tv[4], 0, -sv[1]}
		}
	}
	if f := fields[tagGeoAsciiParams]; f != nil {
		info.Proj4 = strings.TrimSuffix(fieldASCII(f), "|")
	}
	if f := fields[tagGDALNodata]; f != nil {
		nd, err := strconv.ParseFloat(strings.TrimSpace(fieldASCII(f)), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: nodata %q", ErrCorrupt, fieldASCII(f))
		}
		info.Nodata = &nd
	}
	if f := fields[tagGDALMetadata]; f != nil {
		info.Tags, err = parseMetadataXML(fieldASCII(f))
		if err != nil {
			return nil, nil, err
		}
	}

	arr := raster.New(dtype, bands, height, width)
	planeBytes := width * height * dtype.Size()
	for band := 0; band < bands; band++ {
		off, n := offsets[band], counts[band]
		if off < 0 || n < 0 || off+n > len(b) {
			return nil, nil, fmt.Errorf("%w: strip %d out of range", ErrCorrupt, band)
		}
		raw, err := decompress(comp, b[off:off+n])
		if err != nil {
			return nil, nil, err
		}
		if len(raw) != planeBytes {
			return nil, nil, fmt.Errorf("%w: band %d holds %d bytes, want %d",
				ErrCorrupt, band+1, len(raw), planeBytes)
		}
		if predictor == 2 {
			if !dtype.Integer() {
				return nil, nil, fmt.Errorf("%w: predictor 2 on %s samples", ErrCorrupt, dtype)
			}
			unpredictRows(raw, dtype.Size(), width)
		}
		decodePlane(arr, band, raw, info.Nodata)
	}
	return arr, info, nil
}

func parseIFD(b []byte) (map[uint16]*field, error) {
	if len(b) < 8 || b[0] != 'I' || b[1] != 'I' || binary.LittleEndian.Uint16(b[2:]) != 42 {
		return nil, fmt.Errorf("%w: bad header", ErrCorrupt)
	}
	ifd := uint64(binary.LittleEndian.Uint32(b[4:]))
	if ifd+2 > uint64(len(b)) {
		return nil, fmt.Errorf("%w: IFD offset out of range", ErrCorrupt)
	}
	n := binary.LittleEndian.Uint16(b[ifd:])
	if ifd+2+12*uint64(n) > uint64(len(b)) {
		return nil, fmt.Errorf("%w: truncated IFD", ErrCorrupt)
	}

	fields := make(map[uint16]*field, n)
	for i := uint64(0); i < uint64(n); i++ {
		e := b[ifd+2+12*i:]
		tag := binary.LittleEndian.Uint16(e)
		typ := binary.LittleEndian.Uint16(e[2:])
		count := binary.LittleEndian.Uint32(e[4:])
		size, ok := typeSizes[typ]
		if !ok {
			continue // unknown field type, skip
		}
		total := uint64(size) * uint64(count)
		var data []byte
		if total <= 4 {
			data = e[8 : 8+total]
		} else {
			off := uint64(binary.LittleEndian.Uint32(e[8:]))
			if off+total > uint64(len(b)) {
				return nil, fmt.Errorf("%w: field %d value out of range", ErrCorrupt, tag)
			}
			data = b[off : off+total]
		}
		fields[tag] = &field{typ: typ, count: count, data: data}
	}
	return fields, nil
}

// fieldInt returns the first value of a SHORT or LONG field.
func fieldInt(fields map[uint16]*field, tag uint16) (int, error) {
	vs, err := fieldInts(fields, tag)
	if err != nil {
		return 0, err
	}
	return vs[0], nil
}

func fieldIntDefault(fields map[uint16]*field, tag uint16, def int) int {
	v, err := fieldInt(fields, tag)
	if err != nil {
		return def
	}
	return v
}

func fieldInts(fields map[uint16]*field, tag uint16) ([]int, error) {
	f := fields[tag]
	if f == nil || f.count == 0 {
		return nil, fmt.Errorf("%w: missing field %d", ErrCorrupt, tag)
	}
	vs := make([]int, f.count)
	for i := range vs {
		switch f.typ {
		case typeShort:
			vs[i] = int(binary.LittleEndian.Uint16(f.data[i*2:]))
		case typeLong:
			vs[i] = int(binary.LittleEndian.Uint32(f.data[i*4:]))
		default:
			return nil, fmt.Errorf("%w: field %d has type %d, want integer", ErrCorrupt, tag, f.typ)
		}
	}
	return vs, nil
}

func fieldDoubles(f *field) []float64 {
	if f.typ != typeDouble {
		return nil
	}
	vs := make([]float64, f.count)
	for i := range vs {
		vs[i] = math.Float64frombits(binary.LittleEndian.Uint64(f.data[i*8:]))
	}
	return vs
}

func fieldASCII(f *field) string {
	return strings.TrimRight(string(f.data), "\x00")
}

func decompress(code uint16, strip []byte) ([]byte, error) {
	switch code {
	case compNone:
		return strip, nil
	case compDeflate, compDeflateOld:
		zr, err := zlib.NewReader(bytes.NewReader(strip))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		defer zr.Close()
		raw, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return raw, nil
	case compZstd:
		zr, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		raw, err := zr.DecodeAll(strip, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("%w: compression code %d", ErrCorrupt, code)
}

// unpredictRows reverses horizontal differencing in place.
func unpredictRows(raw []byte, size, width int) {
	rowBytes := width * size
	for row := 0; row < len(raw)/rowBytes; row++ {
		r := raw[row*rowBytes : (row+1)*rowBytes]
		for x := 1; x < width; x++ {
			cur := readUint(r[x*size:], size)
			prev := readUint(r[(x-1)*size:], size)
			writeUint(r[x*size:], size, cur+prev)
		}
	}
}

func decodePlane(arr *raster.Masked, band int, raw []byte, nodata *float64) {
	vals, mask := arr.Plane(band)
	size := arr.Dtype.Size()
	for i := range vals {
		v := sampleAt(raw[i*size:], arr.Dtype)
		vals[i] = v
		if nodata != nil {
			mask[i] = v == *nodata || (math.IsNaN(*nodata) && math.IsNaN(v))
		}
	}
}

func sampleAt(b []byte, d raster.Dtype) float64 {
	switch d {
	case raster.Uint8:
		return float64(b[0])
	case raster.Uint16:
		return float64(binary.LittleEndian.Uint16(b))
	case raster.Uint32:
		return float64(binary.LittleEndian.Uint32(b))
	case raster.Int16:
		return float64(int16(binary.LittleEndian.Uint16(b)))
	case raster.Int32:
		return float64(int32(binary.LittleEndian.Uint32(b)))
	case raster.Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
	default:
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
}

type gdalMetadata struct {
	Items []struct {
		Name  string `xml:"name,attr"`
		Value string `xml:",chardata"`
	} `xml:"Item"`
}

func parseMetadataXML(s string) (map[string]string, error) {
	var md gdalMetadata
	if err := xml.Unmarshal([]byte(s), &md); err != nil {
		return nil, fmt.Errorf("%w: metadata: %v", ErrCorrupt, err)
	}
	tags := make(map[string]string, len(md.Items))
	for _, item := range md.Items {
		tags[item.Name] = item.Value
	}
	return tags, nil
}
