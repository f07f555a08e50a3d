package geotiff

import (
	"bytes"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/ungarj/mapchete-s3/raster"
)

// entry is one IFD field before layout. data holds the raw value bytes;
// values of four bytes or fewer are stored inline, larger ones are placed in
// the overflow area behind the IFD.
type entry struct {
	tag   uint16
	typ   uint16
	count uint32
	data  []byte
}

// Encode serializes a masked array into a tile container. Masked pixels are
// written as the nodata value (zero when no nodata is configured), so the
// mask survives as the stored nodata encoding.
func Encode(a *raster.Masked, p Profile) ([]byte, error) {
	if a == nil || a.Bands < 1 || a.Height < 1 || a.Width < 1 {
		return nil, fmt.Errorf("geotiff: cannot encode empty array")
	}
	comp, err := compressionCode(p.Compress)
	if err != nil {
		return nil, fmt.Errorf("geotiff: %w", err)
	}
	predict := p.Predictor == 2
	if predict && !a.Dtype.Integer() {
		return nil, fmt.Errorf("geotiff: predictor 2 requires an integer dtype, have %s", a.Dtype)
	}

	fill := 0.0
	if p.Nodata != nil {
		fill = *p.Nodata
	}

	strips := make([][]byte, a.Bands)
	for b := 0; b < a.Bands; b++ {
		raw := encodePlane(a, b, fill)
		if predict {
			predictRows(raw, a.Dtype.Size(), a.Width)
		}
		strips[b], err = compress(comp, raw)
		if err != nil {
			return nil, fmt.Errorf("geotiff: compress band %d: %w", b+1, err)
		}
	}

	bits, format := dtypeFormat(a.Dtype)
	entries := []entry{
		longEntry(tagImageWidth, uint32(a.Width)),
		longEntry(tagImageLength, uint32(a.Height)),
		shortsEntry(tagBitsPerSample, repeatShort(bits, a.Bands)),
		shortsEntry(tagCompression, []uint16{comp}),
		shortsEntry(tagPhotometric, []uint16{1}), // BlackIsZero
		{tag: tagStripOffsets, typ: typeLong, count: uint32(a.Bands)}, // patched below
		shortsEntry(tagSamplesPerPixel, []uint16{uint16(a.Bands)}),
		longEntry(tagRowsPerStrip, uint32(a.Height)),
		longsEntry(tagStripByteCounts, stripLengths(strips)),
		shortsEntry(tagPlanarConfig, []uint16{2}), // band-sequential
	}
	if predict {
		entries = append(entries, shortsEntry(tagPredictor, []uint16{2}))
	}
	entries = append(entries, shortsEntry(tagSampleFormat, repeatShort(format, a.Bands)))
	entries = append(entries,
		doublesEntry(tagModelPixelScale, []float64{p.Transform[1], -p.Transform[5], 0}),
		doublesEntry(tagModelTiepoint, []float64{0, 0, 0, p.Transform[0], p.Transform[3], 0}),
	)
	if p.Proj4 != "" {
		ascii := p.Proj4 + "|"
		entries = append(entries,
			shortsEntry(tagGeoKeyDirectory, []uint16{
				1, 1, 0, 3,
				keyModelType, 0, 1, modelTypeUserDefined,
				keyRasterType, 0, 1, rasterPixelIsArea,
				keyCitation, tagGeoAsciiParams, uint16(len(ascii)), 0,
			}),
			asciiEntry(tagGeoAsciiParams, ascii),
		)
	}
	if len(p.Tags) > 0 {
		entries = append(entries, asciiEntry(tagGDALMetadata, metadataXML(p.Tags)))
	}
	if p.Nodata != nil {
		entries = append(entries, asciiEntry(tagGDALNodata, formatNodata(*p.Nodata)))
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	return layout(entries, strips)
}

// layout assembles header, IFD, overflow values and strip data, patching the
// strip offsets once the data start is known.
func layout(entries []entry, strips [][]byte) ([]byte, error) {
	ifdStart := uint32(8)
	ifdSize := uint32(2 + 12*len(entries) + 4)
	extraStart := ifdStart + ifdSize

	extraSize := uint32(0)
	for _, e := range entries {
		if e.tag == tagStripOffsets {
			if len(strips) > 1 {
				extraSize += even(uint32(4 * len(strips)))
			}
			continue
		}
		if len(e.data) > 4 {
			extraSize += even(uint32(len(e.data)))
		}
	}

	dataStart := extraStart + extraSize
	offsets := make([]uint32, len(strips))
	pos := dataStart
	for i, s := range strips {
		offsets[i] = pos
		pos += even(uint32(len(s)))
	}
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			entries[i].data = longsData(offsets)
		}
	}

	var buf bytes.Buffer
	buf.Grow(int(pos))
	buf.WriteString("II")
	writeU16(&buf, 42)
	writeU32(&buf, ifdStart)

	// IFD, remembering overflow values to append behind it.
	writeU16(&buf, uint16(len(entries)))
	var extras bytes.Buffer
	for _, e := range entries {
		writeU16(&buf, e.tag)
		writeU16(&buf, e.typ)
		writeU32(&buf, e.count)
		if len(e.data) <= 4 {
			var inline [4]byte
			copy(inline[:], e.data)
			buf.Write(inline[:])
			continue
		}
		writeU32(&buf, extraStart+uint32(extras.Len()))
		extras.Write(e.data)
		if extras.Len()%2 != 0 {
			extras.WriteByte(0)
		}
	}
	writeU32(&buf, 0) // no further IFD
	buf.Write(extras.Bytes())

	for _, s := range strips {
		buf.Write(s)
		if buf.Len()%2 != 0 {
			buf.WriteByte(0)
		}
	}
	return buf.Bytes(), nil
}

// encodePlane serializes one band to little-endian samples, substituting the
// fill value for masked pixels.
func encodePlane(a *raster.Masked, band int, fill float64) []byte {
	vals, mask := a.Plane(band)
	size := a.Dtype.Size()
	out := make([]byte, len(vals)*size)
	for i, v := range vals {
		if mask[i] {
			v = fill
		}
		putSample(out[i*size:], a.Dtype, v)
	}
	return out
}

func putSample(dst []byte, d raster.Dtype, v float64) {
	switch d {
	case raster.Uint8:
		dst[0] = uint8(v)
	case raster.Uint16:
		binary.LittleEndian.PutUint16(dst, uint16(v))
	case raster.Uint32:
		binary.LittleEndian.PutUint32(dst, uint32(v))
	case raster.Int16:
		binary.LittleEndian.PutUint16(dst, uint16(int16(v)))
	case raster.Int32:
		binary.LittleEndian.PutUint32(dst, uint32(int32(v)))
	case raster.Float32:
		binary.LittleEndian.PutUint32(dst, math.Float32bits(float32(v)))
	default:
		binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
	}
}

// predictRows applies horizontal differencing in place: each sample becomes
// the difference to its left neighbour, modulo the sample width.
func predictRows(raw []byte, size, width int) {
	rowBytes := width * size
	for row := 0; row < len(raw)/rowBytes; row++ {
		r := raw[row*rowBytes : (row+1)*rowBytes]
		for x := width - 1; x >= 1; x-- {
			cur := readUint(r[x*size:], size)
			prev := readUint(r[(x-1)*size:], size)
			writeUint(r[x*size:], size, cur-prev)
		}
	}
}

func readUint(b []byte, size int) uint64 {
	switch size {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func writeUint(b []byte, size int, v uint64) {
	switch size {
	case 1:
		b[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}

func compress(code uint16, raw []byte) ([]byte, error) {
	switch code {
	case compNone:
		return raw, nil
	case compDeflate:
		var buf bytes.Buffer
		zw := zlib.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case compZstd:
		zw, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer zw.Close()
		return zw.EncodeAll(raw, nil), nil
	}
	return nil, fmt.Errorf("unsupported compression code %d", code)
}

func metadataXML(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteString("<GDALMetadata>\n")
	for _, k := range keys {
		buf.WriteString(`  <Item name="`)
		xml.EscapeText(&buf, []byte(k))
		buf.WriteString(`">`)
		xml.EscapeText(&buf, []byte(tags[k]))
		buf.WriteString("</Item>\n")
	}
	buf.WriteString("</GDALMetadata>\n")
	return buf.String()
}

func formatNodata(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func even(n uint32) uint32 {
	return n + n%2
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func longEntry(tag uint16, v uint32) entry {
	return entry{tag: tag, typ: typeLong, count: 1, data: longsData([]uint32{v})}
}

func longsEntry(tag uint16, vs []uint32) entry {
	return entry{tag: tag, typ: typeLong, count: uint32(len(vs)), data: longsData(vs)}
}

func longsData(vs []uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[i*4:], v)
	}
	return b
}

func shortsEntry(tag uint16, vs []uint16) entry {
	b := make([]byte, 2*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return entry{tag: tag, typ: typeShort, count: uint32(len(vs)), data: b}
}

func doublesEntry(tag uint16, vs []float64) entry {
	b := make([]byte, 8*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint64(b[i*8:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: uint32(len(vs)), data: b}
}

// asciiEntry appends the terminating NUL the TIFF ASCII type requires.
func asciiEntry(tag uint16, s string) entry {
	b := append([]byte(s), 0)
	return entry{tag: tag, typ: typeASCII, count: uint32(len(b)), data: b}
}

func repeatShort(v uint16, n int) []uint16 {
	vs := make([]uint16, n)
	for i := range vs {
		vs[i] = v
	}
	return vs
}

func stripLengths(strips [][]byte) []uint32 {
	ls := make([]uint32, len(strips))
	for i, s := range strips {
		ls[i] = uint32(len(s))
	}
	return ls
}
