package geotiff

import (
	"errors"
	"math"
	"testing"

	"github.com/ungarj/mapchete-s3/raster"
)

func testArray(t *testing.T, dtype raster.Dtype, bands int) *raster.Masked {
	t.Helper()
	a := raster.New(dtype, bands, 16, 16)
	for b := 0; b < bands; b++ {
		vals, mask := a.Plane(b)
		for i := range vals {
			vals[i] = float64((b*31 + i) % 200)
			if vals[i] == 0 {
				vals[i] = 1 // keep clear of the nodata value
			}
		}
		mask[b] = true // one masked pixel per band
		vals[b] = 0
	}
	return a
}

func roundTrip(t *testing.T, a *raster.Masked, p Profile) (*raster.Masked, *Info) {
	t.Helper()
	body, err := Encode(a, p)
	if err != nil {
		t.Fatal(err)
	}
	got, info, err := Decode(body)
	if err != nil {
		t.Fatal(err)
	}
	return got, info
}

func assertEqual(t *testing.T, a, got *raster.Masked) {
	t.Helper()
	if got.Bands != a.Bands || got.Height != a.Height || got.Width != a.Width || got.Dtype != a.Dtype {
		t.Fatalf("shape/dtype mismatch: got %d/%dx%d %s", got.Bands, got.Height, got.Width, got.Dtype)
	}
	for i := range a.Values {
		if got.Values[i] != a.Values[i] {
			t.Fatalf("value %d: got %v, want %v", i, got.Values[i], a.Values[i])
		}
		if got.Mask[i] != a.Mask[i] {
			t.Fatalf("mask %d: got %v, want %v", i, got.Mask[i], a.Mask[i])
		}
	}
}

func TestRoundTripCompressions(t *testing.T) {
	nodata := 0.0
	transform := [6]float64{0, 0.3515625, 0, 5.625, 0, -0.3515625}
	proj4 := "+proj=longlat +ellps=WGS84 +datum=WGS84 +no_defs"

	for _, tc := range []struct {
		name      string
		dtype     raster.Dtype
		compress  string
		predictor int
	}{
		{"uncompressed uint8", raster.Uint8, "", 0},
		{"deflate uint8", raster.Uint8, "deflate", 0},
		{"deflate predictor int16", raster.Int16, "deflate", 2},
		{"zstd uint16", raster.Uint16, "zstd", 0},
		{"deflate float32", raster.Float32, "deflate", 0},
		{"uncompressed float64", raster.Float64, "", 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			a := testArray(t, tc.dtype, 3)
			got, info := roundTrip(t, a, Profile{
				Transform: transform,
				Proj4:     proj4,
				Nodata:    &nodata,
				Compress:  tc.compress,
				Predictor: tc.predictor,
			})
			assertEqual(t, a, got)
			if info.Proj4 != proj4 {
				t.Errorf("proj4: got %q", info.Proj4)
			}
			if info.Nodata == nil || *info.Nodata != nodata {
				t.Errorf("nodata: got %v", info.Nodata)
			}
			for i := range transform {
				if math.Abs(info.Transform[i]-transform[i]) > 1e-12 {
					t.Errorf("transform[%d]: got %v, want %v", i, info.Transform[i], transform[i])
				}
			}
		})
	}
}

func TestRoundTripNegativeValues(t *testing.T) {
	nodata := -9999.0
	a := raster.New(raster.Int16, 1, 8, 8)
	vals, _ := a.Plane(0)
	for i := range vals {
		vals[i] = float64(-100 + i*7)
	}
	got, _ := roundTrip(t, a, Profile{Nodata: &nodata, Compress: "deflate", Predictor: 2})
	assertEqual(t, a, got)
}

func TestRoundTripTags(t *testing.T) {
	a := testArray(t, raster.Uint8, 1)
	nodata := 0.0
	tags := map[string]string{"generator": "unit test", "quoting": `a<b & "c"`}
	_, info := roundTrip(t, a, Profile{Nodata: &nodata, Tags: tags})
	if len(info.Tags) != len(tags) {
		t.Fatalf("tags: got %v", info.Tags)
	}
	for k, v := range tags {
		if info.Tags[k] != v {
			t.Errorf("tag %q: got %q, want %q", k, info.Tags[k], v)
		}
	}
}

func TestNoNodataMeansNoMask(t *testing.T) {
	a := raster.New(raster.Uint8, 1, 4, 4)
	got, info := roundTrip(t, a, Profile{})
	if info.Nodata != nil {
		t.Fatalf("nodata: got %v", *info.Nodata)
	}
	if got.AllMasked() {
		t.Fatal("decoded array must be fully valid without nodata")
	}
	for _, m := range got.Mask {
		if m {
			t.Fatal("unexpected masked element")
		}
	}
}

func TestPredictorRequiresInteger(t *testing.T) {
	a := raster.New(raster.Float32, 1, 4, 4)
	if _, err := Encode(a, Profile{Predictor: 2}); err == nil {
		t.Fatal("predictor 2 on float samples accepted")
	}
}

func TestEncodeRejectsUnknownCompression(t *testing.T) {
	a := raster.New(raster.Uint8, 1, 4, 4)
	if _, err := Encode(a, Profile{Compress: "lzw"}); err == nil {
		t.Fatal("unknown compression accepted")
	}
}

func TestDecodeCorrupt(t *testing.T) {
	for _, body := range [][]byte{
		nil,
		[]byte("not a tiff at all"),
		{'I', 'I', 42, 0, 0xff, 0xff, 0xff, 0xff}, // IFD offset out of range
	} {
		if _, _, err := Decode(body); !errors.Is(err, ErrCorrupt) {
			t.Errorf("Decode(%q): got %v, want ErrCorrupt", body, err)
		}
	}

	// flip a strip byte of a valid container so decompression fails
	nodata := 0.0
	body, err := Encode(testArray(t, raster.Uint8, 1), Profile{Nodata: &nodata, Compress: "deflate"})
	if err != nil {
		t.Fatal(err)
	}
	body[len(body)-3] ^= 0xff
	if _, _, err := Decode(body); !errors.Is(err, ErrCorrupt) {
		t.Errorf("corrupted strip: got %v, want ErrCorrupt", err)
	}
}
