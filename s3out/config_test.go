package s3out

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfig(t *testing.T) {
	doc := `
profile:
  driver: GTiff
  bands: 3
  dtype: uint16
  nodata: -9999
  compress: deflate
  predictor: 2
basekey: _test/run1
bucket: tiles
scheme: mem
pyramid:
  grid: geodetic
  metatiling: 2
  pixelbuffer: 8
`
	path := filepath.Join(t.TempDir(), "output.yml")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Profile.Bands != 3 || cfg.Profile.Dtype != "uint16" {
		t.Fatalf("profile: %+v", cfg.Profile)
	}
	if cfg.Profile.Nodata == nil || *cfg.Profile.Nodata != -9999 {
		t.Fatalf("nodata: %v", cfg.Profile.Nodata)
	}
	if cfg.Profile.Predictor == nil || *cfg.Profile.Predictor != 2 {
		t.Fatalf("predictor: %v", cfg.Profile.Predictor)
	}
	if cfg.Bucket != "tiles" || cfg.Basekey != "_test/run1" || cfg.Scheme != "mem" {
		t.Fatalf("addressing: %+v", cfg)
	}

	p, err := cfg.OutputPyramid()
	if err != nil {
		t.Fatal(err)
	}
	rows, cols := p.Matrix(5)
	if rows != 16 || cols != 32 {
		t.Fatalf("metatiled matrix: %dx%d", rows, cols)
	}
}

func TestLoadConfigBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.yml")
	if err := os.WriteFile(path, []byte("profile: [not a mapping"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadConfig(path); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("got %v, want ErrInvalidConfig", err)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestIsValidWithConfig(t *testing.T) {
	full := func() map[string]interface{} {
		return map[string]interface{}{
			"profile": map[string]interface{}{
				"driver": "GTiff",
				"bands":  float64(3), // YAML numbers decode as float64
				"dtype":  "uint8",
			},
			"basekey": "_test/run1",
			"bucket":  "b",
		}
	}

	if !IsValidWithConfig(full()) {
		t.Fatal("complete mapping rejected")
	}

	for name, mutate := range map[string]func(map[string]interface{}){
		"missing bucket":       func(m map[string]interface{}) { delete(m, "bucket") },
		"missing basekey":      func(m map[string]interface{}) { delete(m, "basekey") },
		"missing profile":      func(m map[string]interface{}) { delete(m, "profile") },
		"profile not mapping":  func(m map[string]interface{}) { m["profile"] = "GTiff" },
		"bucket not string":    func(m map[string]interface{}) { m["bucket"] = 7 },
		"fractional bands":     func(m map[string]interface{}) { m["profile"].(map[string]interface{})["bands"] = 1.5 },
		"missing driver":       func(m map[string]interface{}) { delete(m["profile"].(map[string]interface{}), "driver") },
		"missing dtype":        func(m map[string]interface{}) { delete(m["profile"].(map[string]interface{}), "dtype") },
		"bands not numeric":    func(m map[string]interface{}) { m["profile"].(map[string]interface{})["bands"] = "three" },
	} {
		m := full()
		mutate(m)
		if IsValidWithConfig(m) {
			t.Errorf("%s: accepted", name)
		}
	}

	if IsValidWithConfig(nil) {
		t.Error("nil mapping accepted")
	}
}
