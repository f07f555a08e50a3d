package s3out

import (
	"fmt"
	"math"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/ungarj/mapchete-s3/raster"
	"github.com/ungarj/mapchete-s3/tile"
)

// Config is the static output configuration the driver is constructed with.
type Config struct {
	Profile ProfileConfig `json:"profile"`
	Basekey string        `json:"basekey"`
	Bucket  string        `json:"bucket"`
	// Scheme selects the object store backend; defaults to "s3".
	Scheme string `json:"scheme,omitempty"`
	// Pyramid describes the output tile grid.
	Pyramid PyramidConfig `json:"pyramid,omitempty"`
}

// ProfileConfig is the configured output format.
type ProfileConfig struct {
	Driver string   `json:"driver"`
	Bands  int      `json:"bands"`
	Dtype  string   `json:"dtype"`
	Nodata *float64 `json:"nodata,omitempty"`
	// Compress selects the container compression. Compression is the
	// deprecated spelling; Compress wins when both are set.
	Compress    string `json:"compress,omitempty"`
	Compression string `json:"compression,omitempty"`
	Predictor   *int   `json:"predictor,omitempty"`
}

// PyramidConfig describes the output grid.
type PyramidConfig struct {
	Grid        string `json:"grid,omitempty"`
	Metatiling  int    `json:"metatiling,omitempty"`
	Pixelbuffer int    `json:"pixelbuffer,omitempty"`
	TileSize    int    `json:"tile_size,omitempty"`
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return cfg, nil
}

var compressNames = map[string]bool{
	"": true, "none": true, "deflate": true, "zstd": true,
}

// Validate checks the configuration before any I/O happens.
func (c Config) Validate() error {
	if c.Profile.Driver != "GTiff" {
		return fmt.Errorf("%w: drivers other than GTiff not supported, got %q",
			ErrInvalidConfig, c.Profile.Driver)
	}
	if c.Profile.Bands < 1 {
		return fmt.Errorf("%w: bands must be positive, got %d", ErrInvalidConfig, c.Profile.Bands)
	}
	if _, err := raster.ParseDtype(c.Profile.Dtype); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !compressNames[c.Profile.Compress] {
		return fmt.Errorf("%w: unknown compress %q", ErrInvalidConfig, c.Profile.Compress)
	}
	if !compressNames[c.Profile.Compression] {
		return fmt.Errorf("%w: unknown compression %q", ErrInvalidConfig, c.Profile.Compression)
	}
	if p := c.Profile.Predictor; p != nil && *p != 1 && *p != 2 {
		return fmt.Errorf("%w: predictor must be 1 or 2, got %d", ErrInvalidConfig, *p)
	}
	if c.Bucket == "" {
		return fmt.Errorf("%w: missing bucket", ErrInvalidConfig)
	}
	if c.Basekey == "" {
		return fmt.Errorf("%w: missing basekey", ErrInvalidConfig)
	}
	switch c.Scheme {
	case "", "s3", "gs", "mem":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidConfig, c.Scheme)
	}
	return nil
}

func (c Config) scheme() string {
	if c.Scheme == "" {
		return "s3"
	}
	return c.Scheme
}

// OutputPyramid builds the output tile pyramid from the configuration.
func (c Config) OutputPyramid() (*tile.Pyramid, error) {
	grid := c.Pyramid.Grid
	if grid == "" {
		grid = "geodetic"
	}
	var opts []tile.Option
	if c.Pyramid.Metatiling > 0 {
		opts = append(opts, tile.Metatiling(c.Pyramid.Metatiling))
	}
	if c.Pyramid.Pixelbuffer > 0 {
		opts = append(opts, tile.Pixelbuffer(c.Pyramid.Pixelbuffer))
	}
	if c.Pyramid.TileSize > 0 {
		opts = append(opts, tile.TileSize(c.Pyramid.TileSize))
	}
	p, err := tile.NewPyramid(grid, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return p, nil
}

// IsValidWithConfig reports whether a generic configuration mapping (as
// parsed from a YAML process config) carries everything this driver needs.
func IsValidWithConfig(config map[string]interface{}) bool {
	if !validateValues(config,
		check{"profile", kindMap}, check{"basekey", kindString}, check{"bucket", kindString}) {
		return false
	}
	profile := config["profile"].(map[string]interface{})
	return validateValues(profile,
		check{"driver", kindString}, check{"bands", kindInt}, check{"dtype", kindString})
}

type kind int

const (
	kindMap kind = iota
	kindString
	kindInt
)

type check struct {
	key  string
	kind kind
}

func validateValues(m map[string]interface{}, checks ...check) bool {
	if m == nil {
		return false
	}
	for _, c := range checks {
		v, ok := m[c.key]
		if !ok {
			return false
		}
		switch c.kind {
		case kindMap:
			if _, ok := v.(map[string]interface{}); !ok {
				return false
			}
		case kindString:
			if _, ok := v.(string); !ok {
				return false
			}
		case kindInt:
			// YAML numbers decode as float64; require an integral value.
			switch n := v.(type) {
			case int:
			case int64:
			case float64:
				if n != math.Trunc(n) {
					return false
				}
			default:
				return false
			}
		}
	}
	return true
}
