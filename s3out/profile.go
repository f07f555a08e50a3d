package s3out

import (
	"github.com/ungarj/mapchete-s3/raster"
	"github.com/ungarj/mapchete-s3/tile"
)

// Profile is the per-tile encoding profile derived from the static output
// configuration. Without a tile it is dimensionless: it describes the format
// only and carries no placement fields.
type Profile struct {
	Driver    string
	Count     int
	Dtype     raster.Dtype
	Nodata    *float64
	Compress  string
	Predictor int

	// Placement, set only when the profile was built for a tile.
	Georeferenced bool
	CRS           string
	Width, Height int
	Transform     [6]float64
}

// Profile builds the encoding profile, optionally placed on a tile.
//
// The deprecated "compression" key is honored when "compress" is absent and
// reported once; "compress" wins when both are set. A predictor is only
// carried alongside a compression choice.
func (o *OutputData) Profile(t *tile.Tile) Profile {
	cfg := o.cfg.Profile
	p := Profile{
		Driver: "GTiff",
		Count:  cfg.Bands,
		Dtype:  o.dtype,
		Nodata: cfg.Nodata,
	}

	compress := cfg.Compress
	if cfg.Compression != "" {
		if compress == "" {
			compress = cfg.Compression
		}
		o.warnCompression.Do(func() {
			o.log.Warn("'compression' is deprecated, use 'compress'")
		})
	}
	if compress != "" {
		p.Compress = compress
		if cfg.Predictor != nil {
			p.Predictor = *cfg.Predictor
		}
	}

	if t != nil {
		h, w := t.Shape()
		p.Georeferenced = true
		p.CRS = t.Pyramid().Proj4()
		p.Width = w
		p.Height = h
		p.Transform = t.Affine()
	}
	return p
}
