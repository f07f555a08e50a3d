// Package s3out is the raster output driver writing pyramid tiles to an
// object store: one GeoTIFF object per output tile, addressed by a
// deterministic bucket key, with idempotent overwrite and exact-key existence
// probing for resumable batch processing.
package s3out

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path"
	"strconv"
	"sync"

	"github.com/ungarj/mapchete-s3/geotiff"
	"github.com/ungarj/mapchete-s3/objstore"
	"github.com/ungarj/mapchete-s3/raster"
	"github.com/ungarj/mapchete-s3/tile"
)

// Extension is the file extension of every stored tile object.
const Extension = ".tif"

// DriverMetadata describes the driver to format registries.
type DriverMetadata struct {
	Name     string
	DataType string
	Mode     string
}

// Metadata is the registry descriptor of this driver.
var Metadata = DriverMetadata{Name: "s3", DataType: "raster", Mode: "rw"}

// OutputDriver is the capability set a raster output driver exposes to the
// process orchestrator.
type OutputDriver interface {
	Read(ctx context.Context, outputTile tile.Tile) (*raster.Masked, error)
	Write(ctx context.Context, processTile tile.Tile, data *raster.Masked, tags map[string]string) error
	TilesExist(ctx context.Context, processTile, outputTile *tile.Tile) (bool, error)
	Empty(t tile.Tile) *raster.Masked
	Profile(t *tile.Tile) Profile
	GetPath(t tile.Tile) string
	Open(t tile.Tile, process Process, resampling string) *InputTile
}

// OutputData writes and reads raster tiles in one bucket. It holds a single
// reusable object store handle; all methods are safe for concurrent use.
type OutputData struct {
	cfg     Config
	dtype   raster.Dtype
	nodata  float64
	pyramid *tile.Pyramid
	bucket  objstore.Bucket
	log     *slog.Logger

	warnCompression sync.Once
}

var _ OutputDriver = (*OutputData)(nil)

// Option adjusts driver construction.
type Option func(*OutputData)

// WithBucket injects an object store handle, replacing the one the
// configuration scheme would construct.
func WithBucket(b objstore.Bucket) Option { return func(o *OutputData) { o.bucket = b } }

// WithPyramid overrides the output pyramid from the configuration.
func WithPyramid(p *tile.Pyramid) Option { return func(o *OutputData) { o.pyramid = p } }

// WithLogger sets the driver logger.
func WithLogger(l *slog.Logger) Option { return func(o *OutputData) { o.log = l } }

// New validates the configuration, builds the output pyramid and opens the
// object store handle. All configuration errors surface here, before any
// tile I/O.
func New(ctx context.Context, cfg Config, opts ...Option) (*OutputData, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dtype, err := raster.ParseDtype(cfg.Profile.Dtype)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	o := &OutputData{
		cfg:   cfg,
		dtype: dtype,
		log:   slog.Default(),
	}
	if cfg.Profile.Nodata != nil {
		o.nodata = *cfg.Profile.Nodata
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.pyramid == nil {
		if o.pyramid, err = cfg.OutputPyramid(); err != nil {
			return nil, err
		}
	}
	if o.bucket == nil {
		if o.bucket, err = objstore.Open(ctx, cfg.scheme(), cfg.Bucket); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Pyramid returns the output pyramid.
func (o *OutputData) Pyramid() *tile.Pyramid { return o.pyramid }

// Bucket returns the object store handle the driver was constructed with.
func (o *OutputData) Bucket() objstore.Bucket { return o.bucket }

// GetBucketKey returns the object key of a tile:
// {basekey}/{zoom}/{row}/{col}.tif, decimal and unpadded. The key is a pure
// function of the coordinate, so rewrites land on the same object.
func (o *OutputData) GetBucketKey(t tile.Tile) string {
	return path.Join(o.cfg.Basekey,
		strconv.Itoa(t.Zoom), strconv.Itoa(t.Row), strconv.Itoa(t.Col)) + Extension
}

// GetPath returns the full object URI, e.g. "s3://bucket/basekey/5/15/32.tif".
// No existence check is performed.
func (o *OutputData) GetPath(t tile.Tile) string {
	return o.cfg.scheme() + "://" + o.cfg.Bucket + "/" + o.GetBucketKey(t)
}

// Write normalizes data against the output profile and uploads one GeoTIFF
// per output tile intersecting the process tile. Fully masked data is a
// no-op: nothing is uploaded and existing objects are left untouched.
//
// The per-tile uploads are not atomic as a set; the first render or upload
// failure aborts the call, leaving already-uploaded siblings committed.
func (o *OutputData) Write(ctx context.Context, processTile tile.Tile, data *raster.Masked, tags map[string]string) error {
	arr, err := raster.Prepare(data, o.dtype, o.nodata, o.cfg.Profile.Bands)
	if err != nil {
		return err
	}
	if arr.AllMasked() {
		o.log.Debug("empty data, skipping write", "tile", processTile.String())
		return nil
	}

	px := processTile.PixelSize()
	pb := processTile.Bounds()
	for _, ot := range o.pyramid.Intersecting(processTile) {
		key := o.GetBucketKey(ot)
		prof := o.Profile(&ot)
		ob := ot.Bounds()

		// Window of the process tile's pixel grid covered by this output
		// tile; both tiles share the zoom level's resolution, so offsets
		// are whole pixels. Pixels outside the process tile become nodata.
		x0 := int(math.Round((ob.Min.X - pb.Min.X) / px))
		y0 := int(math.Round((pb.Max.Y - ob.Max.Y) / px))
		win := arr.Window(y0, x0, prof.Height, prof.Width, o.nodata)

		body, err := geotiff.Encode(win, geotiff.Profile{
			Transform: prof.Transform,
			Proj4:     prof.CRS,
			Nodata:    prof.Nodata,
			Compress:  prof.Compress,
			Predictor: prof.Predictor,
			Tags:      tags,
		})
		if err != nil {
			return fmt.Errorf("render %s: %w", key, err)
		}
		if err := o.bucket.Put(ctx, key, body); err != nil {
			return fmt.Errorf("upload %s: %w", key, err)
		}
		o.log.Debug("uploaded tile", "tile", ot.String(), "key", key, "bytes", len(body))
	}
	return nil
}

// Read returns the stored output of one output tile. A tile that was never
// written yields the canonical empty array (fully masked, filled with
// nodata), never an error; an object that exists but cannot be decoded is a
// storage error naming the key.
func (o *OutputData) Read(ctx context.Context, outputTile tile.Tile) (*raster.Masked, error) {
	key := o.GetBucketKey(outputTile)
	body, err := o.bucket.Get(ctx, key)
	if errors.Is(err, fs.ErrNotExist) {
		o.log.Debug("no existing output", "tile", outputTile.String())
		return o.Empty(outputTile), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	o.log.Debug("read existing output", "tile", outputTile.String(), "key", key)
	arr, _, err := geotiff.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return arr, nil
}

// TilesExist probes the bucket for committed output. Exactly one of
// processTile and outputTile must be given: an output tile is probed at its
// own key, a process tile is satisfied by any of its intersecting output
// tiles. Listings may trail concurrent writes; callers use this for skip
// optimization, not for correctness.
func (o *OutputData) TilesExist(ctx context.Context, processTile, outputTile *tile.Tile) (bool, error) {
	if (processTile == nil) == (outputTile == nil) {
		return false, fmt.Errorf("%w: just one of process tile and output tile allowed", ErrInvalidConfig)
	}
	if outputTile != nil {
		return o.bucket.Stat(ctx, o.GetBucketKey(*outputTile))
	}
	for _, ot := range o.pyramid.Intersecting(*processTile) {
		ok, err := o.bucket.Stat(ctx, o.GetBucketKey(ot))
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// Empty returns the canonical empty array for a tile: profile band count and
// dtype, tile shape, filled with nodata, fully masked.
func (o *OutputData) Empty(t tile.Tile) *raster.Masked {
	h, w := t.Shape()
	return raster.Empty(o.dtype, o.cfg.Profile.Bands, h, w, o.nodata)
}

// ForWeb converts output data to a web tile. Not supported by this driver.
func (o *OutputData) ForWeb(data *raster.Masked) ([]byte, string, error) {
	return nil, "", fmt.Errorf("%w: web output", ErrNotImplemented)
}

// Open exposes a tile's process output as input for another process.
func (o *OutputData) Open(t tile.Tile, process Process, resampling string) *InputTile {
	return &InputTile{Tile: t, Resampling: resampling, process: process}
}
