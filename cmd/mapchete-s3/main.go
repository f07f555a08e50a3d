// Command mapchete-s3 is a small operator tool around the s3 raster output:
// probe, list, fetch and inspect stored tile objects of a configured output.
//
// Usage:
//
//	mapchete-s3 -c output.yaml path   <zoom> <row> <col>
//	mapchete-s3 -c output.yaml exists <zoom> <row> <col>
//	mapchete-s3 -c output.yaml get    <zoom> <row> <col> -o tile.tif
//	mapchete-s3 -c output.yaml info   <zoom> <row> <col>
//	mapchete-s3 -c output.yaml ls     <zoom>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strconv"

	flag "github.com/spf13/pflag"

	"github.com/ungarj/mapchete-s3/geotiff"
	"github.com/ungarj/mapchete-s3/raster"
	"github.com/ungarj/mapchete-s3/s3out"
	"github.com/ungarj/mapchete-s3/tile"
)

func main() {
	cfgPath := flag.StringP("config", "c", "output.yaml", "output configuration file")
	outPath := flag.StringP("output", "o", "", "local file for fetched objects")
	verbose := flag.BoolP("verbose", "v", false, "debug logging")
	flag.Parse()

	if err := run(*cfgPath, *outPath, *verbose, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "mapchete-s3:", err)
		os.Exit(1)
	}
}

func run(cfgPath, outPath string, verbose bool, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("missing command, want one of: path exists get info ls")
	}

	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := s3out.LoadConfig(cfgPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	out, err := s3out.New(ctx, cfg, s3out.WithLogger(logger))
	if err != nil {
		return err
	}

	switch args[0] {
	case "path":
		t, err := tileArg(out, args[1:])
		if err != nil {
			return err
		}
		fmt.Println(out.GetPath(t))
		return nil

	case "exists":
		t, err := tileArg(out, args[1:])
		if err != nil {
			return err
		}
		ok, err := out.TilesExist(ctx, nil, &t)
		if err != nil {
			return err
		}
		fmt.Println(ok)
		return nil

	case "get":
		if outPath == "" {
			return fmt.Errorf("get requires -o")
		}
		t, err := tileArg(out, args[1:])
		if err != nil {
			return err
		}
		body, err := out.Bucket().Get(ctx, out.GetBucketKey(t))
		if err != nil {
			return err
		}
		return os.WriteFile(outPath, body, 0o644)

	case "info":
		t, err := tileArg(out, args[1:])
		if err != nil {
			return err
		}
		body, err := out.Bucket().Get(ctx, out.GetBucketKey(t))
		if err != nil {
			return err
		}
		arr, info, err := geotiff.Decode(body)
		if err != nil {
			return err
		}
		printInfo(arr, info)
		return nil

	case "ls":
		if len(args) != 2 {
			return fmt.Errorf("ls takes a zoom level")
		}
		keys, err := out.Bucket().List(ctx, path.Join(cfg.Basekey, args[1]))
		if err != nil {
			return err
		}
		for _, key := range keys {
			fmt.Println(key)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q", args[0])
}

func tileArg(out *s3out.OutputData, args []string) (tile.Tile, error) {
	if len(args) != 3 {
		return tile.Tile{}, fmt.Errorf("want <zoom> <row> <col>, got %d arguments", len(args))
	}
	coord := make([]int, 3)
	for i, a := range args {
		v, err := strconv.Atoi(a)
		if err != nil {
			return tile.Tile{}, fmt.Errorf("bad tile coordinate %q", a)
		}
		coord[i] = v
	}
	return out.Pyramid().Tile(coord[0], coord[1], coord[2])
}

func printInfo(arr *raster.Masked, info *geotiff.Info) {
	fmt.Printf("size:      %dx%d, %d band(s), %s\n", info.Width, info.Height, info.Bands, info.Dtype)
	if info.Nodata != nil {
		fmt.Printf("nodata:    %g\n", *info.Nodata)
	}
	fmt.Printf("transform: %v\n", info.Transform)
	if info.Proj4 != "" {
		fmt.Printf("crs:       %s\n", info.Proj4)
	}
	for k, v := range info.Tags {
		fmt.Printf("tag:       %s=%s\n", k, v)
	}
	valid := 0
	for _, masked := range arr.Mask {
		if !masked {
			valid++
		}
	}
	fmt.Printf("valid:     %d of %d pixels\n", valid, len(arr.Mask))
}
