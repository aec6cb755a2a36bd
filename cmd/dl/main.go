package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/kdudkov/tilelayer/pkg/loader"
	"github.com/kdudkov/tilelayer/pkg/logger"
	"github.com/kdudkov/tilelayer/pkg/mapper"
	"github.com/kdudkov/tilelayer/pkg/mbtiles"
	"github.com/kdudkov/tilelayer/pkg/model"
)

type App struct {
	layer      *model.LayerDescription
	dbFilename string
	batch      int
	timeout    time.Duration
	userAgent  string
	logger     *slog.Logger
}

func NewApp(l *model.LayerDescription, dbFilename string) *App {
	return &App{
		layer:      l,
		dbFilename: dbFilename,
		batch:      16,
		timeout:    time.Minute,
		logger:     slog.Default(),
	}
}

// Run downloads tiles into a new mbtiles file. Tiles are fetched by zoom level, batch tiles at a time.
func (app *App) Run(tiles []model.Tile) error {
	if len(tiles) == 0 {
		return errors.New("no tiles to download")
	}

	ld, err := loader.New(loader.Config{
		Layer:     app.layer,
		Platform:  model.StaticPlatform{},
		UserAgent: app.userAgent,
		Logger:    app.logger,
	})
	if err != nil {
		return err
	}

	a, err := mbtiles.Create(app.layer.Key, app.dbFilename)
	if err != nil {
		return err
	}

	defer a.Close()

	minzoom, maxzoom := tiles[0].Z, tiles[0].Z
	contentType := ""
	total := 0

	var putErr error

	each := func(r loader.Result) {
		if r.Err != nil {
			app.logger.Warn("error loading tile", "tile", r.Tile.String(), "url", r.URL, "error", r.Err)
			return
		}

		if putErr != nil {
			return
		}

		if err := a.Put(r.Tile.Z, r.Tile.X, r.Tile.Y, r.Data); err != nil {
			putErr = err
			return
		}

		if contentType == "" {
			contentType = r.ContentType
		}

		total++
	}

	for start := 0; start < len(tiles); {
		z := tiles[start].Z
		end := start

		for end < len(tiles) && end-start < app.batch && tiles[end].Z == z {
			end++
		}

		ctx, cancel := context.WithTimeout(context.Background(), app.timeout)
		err := ld.LoadTiles(ctx, z, tiles[start:end], each)
		cancel()

		if err != nil {
			return fmt.Errorf("zoom %d: %w", z, err)
		}

		if putErr != nil {
			return putErr
		}

		minzoom = min(minzoom, z)
		maxzoom = max(maxzoom, z)
		start = end
	}

	loaded, errored := ld.Stats()

	meta := map[string]string{
		"version": "1.1",
		"format":  mbtiles.Format(contentType),
		"minzoom": strconv.Itoa(minzoom),
		"maxzoom": strconv.Itoa(maxzoom),
		"name":    app.layer.Name,
		"scheme":  "tms",
	}

	if err := a.PutMeta(meta); err != nil {
		return err
	}

	fmt.Printf("zoom: %d - %d\n", minzoom, maxzoom)
	fmt.Printf("total tiles: %d, loaded %d, errors %d\n", total, loaded, errored)

	return nil
}

// readTiles reads z/x/y lines.
func readTiles(r io.Reader) ([]model.Tile, error) {
	var res []model.Tile

	sc := bufio.NewScanner(r)

	for sc.Scan() {
		ln := strings.Trim(sc.Text(), "\n\r ")
		if ln == "" {
			continue
		}

		d := strings.Split(ln, "/")
		if len(d) != 3 {
			return nil, fmt.Errorf("invalid string: %s", ln)
		}

		var n [3]int

		for i, s := range d {
			v, err := strconv.Atoi(s)
			if err != nil {
				return nil, fmt.Errorf("invalid string: %s", ln)
			}

			n[i] = v
		}

		res = append(res, model.Tile{Z: n[0], X: n[1], Y: n[2]})
	}

	return res, sc.Err()
}

// bboxTiles returns tiles of bbox "minlon,minlat,maxlon,maxlat" for zooms from zmin to zmax.
func bboxTiles(bbox string, zmin, zmax int) ([]model.Tile, error) {
	d := strings.Split(bbox, ",")
	if len(d) != 4 {
		return nil, fmt.Errorf("invalid bbox: %s", bbox)
	}

	var c [4]float64

	for i, s := range d {
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid bbox: %s", bbox)
		}

		c[i] = v
	}

	b := orb.Bound{Min: orb.Point{c[0], c[1]}, Max: orb.Point{c[2], c[3]}}

	var res []model.Tile

	for z := zmin; z <= zmax; z++ {
		res = append(res, mapper.TilesInBounds(b, z)...)
	}

	return res, nil
}

func findLayer(path, key string) (*model.LayerDescription, error) {
	layers, err := model.ReadLayers(path)
	if err != nil {
		return nil, err
	}

	for _, l := range layers {
		if l.Key == key {
			return l, nil
		}
	}

	return nil, fmt.Errorf("no layer %s in %s", key, path)
}

func main() {
	var layersFile = flag.String("layers", "layers.yml", "layers file")
	var layer = flag.String("layer", "", "layer key")
	var tilesFile = flag.String("tiles", "", "file with z/x/y lines")
	var bbox = flag.String("bbox", "", "minlon,minlat,maxlon,maxlat")
	var zmin = flag.Int("minzoom", 0, "min zoom for bbox")
	var zmax = flag.Int("maxzoom", 12, "max zoom for bbox")
	var batch = flag.Int("batch", 16, "tiles loaded at once")
	var timeout = flag.Duration("timeout", time.Minute, "batch timeout")
	var debug = flag.Bool("debug", false, "")

	flag.Parse()

	if len(flag.Args()) != 1 {
		fmt.Println("no file name")
		return
	}

	slog.SetDefault(logger.New(*debug))

	l, err := findLayer(*layersFile, *layer)
	if err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}

	var tiles []model.Tile

	switch {
	case *tilesFile != "":
		f, err := os.Open(*tilesFile)
		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}

		tiles, err = readTiles(f)
		f.Close()

		if err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	case *bbox != "":
		if tiles, err = bboxTiles(*bbox, *zmin, *zmax); err != nil {
			fmt.Printf("error: %s\n", err.Error())
			os.Exit(1)
		}
	default:
		fmt.Println("you need to specify -tiles or -bbox")
		return
	}

	app := NewApp(l, flag.Arg(0)+".mbtiles")
	app.batch = max(*batch, 1)
	app.timeout = *timeout

	if err := app.Run(tiles); err != nil {
		fmt.Printf("error: %s\n", err.Error())
		os.Exit(1)
	}
}
