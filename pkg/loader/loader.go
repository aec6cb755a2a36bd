package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kdudkov/tilelayer/pkg/fetch"
	"github.com/kdudkov/tilelayer/pkg/grid"
	"github.com/kdudkov/tilelayer/pkg/loop"
	"github.com/kdudkov/tilelayer/pkg/model"
)

type Config struct {
	Layer    *model.LayerDescription
	Platform model.Platform
	Client   *http.Client
	// UserAgent is sent with every tile request.
	UserAgent string
	Logger    *slog.Logger
}

// StandardTileSize is the pixel size of the xyz tiles clients ask for.
const StandardTileSize = 256

type Result struct {
	Tile        model.Tile
	URL         string
	Data        []byte
	ContentType string
	Err         error
}

// Loader fetches tiles of one layer over http. It is not safe for concurrent use.
type Loader struct {
	logger *slog.Logger
	loop   *loop.Loop
	src    *model.TileSource
	grid   *grid.Grid
	each   func(Result)
}

func New(cfg Config) (*Loader, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	logger := cfg.Logger.With("layer", cfg.Layer.Key)

	var headers http.Header
	if len(cfg.Layer.Headers) > 0 {
		headers = make(http.Header, len(cfg.Layer.Headers))
		for k, v := range cfg.Layer.Headers {
			headers.Set(k, v)
		}
	}

	l := &Loader{
		logger: logger,
		loop:   loop.New(64),
	}

	f := fetch.New(l.loop, fetch.Config{
		Client:    cfg.Client,
		UserAgent: cfg.UserAgent,
		Headers:   headers,
		Logger:    logger,
	})

	src, err := model.NewTileSource(cfg.Layer.URL, cfg.Layer.Options, model.SourceConfig{
		Platform: cfg.Platform,
		Images:   f.NewImage,
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	l.src = src
	l.grid = grid.New(src, grid.Config{Logger: logger, OnTile: l.tileReady, WorldSize: StandardTileSize})

	return l, nil
}

func (l *Loader) Source() *model.TileSource {
	return l.src
}

// TileURL is the url of grid tile t with the map at zoom. Use Cover to get grid tiles of a standard tile.
func (l *Loader) TileURL(zoom int, t model.Tile) (string, error) {
	l.grid.SetZoom(zoom)
	return l.src.TileURL(t)
}

// TileSize is the displayed tile size with the map at zoom.
func (l *Loader) TileSize(zoom int) int {
	l.grid.SetZoom(zoom)
	return l.src.TileSize()
}

// Load shows grid tiles at zoom and calls each for every tile as it settles.
// When ctx is done first, the remaining loads are aborted and ctx.Err() returned.
func (l *Loader) Load(ctx context.Context, zoom int, tiles []model.Tile, each func(Result)) error {
	l.each = each
	defer func() { l.each = nil }()

	if err := l.grid.SetView(zoom, tiles); err != nil {
		return err
	}

	if err := l.loop.RunUntil(ctx, func() bool { return l.grid.Pending() == 0 }); err != nil {
		l.logger.Warn("aborting tile loads", "pending", l.grid.Pending(), "error", err)
		l.grid.Abort()
		return err
	}

	return nil
}

// Cover maps standard tile t to the grid tiles of the layer with the map at t.Z.
// Retina layers split t into several grid tiles, overzoomed layers load a larger tile containing t.
func (l *Loader) Cover(t model.Tile) (Cover, error) {
	l.grid.SetZoom(t.Z)
	size := l.src.TileSize()

	c := Cover{Tile: t, Span: 1, Scale: 1}

	switch {
	case size == StandardTileSize:
		c.Tiles = []model.Tile{t}
	case size < StandardTileSize && StandardTileSize%size == 0:
		c.Span = StandardTileSize / size

		for j := 0; j < c.Span; j++ {
			for i := 0; i < c.Span; i++ {
				c.Tiles = append(c.Tiles, model.Tile{X: t.X*c.Span + i, Y: t.Y*c.Span + j, Z: t.Z})
			}
		}
	case size > StandardTileSize && size%StandardTileSize == 0:
		c.Scale = size / StandardTileSize
		c.Tiles = []model.Tile{{X: t.X / c.Scale, Y: t.Y / c.Scale, Z: t.Z}}
	default:
		return c, fmt.Errorf("tile size %d at zoom %d does not align with %dpx tiles", size, t.Z, StandardTileSize)
	}

	return c, nil
}

// LoadTiles loads standard tiles at zoom and calls each with one result per requested tile.
// Results of retina and overzoomed layers are composed into a png.
func (l *Loader) LoadTiles(ctx context.Context, zoom int, tiles []model.Tile, each func(Result)) error {
	covers := make([]Cover, 0, len(tiles))
	seen := make(map[string]bool)

	var view []model.Tile

	for _, t := range tiles {
		t.Z = zoom

		c, err := l.Cover(t)
		if err != nil {
			return err
		}

		covers = append(covers, c)

		for _, gt := range c.Tiles {
			if !seen[gt.Key()] {
				seen[gt.Key()] = true
				view = append(view, gt)
			}
		}
	}

	parts := make(map[string]Result, len(view))

	if err := l.Load(ctx, zoom, view, func(r Result) { parts[r.Tile.Key()] = r }); err != nil {
		return err
	}

	for _, c := range covers {
		each(c.result(parts))
	}

	return nil
}

func (l *Loader) Stats() (loaded, errored int) {
	return l.grid.Stats()
}

func (l *Loader) tileReady(err error, h *model.TileHandle) {
	if l.each == nil {
		return
	}

	r := Result{Tile: h.Tile(), URL: h.Image().Src(), Err: err}

	// the image may have moved on to the error tile
	var lerr *model.TileLoadError
	if errors.As(err, &lerr) {
		r.URL = lerr.URL
	}

	if img, ok := h.Image().(*fetch.Image); ok && err == nil {
		r.Data = img.Bytes()
		r.ContentType = img.ContentType()
	}

	l.each(r)
}
