package grid

import (
	"errors"
	"log/slog"
	"math"
	"slices"

	"github.com/kdudkov/tilelayer/pkg/model"
)

// Layer is the tile source displayed by a grid.
type Layer interface {
	OnAdd(host model.GridHost)
	CreateTile(t model.Tile, done model.DoneFunc) (*model.TileHandle, error)
	RemoveTile(key string)
	AbortLoading()
	TileSize() int
}

var _ Layer = &model.TileSource{}

type Config struct {
	Logger *slog.Logger
	// OnTile is called after a tile of the current view settled.
	OnTile model.DoneFunc
	// WorldSize is the pixel size of the world at zoom 0.
	WorldSize int
}

var _ model.GridHost = &Grid{}

// Grid keeps the tiles of one layer for the current view.
// It is not safe for concurrent use; drive it from the loop that delivers tile events.
type Grid struct {
	layer     Layer
	logger    *slog.Logger
	onTile    model.DoneFunc
	worldSize float64

	zoom  int
	view  []model.Tile
	tiles map[string]*model.TileHandle

	loaded  int
	errored int
}

func New(layer Layer, cfg Config) *Grid {
	g := &Grid{
		layer:     layer,
		logger:    cfg.Logger,
		onTile:    cfg.OnTile,
		worldSize: float64(cfg.WorldSize),
		tiles:     make(map[string]*model.TileHandle),
	}

	if g.logger == nil {
		g.logger = slog.Default()
	}

	if g.worldSize <= 0 {
		g.worldSize = 256
	}

	layer.OnAdd(g)

	return g
}

func (g *Grid) Zoom() int {
	return g.zoom
}

// SetZoom changes the map zoom without touching the tiles.
func (g *Grid) SetZoom(zoom int) {
	g.zoom = zoom
}

func (g *Grid) ZoomScale(zoom int) float64 {
	return math.Pow(2, float64(zoom))
}

func (g *Grid) TileBoundsMaxY() int {
	return int(math.Ceil(g.worldSize*g.ZoomScale(g.zoom)/float64(g.layer.TileSize()))) - 1
}

func (g *Grid) Tiles() map[string]*model.TileHandle {
	return g.tiles
}

func (g *Grid) Tile(key string) (*model.TileHandle, bool) {
	h, ok := g.tiles[key]
	return h, ok
}

func (g *Grid) RemoveTile(key string) {
	h, ok := g.tiles[key]
	if !ok {
		return
	}

	h.Image().Remove()
	delete(g.tiles, key)

	g.logger.Debug("tile unload", "tile", h.Tile().String())
}

// SetView shows tiles at zoom. Tiles out of view are removed, missing ones requested.
func (g *Grid) SetView(zoom int, tiles []model.Tile) error {
	g.zoom = zoom
	g.view = slices.Clone(tiles)

	want := make(map[string]bool, len(tiles))
	for _, t := range tiles {
		want[t.Key()] = true
	}

	for key := range g.tiles {
		if !want[key] {
			g.layer.RemoveTile(key)
		}
	}

	return g.addView()
}

func (g *Grid) addView() error {
	var errs []error

	for _, t := range g.view {
		if _, ok := g.tiles[t.Key()]; ok {
			continue
		}

		h, err := g.layer.CreateTile(t, g.tileReady)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		g.tiles[t.Key()] = h
	}

	return errors.Join(errs...)
}

// Redraw drops every tile and requests the current view again.
func (g *Grid) Redraw() {
	for key := range g.tiles {
		g.layer.RemoveTile(key)
	}

	if err := g.addView(); err != nil {
		g.logger.Error("redraw error", "error", err)
	}
}

// Abort stops background loading when the grid is superseded.
func (g *Grid) Abort() {
	g.layer.AbortLoading()
}

// Pending is the number of tiles still loading.
func (g *Grid) Pending() int {
	n := 0

	for _, h := range g.tiles {
		if !h.Settled() && !h.Aborted() {
			n++
		}
	}

	return n
}

func (g *Grid) Stats() (loaded, errored int) {
	return g.loaded, g.errored
}

func (g *Grid) tileReady(err error, h *model.TileHandle) {
	if cur, ok := g.tiles[h.Key()]; !ok || cur != h {
		return
	}

	if err != nil {
		g.errored++
		g.logger.Warn("tile error", "tile", h.Tile().String(), "error", err)
	} else {
		g.loaded++
		g.logger.Debug("tile load", "tile", h.Tile().String())
	}

	if g.onTile != nil {
		g.onTile(err, h)
	}
}
