package model

import (
	"errors"
	"math"
)

var errBroken = errors.New("broken image")

type fakeImage struct {
	src         string
	srcs        []string
	alt         *string
	crossOrigin string
	onLoad      func()
	onError     func(error)
	complete    bool
	removed     bool
}

func (f *fakeImage) SetSrc(url string) {
	f.src = url
	f.srcs = append(f.srcs, url)
	f.complete = false
}

func (f *fakeImage) Src() string             { return f.src }
func (f *fakeImage) SetAlt(alt string)       { f.alt = &alt }
func (f *fakeImage) SetCrossOrigin(m string) { f.crossOrigin = m }
func (f *fakeImage) OnLoad(fn func())        { f.onLoad = fn }
func (f *fakeImage) OnError(fn func(error))  { f.onError = fn }
func (f *fakeImage) Complete() bool          { return f.complete }
func (f *fakeImage) Remove()                 { f.removed = true }

func (f *fakeImage) load() {
	f.complete = true
	if f.onLoad != nil {
		f.onLoad()
	}
}

func (f *fakeImage) fail(err error) {
	f.complete = true
	if f.onError != nil {
		f.onError(err)
	}
}

type fakeHost struct {
	zoom    int
	maxY    int
	tiles   map[string]*TileHandle
	removed []string
	redraws int
}

func newFakeHost(zoom int) *fakeHost {
	return &fakeHost{zoom: zoom, maxY: 1<<zoom - 1, tiles: make(map[string]*TileHandle)}
}

func (h *fakeHost) Zoom() int                     { return h.zoom }
func (h *fakeHost) ZoomScale(z int) float64       { return math.Pow(2, float64(z)) }
func (h *fakeHost) TileBoundsMaxY() int           { return h.maxY }
func (h *fakeHost) Tiles() map[string]*TileHandle { return h.tiles }
func (h *fakeHost) Redraw()                       { h.redraws++ }

func (h *fakeHost) Tile(key string) (*TileHandle, bool) {
	t, ok := h.tiles[key]
	return t, ok
}

func (h *fakeHost) RemoveTile(key string) {
	if t, ok := h.tiles[key]; ok {
		t.Image().Remove()
		delete(h.tiles, key)
	}

	h.removed = append(h.removed, key)
}

func (h *fakeHost) add(s *TileSource, t Tile, done DoneFunc) (*TileHandle, *fakeImage) {
	th, err := s.CreateTile(t, done)
	if err != nil {
		panic(err)
	}

	h.tiles[t.Key()] = th
	return th, th.Image().(*fakeImage)
}

func fakeImages() Image {
	return &fakeImage{}
}

func newSource(url string, opts Options, p Platform, host *fakeHost) (*TileSource, error) {
	s, err := NewTileSource(url, opts, SourceConfig{Platform: p, Images: fakeImages})
	if err != nil {
		return nil, err
	}

	if host != nil {
		s.OnAdd(host)
	}

	return s, nil
}
