package grid

import (
	"errors"
	"testing"

	"github.com/kdudkov/tilelayer/pkg/model"
)

type testImage struct {
	src      string
	onLoad   func()
	onError  func(error)
	complete bool
	removed  bool
}

func (i *testImage) SetSrc(url string) {
	i.src = url
	i.complete = false
}

func (i *testImage) Src() string           { return i.src }
func (i *testImage) SetAlt(string)         {}
func (i *testImage) SetCrossOrigin(string) {}
func (i *testImage) OnLoad(f func())       { i.onLoad = f }
func (i *testImage) OnError(f func(error)) { i.onError = f }
func (i *testImage) Complete() bool        { return i.complete }
func (i *testImage) Remove()               { i.removed = true }

func (i *testImage) load() {
	i.complete = true
	i.onLoad()
}

func (i *testImage) fail() {
	i.complete = true
	i.onError(errors.New("failed"))
}

func newGrid(t *testing.T, url string, opts model.Options, cfg Config) (*Grid, *model.TileSource) {
	src, err := model.NewTileSource(url, opts, model.SourceConfig{
		Images: func() model.Image { return &testImage{} },
	})
	if err != nil {
		t.Fatal(err)
	}

	return New(src, cfg), src
}

func img(g *Grid, t model.Tile) *testImage {
	h, ok := g.Tile(t.Key())
	if !ok {
		return nil
	}

	return h.Image().(*testImage)
}

func TestSetView(t *testing.T) {
	var settled []string

	g, _ := newGrid(t, "/{z}/{x}/{y}.png", model.DefaultOptions(), Config{
		OnTile: func(err error, h *model.TileHandle) { settled = append(settled, h.Key()) },
	})

	view := []model.Tile{{X: 0, Y: 0, Z: 1}, {X: 1, Y: 0, Z: 1}}
	if err := g.SetView(1, view); err != nil {
		t.Fatal(err)
	}

	if len(g.Tiles()) != 2 || g.Pending() != 2 {
		t.Fatalf("wrong tiles %d, pending %d", len(g.Tiles()), g.Pending())
	}

	if s := img(g, view[1]).src; s != "/1/1/0.png" {
		t.Errorf("wrong src %s", s)
	}

	img(g, view[0]).load()
	img(g, view[1]).fail()

	if loaded, errored := g.Stats(); loaded != 1 || errored != 1 {
		t.Errorf("wrong stats %d %d", loaded, errored)
	}

	if len(settled) != 2 || g.Pending() != 0 {
		t.Errorf("wrong settlements %v", settled)
	}

	old := img(g, view[0])

	if err := g.SetView(1, view[1:]); err != nil {
		t.Fatal(err)
	}

	if len(g.Tiles()) != 1 {
		t.Fatalf("wrong tiles %d", len(g.Tiles()))
	}

	if !old.removed || old.src != model.BlankURL {
		t.Errorf("tile out of view must be removed and blanked")
	}
}

func TestRedraw(t *testing.T) {
	g, src := newGrid(t, "/a/{z}/{x}/{y}.png", model.DefaultOptions(), Config{})

	tile := model.Tile{X: 1, Y: 1, Z: 2}
	if err := g.SetView(2, []model.Tile{tile}); err != nil {
		t.Fatal(err)
	}

	first := img(g, tile)

	if _, err := src.SetURL("/b/{z}/{x}/{y}.png", false); err != nil {
		t.Fatal(err)
	}

	second := img(g, tile)

	if second == first || !first.removed {
		t.Fatalf("tile must be recreated")
	}

	if second.src != "/b/2/1/1.png" {
		t.Errorf("wrong src %s", second.src)
	}

	// a late load of the removed tile is not reported
	first.onLoad()

	if loaded, _ := g.Stats(); loaded != 0 {
		t.Errorf("stale tile must not count")
	}
}

func TestAbort(t *testing.T) {
	g, _ := newGrid(t, "/{z}/{x}/{y}.png", model.DefaultOptions(), Config{})

	view := []model.Tile{{X: 0, Y: 0, Z: 1}, {X: 0, Y: 1, Z: 1}}
	if err := g.SetView(1, view); err != nil {
		t.Fatal(err)
	}

	img(g, view[0]).load()
	g.Abort()

	if g.Pending() != 0 {
		t.Errorf("nothing must be pending after abort, got %d", g.Pending())
	}

	aborted := img(g, view[1])
	if aborted.src != model.BlankURL || !aborted.removed {
		t.Errorf("aborted tile must be blanked and removed")
	}

	aborted.load()

	if loaded, errored := g.Stats(); loaded != 1 || errored != 0 {
		t.Errorf("wrong stats %d %d", loaded, errored)
	}
}

func TestTileBoundsMaxY(t *testing.T) {
	data := []struct {
		zoom   int
		retina bool
		maxY   int
	}{
		{0, false, 0},
		{3, false, 7},
		{3, true, 15},
	}

	for _, d := range data {
		opts := model.DefaultOptions()
		opts.DetectRetina = d.retina

		src, err := model.NewTileSource("/{z}/{x}/{y}", opts, model.SourceConfig{
			Platform: model.StaticPlatform{HighDensity: true},
			Images:   func() model.Image { return &testImage{} },
		})
		if err != nil {
			t.Fatal(err)
		}

		g := New(src, Config{})
		g.SetZoom(d.zoom)

		if got := g.TileBoundsMaxY(); got != d.maxY {
			t.Errorf("zoom %d: wrong max y: got %d, must be %d", d.zoom, got, d.maxY)
		}
	}
}

func TestTMSView(t *testing.T) {
	opts := model.DefaultOptions()
	opts.TMS = true

	g, _ := newGrid(t, "/{z}/{x}/{y}.png", opts, Config{})

	tile := model.Tile{X: 5, Y: 2, Z: 3}
	if err := g.SetView(3, []model.Tile{tile}); err != nil {
		t.Fatal(err)
	}

	if s := img(g, tile).src; s != "/3/5/5.png" {
		t.Errorf("wrong src %s", s)
	}
}
