package model

import (
	"fmt"
	"log/slog"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/kdudkov/tilelayer/pkg/metrics"
)

type SourceConfig struct {
	Platform Platform
	Images   ImageFactory
	Logger   *slog.Logger
}

// TileSource loads xyz numbered tiles from a templated url.
type TileSource struct {
	logger   *slog.Logger
	platform Platform
	images   ImageFactory
	host     GridHost

	url     *Template
	options Options
	values  map[string]string
}

// NewTileSource validates url and opts, see Normalize. opts should start from DefaultOptions().
func NewTileSource(url string, opts Options, cfg SourceConfig) (*TileSource, error) {
	if cfg.Platform == nil {
		cfg.Platform = StaticPlatform{}
	}

	if cfg.Images == nil {
		return nil, fmt.Errorf("no image factory")
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	o, err := Normalize(opts, cfg.Platform)
	if err != nil {
		return nil, err
	}

	s := &TileSource{
		logger:   cfg.Logger,
		platform: cfg.Platform,
		images:   cfg.Images,
		options:  o,
		values:   o.templateValues(),
	}

	if err := s.setTemplate(url); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *TileSource) setTemplate(url string) error {
	t, err := ParseTemplate(url)
	if err != nil {
		return err
	}

	for _, k := range t.Keys() {
		if slices.Contains(computedKeys, k) {
			continue
		}

		if _, ok := s.values[k]; ok {
			continue
		}

		if slices.Contains(optionKeys, k) {
			return configErr("url", "{%s} is used but not set", k)
		}

		return configErr("url", "unknown placeholder {%s}", k)
	}

	s.url = t
	return nil
}

// OnAdd attaches the source to the grid that displays it.
func (s *TileSource) OnAdd(host GridHost) {
	s.host = host
}

func (s *TileSource) Options() Options {
	return s.options
}

func (s *TileSource) URL() string {
	return s.url.String()
}

// SetURL replaces the url template and, unless noRedraw is set, asks the grid to redraw.
// The old template stays in place when url is invalid.
func (s *TileSource) SetURL(url string, noRedraw bool) (*TileSource, error) {
	if err := s.setTemplate(url); err != nil {
		return s, err
	}

	if !noRedraw && s.host != nil {
		s.host.Redraw()
	}

	return s, nil
}

func (s *TileSource) retina() bool {
	return s.options.DetectRetina && s.platform.IsHighDensity() && s.options.MaxZoom > 0
}

// ZoomForURL is the zoom sent to the tile server. It follows the current map zoom, not the tile zoom.
func (s *TileSource) ZoomForURL() (int, error) {
	if s.host == nil {
		return 0, ErrNoHost
	}

	zoom := s.host.Zoom()

	if s.options.ZoomReverse {
		zoom = s.options.MaxZoom - zoom
	}

	zoom += s.options.ZoomOffset

	if n := s.options.MaxNativeZoom; n != nil {
		zoom = min(zoom, *n)
	}

	return zoom, nil
}

func (s *TileSource) Subdomain(t Tile) string {
	n := t.X + t.Y
	if n < 0 {
		n = -n
	}

	return s.options.Subdomains[n%len(s.options.Subdomains)]
}

// TileURL computes the url of t. It has no side effects.
func (s *TileSource) TileURL(t Tile) (string, error) {
	z, err := s.ZoomForURL()
	if err != nil {
		return "", err
	}

	y := t.Y
	if s.options.TMS {
		y = s.host.TileBoundsMaxY() - t.Y
	}

	r := ""
	if s.retina() {
		r = "@2x"
	}

	v := maps.Clone(s.values)
	v["r"] = r
	v["s"] = s.Subdomain(t)
	v["x"] = strconv.Itoa(t.X)
	v["y"] = strconv.Itoa(y)
	v["z"] = strconv.Itoa(z)

	return s.url.Execute(v)
}

// TileSize is the displayed tile size. Past maxNativeZoom tiles are scaled up instead of requested.
func (s *TileSource) TileSize() int {
	size := s.options.TileSize

	if s.host == nil {
		return size
	}

	zoom := s.host.Zoom() + s.options.ZoomOffset

	if n := s.options.MaxNativeZoom; n != nil && zoom > *n {
		return int(math.Round(s.host.ZoomScale(zoom) / s.host.ZoomScale(*n) * float64(size)))
	}

	return size
}

// CreateTile starts loading t and returns immediately. done is called once, from the image loop.
func (s *TileSource) CreateTile(t Tile, done DoneFunc) (*TileHandle, error) {
	url, err := s.TileURL(t)
	if err != nil {
		return nil, err
	}

	img := s.images()
	h := &TileHandle{tile: t, img: img, done: done}

	img.OnLoad(func() { s.tileOnLoad(h) })
	img.OnError(func(err error) { s.tileOnError(h, err) })

	if s.options.CrossOrigin {
		img.SetCrossOrigin(CrossOriginAnonymous)
	}

	// never expose the url as image description
	img.SetAlt("")
	img.SetSrc(url)

	metrics.TilesRequested.Inc()
	s.logger.Debug("tile requested", "tile", t.String(), "url", url)

	return h, nil
}

func (s *TileSource) tileOnLoad(h *TileHandle) {
	if !h.claim() {
		return
	}

	metrics.TilesLoaded.Inc()
	h.notify()
}

func (s *TileSource) tileOnError(h *TileHandle, err error) {
	if !h.claim() {
		return
	}

	h.err = &TileLoadError{Tile: h.tile, URL: h.img.Src(), Err: err}

	metrics.TilesErrored.Inc()
	s.logger.Debug("tile error", "tile", h.tile.String(), "error", err)

	if u := s.options.ErrorTileURL; u != "" {
		h.img.SetSrc(u)
	}

	h.notify()
}

func (s *TileSource) RemoveTile(key string) {
	if s.host == nil {
		return
	}

	h, ok := s.host.Tile(key)

	s.host.RemoveTile(key)

	if !ok {
		return
	}

	metrics.TilesRemoved.Inc()

	if s.platform.HasTileRemovalQuirk() {
		return
	}

	h.img.OnLoad(noop)
	h.img.SetSrc(BlankURL)
}

// AbortLoading stops all tiles of the grid that are still loading.
// Late load and error events of every tile become no-ops.
func (s *TileSource) AbortLoading() {
	if s.host == nil {
		return
	}

	for _, h := range s.host.Tiles() {
		h.img.OnLoad(noop)
		h.img.OnError(noopErr)

		if !h.img.Complete() {
			h.aborted = !h.settled
			h.img.SetSrc(BlankURL)
			h.img.Remove()
			metrics.TilesAborted.Inc()
		}
	}
}
