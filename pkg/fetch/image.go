package fetch

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	_ "golang.org/x/image/webp"

	"github.com/kdudkov/tilelayer/pkg/loop"
	"github.com/kdudkov/tilelayer/pkg/metrics"
	"github.com/kdudkov/tilelayer/pkg/model"
)

const tracerName = "github.com/kdudkov/tilelayer/pkg/fetch"

var blankData, _ = base64.StdEncoding.DecodeString(strings.TrimPrefix(model.BlankURL, "data:image/gif;base64,"))

type Config struct {
	Client    *http.Client
	UserAgent string
	// Headers are credentials sent with every request unless the image is anonymous cross origin.
	Headers http.Header
	Logger  *slog.Logger
}

// Fetcher creates images that load over http and report to a loop.
type Fetcher struct {
	loop    *loop.Loop
	cl      *http.Client
	ua      string
	headers http.Header
	logger  *slog.Logger
	tracer  trace.Tracer
}

func New(l *loop.Loop, cfg Config) *Fetcher {
	f := &Fetcher{
		loop:    l,
		cl:      cfg.Client,
		ua:      cfg.UserAgent,
		headers: cfg.Headers.Clone(),
		logger:  cfg.Logger,
		tracer:  otel.Tracer(tracerName),
	}

	if f.cl == nil {
		f.cl = &http.Client{
			Timeout: time.Second * 30,
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: time.Second * 10,
			},
		}
	}

	if f.logger == nil {
		f.logger = slog.Default()
	}

	return f
}

// NewImage is a model.ImageFactory.
func (f *Fetcher) NewImage() model.Image {
	return &Image{f: f}
}

func (f *Fetcher) get(ctx context.Context, url string, anonymous bool) ([]byte, string, error) {
	ctx, span := f.tracer.Start(ctx, "tile.fetch", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	data, ct, err := f.download(ctx, url, anonymous)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("size", len(data)))
	}

	return data, ct, err
}

func (f *Fetcher) download(ctx context.Context, url string, anonymous bool) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", err
	}

	if !anonymous {
		for k, v := range f.headers {
			req.Header[k] = v
		}
	}

	if f.ua != "" {
		req.Header.Set("User-Agent", f.ua)
	}

	resp, err := f.cl.Do(req)
	if err != nil {
		return nil, "", err
	}

	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%s error %s", url, resp.Status)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", err
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return nil, "", fmt.Errorf("invalid image: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

var _ model.Image = &Image{}

// Image is a tile image loaded over http.
// All methods must be called from the loop goroutine; observers run there too.
type Image struct {
	f *Fetcher

	src         string
	alt         string
	crossOrigin string
	onLoad      func()
	onError     func(error)

	gen         uint64
	cancel      context.CancelFunc
	complete    bool
	removed     bool
	data        []byte
	contentType string
}

// SetSrc starts loading url. A load still running for the previous source is cancelled and its result dropped.
func (i *Image) SetSrc(url string) {
	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}

	i.gen++
	gen := i.gen

	i.src = url
	i.complete = false
	i.data = nil
	i.contentType = ""

	if url == model.BlankURL {
		// blanked images belong to removed or aborted tiles, nobody waits for them
		if !i.f.loop.TryPost(func() { i.finish(gen, blankData, "image/gif", nil) }) {
			i.f.logger.Debug("loop is full, blank load dropped")
		}

		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	i.cancel = cancel

	go i.fetch(ctx, gen, url, i.crossOrigin == model.CrossOriginAnonymous)
}

func (i *Image) fetch(ctx context.Context, gen uint64, url string, anonymous bool) {
	start := time.Now()
	data, ct, err := i.f.get(ctx, url, anonymous)

	if errors.Is(ctx.Err(), context.Canceled) {
		metrics.FetchDuration.WithLabelValues("cancel").Observe(time.Since(start).Seconds())
		i.f.logger.Debug("load cancelled", "url", url)
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}

	metrics.FetchDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())

	i.f.loop.Post(func() { i.finish(gen, data, ct, err) })
}

func (i *Image) finish(gen uint64, data []byte, ct string, err error) {
	if gen != i.gen {
		return
	}

	if i.cancel != nil {
		i.cancel()
		i.cancel = nil
	}

	i.complete = true

	if err != nil {
		if i.onError != nil {
			i.onError(err)
		}

		return
	}

	i.data = data
	i.contentType = ct

	if i.onLoad != nil {
		i.onLoad()
	}
}

func (i *Image) Src() string {
	return i.src
}

func (i *Image) Alt() string {
	return i.alt
}

func (i *Image) SetAlt(alt string) {
	i.alt = alt
}

func (i *Image) CrossOrigin() string {
	return i.crossOrigin
}

func (i *Image) SetCrossOrigin(mode string) {
	i.crossOrigin = mode
}

func (i *Image) OnLoad(f func()) {
	i.onLoad = f
}

func (i *Image) OnError(f func(error)) {
	i.onError = f
}

func (i *Image) Complete() bool {
	return i.complete
}

func (i *Image) Remove() {
	i.removed = true
}

func (i *Image) Removed() bool {
	return i.removed
}

// Bytes is the encoded image of the loaded source, nil until loaded.
func (i *Image) Bytes() []byte {
	return i.data
}

func (i *Image) ContentType() string {
	return i.contentType
}
