package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/kdudkov/tilelayer/pkg/config"
	"github.com/kdudkov/tilelayer/pkg/logger"
	"github.com/kdudkov/tilelayer/pkg/mbtiles"
	"github.com/kdudkov/tilelayer/pkg/model"
)

type App struct {
	addr       string
	filesDir   string
	layersFile string
	userAgent  string
	timeout    time.Duration
	platform   model.Platform
	client     *http.Client
	logger     *slog.Logger
	layers     *Layers
}

func NewApp(addr string, logger *slog.Logger) *App {
	return &App{
		layers:   NewLayers(),
		logger:   logger,
		addr:     addr,
		timeout:  time.Second * 10,
		platform: model.StaticPlatform{},
	}
}

func (app *App) addDefaultSources() error {
	res, err := model.ReadLayers(app.layersFile)
	if err != nil {
		return err
	}

	app.layers.RemoveIf(func(c Source) bool { return !c.IsFile() })

	for _, l := range res {
		rl := &remoteLayer{desc: l}

		// check the template and options once, requests build their own loaders
		ld, err := app.newLoader(rl)
		if err != nil {
			app.logger.Error("invalid layer "+l.Key, "error", err)
			continue
		}

		rl.opts = ld.Source().Options()

		app.layers.Add(rl)
		app.logger.Info(fmt.Sprintf("loaded layer %s, url %s", l.Key, l.URL))
	}

	return nil
}

func (app *App) addFileSources() error {
	files, err := os.ReadDir(app.filesDir)
	if err != nil {
		return err
	}

	app.layers.RemoveIf(func(c Source) bool { return c.IsFile() })

	for _, f := range files {
		p := path.Join(app.filesDir, f.Name())
		if f.IsDir() {
			continue
		}

		if !strings.HasSuffix(f.Name(), ".mbtiles") && !strings.HasSuffix(f.Name(), ".sqlite") {
			continue
		}

		a, err := mbtiles.Open(f.Name(), p)
		if err != nil {
			app.logger.Error("db open error", "file", p, "error", err)
			continue
		}

		app.layers.Add(&fileLayer{Archive: a})
		app.logger.Info(fmt.Sprintf("loaded file %s, name %s", f.Name(), a.Name()))
	}

	return nil
}

func (app *App) Run() {
	if err := os.MkdirAll(app.filesDir, 0777); err != nil {
		panic(err)
	}

	if err := app.addDefaultSources(); err != nil {
		panic(err)
	}

	if err := app.addFileSources(); err != nil {
		panic(err)
	}

	h := NewHttp(app)

	app.logger.Info("listening on " + app.addr)

	go func() {
		if err := h.Listen(app.addr); err != nil {
			panic(err)
		}
	}()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		panic(err)
	}

	defer watcher.Close()

	go app.watch(watcher)

	for _, dir := range []string{app.filesDir, filepath.Dir(app.layersFile)} {
		if err := watcher.Add(dir); err != nil {
			panic(err)
		}
	}

	app.loop()

	if err := h.Shutdown(); err != nil {
		app.logger.Error("shutdown error", "error", err)
	}

	app.layers.RemoveIf(func(c Source) bool { return true })
}

func (app *App) watch(watcher *fsnotify.Watcher) {
	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}

			app.logger.Debug(fmt.Sprintf("event: %s", event))

			var err error

			switch {
			case filepath.Clean(event.Name) == filepath.Clean(app.layersFile):
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					app.logger.Info("reloading layers from " + app.layersFile)
					err = app.addDefaultSources()
				}
			case strings.HasPrefix(filepath.Clean(event.Name), filepath.Clean(app.filesDir)):
				err = app.addFileSources()
			}

			if err != nil {
				app.logger.Error("error", slog.Any("error", err))
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}

			app.logger.Error("error", slog.Any("error", err))
		}
	}
}

func (app *App) loop() {
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	<-sigc
}

func getLocalAddr() []string {
	var res []string

	addresses, _ := net.InterfaceAddrs()

	for _, a := range addresses {
		if ipnet, ok := a.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil && !strings.HasPrefix(ipnet.IP.String(), "169.254.") {
				res = append(res, ipnet.IP.String())
			}
		}
	}

	return res
}

func main() {
	cfg, err := config.New()
	if err != nil {
		fmt.Printf("config error: %s\n", err.Error())
		os.Exit(1)
	}

	var filesDir = flag.String("files", cfg.FilesDir, "mbtiles path")
	var layersFile = flag.String("layers", cfg.LayersFile, "layers file")
	var addr = flag.String("addr", cfg.Addr, "listen address")
	var debug = flag.Bool("debug", cfg.Debug, "")
	var retina = flag.Bool("retina", cfg.Retina, "request high density tiles for layers with detectRetina")
	var ver = flag.Bool("version", false, "print version")

	flag.Parse()

	if *ver {
		fmt.Println(getVersionFull())
		return
	}

	slog.SetDefault(logger.New(*debug))

	app := NewApp(*addr, slog.Default())
	app.filesDir = *filesDir
	app.layersFile = *layersFile
	app.userAgent = cfg.UserAgent
	app.timeout = cfg.Timeout
	app.platform = model.StaticPlatform{HighDensity: *retina}
	app.client = &http.Client{
		Timeout: cfg.Timeout,
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ResponseHeaderTimeout: cfg.Timeout,
		},
	}

	app.Run()
}
