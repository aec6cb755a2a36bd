package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kdudkov/tilelayer/pkg/loader"
	"github.com/kdudkov/tilelayer/pkg/mapper"
	"github.com/kdudkov/tilelayer/pkg/model"
)

func NewHttp(app *App) *fiber.App {
	f := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		EnablePrintRoutes:     false,
	})

	f.Use(logger.New(logger.Config{
		Format: "[${ip}]:${port} ${status} - ${method} ${path} ${queryParams}\n",
	}))

	f.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))

	f.Get("/", getIndexHandler(app))
	f.Get("/layers", getLayersHandler(app))
	f.Get("/locate/:name", getLocateHandler(app))
	f.Get("/url/:name/:zoom/:x/:y", getUrlHandler(app))
	f.Get("/tiles/:name/:zoom/:x/:y", getTileHandler(app))
	f.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	return f
}

func getIndexHandler(app *App) func(c *fiber.Ctx) error {
	addrs := getLocalAddr()

	return func(c *fiber.Ctx) error {
		_, port, err := net.SplitHostPort(app.addr)
		if err != nil {
			return err
		}

		return c.JSON(fiber.Map{
			"version": getVersion(),
			"port":    port,
			"ips":     addrs,
			"layers":  app.getLayers(),
		})
	}
}

func getLayersHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		return c.JSON(app.getLayers())
	}
}

func (app *App) getLayers() []map[string]any {
	r := make([]map[string]any, 0)

	app.layers.All(func(l Source) bool {
		ld := make(map[string]any)
		ld["key"] = l.GetKey()
		ld["url"] = "/tiles/" + url.QueryEscape(l.GetKey()) + "/{z}/{x}/{y}"
		ld["min_zoom"] = l.GetMinZoom()
		ld["max_zoom"] = l.GetMaxZoom()
		ld["name"] = l.GetName()
		ld["file"] = l.IsFile()

		if rl, ok := l.(*remoteLayer); ok {
			ld["template"] = rl.desc.URL
			ld["tms"] = rl.desc.Options.TMS
			ld["subdomains"] = rl.desc.Options.Subdomains
		}

		r = append(r, ld)
		return true
	})

	sort.Slice(r, func(i, j int) bool {
		return r[i]["key"].(string) < r[j]["key"].(string)
	})

	return r
}

type tileRequest struct {
	layer Source
	tile  model.Tile
}

func parseTileRequest(app *App, c *fiber.Ctx) (*tileRequest, error) {
	var err error
	var zoom, x, y int

	name, _ := url.QueryUnescape(c.Params("name"))

	if zoom, err = c.ParamsInt("zoom"); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid zoom value")
	}

	if x, err = c.ParamsInt("x"); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid x value")
	}

	if y, err = c.ParamsInt("y"); err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid y value")
	}

	layer, ok := app.layers.Get(name)
	if !ok {
		return nil, fiber.NewError(fiber.StatusNotFound, fmt.Sprintf("layer %s is not found", name))
	}

	if zoom < layer.GetMinZoom() || zoom > layer.GetMaxZoom() {
		return nil, fiber.NewError(fiber.StatusNotFound, "invalid zoom")
	}

	if n := 1 << zoom; x < 0 || y < 0 || x >= n || y >= n {
		return nil, fiber.NewError(fiber.StatusNotFound, "tile is out of range")
	}

	return &tileRequest{layer: layer, tile: model.Tile{X: x, Y: y, Z: zoom}}, nil
}

func (app *App) newLoader(l *remoteLayer) (*loader.Loader, error) {
	return loader.New(loader.Config{
		Layer:     l.desc,
		Platform:  app.platform,
		Client:    app.client,
		UserAgent: app.userAgent,
		Logger:    app.logger,
	})
}

func getUrlHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		req, err := parseTileRequest(app, c)
		if err != nil {
			return err
		}

		rl, ok := req.layer.(*remoteLayer)
		if !ok {
			return fiber.NewError(fiber.StatusBadRequest, "not a remote layer")
		}

		ld, err := app.newLoader(rl)
		if err != nil {
			return err
		}

		cover, err := ld.Cover(req.tile)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		urls := make([]string, 0, len(cover.Tiles))

		for _, t := range cover.Tiles {
			u, err := ld.TileURL(req.tile.Z, t)
			if err != nil {
				app.logger.Error("error computing url", "error", err)
				return err
			}

			urls = append(urls, u)
		}

		return c.JSON(fiber.Map{
			"url":       urls[0],
			"urls":      urls,
			"span":      cover.Span,
			"scale":     cover.Scale,
			"tile_size": ld.TileSize(req.tile.Z),
			"subdomain": ld.Source().Subdomain(cover.Tiles[0]),
		})
	}
}

// getLocateHandler returns the tile of ?lat=&lon=&zoom= and its url.
func getLocateHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		layer, ok := app.layers.Get(c.Params("name"))
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "layer is not found")
		}

		lat, lon, zoom := c.QueryFloat("lat"), c.QueryFloat("lon"), c.QueryInt("zoom")

		tile, px, py := mapper.NewTileSystem(256, false).LatLonToTile(lat, lon, zoom)

		res := fiber.Map{
			"z":      tile.Z,
			"x":      tile.X,
			"y":      tile.Y,
			"offset": []int{px, py},
			"tile":   fmt.Sprintf("/tiles/%s/%d/%d/%d", url.QueryEscape(layer.GetKey()), tile.Z, tile.X, tile.Y),
		}

		return c.JSON(res)
	}
}

func getTileHandler(app *App) func(c *fiber.Ctx) error {
	return func(c *fiber.Ctx) error {
		req, err := parseTileRequest(app, c)
		if err != nil {
			return err
		}

		switch l := req.layer.(type) {
		case *fileLayer:
			return app.sendFileTile(c, l, req.tile)
		case *remoteLayer:
			return app.sendRemoteTile(c, l, req.tile)
		default:
			return fiber.ErrNotFound
		}
	}
}

func (app *App) sendFileTile(c *fiber.Ctx, l *fileLayer, t model.Tile) error {
	data, err := l.Get(c.Context(), t.Z, t.X, t.Y)
	if err != nil {
		app.logger.Error("error getting tile", "error", err)
		return err
	}

	if data == nil {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	c.Set("Content-Type", l.ContentType())

	return c.Send(data)
}

func (app *App) sendRemoteTile(c *fiber.Ctx, l *remoteLayer, t model.Tile) error {
	ld, err := app.newLoader(l)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), app.timeout)
	defer cancel()

	var res *loader.Result

	if err := ld.LoadTiles(ctx, t.Z, []model.Tile{t}, func(r loader.Result) { res = &r }); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return c.Status(fiber.StatusGatewayTimeout).SendString("timeout")
		}

		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if res == nil {
		return c.Status(fiber.StatusNotFound).SendString("not found")
	}

	if res.Err != nil {
		app.logger.Warn("error getting tile", "layer", l.GetKey(), "error", res.Err)

		if u := l.desc.Options.ErrorTileURL; u != "" {
			return c.Redirect(u, fiber.StatusFound)
		}

		return c.Status(fiber.StatusBadGateway).SendString(res.Err.Error())
	}

	ct := res.ContentType
	if ct == "" {
		ct = "image/png"
	}

	c.Set("Content-Type", ct)

	return c.Send(res.Data)
}
