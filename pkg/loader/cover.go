package loader

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"golang.org/x/image/draw"

	"github.com/kdudkov/tilelayer/pkg/model"
)

// Cover is the part of a layer grid under one standard tile.
type Cover struct {
	Tile model.Tile
	// Tiles are grid tiles, Span by Span, row by row.
	Tiles []model.Tile
	// Span is the number of grid tiles per axis inside Tile.
	Span int
	// Scale is the number of standard tiles per axis inside one grid tile.
	Scale int
}

func (c Cover) result(parts map[string]Result) Result {
	res := Result{Tile: c.Tile}

	src := make([]Result, 0, len(c.Tiles))

	for _, t := range c.Tiles {
		r, ok := parts[t.Key()]
		if !ok {
			res.Err = fmt.Errorf("tile %s is not loaded", t)
			return res
		}

		if r.Err != nil {
			res.URL = r.URL
			res.Err = r.Err
			return res
		}

		src = append(src, r)
	}

	res.URL = src[0].URL

	if c.Span == 1 && c.Scale == 1 {
		res.Data = src[0].Data
		res.ContentType = src[0].ContentType

		return res
	}

	data, err := c.compose(src)
	if err != nil {
		res.Err = err
		return res
	}

	res.Data = data
	res.ContentType = "image/png"

	return res
}

// compose joins retina parts or cuts the standard tile out of an overzoomed one.
// The output keeps the pixel density of the source tiles.
func (c Cover) compose(parts []Result) ([]byte, error) {
	imgs := make([]image.Image, len(parts))

	for i, p := range parts {
		img, _, err := image.Decode(bytes.NewReader(p.Data))
		if err != nil {
			return nil, fmt.Errorf("tile %s: %w", p.Tile, err)
		}

		imgs[i] = img
	}

	b := imgs[0].Bounds()

	var dst *image.RGBA

	if c.Scale > 1 {
		w, h := b.Dx()/c.Scale, b.Dy()/c.Scale
		if w == 0 || h == 0 {
			return nil, fmt.Errorf("tile %s is too small to scale", parts[0].Tile)
		}

		x := b.Min.X + c.Tile.X%c.Scale*w
		y := b.Min.Y + c.Tile.Y%c.Scale*h

		dst = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.CatmullRom.Scale(dst, dst.Bounds(), imgs[0], image.Rect(x, y, x+w, y+h), draw.Src, nil)
	} else {
		w, h := b.Dx(), b.Dy()

		dst = image.NewRGBA(image.Rect(0, 0, w*c.Span, h*c.Span))

		for i, img := range imgs {
			x, y := i%c.Span, i/c.Span
			draw.Draw(dst, image.Rect(x*w, y*h, (x+1)*w, (y+1)*h), img, img.Bounds().Min, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
