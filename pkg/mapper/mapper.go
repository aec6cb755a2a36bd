package mapper

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"

	"github.com/kdudkov/tilelayer/pkg/model"
)

func radians(a float64) float64 {
	return a / 180 * math.Pi
}

func deg(a float64) float64 {
	return a / math.Pi * 180
}

// TileSystem converts between lat/lon and spherical mercator pixels.
type TileSystem struct {
	tms      bool
	tileSize int
}

func NewTileSystem(tileSize int, tms bool) *TileSystem {
	return &TileSystem{
		tms:      tms,
		tileSize: tileSize,
	}
}

func (ts *TileSystem) worldSize(zoom int) int {
	return 1 << zoom * ts.tileSize
}

// LatLonToPixel returns world pixel coordinates of the point.
func (ts *TileSystem) LatLonToPixel(lat, lon float64, zoom int) (int, int) {
	size := float64(ts.worldSize(zoom))

	x := (lon + 180) / 360 * size
	y := (1 - math.Log(math.Tan(radians(lat))+(1/math.Cos(radians(lat))))/math.Pi) / 2 * size
	if ts.tms {
		y = size - y
	}

	return int(math.Round(x)), int(math.Round(y))
}

// LatLonToTile returns the tile holding the point and the pixel offset inside it.
func (ts *TileSystem) LatLonToTile(lat, lon float64, zoom int) (model.Tile, int, int) {
	x, y := ts.LatLonToPixel(lat, lon, zoom)

	t := model.Tile{X: x / ts.tileSize, Y: y / ts.tileSize, Z: zoom}

	return t, x % ts.tileSize, y % ts.tileSize
}

func (ts *TileSystem) PixelToLatLon(x, y float64, zoom int) (float64, float64) {
	size := float64(ts.worldSize(zoom))
	if ts.tms {
		y = size - y
	}

	lon := x/size*360.0 - 180.0
	lat := deg(math.Atan(math.Sinh(math.Pi * (1 - 2*y/size))))

	return lat, lon
}

// TilesInBounds lists the xyz tiles covering b, west to east, north to south.
func TilesInBounds(b orb.Bound, zoom int) []model.Tile {
	z := maptile.Zoom(zoom)
	last := uint32(1)<<z - 1

	nw := maptile.At(orb.Point{b.Min[0], b.Max[1]}, z)
	se := maptile.At(orb.Point{b.Max[0], b.Min[1]}, z)

	res := make([]model.Tile, 0, int(min(se.X, last)-nw.X+1)*int(min(se.Y, last)-nw.Y+1))

	for x := nw.X; x <= min(se.X, last); x++ {
		for y := nw.Y; y <= min(se.Y, last); y++ {
			res = append(res, model.Tile{X: int(x), Y: int(y), Z: zoom})
		}
	}

	return res
}
