package model

// BlankURL is a 1x1 transparent gif. Pointing an image at it releases the previous resource.
const BlankURL = "data:image/gif;base64,R0lGODlhAQABAAD/ACwAAAAAAQABAAACADs="

const CrossOriginAnonymous = "anonymous"

// Platform answers questions about the display environment.
type Platform interface {
	IsHighDensity() bool
	// HasTileRemovalQuirk reports platforms where resetting the source of a removed tile misbehaves.
	HasTileRemovalQuirk() bool
}

type StaticPlatform struct {
	HighDensity      bool
	TileRemovalQuirk bool
}

func (p StaticPlatform) IsHighDensity() bool {
	return p.HighDensity
}

func (p StaticPlatform) HasTileRemovalQuirk() bool {
	return p.TileRemovalQuirk
}

// Image is a loadable image resource.
// Observers are invoked on the loop that owns the image, never concurrently.
type Image interface {
	SetSrc(url string)
	Src() string
	SetAlt(alt string)
	SetCrossOrigin(mode string)
	OnLoad(f func())
	OnError(f func(err error))
	// Complete is true once the current source finished loading, successfully or not.
	Complete() bool
	// Remove detaches the image from display.
	Remove()
}

type ImageFactory func() Image

// GridHost is the grid that positions tiles of a TileSource.
type GridHost interface {
	Zoom() int
	ZoomScale(zoom int) float64
	TileBoundsMaxY() int
	Tiles() map[string]*TileHandle
	Tile(key string) (*TileHandle, bool)
	// RemoveTile detaches the tile from display and forgets it.
	RemoveTile(key string)
	Redraw()
}
