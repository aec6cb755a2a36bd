package model

type DoneFunc func(err error, h *TileHandle)

// TileHandle is one requested tile image.
// It settles at most once: the first load or error wins, later events are ignored.
type TileHandle struct {
	tile    Tile
	img     Image
	done    DoneFunc
	err     error
	settled bool
	aborted bool
}

func (h *TileHandle) Tile() Tile {
	return h.tile
}

func (h *TileHandle) Key() string {
	return h.tile.Key()
}

func (h *TileHandle) Image() Image {
	return h.img
}

func (h *TileHandle) Settled() bool {
	return h.settled
}

func (h *TileHandle) Aborted() bool {
	return h.aborted
}

// Err is the load error the handle settled with.
func (h *TileHandle) Err() error {
	return h.err
}

func (h *TileHandle) claim() bool {
	if h.settled || h.aborted {
		return false
	}

	h.settled = true
	return true
}

func (h *TileHandle) notify() {
	if h.done != nil {
		h.done(h.err, h)
	}
}

func noop() {}

func noopErr(error) {}
