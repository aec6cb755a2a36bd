package model

import "fmt"

type Tile struct {
	X int
	Y int
	Z int
}

// Key is the grid registry key of the tile.
func (t Tile) Key() string {
	return fmt.Sprintf("%d:%d:%d", t.X, t.Y, t.Z)
}

func (t Tile) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}
