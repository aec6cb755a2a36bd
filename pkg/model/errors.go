package model

import (
	"errors"
	"fmt"
)

var ErrNoHost = errors.New("tile source is not added to a grid")

// ConfigError reports invalid or incomplete layer configuration.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}

	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func configErr(field, format string, args ...any) error {
	return &ConfigError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// TileLoadError is passed to DoneFunc when the tile image failed to load.
type TileLoadError struct {
	Tile Tile
	URL  string
	Err  error
}

func (e *TileLoadError) Error() string {
	return fmt.Sprintf("tile %s (%s): %v", e.Tile.Key(), e.URL, e.Err)
}

func (e *TileLoadError) Unwrap() error {
	return e.Err
}
