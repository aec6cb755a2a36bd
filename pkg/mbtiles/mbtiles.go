package mbtiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	_ "modernc.org/sqlite"
)

// Archive is an mbtiles file. Rows are stored in tms order, the api takes xyz coordinates.
type Archive struct {
	db          *sql.DB
	key         string
	name        string
	minZoom     int
	maxZoom     int
	contentType string
	tms         bool
	meta        map[string]string
	modTime     time.Time
}

func Open(key, path string) (*Archive, error) {
	fileInfo, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		db:      db,
		key:     key,
		name:    key,
		tms:     true,
		modTime: fileInfo.ModTime(),
	}

	if err := a.load(); err != nil {
		db.Close()
		return nil, err
	}

	return a, nil
}

func (a *Archive) load() error {
	var err error

	if err = a.getMetadata(); err != nil {
		return err
	}

	a.minZoom, a.maxZoom, err = a.getMinMaxZoom()
	if err != nil {
		return err
	}

	if v, ok := a.meta["minzoom"]; ok {
		if vv, err := strconv.Atoi(v); err == nil {
			a.minZoom = vv
		}
	}

	if v, ok := a.meta["maxzoom"]; ok {
		if vv, err := strconv.Atoi(v); err == nil {
			a.maxZoom = vv
		}
	}

	if v, ok := a.meta["scheme"]; ok && v != "tms" {
		a.tms = false
	}

	if v, ok := a.meta["name"]; ok {
		a.name = v
	}

	a.contentType = "image/png"

	if v, ok := a.meta["format"]; ok {
		ct, err := ContentType(v)
		if err != nil {
			return err
		}

		a.contentType = ct
	}

	return nil
}

// Create makes a new empty archive, replacing an existing file.
func Create(key, path string) (*Archive, error) {
	_ = os.Remove(path)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Archive{
		db:          db,
		key:         key,
		name:        key,
		tms:         true,
		contentType: "image/png",
		meta:        make(map[string]string),
		modTime:     time.Now(),
	}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec("CREATE TABLE IF NOT EXISTS tiles (zoom_level INTEGER NOT NULL,tile_column INTEGER NOT NULL,tile_row INTEGER NOT NULL,tile_data BLOB NOT NULL,UNIQUE (zoom_level, tile_column, tile_row));")
	if err != nil {
		return err
	}

	_, err = db.Exec("CREATE TABLE IF NOT EXISTS metadata (name TEXT, value TEXT);")

	return err
}

func ContentType(format string) (string, error) {
	switch format {
	case "png":
		return "image/png", nil
	case "jpg", "jpeg":
		return "image/jpeg", nil
	case "webp":
		return "image/webp", nil
	default:
		return "", fmt.Errorf("invalid format - %s", format)
	}
}

func Format(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return "jpg"
	case "image/webp":
		return "webp"
	default:
		return "png"
	}
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func (a *Archive) String() string {
	return fmt.Sprintf("%s %d:%d %v %v %+v", a.name, a.minZoom, a.maxZoom, a.tms, a.modTime, a.meta)
}

func (a *Archive) Key() string {
	return a.key
}

func (a *Archive) Name() string {
	return a.name
}

func (a *Archive) MinZoom() int {
	return a.minZoom
}

func (a *Archive) MaxZoom() int {
	return a.maxZoom
}

func (a *Archive) ContentType() string {
	return a.contentType
}

func (a *Archive) Meta() map[string]string {
	return a.meta
}

func (a *Archive) ModTime() time.Time {
	return a.modTime
}

func (a *Archive) row(z, y int) int {
	if a.tms {
		return 1<<z - y - 1
	}

	return y
}

func (a *Archive) getMetadata() error {
	rows, err := a.db.Query("SELECT name,value FROM metadata ORDER BY name")
	if err != nil {
		return err
	}

	defer rows.Close()

	a.meta = make(map[string]string)

	for rows.Next() {
		var name, value string
		if err = rows.Scan(&name, &value); err != nil {
			return err
		}

		a.meta[name] = value
	}

	return rows.Err()
}

func (a *Archive) getMinMaxZoom() (int, int, error) {
	var zmin, zmax sql.NullInt64

	if err := a.db.QueryRow("SELECT min(zoom_level), max(zoom_level) FROM tiles").Scan(&zmin, &zmax); err != nil {
		return 0, 0, err
	}

	return int(zmin.Int64), int(zmax.Int64), nil
}

// Get returns tile data or nil if there is no such tile.
func (a *Archive) Get(ctx context.Context, z, x, y int) ([]byte, error) {
	var data []byte

	err := a.db.QueryRowContext(ctx, "SELECT tile_data FROM tiles WHERE zoom_level=? and tile_column=? and tile_row=?", z, x, a.row(z, y)).Scan(&data)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	return data, err
}

func (a *Archive) Put(z, x, y int, data []byte) error {
	_, err := a.db.Exec("INSERT OR REPLACE INTO tiles (zoom_level, tile_column, tile_row, tile_data) values (?,?,?,?)", z, x, a.row(z, y), data)
	return err
}

func (a *Archive) PutMeta(meta map[string]string) error {
	for k, v := range meta {
		if _, err := a.db.Exec("DELETE FROM metadata WHERE name=?", k); err != nil {
			return err
		}

		if _, err := a.db.Exec("INSERT INTO metadata (name, value) values (?,?)", k, v); err != nil {
			return err
		}

		a.meta[k] = v
	}

	return nil
}
