package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/kdudkov/tilelayer/pkg/mbtiles"
	"github.com/kdudkov/tilelayer/pkg/model"
)

const layersYaml = `
- key: osm
  name: OpenStreetMap
  url: "%s/{z}/{x}/{y}.png"
  maxZoom: 19
- key: sub
  url: "https://{s}.example.com/{z}/{x}/{y}.png"
  subdomains: "xyz"
  maxZoom: 10
- key: broken
  url: "%s/missing/{z}/{x}/{y}.png"
  errorTileUrl: "/empty.png"
- key: invalid
  url: "%s/{z}/{x}/{y}/{unknown}.png"
- key: retina
  url: "%s/{z}/{x}/{y}"
  detectRetina: true
- key: native
  url: "%s/{z}/{x}/{y}"
  maxNativeZoom: 3
`

func newUpstream(t *testing.T) *httptest.Server {
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
		t.Fatal(err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/{z}/{x}/{y}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(buf.Bytes())
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return srv
}

func newTestApp(t *testing.T) (*App, *fiber.App) {
	return newTestAppOn(t, model.StaticPlatform{})
}

func newTestAppOn(t *testing.T, p model.Platform) (*App, *fiber.App) {
	upstream := newUpstream(t)
	dir := t.TempDir()

	layersFile := filepath.Join(dir, "layers.yml")
	data := bytes.ReplaceAll([]byte(layersYaml), []byte("%s"), []byte(upstream.URL))

	if err := os.WriteFile(layersFile, data, 0644); err != nil {
		t.Fatal(err)
	}

	filesDir := filepath.Join(dir, "files")
	if err := os.MkdirAll(filesDir, 0777); err != nil {
		t.Fatal(err)
	}

	a, err := mbtiles.Create("local.mbtiles", filepath.Join(filesDir, "local.mbtiles"))
	if err != nil {
		t.Fatal(err)
	}

	if err := a.Put(2, 1, 1, []byte("jpeg data")); err != nil {
		t.Fatal(err)
	}

	if err := a.PutMeta(map[string]string{"name": "Local", "format": "jpg"}); err != nil {
		t.Fatal(err)
	}

	if err := a.Close(); err != nil {
		t.Fatal(err)
	}

	app := NewApp(":8888", slog.Default())
	app.filesDir = filesDir
	app.layersFile = layersFile
	app.platform = p

	if err := app.addDefaultSources(); err != nil {
		t.Fatal(err)
	}

	if err := app.addFileSources(); err != nil {
		t.Fatal(err)
	}

	t.Cleanup(func() { app.layers.RemoveIf(func(c Source) bool { return true }) })

	return app, NewHttp(app)
}

func get(t *testing.T, f *fiber.App, path string) (*http.Response, []byte) {
	resp, err := f.Test(httptest.NewRequest(http.MethodGet, path, nil), 5000)
	if err != nil {
		t.Fatal(err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}

	return resp, body
}

func TestLayers(t *testing.T) {
	_, f := newTestApp(t)

	resp, body := get(t, f, "/layers")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d", resp.StatusCode)
	}

	var layers []map[string]any
	if err := json.Unmarshal(body, &layers); err != nil {
		t.Fatal(err)
	}

	var keys []string
	for _, l := range layers {
		keys = append(keys, l["key"].(string))
	}

	// invalid template is skipped
	want := []string{"broken", "local.mbtiles", "native", "osm", "retina", "sub"}

	if len(keys) != len(want) {
		t.Fatalf("wrong layers %v", keys)
	}

	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("wrong layers %v, must be %v", keys, want)
		}
	}

	if layers[1]["name"] != "Local" || layers[1]["file"] != true {
		t.Errorf("wrong file layer %v", layers[1])
	}
}

func TestUrl(t *testing.T) {
	_, f := newTestApp(t)

	resp, body := get(t, f, "/url/sub/3/1/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d: %s", resp.StatusCode, body)
	}

	var res map[string]any
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}

	if res["url"] != "https://z.example.com/3/1/1.png" {
		t.Errorf("wrong url %v", res["url"])
	}

	if res["subdomain"] != "z" || res["tile_size"] != 256.0 {
		t.Errorf("wrong result %v", res)
	}

	if resp, _ := get(t, f, "/url/sub/11/1/1"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("zoom out of range must give 404, got %d", resp.StatusCode)
	}

	if resp, _ := get(t, f, "/url/local.mbtiles/2/1/1"); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("file layer has no url, got %d", resp.StatusCode)
	}
}

func TestRemoteTile(t *testing.T) {
	_, f := newTestApp(t)

	resp, body := get(t, f, "/tiles/osm/3/2/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d: %s", resp.StatusCode, body)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("wrong content type %s", ct)
	}

	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Errorf("bad tile: %v", err)
	}
}

func TestErrorTile(t *testing.T) {
	_, f := newTestApp(t)

	resp, _ := get(t, f, "/tiles/broken/3/2/1")
	if resp.StatusCode != http.StatusFound {
		t.Fatalf("wrong status %d", resp.StatusCode)
	}

	if l := resp.Header.Get("Location"); l != "/empty.png" {
		t.Errorf("wrong location %s", l)
	}
}

func TestFileTile(t *testing.T) {
	_, f := newTestApp(t)

	resp, body := get(t, f, "/tiles/local.mbtiles/2/1/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d", resp.StatusCode)
	}

	if string(body) != "jpeg data" || resp.Header.Get("Content-Type") != "image/jpeg" {
		t.Errorf("wrong tile %s %s", resp.Header.Get("Content-Type"), body)
	}

	if resp, _ := get(t, f, "/tiles/local.mbtiles/2/0/0"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing tile must give 404, got %d", resp.StatusCode)
	}
}

func TestUnknown(t *testing.T) {
	_, f := newTestApp(t)

	for _, p := range []string{"/tiles/none/1/1/1", "/tiles/osm/1/a/1", "/url/none/1/1/1"} {
		resp, _ := get(t, f, p)

		if resp.StatusCode != http.StatusNotFound && resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: wrong status %d", p, resp.StatusCode)
		}
	}
}

func TestLocate(t *testing.T) {
	_, f := newTestApp(t)

	resp, body := get(t, f, "/locate/osm?lat=55.746819&lon=37.612228&zoom=10")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d", resp.StatusCode)
	}

	var res map[string]any
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}

	if res["x"] != 618.0 || res["y"] != 320.0 || res["tile"] != "/tiles/osm/10/618/320" {
		t.Errorf("wrong result %v", res)
	}
}

func TestRetinaTile(t *testing.T) {
	_, f := newTestAppOn(t, model.StaticPlatform{HighDensity: true})

	// max zoom is lowered by one on a high density platform
	if resp, _ := get(t, f, "/tiles/retina/18/0/0"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("zoom above normalized max must give 404, got %d", resp.StatusCode)
	}

	resp, body := get(t, f, "/tiles/retina/5/1/1")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d: %s", resp.StatusCode, body)
	}

	cfg, err := png.DecodeConfig(bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}

	// four 8px upstream tiles
	if cfg.Width != 16 || cfg.Height != 16 {
		t.Errorf("wrong size %dx%d", cfg.Width, cfg.Height)
	}

	resp, body = get(t, f, "/url/retina/5/31/31")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d", resp.StatusCode)
	}

	var res map[string]any
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}

	urls, _ := res["urls"].([]any)
	if len(urls) != 4 || !strings.HasSuffix(urls[0].(string), "/6/62/62") || !strings.HasSuffix(urls[3].(string), "/6/63/63") {
		t.Errorf("wrong urls %v", res["urls"])
	}
}

func TestNativeZoomTile(t *testing.T) {
	_, f := newTestApp(t)

	resp, body := get(t, f, "/url/native/5/7/3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d", resp.StatusCode)
	}

	var res map[string]any
	if err := json.Unmarshal(body, &res); err != nil {
		t.Fatal(err)
	}

	if u, _ := res["url"].(string); !strings.HasSuffix(u, "/3/1/0") || res["scale"] != 4.0 {
		t.Errorf("wrong result %v", res)
	}

	resp, body = get(t, f, "/tiles/native/5/7/3")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("wrong status %d: %s", resp.StatusCode, body)
	}

	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Errorf("bad tile: %v", err)
	}

	if resp, _ := get(t, f, "/tiles/native/5/32/0"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("tile out of range must give 404, got %d", resp.StatusCode)
	}
}
