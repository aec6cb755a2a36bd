package main

import (
	"sync"

	"github.com/kdudkov/tilelayer/pkg/mbtiles"
	"github.com/kdudkov/tilelayer/pkg/model"
)

// Source is a layer served by the app: a remote tile url or a local mbtiles archive.
type Source interface {
	GetKey() string
	GetName() string
	GetMinZoom() int
	GetMaxZoom() int
	IsFile() bool
}

type remoteLayer struct {
	desc *model.LayerDescription
	// opts are desc.Options normalized for the server platform
	opts model.Options
}

func (l *remoteLayer) GetKey() string  { return l.desc.Key }
func (l *remoteLayer) GetName() string { return l.desc.Name }
func (l *remoteLayer) GetMinZoom() int { return l.opts.MinZoom }
func (l *remoteLayer) GetMaxZoom() int { return l.opts.MaxZoom }
func (l *remoteLayer) IsFile() bool    { return false }

type fileLayer struct {
	*mbtiles.Archive
}

func (l *fileLayer) GetKey() string  { return l.Key() }
func (l *fileLayer) GetName() string { return l.Name() }
func (l *fileLayer) GetMinZoom() int { return l.MinZoom() }
func (l *fileLayer) GetMaxZoom() int { return l.MaxZoom() }
func (l *fileLayer) IsFile() bool    { return true }

func NewLayers() *Layers {
	return &Layers{
		data: sync.Map{},
	}
}

type Layers struct {
	data sync.Map
}

func (h *Layers) Get(key string) (Source, bool) {
	if v, ok := h.data.Load(key); ok {
		if n, ok1 := v.(Source); ok1 {
			return n, true
		}
	}

	return nil, false
}

func (h *Layers) Add(c Source) {
	if c == nil {
		return
	}

	if old, ok := h.data.Swap(c.GetKey(), c); ok {
		closeSource(old)
	}
}

func (h *Layers) Remove(key string) {
	if old, ok := h.data.LoadAndDelete(key); ok {
		closeSource(old)
	}
}

// RemoveIf drops all layers matching f.
func (h *Layers) RemoveIf(f func(c Source) bool) {
	h.All(func(c Source) bool {
		if f(c) {
			h.Remove(c.GetKey())
		}

		return true
	})
}

func (h *Layers) All(f func(c Source) bool) {
	h.data.Range(func(_, value any) bool {
		if c, ok := value.(Source); ok {
			return f(c)
		}

		return true
	})
}

func closeSource(v any) {
	if l, ok := v.(*fileLayer); ok {
		_ = l.Close()
	}
}
