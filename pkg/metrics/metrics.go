package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TilesRequested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilelayer_tiles_requested_total",
		Help: "Total number of tile images requested",
	})

	TilesLoaded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilelayer_tiles_loaded_total",
		Help: "Total number of tiles settled with a loaded image",
	})

	TilesErrored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilelayer_tiles_errored_total",
		Help: "Total number of tiles settled with a load error",
	})

	TilesAborted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilelayer_tiles_aborted_total",
		Help: "Total number of in-flight tiles aborted",
	})

	TilesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilelayer_tiles_removed_total",
		Help: "Total number of tiles removed from a grid",
	})

	FetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilelayer_fetch_duration_seconds",
		Help:    "Latency of tile image fetches in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"result"})
)
