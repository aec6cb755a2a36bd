package config

import (
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration, read from TILELAYER_* variables and an optional .env file.
type Config struct {
	Addr       string        `env:"ADDR" envDefault:":8888"`
	LayersFile string        `env:"LAYERS" envDefault:"layers.yml"`
	FilesDir   string        `env:"FILES" envDefault:"./data"`
	Debug      bool          `env:"DEBUG"`
	Retina     bool          `env:"RETINA"`
	UserAgent  string        `env:"USER_AGENT" envDefault:"tilelayer/1.0"`
	Timeout    time.Duration `env:"TIMEOUT" envDefault:"10s"`
}

func New() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file", "error", err)
	}

	cfg, err := env.ParseAsWithOptions[Config](env.Options{Prefix: "TILELAYER_"})
	if err != nil {
		return nil, err
	}

	return &cfg, nil
}
