package utils

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultRemoteDataURL    = "https://mtgjson.com/api/v5/AllPrintings.sqlite.zip"
	DefaultRemoteSymbolsURL = "https://api.scryfall.com/symbology"
)

type Config struct {
	DataDir       string `env:"MTGDATA_DATA_DIR" envDefault:"data"`
	CardDBFile    string `env:"MTGDATA_CARD_DB_FILE" envDefault:"AllPrintings.sqlite"`
	PricingDBFile string `env:"MTGDATA_PRICING_DB_FILE" envDefault:"AllPricesToday.sqlite"`
	SymbolsFile   string `env:"MTGDATA_SYMBOLS_FILE" envDefault:"symbols.json"`

	RemoteDataURL    string `env:"MTGDATA_REMOTE_DATA_URL" envDefault:"https://mtgjson.com/api/v5/AllPrintings.sqlite.zip"`
	RemotePricingURL string `env:"MTGDATA_REMOTE_PRICING_URL"`
	RemoteSymbolsURL string `env:"MTGDATA_REMOTE_SYMBOLS_URL" envDefault:"https://api.scryfall.com/symbology"`

	HTTPAddr string `env:"MTGDATA_HTTP_ADDR" envDefault:":3000"`
	GRPCAddr string `env:"MTGDATA_GRPC_ADDR" envDefault:":50051"`
	GinMode  string `env:"MTGDATA_GIN_MODE" envDefault:"release"`

	LogLevel  string `env:"MTGDATA_LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"MTGDATA_LOG_PRETTY" envDefault:"false"`

	LoadOnStart     bool          `env:"MTGDATA_LOAD_ON_START" envDefault:"true"`
	DownloadTimeout time.Duration `env:"MTGDATA_DOWNLOAD_TIMEOUT" envDefault:"10m"`
}

// LoadConfig reads .env when present, then the MTGDATA_* environment.
func LoadConfig() (Config, error) {
	_ = godotenv.Load() // .env is optional

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func (c Config) CardDBPath() string    { return filepath.Join(c.DataDir, c.CardDBFile) }
func (c Config) PricingDBPath() string { return filepath.Join(c.DataDir, c.PricingDBFile) }
func (c Config) SymbolsPath() string   { return filepath.Join(c.DataDir, c.SymbolsFile) }
