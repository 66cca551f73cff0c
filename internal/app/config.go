package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"

	"github.com/xenking/promo-engine/internal/domain/discount"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the service configuration, loadable from environment
// variables (PROMO_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL; when set, rules are read from the database" flag:"database-url"`
	Migrate     bool   `default:"true" usage:"Apply the database schema on startup"`
	Catalog     CatalogConfig
	Graceful    GracefulConfig
}

// CatalogConfig selects where rules come from and how they are applied.
type CatalogConfig struct {
	Files      []string `usage:"Catalog YAML files, optionally gzip compressed (.gz)"`
	NoopPolicy string   `default:"cart-total" usage:"Final total when a stacked code adds nothing: cart-total or net-of-stacked" flag:"noop-policy"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, flags and YAML
// config files, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "PROMO",
		Files:     []string{"config.yaml", "/etc/promo/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if _, err := cfg.Catalog.Policy(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Policy parses NoopPolicy.
func (c CatalogConfig) Policy() (discount.NoopTotalPolicy, error) {
	p, err := discount.ParseNoopTotalPolicy(c.NoopPolicy)
	if err != nil {
		return p, errors.Wrap(err, "catalog")
	}
	return p, nil
}

// applyPlatformDefaults maps the conventional DATABASE_URL and PORT variables
// onto the PROMO_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
