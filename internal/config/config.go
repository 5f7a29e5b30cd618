// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Data    DataConfig    `mapstructure:"data"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Sources SourcesConfig `mapstructure:"sources"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DataConfig sets where snapshots live on disk.
type DataConfig struct {
	// RawDir holds one sub-directory of dated intermediate snapshots per
	// source.
	RawDir string `mapstructure:"raw_dir"`
	// MergedPath is the canonical merged snapshot file.
	MergedPath string `mapstructure:"merged_path"`
}

// HTTPConfig configures outbound fetch behavior.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
}

// SourcesConfig holds per-source origins.
type SourcesConfig struct {
	GDP          GDPSourceConfig          `mapstructure:"gdp"`
	Oil          OilSourceConfig          `mapstructure:"oil"`
	Agriculture  AgricultureSourceConfig  `mapstructure:"agriculture"`
	Minerals     MineralsSourceConfig     `mapstructure:"minerals"`
	GoldReserves GoldReservesSourceConfig `mapstructure:"gold_reserves"`
}

// GDPSourceConfig points at the World Bank indicator API.
type GDPSourceConfig struct {
	URL       string `mapstructure:"url"`
	DateRange string `mapstructure:"date_range"`
}

// OilSourceConfig points at the OWID energy dataset.
type OilSourceConfig struct {
	URL string `mapstructure:"url"`
}

// AgricultureSourceConfig points at the OWID grapher CSVs per grain.
type AgricultureSourceConfig struct {
	WheatURL string `mapstructure:"wheat_url"`
	RiceURL  string `mapstructure:"rice_url"`
	MaizeURL string `mapstructure:"maize_url"`
}

// MineralsSourceConfig points at the USGS workbook plus the gold fallback
// page.
type MineralsSourceConfig struct {
	WorkbookURL     string `mapstructure:"workbook_url"`
	GoldFallbackURL string `mapstructure:"gold_fallback_url"`
}

// GoldReservesSourceConfig points at the gold reserves listing page.
type GoldReservesSourceConfig struct {
	URL string `mapstructure:"url"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WORLDSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", true)
	v.SetDefault("data.raw_dir", "data/raw")
	v.SetDefault("data.merged_path", "data/merged/countries_data.json")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "worldstat-crawler/0.1 (+https://github.com/atlasforge/worldstat-crawler)")
	v.SetDefault("sources.gdp.url", "https://api.worldbank.org/v2/country/all/indicator/NY.GDP.MKTP.CD")
	v.SetDefault("sources.gdp.date_range", "2020:2024")
	v.SetDefault("sources.oil.url", "https://raw.githubusercontent.com/owid/energy-data/master/owid-energy-data.csv")
	v.SetDefault("sources.agriculture.wheat_url", "https://ourworldindata.org/grapher/wheat-production.csv")
	v.SetDefault("sources.agriculture.rice_url", "https://ourworldindata.org/grapher/rice-production.csv")
	v.SetDefault("sources.agriculture.maize_url", "https://ourworldindata.org/grapher/maize-production.csv")
	v.SetDefault("sources.minerals.workbook_url", "https://prd-wret.s3.us-west-2.amazonaws.com/assets/palladium/production/mineral-commodity-summaries/2024/mcs2024.xlsx")
	v.SetDefault("sources.minerals.gold_fallback_url", "https://en.wikipedia.org/wiki/Lists_of_countries_by_mineral_production")
	v.SetDefault("sources.gold_reserves.url", "https://zh.tradingeconomics.com/country-list/gold-reserves")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if strings.TrimSpace(c.Data.RawDir) == "" {
		return fmt.Errorf("data.raw_dir must be set")
	}
	if strings.TrimSpace(c.Data.MergedPath) == "" {
		return fmt.Errorf("data.merged_path must be set")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout config into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
