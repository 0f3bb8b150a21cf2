package config

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	VCB      FeedConfig     `mapstructure:"vcb"`
	SJC      GoldFeedConfig `mapstructure:"sjc"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// FeedConfig describes one upstream HTTP feed.
type FeedConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// GoldFeedConfig is the SJC price service feed. BranchID selects the
// branch whose prices are fetched; "1" is the Ho Chi Minh City branch.
type GoldFeedConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Timeout  time.Duration `mapstructure:"timeout"`
	BranchID string        `mapstructure:"branch_id"`
}

// ScheduleConfig controls how often the pipeline runs. A zero interval
// means run once and exit.
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		v.AddConfigPath(filepath.Join(pwd, "../../config"))
	} else {
		v.AddConfigPath(filepath.Join(filepath.Dir(ex), "../config"))
	}

	// Support environment variables with dot notation (e.g., POSTGRES_PASSWORD)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	// A missing password is tolerated by some auth setups; warn so the
	// operator notices before the first connection attempt fails.
	if cfg.Postgres.Password == "" && cfg.Log.Environment != "prod" {
		log.Printf("WARNING: postgres.password is not set")
	}

	return &cfg
}
