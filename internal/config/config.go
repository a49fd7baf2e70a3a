package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type SchedulerConfig struct {
	CronSpec    string        `mapstructure:"cron_spec"`
	WarmupDelay time.Duration `mapstructure:"warmup_delay"`
	BatchSize   int           `mapstructure:"batch_size"`
}

type SourceConfig struct {
	YtDlpBinary string `mapstructure:"ytdlp_binary"`
	TempDir     string `mapstructure:"temp_dir"`
	CookiesPath string `mapstructure:"cookies_path"`
}

type FacebookConfig struct {
	GraphVersion string `mapstructure:"graph_version"`
}

type Config struct {
	DatabaseURL string          `mapstructure:"database_url"`
	ServerPort  string          `mapstructure:"server_port"`
	JWTSecret   string          `mapstructure:"jwt_secret"`
	Scheduler   SchedulerConfig `mapstructure:"scheduler"`
	Source      SourceConfig    `mapstructure:"source"`
	Facebook    FacebookConfig  `mapstructure:"facebook"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.JWTSecret == "" {
		log.Fatal("JWT secret must be set in the config file")
	}

	if config.Scheduler.CronSpec == "" {
		config.Scheduler.CronSpec = "* * * * *"
	}
	if config.Scheduler.WarmupDelay == 0 {
		config.Scheduler.WarmupDelay = 4 * time.Second
	}
	if config.Scheduler.BatchSize == 0 {
		config.Scheduler.BatchSize = 20
	}

	if config.Source.YtDlpBinary == "" {
		config.Source.YtDlpBinary = "/usr/local/bin/yt-dlp"
	}
	if config.Source.TempDir == "" {
		config.Source.TempDir = "./storage/tmp"
	}

	if config.Facebook.GraphVersion == "" {
		config.Facebook.GraphVersion = "v23.0"
	}

	return &config
}
