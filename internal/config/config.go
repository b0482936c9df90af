package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Library   LibraryConfig   `mapstructure:"library"`
	Indexer   IndexerConfig   `mapstructure:"indexer"`
	Metadata  MetadataConfig  `mapstructure:"metadata"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Events    EventsConfig    `mapstructure:"events"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// LibraryConfig holds library tree and import configuration.
type LibraryConfig struct {
	Root              string        `mapstructure:"root"`
	NamingTemplate    string        `mapstructure:"naming_template"`
	FileOperation     string        `mapstructure:"file_operation"` // move, copy, hardlink
	RecycleBinPath    string        `mapstructure:"recycle_bin_path"`
	RecycleBinDays    int           `mapstructure:"recycle_bin_days"`
	PathMappings      []PathMapping `mapstructure:"path_mappings"`
	FFprobePath       string        `mapstructure:"ffprobe_path"`
	ProbeConcurrency  int           `mapstructure:"probe_concurrency"`
}

// PathMapping rewrites a BT-engine path prefix into a local one.
type PathMapping struct {
	Remote string `mapstructure:"remote"`
	Local  string `mapstructure:"local"`
}

// IndexerConfig holds torrent indexer and seadex configuration.
type IndexerConfig struct {
	BaseURL            string  `mapstructure:"base_url"`
	Category           string  `mapstructure:"category"`
	MinSeeders         int     `mapstructure:"min_seeders"`
	SkipRemakes        bool    `mapstructure:"skip_remakes"`
	SeadexBaseURL      string  `mapstructure:"seadex_base_url"`
	MinTitleSimilarity float64 `mapstructure:"min_title_similarity"`
	CacheTTLSeconds    int     `mapstructure:"cache_ttl_seconds"`
}

// MetadataConfig holds episode metadata provider configuration.
type MetadataConfig struct {
	JikanBaseURL string `mapstructure:"jikan_base_url"`
}

// DownloadsConfig holds BT engine and download orchestration configuration.
type DownloadsConfig struct {
	QBittorrentHost       string `mapstructure:"qbittorrent_host"`
	QBittorrentUsername   string `mapstructure:"qbittorrent_username"`
	QBittorrentPassword   string `mapstructure:"qbittorrent_password"`
	SavePath              string `mapstructure:"save_path"`
	CheckDelaySeconds     int    `mapstructure:"check_delay_seconds"`
	RssDelaySeconds       int    `mapstructure:"rss_delay_seconds"`
	StalledTimeoutSeconds int    `mapstructure:"stalled_timeout_seconds"`
}

// SchedulerConfig holds job timing configuration. A non-empty cron
// expression takes precedence over the matching interval.
type SchedulerConfig struct {
	ReleaseCheckMinutes  int    `mapstructure:"release_check_minutes"`
	MetadataRefreshHours int    `mapstructure:"metadata_refresh_hours"`
	LibraryScanHours     int    `mapstructure:"library_scan_hours"`
	RssCheckMinutes      int    `mapstructure:"rss_check_minutes"`
	ReleaseCheckCron     string `mapstructure:"release_check_cron"`
	MetadataRefreshCron  string `mapstructure:"metadata_refresh_cron"`
	LibraryScanCron      string `mapstructure:"library_scan_cron"`
	RssCheckCron         string `mapstructure:"rss_check_cron"`
}

// EventsConfig holds event bus configuration.
type EventsConfig struct {
	BusCapacity int `mapstructure:"bus_capacity"`
}

// Load reads configuration from file and environment variables.
// Priority: environment variables > config file > defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.kumoarr")
	}

	v.SetEnvPrefix("KUMOARR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults + env vars
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "./data/kumoarr.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.retention_days", 30)

	v.SetDefault("library.root", "./library")
	v.SetDefault("library.naming_template",
		"{Series Title}/Season {Season:02}/{Series Title} - S{Season:02}E{Episode:02} - {Title} [{Quality}]")
	v.SetDefault("library.file_operation", "hardlink")
	v.SetDefault("library.recycle_bin_path", "./recycle")
	v.SetDefault("library.recycle_bin_days", 7)
	v.SetDefault("library.ffprobe_path", "ffprobe")
	v.SetDefault("library.probe_concurrency", 8)

	v.SetDefault("indexer.base_url", "")
	v.SetDefault("indexer.category", "1_2")
	v.SetDefault("indexer.min_seeders", 1)
	v.SetDefault("indexer.skip_remakes", true)
	v.SetDefault("indexer.seadex_base_url", "")
	v.SetDefault("indexer.min_title_similarity", 0.3)
	v.SetDefault("indexer.cache_ttl_seconds", 300)

	v.SetDefault("metadata.jikan_base_url", "")

	v.SetDefault("downloads.qbittorrent_host", "http://localhost:8080")
	v.SetDefault("downloads.qbittorrent_username", "admin")
	v.SetDefault("downloads.qbittorrent_password", "")
	v.SetDefault("downloads.save_path", "")
	v.SetDefault("downloads.check_delay_seconds", 5)
	v.SetDefault("downloads.rss_delay_seconds", 2)
	v.SetDefault("downloads.stalled_timeout_seconds", 900)

	v.SetDefault("scheduler.release_check_minutes", 15)
	v.SetDefault("scheduler.metadata_refresh_hours", 12)
	v.SetDefault("scheduler.library_scan_hours", 12)
	v.SetDefault("scheduler.rss_check_minutes", 15)
	v.SetDefault("scheduler.release_check_cron", "")
	v.SetDefault("scheduler.metadata_refresh_cron", "")
	v.SetDefault("scheduler.library_scan_cron", "")
	v.SetDefault("scheduler.rss_check_cron", "")

	v.SetDefault("events.bus_capacity", 100)
}
