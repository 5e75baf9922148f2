// Package config loads and validates migration settings via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/talkmigrate/internal/policy/platform"
)

// Storage provider names.
const (
	ProviderDrive  = "drive"
	ProviderGCS    = "gcs"
	ProviderMemory = "memory"
)

// Config captures every knob loaded via Viper.
type Config struct {
	Logging    LoggingConfig     `mapstructure:"logging"`
	HTTP       HTTPConfig        `mapstructure:"http"`
	Content    ContentConfig     `mapstructure:"content"`
	Storage    StorageConfig     `mapstructure:"storage"`
	Policy     platform.Platform `mapstructure:"policy"`
	Batch      BatchConfig       `mapstructure:"batch"`
	Downstream DownstreamConfig  `mapstructure:"downstream"`
	Notify     NotifyConfig      `mapstructure:"notify"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// HTTPConfig configures outbound requests to the scraped platform.
type HTTPConfig struct {
	UserAgent      string  `mapstructure:"user_agent"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRedirects   int     `mapstructure:"max_redirects"`
	MaxBodyMB      int     `mapstructure:"max_body_mb"`
	RatePerHost    float64 `mapstructure:"rate_per_host"`
	Burst          int     `mapstructure:"burst"`
}

// ContentConfig locates the site's content tree.
type ContentConfig struct {
	RecordsDir    string `mapstructure:"records_dir"`
	StagingDir    string `mapstructure:"staging_dir"`
	ThumbnailsDir string `mapstructure:"thumbnails_dir"`
	// ThumbnailURLPath is how the site refers to ThumbnailsDir.
	ThumbnailURLPath string `mapstructure:"thumbnail_url_path"`
}

// StorageConfig selects and configures the slide host.
type StorageConfig struct {
	Provider        string `mapstructure:"provider"`
	CredentialsFile string `mapstructure:"credentials_file"`
	GCSBucket       string `mapstructure:"gcs_bucket"`
	GCSPrefix       string `mapstructure:"gcs_prefix"`
}

// BatchConfig controls speaker-level runs.
type BatchConfig struct {
	PauseMillis int `mapstructure:"pause_ms"`
}

// DownstreamConfig describes the site commands run after a record is accepted.
type DownstreamConfig struct {
	Enabled      bool     `mapstructure:"enabled"`
	Dir          string   `mapstructure:"dir"`
	BuildCommand []string `mapstructure:"build_command"`
	TestCommand  []string `mapstructure:"test_command"`
	TimeoutSecs  int      `mapstructure:"timeout_seconds"`
}

// NotifyConfig holds Pub/Sub coordinates. An empty topic disables publishing.
type NotifyConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig sets where the run's metrics are dumped.
type MetricsConfig struct {
	TextfilePath string `mapstructure:"textfile_path"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TALKMIGRATE")
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
	p := platform.Notist()
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("http.user_agent", "talkmigrate/1.0 (+https://github.com/JakeFAU/talkmigrate)")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_redirects", 10)
	v.SetDefault("http.max_body_mb", 50)
	v.SetDefault("http.rate_per_host", 1.0)
	v.SetDefault("http.burst", 2)
	v.SetDefault("content.records_dir", "_talks")
	v.SetDefault("content.staging_dir", ".talkmigrate/staging")
	v.SetDefault("content.thumbnails_dir", "assets/images/thumbnails")
	v.SetDefault("content.thumbnail_url_path", "/assets/images/thumbnails")
	v.SetDefault("storage.provider", ProviderDrive)
	v.SetDefault("storage.credentials_file", "credentials.json")
	v.SetDefault("policy.name", p.Name)
	v.SetDefault("policy.domain", p.Domain)
	v.SetDefault("policy.cdn_domain", p.CDNDomain)
	v.SetDefault("policy.thumbnail_prefix", p.ThumbnailPrefix)
	v.SetDefault("policy.embed_domain", p.EmbedDomain)
	v.SetDefault("policy.storage_domains", p.StorageDomains)
	v.SetDefault("policy.video_domains", p.VideoDomains)
	v.SetDefault("policy.non_talk_paths", p.NonTalkPaths)
	v.SetDefault("policy.talk_path", p.TalkPath)
	v.SetDefault("batch.pause_ms", 1000)
	v.SetDefault("downstream.enabled", false)
	v.SetDefault("downstream.dir", ".")
	v.SetDefault("downstream.build_command", []string{"bundle", "exec", "jekyll", "build"})
	v.SetDefault("downstream.test_command", []string{"bundle", "exec", "rake", "test"})
	v.SetDefault("downstream.timeout_seconds", 600)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRedirects <= 0 {
		return fmt.Errorf("http.max_redirects must be > 0")
	}
	if c.HTTP.RatePerHost < 0 {
		return fmt.Errorf("http.rate_per_host must be >= 0")
	}
	if strings.TrimSpace(c.Content.RecordsDir) == "" {
		return fmt.Errorf("content.records_dir is required")
	}
	if strings.TrimSpace(c.Content.StagingDir) == "" {
		return fmt.Errorf("content.staging_dir is required")
	}
	switch c.Storage.Provider {
	case ProviderDrive, ProviderMemory:
	case ProviderGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.provider is gcs")
		}
	default:
		return fmt.Errorf("storage.provider must be one of drive, gcs, memory (got %q)", c.Storage.Provider)
	}
	if c.Batch.PauseMillis < 0 {
		return fmt.Errorf("batch.pause_ms must be >= 0")
	}
	if c.Downstream.Enabled && len(c.Downstream.BuildCommand) == 0 && len(c.Downstream.TestCommand) == 0 {
		return fmt.Errorf("downstream.enabled requires build_command or test_command")
	}
	if c.Notify.TopicName != "" && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic_name is set")
	}
	if _, err := c.Policy.Compile(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

// Timeout is the per-request HTTP timeout.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Pause is the delay between talks in a batch.
func (c Config) Pause() time.Duration {
	return time.Duration(c.Batch.PauseMillis) * time.Millisecond
}

// DownstreamTimeout bounds each downstream command.
func (c Config) DownstreamTimeout() time.Duration {
	return time.Duration(c.Downstream.TimeoutSecs) * time.Second
}
