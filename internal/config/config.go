package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Save the queue on exit and restore it on the next start
	SaveQueueOnExit bool

	// Playback volume in percent, saved on exit
	Volume int

	// Artwork size: very_high, high, medium, low, very_low
	ArtworkQuality string

	// Audio backend used at startup: native or mpd
	AudioBackend string

	// Load streams over plain HTTP
	RequestHTTP bool

	// Concurrent page fetches when revalidating the queue
	RevalidateConcurrency int

	// How often the session checks for end of track
	PollInterval time.Duration

	// Persistence backend: file or sqlite
	Store string

	MPD      MPDConfig
	Catalog  CatalogConfig
	Discover DiscoverConfig
	Presence PresenceConfig
}

// MPDConfig holds Music Player Daemon connection settings
type MPDConfig struct {
	Network  string
	Address  string
	Password string
}

// CatalogConfig holds Bandcamp client settings
type CatalogConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DiscoverConfig holds discovery feed settings
type DiscoverConfig struct {
	// Pages fetched when a tag search starts
	InitialPages int
}

// PresenceConfig holds Discord Rich Presence settings
type PresenceConfig struct {
	Enabled bool
	AppID   string
}

var defaults = map[string]any{
	"save_queue_on_exit":     true,
	"volume":                 100,
	"artwork_quality":        "high",
	"audio_backend":          "native",
	"request_http":           false,
	"revalidate_concurrency": 4,
	"poll_interval":          "1s",
	"store":                  "file",
	"mpd.network":            "tcp",
	"mpd.address":            "localhost:6600",
	"mpd.password":           "",
	"catalog.base_url":       "https://bandcamp.com",
	"catalog.timeout":        "10s",
	"discover.initial_pages": 3,
	"presence.enabled":       false,
	"presence.app_id":        "",
}

func newViper() *viper.Viper {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(getConfigDir())
	v.AddConfigPath(".")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// CAMPFIRE_MPD_ADDRESS overrides mpd.address
	v.SetEnvPrefix("CAMPFIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	v := newViper()

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	return fromViper(v)
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "campfire")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Keys lists the settable configuration keys.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configFile := filepath.Join(getConfigDir(), "config.yaml")

	for key, value := range c.Values() {
		v.Set(key, value)
	}

	// Write to file
	return v.WriteConfigAs(configFile)
}

// Values returns the configuration keyed like the config file.
func (c *Config) Values() map[string]any {
	return map[string]any{
		"save_queue_on_exit":     c.SaveQueueOnExit,
		"volume":                 c.Volume,
		"artwork_quality":        c.ArtworkQuality,
		"audio_backend":          c.AudioBackend,
		"request_http":           c.RequestHTTP,
		"revalidate_concurrency": c.RevalidateConcurrency,
		"poll_interval":          c.PollInterval.String(),
		"store":                  c.Store,
		"mpd.network":            c.MPD.Network,
		"mpd.address":            c.MPD.Address,
		"mpd.password":           c.MPD.Password,
		"catalog.base_url":       c.Catalog.BaseURL,
		"catalog.timeout":        c.Catalog.Timeout.String(),
		"discover.initial_pages": c.Discover.InitialPages,
		"presence.enabled":       c.Presence.Enabled,
		"presence.app_id":        c.Presence.AppID,
	}
}

// Set updates one key in the config file, leaving the others as they are.
func Set(key, value string) error {
	if _, ok := defaults[key]; !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}

	v := newViper()
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.Set(key, value)

	// Validate by loading the merged result before writing it.
	cfg, err := fromViper(v)
	if err != nil {
		return err
	}
	return cfg.Save()
}

// fromViper maps settings onto a Config and validates them.
func fromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	cfg.SaveQueueOnExit = v.GetBool("save_queue_on_exit")
	cfg.Volume = v.GetInt("volume")
	cfg.ArtworkQuality = v.GetString("artwork_quality")
	cfg.AudioBackend = v.GetString("audio_backend")
	cfg.RequestHTTP = v.GetBool("request_http")
	cfg.RevalidateConcurrency = v.GetInt("revalidate_concurrency")
	cfg.PollInterval = v.GetDuration("poll_interval")
	cfg.Store = v.GetString("store")
	cfg.MPD = MPDConfig{
		Network:  v.GetString("mpd.network"),
		Address:  v.GetString("mpd.address"),
		Password: v.GetString("mpd.password"),
	}
	cfg.Catalog = CatalogConfig{
		BaseURL: v.GetString("catalog.base_url"),
		Timeout: v.GetDuration("catalog.timeout"),
	}
	cfg.Discover = DiscoverConfig{InitialPages: v.GetInt("discover.initial_pages")}
	cfg.Presence = PresenceConfig{
		Enabled: v.GetBool("presence.enabled"),
		AppID:   v.GetString("presence.app_id"),
	}

	if cfg.Volume < 0 || cfg.Volume > 100 {
		return nil, fmt.Errorf("volume must be between 0 and 100, got %d", cfg.Volume)
	}
	if cfg.PollInterval <= 0 {
		return nil, fmt.Errorf("poll_interval must be a positive duration")
	}
	return &cfg, nil
}
