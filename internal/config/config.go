package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid config")

const (
	appName        = "wsdl"
	configFileName = "config.yaml"
)

const (
	defaultPort                   = 5000
	defaultDownloadRoot           = "/downloads"
	defaultWebshareURL            = "https://webshare.cz/api/"
	defaultPlexURL                = "http://plex:32400"
	defaultPlexTimeout            = 5 * time.Second
	defaultMaxConcurrentDownloads = 3
	defaultGracePeriod            = 30 * time.Second
	defaultChunkSize              = 8 * 1024
	defaultMaxRetries             = 2
	defaultRetryDelay             = 500 * time.Millisecond
	defaultSearchCacheSize        = 64
	defaultSearchCacheTTL         = time.Minute
	defaultHistoryRetention       = 30 * 24 * time.Hour
	defaultPruneSchedule          = "@hourly"
)

// Config holds the configuration options for the application.
type Config struct {
	Server   *ServerConfig   `yaml:"server,omitempty"`
	Webshare *WebshareConfig `yaml:"webshare,omitempty"`
	Storage  *StorageConfig  `yaml:"storage,omitempty"`
	Plex     *PlexConfig     `yaml:"plex,omitempty"`
	Engine   *EngineConfig   `yaml:"engine,omitempty"`
	History  *HistoryConfig  `yaml:"history,omitempty"`
}

// ServerConfig holds the HTTP listener options.
type ServerConfig struct {
	Port    int    `yaml:"port,omitempty"`
	Debug   bool   `yaml:"debug,omitempty"`
	LogFile string `yaml:"logFile,omitempty"`
}

// WebshareConfig holds credentials and client tuning for the remote host.
type WebshareConfig struct {
	BaseURL         string        `yaml:"baseUrl,omitempty"`
	Username        string        `yaml:"username,omitempty"`
	Password        string        `yaml:"password,omitempty"`
	MaxRetries      int           `yaml:"maxRetries,omitempty"`
	RetryDelay      time.Duration `yaml:"retryDelay,omitempty"`
	SearchCacheSize int           `yaml:"searchCacheSize,omitempty"`
	SearchCacheTTL  time.Duration `yaml:"searchCacheTtl,omitempty"`
}

// StorageConfig holds the destination directories and streaming options.
type StorageConfig struct {
	Root      string `yaml:"root,omitempty"`
	MoviesDir string `yaml:"movies,omitempty"`
	SeriesDir string `yaml:"series,omitempty"`
	ChunkSize int    `yaml:"chunkSize,omitempty"`
	// RateLimit caps each download in bytes per second. Zero disables throttling.
	RateLimit int64 `yaml:"rateLimit,omitempty"`
}

// PlexConfig holds the media library refresh endpoint. An empty token disables it.
type PlexConfig struct {
	URL     string        `yaml:"url,omitempty"`
	Token   string        `yaml:"token,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// EngineConfig holds download scheduling options.
type EngineConfig struct {
	MaxConcurrentDownloads int           `yaml:"maxConcurrentDownloads,omitempty"`
	GracePeriod            time.Duration `yaml:"gracePeriod,omitempty"`
	// FailedRetention evicts failed entries after the given delay. Zero keeps them until cleared.
	FailedRetention time.Duration `yaml:"failedRetention,omitempty"`
}

// HistoryConfig holds the finished-download store options.
type HistoryConfig struct {
	DBPath        string        `yaml:"db,omitempty"`
	Retention     time.Duration `yaml:"retention,omitempty"`
	PruneSchedule string        `yaml:"pruneSchedule,omitempty"`
}

// PlexEnabled reports whether the refresh step should run.
func (c *Config) PlexEnabled() bool {
	return c.Plex != nil && c.Plex.Token != ""
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("0.0.0.0:%d", c.Server.Port)
}

// GetConfig builds the configuration from defaults, the YAML file, the
// environment (including a .env file in the working directory) and finally
// the command line flags in args.
func GetConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet(appName, flag.ContinueOnError)
	configPath := fs.String("config", filepath.Join(xdg.ConfigHome, appName, configFileName), "path to the YAML config file")
	port := fs.Int("port", 0, "port the HTTP server listens on")
	debug := fs.Bool("debug", false, "enable debug logging")
	root := fs.String("dd", "", "root directory for downloads")
	mcd := fs.Int("mcd", 0, "max number of downloads that run together")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg, err := readFile(*configPath)
	if err != nil {
		return nil, err
	}

	_ = godotenv.Load()
	applyEnv(cfg)

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *debug {
		cfg.Server.Debug = true
	}
	if *root != "" {
		cfg.Storage.Root = *root
		cfg.Storage.MoviesDir = filepath.Join(*root, "movies")
		cfg.Storage.SeriesDir = filepath.Join(*root, "series")
	}
	if *mcd > 0 {
		cfg.Engine.MaxConcurrentDownloads = *mcd
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readFile loads the YAML file on top of the defaults. A missing file is not an error.
func readFile(path string) (*Config, error) {
	defaults := DefaultConfig()

	var fileCfg Config
	b, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if len(b) > 0 {
		if err := yaml.Unmarshal(b, &fileCfg); err != nil {
			return nil, err
		}
	}

	server := zeroOr(fileCfg.Server, defaults.Server)
	webshare := zeroOr(fileCfg.Webshare, defaults.Webshare)
	storage := zeroOr(fileCfg.Storage, defaults.Storage)
	plex := zeroOr(fileCfg.Plex, defaults.Plex)
	engine := zeroOr(fileCfg.Engine, defaults.Engine)
	history := zeroOr(fileCfg.History, defaults.History)

	rootDir := zeroOr(storage.Root, defaults.Storage.Root)

	return &Config{
		Server: &ServerConfig{
			Port:    zeroOr(server.Port, defaults.Server.Port),
			Debug:   server.Debug,
			LogFile: server.LogFile,
		},
		Webshare: &WebshareConfig{
			BaseURL:         zeroOr(webshare.BaseURL, defaults.Webshare.BaseURL),
			Username:        webshare.Username,
			Password:        webshare.Password,
			MaxRetries:      zeroOr(webshare.MaxRetries, defaults.Webshare.MaxRetries),
			RetryDelay:      zeroOr(webshare.RetryDelay, defaults.Webshare.RetryDelay),
			SearchCacheSize: zeroOr(webshare.SearchCacheSize, defaults.Webshare.SearchCacheSize),
			SearchCacheTTL:  zeroOr(webshare.SearchCacheTTL, defaults.Webshare.SearchCacheTTL),
		},
		Storage: &StorageConfig{
			Root:      rootDir,
			MoviesDir: zeroOr(storage.MoviesDir, filepath.Join(rootDir, "movies")),
			SeriesDir: zeroOr(storage.SeriesDir, filepath.Join(rootDir, "series")),
			ChunkSize: zeroOr(storage.ChunkSize, defaults.Storage.ChunkSize),
			RateLimit: storage.RateLimit,
		},
		Plex: &PlexConfig{
			URL:     zeroOr(plex.URL, defaults.Plex.URL),
			Token:   plex.Token,
			Timeout: zeroOr(plex.Timeout, defaults.Plex.Timeout),
		},
		Engine: &EngineConfig{
			MaxConcurrentDownloads: zeroOr(engine.MaxConcurrentDownloads, defaults.Engine.MaxConcurrentDownloads),
			GracePeriod:            zeroOr(engine.GracePeriod, defaults.Engine.GracePeriod),
			FailedRetention:        engine.FailedRetention,
		},
		History: &HistoryConfig{
			DBPath:        zeroOr(history.DBPath, defaults.History.DBPath),
			Retention:     zeroOr(history.Retention, defaults.History.Retention),
			PruneSchedule: zeroOr(history.PruneSchedule, defaults.History.PruneSchedule),
		},
	}, nil
}

func DefaultConfig() Config {
	return Config{
		Server: &ServerConfig{
			Port: defaultPort,
		},
		Webshare: &WebshareConfig{
			BaseURL:         defaultWebshareURL,
			MaxRetries:      defaultMaxRetries,
			RetryDelay:      defaultRetryDelay,
			SearchCacheSize: defaultSearchCacheSize,
			SearchCacheTTL:  defaultSearchCacheTTL,
		},
		Storage: &StorageConfig{
			Root:      defaultDownloadRoot,
			MoviesDir: filepath.Join(defaultDownloadRoot, "movies"),
			SeriesDir: filepath.Join(defaultDownloadRoot, "series"),
			ChunkSize: defaultChunkSize,
		},
		Plex: &PlexConfig{
			URL:     defaultPlexURL,
			Timeout: defaultPlexTimeout,
		},
		Engine: &EngineConfig{
			MaxConcurrentDownloads: defaultMaxConcurrentDownloads,
			GracePeriod:            defaultGracePeriod,
		},
		History: &HistoryConfig{
			DBPath:        filepath.Join(xdg.DataHome, appName, "history.db"),
			Retention:     defaultHistoryRetention,
			PruneSchedule: defaultPruneSchedule,
		},
	}
}

// zeroOr returns def if v is the zero value for its type.
func zeroOr[T any](v, def T) T {
	if reflect.ValueOf(v).IsZero() {
		return def
	}

	return v
}

// applyEnv overlays the environment variables the container image documents.
func applyEnv(c *Config) {
	if v := os.Getenv("WEBSHARE_USERNAME"); v != "" {
		c.Webshare.Username = v
	}
	if v := os.Getenv("WEBSHARE_PASSWORD"); v != "" {
		c.Webshare.Password = v
	}
	if v := os.Getenv("DOWNLOAD_PATH"); v != "" {
		c.Storage.Root = v
		c.Storage.MoviesDir = filepath.Join(v, "movies")
		c.Storage.SeriesDir = filepath.Join(v, "series")
	}
	if v := os.Getenv("MOVIES_PATH"); v != "" {
		c.Storage.MoviesDir = v
	}
	if v := os.Getenv("SERIES_PATH"); v != "" {
		c.Storage.SeriesDir = v
	}
	if v := os.Getenv("PLEX_URL"); v != "" {
		c.Plex.URL = strings.TrimRight(v, "/")
	}
	if v := os.Getenv("PLEX_TOKEN"); v != "" {
		c.Plex.Token = v
	}
	if v, ok := envInt("PORT"); ok {
		c.Server.Port = v
	}
	if v := os.Getenv("DEBUG"); v != "" {
		c.Server.Debug = strings.EqualFold(v, "true")
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.Server.LogFile = v
	}
	if v, ok := envInt("MAX_CONCURRENT_DOWNLOADS"); ok {
		c.Engine.MaxConcurrentDownloads = v
	}
	if v, ok := envInt("RATE_LIMIT"); ok {
		c.Storage.RateLimit = int64(v)
	}
	if v := os.Getenv("HISTORY_DB"); v != "" {
		c.History.DBPath = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Server.Port)
	}

	if c.Storage.MoviesDir == "" || c.Storage.SeriesDir == "" || c.Storage.ChunkSize <= 0 || c.Storage.RateLimit < 0 {
		return fmt.Errorf("%w: storage", ErrInvalidConfig)
	}

	if c.Engine.MaxConcurrentDownloads <= 0 || c.Engine.GracePeriod <= 0 || c.Engine.FailedRetention < 0 {
		return fmt.Errorf("%w: engine", ErrInvalidConfig)
	}

	if c.Webshare.BaseURL == "" || c.Webshare.MaxRetries < 0 {
		return fmt.Errorf("%w: webshare", ErrInvalidConfig)
	}

	return nil
}
