package config

import (
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/dandantas/grabber/internal/model"
)

// Config holds all application configuration
type Config struct {
	General     GeneralConfig     `toml:"general"`
	Schedule    ScheduleConfig    `toml:"schedule"`
	WebSDR      WebSDRConfig      `toml:"websdr"`
	WebDriver   WebDriverConfig   `toml:"webdriver"`
	Spectrogram SpectrogramConfig `toml:"spectrogram"`
	SFTP        *SFTPConfig       `toml:"sftp"`
	GridFS      *GridFSConfig     `toml:"gridfs"`
	HTTP        HTTPConfig        `toml:"http"`

	// Path is the file the configuration was read from, empty for defaults.
	Path string `toml:"-"`
}

type GeneralConfig struct {
	DownloadDir    string `toml:"download_dir"`
	MaxFileAgeDays int    `toml:"max_file_age_days"`
	WorkerPoolSize int    `toml:"worker_pool_size"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
}

type ScheduleConfig struct {
	SlotLengthMin    int `toml:"slot_length_min"`
	RecordLengthMin  int `toml:"record_length_min"`
	ConfigTimeSec    int `toml:"config_time_sec"` // fixed lead time; 0 draws one
	ConfigTimeMinSec int `toml:"config_time_min_sec"`
	ConfigTimeMaxSec int `toml:"config_time_max_sec"`
	PollIntervalSec  int `toml:"poll_interval_sec"`
	JitterMinSec     int `toml:"jitter_min_sec"`
	JitterMaxSec     int `toml:"jitter_max_sec"`
}

type WebSDRConfig struct {
	URL            string   `toml:"url"`
	InTitle        string   `toml:"in_title"`
	BaseFreqHz     int      `toml:"base_freq_hz"`
	Band           int      `toml:"band"`
	Lo             string   `toml:"lo"`
	Hi             string   `toml:"hi"`
	Mode           int      `toml:"mode"`
	DownloadLabels []string `toml:"download_labels"`
	SettleSec      int      `toml:"settle_sec"`
}

type WebDriverConfig struct {
	URL        string `toml:"url"`
	Browser    string `toml:"browser"`
	Headless   bool   `toml:"headless"`
	Binary     string `toml:"binary"`
	TimeoutSec int    `toml:"timeout_sec"`
}

type SpectrogramConfig struct {
	Colormap  string `toml:"colormap"`
	NFFT      int    `toml:"nfft"`
	NOverlap  int    `toml:"noverlap"`
	VMin      int    `toml:"vmin"`
	VMax      int    `toml:"vmax"`
	MinFreqHz int    `toml:"min_freq_hz"`
	MaxFreqHz int    `toml:"max_freq_hz"`
	Title     string `toml:"title"`
	Subtitle  string `toml:"subtitle"`
	Width     int    `toml:"width"`
	Height    int    `toml:"height"`
}

type SFTPConfig struct {
	Host       string `toml:"host"`
	Port       int    `toml:"port"`
	Username   string `toml:"username"`
	Password   string `toml:"password"`
	DestPath   string `toml:"dest_path"`
	TimeoutSec int    `toml:"timeout_sec"`
}

type GridFSConfig struct {
	URI        string `toml:"uri"`
	Database   string `toml:"database"`
	Bucket     string `toml:"bucket"`
	TimeoutSec int    `toml:"timeout_sec"`
}

type HTTPConfig struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

// Default returns the configuration used when no file or variable is set.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			DownloadDir:    "downloads",
			MaxFileAgeDays: 7,
			WorkerPoolSize: 4,
			LogLevel:       "info",
			LogFormat:      "text",
		},
		Schedule: ScheduleConfig{
			SlotLengthMin:    10,
			ConfigTimeMinSec: 20,
			ConfigTimeMaxSec: 60,
			PollIntervalSec:  1,
			JitterMinSec:     2,
			JitterMaxSec:     10,
		},
		WebSDR: WebSDRConfig{
			DownloadLabels: []string{"save", "download"},
			SettleSec:      5,
		},
		WebDriver: WebDriverConfig{
			URL:        "http://localhost:4444",
			Browser:    "firefox",
			Headless:   true,
			TimeoutSec: 30,
		},
		Spectrogram: SpectrogramConfig{
			Colormap:  "jet",
			NFFT:      16384,
			VMin:      30,
			VMax:      100,
			MinFreqHz: 300,
			MaxFreqHz: 2500,
			Title:     "No title set in config",
			Subtitle:  "No subtitle set in config",
			Width:     1300,
			Height:    800,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Addr:    ":8080",
		},
	}
}

// Load reads the configuration file at path (or the first default location
// that exists), applies environment overrides and validates the
// process-wide keys.
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		cfg.Path = path
	}

	applyEnvOverrides(cfg)
	cfg.applyDerivedDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	candidates := []string{os.Getenv("GRABBER_CONFIG"), "config.toml", "config_dist.toml"}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func applyEnvOverrides(cfg *Config) {
	cfg.General.LogLevel = getEnv("LOG_LEVEL", cfg.General.LogLevel)
	cfg.General.LogFormat = getEnv("LOG_FORMAT", cfg.General.LogFormat)
	cfg.General.DownloadDir = getEnv("DOWNLOAD_DIR", cfg.General.DownloadDir)
	cfg.General.MaxFileAgeDays = getIntEnv("MAX_FILE_AGE_DAYS", cfg.General.MaxFileAgeDays)
	cfg.General.WorkerPoolSize = getIntEnv("WORKER_POOL_SIZE", cfg.General.WorkerPoolSize)
	cfg.Schedule.SlotLengthMin = getIntEnv("SLOT_LENGTH_MIN", cfg.Schedule.SlotLengthMin)
	cfg.WebDriver.URL = getEnv("WEBDRIVER_URL", cfg.WebDriver.URL)
	cfg.WebSDR.URL = getEnv("WEBSDR_URL", cfg.WebSDR.URL)
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)
	cfg.HTTP.Enabled = getBoolEnv("HTTP_ENABLED", cfg.HTTP.Enabled)
	cfg.WebDriver.Headless = getBoolEnv("WEBDRIVER_HEADLESS", cfg.WebDriver.Headless)

	if cfg.SFTP != nil {
		cfg.SFTP.Password = getEnv("SFTP_PASSWORD", cfg.SFTP.Password)
	}
	if uri := os.Getenv("MONGO_URI"); uri != "" {
		if cfg.GridFS == nil {
			cfg.GridFS = &GridFSConfig{}
		}
		cfg.GridFS.URI = uri
	}
}

// applyDerivedDefaults fills keys whose default depends on another key.
func (c *Config) applyDerivedDefaults() {
	if c.Schedule.RecordLengthMin == 0 {
		c.Schedule.RecordLengthMin = c.Schedule.SlotLengthMin
	}
	if c.Spectrogram.NOverlap == 0 {
		c.Spectrogram.NOverlap = c.Spectrogram.NFFT / 2
	}
	if len(c.WebSDR.DownloadLabels) == 0 {
		c.WebSDR.DownloadLabels = []string{"save", "download"}
	}
	if !filepath.IsAbs(c.General.DownloadDir) {
		if abs, err := filepath.Abs(c.General.DownloadDir); err == nil {
			c.General.DownloadDir = abs
		}
	}
	if c.SFTP != nil {
		if c.SFTP.Port == 0 {
			c.SFTP.Port = 22
		}
		if c.SFTP.TimeoutSec == 0 {
			c.SFTP.TimeoutSec = 30
		}
	}
	if c.GridFS != nil {
		if c.GridFS.Bucket == "" {
			c.GridFS.Bucket = "spectrograms"
		}
		if c.GridFS.Database == "" {
			c.GridFS.Database = "grabber"
		}
		if c.GridFS.TimeoutSec == 0 {
			c.GridFS.TimeoutSec = 10
		}
	}
}

// Validate checks the keys the whole process depends on. Keys only a run
// needs are checked by RequireRunKeys.
func (c *Config) Validate() error {
	s := c.Schedule
	if s.SlotLengthMin <= 0 || 60%s.SlotLengthMin != 0 {
		return fmt.Errorf("schedule.slot_length_min must divide 60, got %d", s.SlotLengthMin)
	}
	if s.RecordLengthMin <= 0 {
		return fmt.Errorf("schedule.record_length_min must be positive, got %d", s.RecordLengthMin)
	}
	if s.ConfigTimeSec < 0 || s.ConfigTimeMinSec < 0 || s.ConfigTimeMinSec > s.ConfigTimeMaxSec {
		return fmt.Errorf("invalid lead time range [%d, %d]", s.ConfigTimeMinSec, s.ConfigTimeMaxSec)
	}
	if s.JitterMinSec < 0 || s.JitterMinSec > s.JitterMaxSec {
		return fmt.Errorf("invalid jitter range [%d, %d]", s.JitterMinSec, s.JitterMaxSec)
	}
	if s.PollIntervalSec <= 0 {
		return errors.New("schedule.poll_interval_sec must be positive")
	}
	if c.General.WorkerPoolSize <= 0 {
		return fmt.Errorf("general.worker_pool_size must be positive, got %d", c.General.WorkerPoolSize)
	}
	if c.General.MaxFileAgeDays <= 0 {
		return fmt.Errorf("general.max_file_age_days must be positive, got %d", c.General.MaxFileAgeDays)
	}
	return nil
}

// RequireRunKeys reports the websdr keys a recording run cannot do without.
func (c *Config) RequireRunKeys() error {
	var missing []string
	if c.WebSDR.URL == "" {
		missing = append(missing, "websdr.url")
	}
	if c.WebSDR.InTitle == "" {
		missing = append(missing, "websdr.in_title")
	}
	if c.WebSDR.BaseFreqHz == 0 {
		missing = append(missing, "websdr.base_freq_hz")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", model.ErrMissingConfig, missing)
	}
	return nil
}

// LeadTime returns the configuration lead time: the fixed value when set,
// otherwise a draw in [ConfigTimeMinSec, ConfigTimeMaxSec]. Call it once per
// process and hold the result.
func (s ScheduleConfig) LeadTime() time.Duration {
	if s.ConfigTimeSec > 0 {
		return time.Duration(s.ConfigTimeSec) * time.Second
	}
	span := s.ConfigTimeMaxSec - s.ConfigTimeMinSec + 1
	return time.Duration(s.ConfigTimeMinSec+rand.IntN(span)) * time.Second
}

func (s ScheduleConfig) Interval() time.Duration {
	return time.Duration(s.SlotLengthMin) * time.Minute
}

func (s ScheduleConfig) RecordLength() time.Duration {
	return time.Duration(s.RecordLengthMin) * time.Minute
}

func (s ScheduleConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalSec) * time.Second
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
