package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Cache    CacheConfig
	Log      LogConfig
	Pipeline PipelineConfig
	Geocoder GeocoderConfig
	SnowCover SnowCoverConfig
	IO       IOConfig
}

// IOConfig names the NDJSON files cmd/processor reads and writes. The
// surrounding ingestion pipeline is responsible for producing the inputs
// and consuming the outputs; this module only knows their paths.
type IOConfig struct {
	OpenStreetMapSkiAreasPath string
	OpenStreetMapLiftsPath    string
	OpenStreetMapRunsPath     string
	SkimapOrgSkiAreasPath     string

	OutputSkiAreasPath string
	OutputLiftsPath    string
	OutputRunsPath     string
}

// DatabaseConfig describes the ephemeral PostGIS database a run operates
// against. The database itself is created and torn down by the
// surrounding app (spec.md §6); this module only connects to it.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	EphemeralDBPrefix string
	SSLMode         string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig controls the optional Redis decorator around the Geocoder
// and SnowCoverArchive clients (spec.md §6's "surrounding app provides
// persistent caching").
type CacheConfig struct {
	GeocoderCacheTTL  time.Duration
	SnowCoverCacheTTL time.Duration
}

type LogConfig struct {
	Level string
}

// PipelineConfig holds the tunable constants named throughout spec.md §4.
type PipelineConfig struct {
	MaxTraversalBufferKm float64
	SkiAreaMergeBufferKm float64
	MaxStorageRetries    int
	RetryBaseDelay       time.Duration
	RetryMaxDelay        time.Duration
	PhaseConcurrency     int
}

type GeocoderConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

type SnowCoverConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
}

func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              viper.GetString("DB_HOST"),
			Port:              viper.GetInt("DB_PORT"),
			User:              viper.GetString("DB_USER"),
			Password:          viper.GetString("DB_PASSWORD"),
			DBName:            viper.GetString("DB_NAME"),
			EphemeralDBPrefix: viper.GetString("DB_EPHEMERAL_PREFIX"),
			SSLMode:           viper.GetString("DB_SSLMODE"),
			MaxConns:          viper.GetInt("DB_MAX_CONNS"),
			MaxIdleConns:      viper.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime:   time.Duration(viper.GetInt("DB_CONN_MAX_LIFETIME")) * time.Second,
			ConnMaxIdleTime:   time.Duration(viper.GetInt("DB_CONN_MAX_IDLE_TIME")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetInt("REDIS_PORT"),
			Password: viper.GetString("REDIS_PASSWORD"),
			DB:       viper.GetInt("REDIS_DB"),
		},
		Cache: CacheConfig{
			GeocoderCacheTTL:  time.Duration(viper.GetInt("GEOCODER_CACHE_TTL")) * time.Second,
			SnowCoverCacheTTL: time.Duration(viper.GetInt("SNOW_COVER_CACHE_TTL")) * time.Second,
		},
		Log: LogConfig{
			Level: viper.GetString("LOG_LEVEL"),
		},
		Pipeline: PipelineConfig{
			MaxTraversalBufferKm: viper.GetFloat64("PIPELINE_MAX_TRAVERSAL_BUFFER_KM"),
			SkiAreaMergeBufferKm: viper.GetFloat64("PIPELINE_SKI_AREA_MERGE_BUFFER_KM"),
			MaxStorageRetries:    viper.GetInt("PIPELINE_MAX_STORAGE_RETRIES"),
			RetryBaseDelay:       time.Duration(viper.GetInt("PIPELINE_RETRY_BASE_DELAY_MS")) * time.Millisecond,
			RetryMaxDelay:        time.Duration(viper.GetInt("PIPELINE_RETRY_MAX_DELAY_MS")) * time.Millisecond,
			PhaseConcurrency:     viper.GetInt("PIPELINE_PHASE_CONCURRENCY"),
		},
		Geocoder: GeocoderConfig{
			BaseURL:        viper.GetString("GEOCODER_BASE_URL"),
			RequestTimeout: time.Duration(viper.GetInt("GEOCODER_REQUEST_TIMEOUT_S")) * time.Second,
		},
		SnowCover: SnowCoverConfig{
			BaseURL:        viper.GetString("SNOW_COVER_BASE_URL"),
			RequestTimeout: time.Duration(viper.GetInt("SNOW_COVER_REQUEST_TIMEOUT_S")) * time.Second,
		},
		IO: IOConfig{
			OpenStreetMapSkiAreasPath: viper.GetString("INPUT_OSM_SKI_AREAS_PATH"),
			OpenStreetMapLiftsPath:    viper.GetString("INPUT_OSM_LIFTS_PATH"),
			OpenStreetMapRunsPath:     viper.GetString("INPUT_OSM_RUNS_PATH"),
			SkimapOrgSkiAreasPath:     viper.GetString("INPUT_SKIMAP_SKI_AREAS_PATH"),
			OutputSkiAreasPath:        viper.GetString("OUTPUT_SKI_AREAS_PATH"),
			OutputLiftsPath:           viper.GetString("OUTPUT_LIFTS_PATH"),
			OutputRunsPath:            viper.GetString("OUTPUT_RUNS_PATH"),
		},
	}

	if cfg.Database.EphemeralDBPrefix == "" {
		cfg.Database.EphemeralDBPrefix = "openskidata_run_"
	}
	if cfg.Pipeline.MaxTraversalBufferKm == 0 {
		cfg.Pipeline.MaxTraversalBufferKm = 0.5
	}
	if cfg.Pipeline.SkiAreaMergeBufferKm == 0 {
		cfg.Pipeline.SkiAreaMergeBufferKm = 0.25
	}
	if cfg.Pipeline.MaxStorageRetries == 0 {
		cfg.Pipeline.MaxStorageRetries = 5
	}
	if cfg.Pipeline.RetryBaseDelay == 0 {
		cfg.Pipeline.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.Pipeline.RetryMaxDelay == 0 {
		cfg.Pipeline.RetryMaxDelay = 5 * time.Second
	}
	if cfg.Pipeline.PhaseConcurrency == 0 {
		cfg.Pipeline.PhaseConcurrency = 8
	}
	if cfg.Geocoder.RequestTimeout == 0 {
		cfg.Geocoder.RequestTimeout = 10 * time.Second
	}
	if cfg.SnowCover.RequestTimeout == 0 {
		cfg.SnowCover.RequestTimeout = 10 * time.Second
	}

	return cfg, nil
}

func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}
