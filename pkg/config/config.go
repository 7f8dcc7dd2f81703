package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string           `yaml:"environment" default:"development" validate:"required"`
	Log         LogConfig        `yaml:"log"`
	FMP         FMPConfig        `yaml:"fmp"`
	Retry       RetryConfig      `yaml:"retry"`
	Fetch       FetchConfig      `yaml:"fetch"`
	Queue       QueueConfig      `yaml:"queue"`
	Redis       RedisConfig      `yaml:"redis"`
	Cache       CacheConfig      `yaml:"cache"`
	StartDates  StoreConfig      `yaml:"start_dates"`
	ClickHouse  ClickHouseConfig `yaml:"clickhouse"`
	Postgres    PostgresConfig   `yaml:"postgres"`
	Kafka       KafkaConfig      `yaml:"kafka"`
	Server      ServerConfig     `yaml:"server"`
	Metrics     MetricsConfig    `yaml:"metrics"`
	RateLimit   RateLimitConfig  `yaml:"rate_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stdout"`
}

type FMPConfig struct {
	BaseURL    string        `yaml:"base_url" default:"https://financialmodelingprep.com/api" validate:"url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout" default:"30s"`
	Restricted bool          `yaml:"restricted"`
	UserAgent  string        `yaml:"user_agent" default:"fmpull/1.0"`
}

type RetryConfig struct {
	Retries         int           `yaml:"retries" default:"5" validate:"gte=1"`
	WaitBeforeQuery time.Duration `yaml:"wait_before_query" default:"10ms"`
	WaitBeforeRetry time.Duration `yaml:"wait_before_retry" default:"10s"`
}

type FetchConfig struct {
	Strategy     string   `yaml:"strategy" default:"direct" validate:"oneof=direct queue_blocking queue_async"`
	DefaultStart string   `yaml:"default_start" default:"1900-01-01" validate:"datetime=2006-01-02"`
	Period       string   `yaml:"period" default:"auto" validate:"oneof=auto quarterly annually"`
	Mandatory    []string `yaml:"mandatory"`
	FallbackOn   []string `yaml:"fallback_on" default:"[\"empty\",\"upstream\"]" validate:"dive,oneof=transport empty upstream exhausted restricted"`
}

type QueueConfig struct {
	Backend     string        `yaml:"backend" default:"local" validate:"oneof=local redis"`
	Workers     int           `yaml:"workers" default:"4" validate:"gte=1"`
	QueueSize   int           `yaml:"queue_size" default:"1024" validate:"gte=1"`
	KeyPrefix   string        `yaml:"key_prefix" default:"fmpull:queue"`
	ResultTTL   time.Duration `yaml:"result_ttl" default:"1h"`
	WaitTimeout time.Duration `yaml:"wait_timeout" default:"10m"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Backend    string        `yaml:"backend" default:"memory" validate:"oneof=memory redis layered"`
	TTL        time.Duration `yaml:"ttl" default:"6h"`
	MemorySize int           `yaml:"memory_size" default:"2048" validate:"gte=1"`
}

type StoreConfig struct {
	Backend string `yaml:"backend" default:"none" validate:"oneof=none clickhouse postgres"`
	Table   string `yaml:"table" default:"fmp_series_rows"`
}

type ClickHouseConfig struct {
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"9000"`
	Database    string        `yaml:"database" default:"default"`
	User        string        `yaml:"user" default:"default"`
	Password    string        `yaml:"password"`
	UseHTTP     bool          `yaml:"use_http"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout time.Duration `yaml:"read_timeout" default:"10s"`
}

type PostgresConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns" default:"10"`
	MinConns int32  `yaml:"min_conns" default:"1"`
}

type KafkaConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic" default:"fmp.datasets"`
	Compression string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
	MaxAttempts int      `yaml:"max_attempts" default:"3"`
	// RequiredAcks follows kafka-go: -1 waits for all in-sync replicas.
	RequiredAcks int           `yaml:"required_acks" default:"-1" validate:"oneof=-1 0 1"`
	BatchSize    int           `yaml:"batch_size" default:"500" validate:"gte=1"`
	BatchTimeout time.Duration `yaml:"batch_timeout" default:"200ms"`
}

type ServerConfig struct {
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"10m"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Path    string `yaml:"path" default:"/metrics"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps" default:"10"`
	Burst int     `yaml:"burst" default:"10"`
}

var validate = validator.New()

// Default returns a configuration built from tag defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	return &c, nil
}

// Load reads a YAML file and fills unset fields from defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("set defaults: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads .env if present, then the YAML file (or defaults when
// path is empty), then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup("FMP_API_KEY"); ok && v != "" {
		c.FMP.APIKey = v
	}
	if v, ok := lookup("FMP_STRATEGY"); ok && v != "" {
		c.Fetch.Strategy = v
	}
	if v, ok := lookup("FMP_RESTRICTED"); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.FMP.Restricted = b
		}
	}
	if v, ok := lookup("REDIS_ADDR"); ok && v != "" {
		c.Redis.Addr = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		c.Postgres.URL = v
	}
	if v, ok := lookup("KAFKA_BROKERS"); ok && v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks tags plus the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.StartDates.Backend == "postgres" && c.Postgres.URL == "" {
		return fmt.Errorf("postgres.url is required when start_dates.backend is postgres")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Fetch.Strategy != "direct" && c.Queue.Backend == "redis" && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required for the redis queue")
	}
	return nil
}

// DefaultStartDate parses fetch.default_start; Validate guarantees the format.
func (c *Config) DefaultStartDate() time.Time {
	t, _ := time.Parse("2006-01-02", c.Fetch.DefaultStart)
	return t
}
