// Package config loads the service configuration from YAML, a .env file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default configuration constants.
const (
	DefaultHost            = "0.0.0.0"
	DefaultPort            = 8080
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
	DefaultBodyLimit       = "2M"

	DefaultMongoDBTimeout     = 10 * time.Second
	DefaultMongoDBMaxPoolSize = 100

	DefaultRedisPoolSize = 10

	DefaultJWTLeeway          = 30 * time.Second
	DefaultJWTRefreshInterval = 1 * time.Hour

	DefaultRateLimit       = 100
	DefaultRateLimitWindow = time.Minute

	DefaultWorkerPort = 9090
)

// AppMode defines the application wiring mode.
type AppMode string

// Application wiring modes.
const (
	// AppModeReal wires MongoDB and Redis. This is the default.
	AppModeReal AppMode = "real"

	// AppModeMock keeps everything in memory. Not allowed in production.
	AppModeMock AppMode = "mock"
)

// Auth modes.
const (
	AuthModeStatic   = "static"
	AuthModeJWT      = "jwt"
	AuthModeKeycloak = "keycloak"
)

// Event bus types.
const (
	EventBusNone  = "none"
	EventBusRedis = "redis"
	EventBusKafka = "kafka"
)

// EnvProduction is the App.Env value of production deployments.
const EnvProduction = "production"

// Config holds the complete application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	MongoDB   MongoDBConfig   `yaml:"mongodb"`
	Redis     RedisConfig     `yaml:"redis"`
	Auth      AuthConfig      `yaml:"auth"`
	EventBus  EventBusConfig  `yaml:"event_bus"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Log       LogConfig       `yaml:"log"`
	CORS      CORSConfig      `yaml:"cors"`
	Worker    WorkerConfig    `yaml:"worker"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	// Mode controls dependency wiring: "real" (default) or "mock".
	Mode AppMode `yaml:"mode" env:"APP_MODE"`

	// Name is the application name used in logs.
	Name string `yaml:"name" env:"APP_NAME"`

	// Env is the deployment environment, e.g. development or production.
	Env string `yaml:"env" env:"APP_ENV"`
}

// IsRealMode returns true if the application should use real implementations.
func (c AppConfig) IsRealMode() bool {
	return c.Mode == "" || c.Mode == AppModeReal
}

// IsMockMode returns true if the application should run in memory.
func (c AppConfig) IsMockMode() bool {
	return c.Mode == AppModeMock
}

// ServerConfig holds HTTP server configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type ServerConfig struct {
	Host            string        `yaml:"host" env:"SERVER_HOST"`
	Port            int           `yaml:"port" env:"SERVER_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"SERVER_READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT"`
	BodyLimit       string        `yaml:"body_limit" env:"SERVER_BODY_LIMIT"`
}

// Address returns the full server address (host:port).
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// MongoDBConfig holds MongoDB connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type MongoDBConfig struct {
	URI         string        `yaml:"uri" env:"MONGODB_URI"`
	Database    string        `yaml:"database" env:"MONGODB_DATABASE"`
	Timeout     time.Duration `yaml:"timeout" env:"MONGODB_TIMEOUT"`
	MaxPoolSize uint64        `yaml:"max_pool_size" env:"MONGODB_MAX_POOL_SIZE"`
}

// RedisConfig holds Redis connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
	PoolSize int    `yaml:"pool_size" env:"REDIS_POOL_SIZE"`
}

// AuthConfig selects how bearer tokens are validated.
//
//nolint:golines // Struct tags require longer lines for readability
type AuthConfig struct {
	// Mode is static (development tokens), jwt (HS256 shared secret) or
	// keycloak (RS256 against the realm JWKS).
	Mode      string         `yaml:"mode" env:"AUTH_MODE"`
	JWTSecret string         `yaml:"jwt_secret" env:"AUTH_JWT_SECRET"`
	Issuer    string         `yaml:"issuer" env:"AUTH_ISSUER"`
	Audience  string         `yaml:"audience" env:"AUTH_AUDIENCE"`
	Leeway    time.Duration  `yaml:"leeway" env:"AUTH_LEEWAY"`
	Keycloak  KeycloakConfig `yaml:"keycloak"`
	// RoleAliases maps realm role names onto service roles, "realm-role=user".
	RoleAliases []string `yaml:"role_aliases" env:"AUTH_ROLE_ALIASES"`
}

// KeycloakConfig holds Keycloak connection configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type KeycloakConfig struct {
	URL             string        `yaml:"url" env:"KEYCLOAK_URL"`
	Realm           string        `yaml:"realm" env:"KEYCLOAK_REALM"`
	ClientID        string        `yaml:"client_id" env:"KEYCLOAK_CLIENT_ID"`
	RefreshInterval time.Duration `yaml:"refresh_interval" env:"KEYCLOAK_JWKS_REFRESH_INTERVAL"`
}

// EventBusConfig holds event bus configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type EventBusConfig struct {
	Type               string   `yaml:"type" env:"EVENTBUS_TYPE"` // none | redis | kafka
	RedisChannelPrefix string   `yaml:"redis_channel_prefix" env:"EVENTBUS_REDIS_CHANNEL_PREFIX"`
	KafkaBrokers       []string `yaml:"kafka_brokers" env:"EVENTBUS_KAFKA_BROKERS"`
	KafkaTopic         string   `yaml:"kafka_topic" env:"EVENTBUS_KAFKA_TOPIC"`
	KafkaGroupID       string   `yaml:"kafka_group_id" env:"EVENTBUS_KAFKA_GROUP_ID"`
}

// RateLimitConfig holds request rate limiting configuration.
//
//nolint:golines // Struct tags require longer lines for readability
type RateLimitConfig struct {
	Enabled bool          `yaml:"enabled" env:"RATE_LIMIT_ENABLED"`
	Limit   int           `yaml:"limit" env:"RATE_LIMIT_LIMIT"`
	Window  time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	Burst   int           `yaml:"burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`   // debug | info | warn | error
	Format string `yaml:"format" env:"LOG_FORMAT"` // json | text
}

// CORSConfig holds cross-origin configuration.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// WorkerConfig holds configuration of the change feed worker.
//
//nolint:golines // Struct tags require longer lines for readability
type WorkerConfig struct {
	ChangeFeedEnabled bool `yaml:"changefeed_enabled" env:"WORKER_CHANGEFEED_ENABLED"`
	// Entities limits the change log to these entities; empty records all.
	Entities []string `yaml:"entities" env:"WORKER_CHANGEFEED_ENTITIES"`
	// Port serves the worker's health and metrics endpoints.
	Port int `yaml:"port" env:"WORKER_PORT"`
}

// Configuration errors.
var (
	ErrConfigNotFound      = errors.New("configuration file not found")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrInvalidDuration     = errors.New("invalid duration format")
	ErrInvalidLogLevel     = errors.New("invalid log level: must be debug, info, warn, or error")
	ErrInvalidLogFormat    = errors.New("invalid log format: must be json or text")
	ErrInvalidEventBusType = errors.New("invalid event bus type: must be none, redis or kafka")
	ErrInvalidAuthMode     = errors.New("invalid auth mode: must be static, jwt or keycloak")
	ErrInvalidAppMode      = errors.New("invalid app mode: must be real or mock")
	ErrMockModeInProd      = errors.New("mock mode is not allowed in production")
	ErrStaticAuthInProd    = errors.New("static auth is not allowed in production")
)

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Mode: AppModeReal,
			Name: "claimservice",
			Env:  "development",
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			ReadTimeout:     DefaultReadTimeout,
			WriteTimeout:    DefaultWriteTimeout,
			ShutdownTimeout: DefaultShutdownTimeout,
			BodyLimit:       DefaultBodyLimit,
		},
		MongoDB: MongoDBConfig{
			URI:         "mongodb://localhost:27017",
			Database:    "claimservice",
			Timeout:     DefaultMongoDBTimeout,
			MaxPoolSize: DefaultMongoDBMaxPoolSize,
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: DefaultRedisPoolSize,
		},
		Auth: AuthConfig{
			Mode:   AuthModeStatic,
			Leeway: DefaultJWTLeeway,
			Keycloak: KeycloakConfig{
				URL:             "http://localhost:8090",
				Realm:           "claims",
				ClientID:        "claimservice",
				RefreshInterval: DefaultJWTRefreshInterval,
			},
		},
		EventBus: EventBusConfig{
			Type:               EventBusNone,
			RedisChannelPrefix: "claimservice:events:",
			KafkaTopic:         "claimservice.changes",
			KafkaGroupID:       "claimservice-changefeed",
		},
		RateLimit: RateLimitConfig{
			Limit:  DefaultRateLimit,
			Window: DefaultRateLimitWindow,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Worker: WorkerConfig{
			ChangeFeedEnabled: true,
			Port:              DefaultWorkerPort,
		},
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	var errs []error

	errs = c.validateApp(errs)
	errs = c.validateServer(errs)
	errs = c.validateStorage(errs)
	errs = c.validateAuth(errs)
	errs = c.validateEventBus(errs)
	errs = c.validateRateLimit(errs)
	errs = c.validateLog(errs)
	errs = c.validateWorker(errs)

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrConfigInvalid, errors.Join(errs...))
	}

	return nil
}

func (c *Config) validateApp(errs []error) []error {
	if c.App.Mode != "" && c.App.Mode != AppModeReal && c.App.Mode != AppModeMock {
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidAppMode, c.App.Mode))
	}
	if c.App.IsMockMode() && c.IsProduction() {
		errs = append(errs, ErrMockModeInProd)
	}
	return errs
}

func (c *Config) validateServer(errs []error) []error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, errors.New("server.read_timeout must be positive"))
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, errors.New("server.write_timeout must be positive"))
	}
	return errs
}

// validateStorage checks MongoDB and Redis, which only real mode needs.
func (c *Config) validateStorage(errs []error) []error {
	if c.App.IsMockMode() {
		return errs
	}
	if c.MongoDB.URI == "" {
		errs = append(errs, errors.New("mongodb.uri is required"))
	}
	if c.MongoDB.Database == "" {
		errs = append(errs, errors.New("mongodb.database is required"))
	}
	if c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required"))
	}
	return errs
}

func (c *Config) validateAuth(errs []error) []error {
	switch c.Auth.Mode {
	case AuthModeStatic:
		if c.IsProduction() {
			errs = append(errs, ErrStaticAuthInProd)
		}
	case AuthModeJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("auth.jwt_secret is required in jwt mode"))
		}
	case AuthModeKeycloak:
		if c.Auth.Keycloak.URL == "" || c.Auth.Keycloak.Realm == "" {
			errs = append(errs, errors.New("auth.keycloak.url and auth.keycloak.realm are required in keycloak mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrInvalidAuthMode, c.Auth.Mode))
	}
	for _, alias := range c.Auth.RoleAliases {
		if from, to, ok := strings.Cut(alias, "="); !ok || from == "" || to == "" {
			errs = append(errs, fmt.Errorf("auth.role_aliases entry %q must be realm-role=role", alias))
		}
	}
	return errs
}

func (c *Config) validateEventBus(errs []error) []error {
	switch strings.ToLower(c.EventBus.Type) {
	case EventBusNone:
	case EventBusRedis:
		if c.App.IsMockMode() {
			errs = append(errs, errors.New("event_bus.type redis requires real mode"))
		}
	case EventBusKafka:
		if len(c.EventBus.KafkaBrokers) == 0 || c.EventBus.KafkaTopic == "" {
			errs = append(errs, errors.New("event_bus.kafka_brokers and event_bus.kafka_topic are required for kafka"))
		}
	default:
		errs = append(errs, ErrInvalidEventBusType)
	}
	return errs
}

func (c *Config) validateRateLimit(errs []error) []error {
	if !c.RateLimit.Enabled {
		return errs
	}
	if c.RateLimit.Limit <= 0 {
		errs = append(errs, errors.New("rate_limit.limit must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate_limit.window must be positive"))
	}
	if c.RateLimit.Burst < 0 {
		errs = append(errs, errors.New("rate_limit.burst must not be negative"))
	}
	return errs
}

func (c *Config) validateLog(errs []error) []error {
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		errs = append(errs, ErrInvalidLogLevel)
	}
	if !slices.Contains([]string{"json", "text"}, strings.ToLower(c.Log.Format)) {
		errs = append(errs, ErrInvalidLogFormat)
	}
	return errs
}

func (c *Config) validateWorker(errs []error) []error {
	if c.Worker.Port < 0 || c.Worker.Port > 65535 {
		errs = append(errs, fmt.Errorf("worker.port must be between 0 and 65535, got %d", c.Worker.Port))
	}
	return errs
}

// Load loads configuration from the default config file and environment variables.
func Load() (*Config, error) {
	return LoadFromPath("")
}

// LoadFromPath loads configuration from a specific file path.
// If path is empty, it tries to find the config file in standard locations.
func LoadFromPath(path string) (*Config, error) {
	return NewLoader().Load(path)
}

// Loader handles configuration loading from files and environment variables.
type Loader struct {
	configPaths []string
	envFiles    []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		configPaths: []string{
			"configs/config.yaml",
			"config.yaml",
			"/etc/claimservice/config.yaml",
		},
		envFiles: []string{".env"},
	}
}

// WithConfigPaths sets custom config paths to search.
func (l *Loader) WithConfigPaths(paths []string) *Loader {
	l.configPaths = paths
	return l
}

// WithEnvFiles sets the dotenv files read before environment overrides.
func (l *Loader) WithEnvFiles(files []string) *Loader {
	l.envFiles = files
	return l
}

// Load loads configuration: defaults, then the YAML file, then the
// environment. Variables from dotenv files never override ones already set.
func (l *Loader) Load(path string) (*Config, error) {
	if err := l.loadEnvFiles(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	configPath := path
	if configPath == "" {
		if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
			configPath = envPath
		} else {
			for _, p := range l.configPaths {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
	}

	if configPath != "" {
		if err := l.loadFromFile(cfg, configPath); err != nil {
			// Only fatal when the path was asked for explicitly.
			if path != "" || os.Getenv("CONFIG_PATH") != "" {
				return nil, fmt.Errorf("failed to load config from %s: %w", configPath, err)
			}
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) loadEnvFiles() error {
	for _, file := range l.envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func (l *Loader) loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if unmarshalErr := yaml.Unmarshal(data, cfg); unmarshalErr != nil {
		return fmt.Errorf("failed to parse config file: %w", unmarshalErr)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.loadEnvToStruct(reflect.ValueOf(cfg).Elem())
}

// loadEnvToStruct recursively loads environment variables into a struct.
func (l *Loader) loadEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := range v.NumField() {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct {
			if err := l.loadEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}

		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := l.setFieldFromEnv(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s from env %s: %w", fieldType.Name, envTag, err)
		}
	}

	return nil
}

// setFieldFromEnv sets a struct field value from an environment variable
// string. String slices are comma separated.
//
//nolint:exhaustive // We only support a subset of reflect.Kind for config values
func (l *Loader) setFieldFromEnv(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeFor[time.Duration]() {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("%w: %s", ErrInvalidDuration, value)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %s", value)
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid unsigned integer value: %s", value)
		}
		field.SetUint(u)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean value: %s", value)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type())
		}
		var items []string
		for item := range strings.SplitSeq(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		field.Set(reflect.ValueOf(items))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// IsDevelopment returns true if the log level indicates a development environment.
func (c *Config) IsDevelopment() bool {
	return strings.ToLower(c.Log.Level) == "debug"
}

// IsProduction reports whether App.Env is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.App.Env, EnvProduction)
}

// RoleAliasMap parses Auth.RoleAliases. Malformed entries are skipped; Validate
// reports them.
func (c *Config) RoleAliasMap() map[string]string {
	out := make(map[string]string, len(c.Auth.RoleAliases))
	for _, alias := range c.Auth.RoleAliases {
		if from, to, ok := strings.Cut(alias, "="); ok && from != "" && to != "" {
			out[from] = to
		}
	}
	return out
}
