// Package config loads fern configuration. Values come from an optional YAML
// file, an optional .env file and the environment, with the environment
// taking precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/duplicates"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/oracle"
	"github.com/Ramsey-B/fern/pkg/ratelimit"
	"github.com/Ramsey-B/fern/pkg/recommend"
	"github.com/Ramsey-B/fern/pkg/similarity"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Config struct {
	AppName                       string   `env:"APP_NAME" koanf:"app_name" env-default:"fern-api"`
	Version                       string   `env:"APP_VERSION" koanf:"version" env-default:"dev"`
	Port                          int      `env:"PORT" koanf:"port" env-default:"3004"`
	LogLevel                      string   `env:"LOG_LEVEL" koanf:"log_level" env-default:"info"`
	PrettyLogs                    bool     `env:"PRETTY_LOGS" koanf:"pretty_logs" env-default:"false"`
	HttpServerWriteTimeoutSeconds int      `env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" koanf:"http.write_timeout_seconds" env-default:"60"`
	HttpServerReadTimeoutSeconds  int      `env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" koanf:"http.read_timeout_seconds" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int      `env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" koanf:"http.idle_timeout_seconds" env-default:"10"`
	AllowOrigins                  []string `env:"HTTP_SERVER_ALLOW_ORIGINS" koanf:"http.allow_origins" env-default:"*"`
	StartupMaxAttempts            int      `env:"STARTUP_MAX_ATTEMPTS" koanf:"startup_max_attempts" env-default:"5"`
	// RequestTimeoutSeconds bounds a whole ranking or recommendation call.
	RequestTimeoutSeconds int `env:"REQUEST_TIMEOUT_SECONDS" koanf:"request_timeout_seconds" env-default:"55"`

	// PostgreSQL (record store, read-only)
	DatabaseDriver          string        `env:"DB_DRIVER" koanf:"database.driver" env-default:"postgres"`
	DatabaseHost            string        `env:"DB_HOST" koanf:"database.host"`
	DatabasePort            string        `env:"DB_PORT" koanf:"database.port" env-default:"5432"`
	DatabaseUserName        string        `env:"DB_USER_NAME" koanf:"database.user"`
	DatabasePassword        string        `env:"DB_PASSWORD" koanf:"database.password"`
	DatabaseName            string        `env:"DB_NAME" koanf:"database.name" env-default:"jobs"`
	DatabaseSSLMode         string        `env:"DB_SSL_MODE" koanf:"database.ssl_mode" env-default:"disable"`
	DatabaseMaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" koanf:"database.max_open_conns" env-default:"25"`
	DatabaseMaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" koanf:"database.max_idle_conns" env-default:"10"`
	DatabaseConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" koanf:"database.conn_max_lifetime" env-default:"10s"`

	// Redis (oracle rate limiting)
	RedisHost             string        `env:"REDIS_HOST" koanf:"redis.host"`
	RedisPort             int           `env:"REDIS_PORT" koanf:"redis.port" env-default:"6379"`
	RedisPassword         string        `env:"REDIS_PASSWORD" koanf:"redis.password"`
	RedisDB               int           `env:"REDIS_DB" koanf:"redis.db" env-default:"0"`
	OracleRateLimit       int           `env:"ORACLE_RATE_LIMIT" koanf:"oracle.rate_limit" env-default:"60"`
	OracleRateLimitWindow time.Duration `env:"ORACLE_RATE_LIMIT_WINDOW" koanf:"oracle.rate_limit_window" env-default:"1m"`

	// Auth
	AuthEnabled   bool   `env:"AUTH_ENABLED" koanf:"auth.enabled" env-default:"false"`
	AuthIssuerURL string `env:"AUTH_ISSUER_URL" koanf:"auth.issuer_url"`
	AuthClientID  string `env:"AUTH_CLIENT_ID" koanf:"auth.client_id"`

	// Kafka Producer settings
	KafkaEnabled      bool     `env:"KAFKA_ENABLED" koanf:"kafka.enabled" env-default:"false"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" koanf:"kafka.brokers" env-default:"localhost:9092"`
	KafkaOutputTopic  string   `env:"KAFKA_OUTPUT_TOPIC" koanf:"kafka.output_topic" env-default:"fern-events"`
	KafkaBatchSize    int      `env:"KAFKA_BATCH_SIZE" koanf:"kafka.batch_size" env-default:"100"`
	KafkaBatchTimeout int      `env:"KAFKA_BATCH_TIMEOUT_MS" koanf:"kafka.batch_timeout_ms" env-default:"100"`
	KafkaRequiredAcks int      `env:"KAFKA_REQUIRED_ACKS" koanf:"kafka.required_acks" env-default:"1"`
	KafkaCompression  string   `env:"KAFKA_COMPRESSION" koanf:"kafka.compression" env-default:"snappy"`

	// Tracing
	TracingProtocol     string  `env:"TRACING_PROTOCOL" koanf:"tracing.protocol" env-default:"none"`
	TracingEndpoint     string  `env:"TRACING_ENDPOINT" koanf:"tracing.endpoint" env-default:"localhost:4317"`
	TracingInsecure     bool    `env:"TRACING_INSECURE" koanf:"tracing.insecure" env-default:"true"`
	TracingSamplingRate float64 `env:"TRACING_SAMPLING_RATE" koanf:"tracing.sampling_rate" env-default:"1.0"`

	// Oracle
	OracleURL            string `env:"ORACLE_URL" koanf:"oracle.url"`
	OracleAPIKey         string `env:"ORACLE_API_KEY" koanf:"oracle.api_key"`
	OracleBatchSize      int    `env:"ORACLE_BATCH_SIZE" koanf:"oracle.batch_size" env-default:"10"`
	OracleMaxInFlight    int    `env:"ORACLE_MAX_IN_FLIGHT" koanf:"oracle.max_in_flight" env-default:"4"`
	OracleTimeoutSeconds int    `env:"ORACLE_TIMEOUT_SECONDS" koanf:"oracle.timeout_seconds" env-default:"30"`
	OracleMaxRetries     int    `env:"ORACLE_MAX_RETRIES" koanf:"oracle.max_retries" env-default:"3"`
	OracleBackoffType    string `env:"ORACLE_BACKOFF_TYPE" koanf:"oracle.backoff_type" env-default:"exponential"`
	OracleInitialDelayMs int    `env:"ORACLE_INITIAL_DELAY_MS" koanf:"oracle.initial_delay_ms" env-default:"1000"`
	OracleMaxDelayMs     int    `env:"ORACLE_MAX_DELAY_MS" koanf:"oracle.max_delay_ms" env-default:"60000"`

	// Similarity
	SimilarityMode      string  `env:"SIMILARITY_MODE" koanf:"similarity.mode" env-default:"oracle"`
	HybridLexicalWeight float64 `env:"SIMILARITY_HYBRID_LEXICAL_WEIGHT" koanf:"similarity.hybrid_lexical_weight" env-default:"0.3"`

	// Duplicates
	DuplicateIdentifierField       string   `env:"DUPLICATE_IDENTIFIER_FIELD" koanf:"duplicates.identifier_field" env-default:"email"`
	DuplicateSecondaryField        string   `env:"DUPLICATE_SECONDARY_FIELD" koanf:"duplicates.secondary_field" env-default:"username"`
	DuplicateIdentifierThreshold   float64  `env:"DUPLICATE_IDENTIFIER_THRESHOLD" koanf:"duplicates.identifier_threshold" env-default:"0.7"`
	DuplicateSecondaryThreshold    float64  `env:"DUPLICATE_SECONDARY_THRESHOLD" koanf:"duplicates.secondary_threshold" env-default:"0.8"`
	DuplicateAnalysis              string   `env:"DUPLICATE_ANALYSIS" koanf:"duplicates.analysis" env-default:"advanced"`
	DuplicateIdentifierNormalizers []string `env:"DUPLICATE_IDENTIFIER_NORMALIZERS" koanf:"duplicates.identifier_normalizers"`
	DuplicateSecondaryNormalizers  []string `env:"DUPLICATE_SECONDARY_NORMALIZERS" koanf:"duplicates.secondary_normalizers"`

	// Recommendations
	RecommendTopK           int     `env:"RECOMMEND_TOP_K" koanf:"recommend.top_k" env-default:"3"`
	RecommendCriteriaFile   string  `env:"RECOMMEND_CRITERIA_FILE" koanf:"recommend.criteria_file"`
	RecommendSkillThreshold float64 `env:"RECOMMEND_SKILL_THRESHOLD" koanf:"recommend.skill_threshold" env-default:"0.8"`
	// Neighbour maps only make sense in the file.
	RecommendRegionNeighbours map[string][]string
}

// Load reads configuration. path names an optional YAML file; an empty path
// skips it. A .env file in the working directory is loaded when present.
// Each field resolves from its env tag, then its koanf key in the file, then
// env-default. All problems found are returned together.
func Load(path string) (*Config, []error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, []error{fmt.Errorf("failed to load .env: %w", err)}
	}

	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("failed to load config file %s: %w", path, err)}
		}
	}

	cfg := &Config{}
	errs := bind(k, cfg)

	if k.Exists("recommend.region_neighbours") {
		neighbours := map[string][]string{}
		if err := k.Unmarshal("recommend.region_neighbours", &neighbours); err != nil {
			errs = append(errs, fmt.Errorf("recommend.region_neighbours: %w", err))
		}
		cfg.RecommendRegionNeighbours = neighbours
	}

	return cfg, append(errs, cfg.Validate()...)
}

// Validate reports every invalid setting.
func (c *Config) Validate() []error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port))
	}
	if c.StartupMaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("STARTUP_MAX_ATTEMPTS must be positive"))
	}
	if c.RequestTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT_SECONDS must be positive"))
	}
	mode, err := similarity.ParseMode(c.SimilarityMode, similarity.ModeOracle)
	if err != nil {
		errs = append(errs, fmt.Errorf("SIMILARITY_MODE: %w", err))
	}
	if mode != similarity.ModeLexical && c.OracleURL == "" {
		errs = append(errs, fmt.Errorf("ORACLE_URL is required for %s similarity mode", mode))
	}
	if c.HybridLexicalWeight < 0 || c.HybridLexicalWeight > 1 {
		errs = append(errs, fmt.Errorf("SIMILARITY_HYBRID_LEXICAL_WEIGHT must be between 0 and 1"))
	}
	if c.OracleBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("ORACLE_BATCH_SIZE must be positive"))
	}
	if c.OracleMaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("ORACLE_MAX_IN_FLIGHT must be positive"))
	}
	if c.OracleTimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("ORACLE_TIMEOUT_SECONDS must be positive"))
	}
	if c.OracleMaxRetries < 0 || c.OracleMaxRetries > oracle.MaxRetriesCap {
		errs = append(errs, fmt.Errorf("ORACLE_MAX_RETRIES must be between 0 and %d", oracle.MaxRetriesCap))
	}
	switch c.OracleBackoffType {
	case "fixed", "linear", "exponential", "fibonacci":
	default:
		errs = append(errs, fmt.Errorf("ORACLE_BACKOFF_TYPE %q is not one of fixed, linear, exponential, fibonacci", c.OracleBackoffType))
	}
	for name, v := range map[string]float64{
		"DUPLICATE_IDENTIFIER_THRESHOLD": c.DuplicateIdentifierThreshold,
		"DUPLICATE_SECONDARY_THRESHOLD":  c.DuplicateSecondaryThreshold,
		"RECOMMEND_SKILL_THRESHOLD":      c.RecommendSkillThreshold,
		"TRACING_SAMPLING_RATE":          c.TracingSamplingRate,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 1, got %g", name, v))
		}
	}
	switch models.AnalysisMode(c.DuplicateAnalysis) {
	case models.AnalysisBasic, models.AnalysisAdvanced:
	default:
		errs = append(errs, fmt.Errorf("DUPLICATE_ANALYSIS %q is not one of basic, advanced", c.DuplicateAnalysis))
	}
	for env, names := range map[string][]string{
		"DUPLICATE_IDENTIFIER_NORMALIZERS": c.DuplicateIdentifierNormalizers,
		"DUPLICATE_SECONDARY_NORMALIZERS":  c.DuplicateSecondaryNormalizers,
	} {
		for _, name := range names {
			if _, ok := normalizers.Get(name); !ok {
				errs = append(errs, fmt.Errorf("%s names unknown normalizer %q", env, name))
			}
		}
	}
	if c.RecommendTopK <= 0 {
		errs = append(errs, fmt.Errorf("RECOMMEND_TOP_K must be positive"))
	}
	if c.AuthEnabled && (c.AuthIssuerURL == "" || c.AuthClientID == "") {
		errs = append(errs, fmt.Errorf("AUTH_ISSUER_URL and AUTH_CLIENT_ID are required when AUTH_ENABLED is set"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, fmt.Errorf("KAFKA_BROKERS is required when KAFKA_ENABLED is set"))
	}
	if c.RedisHost != "" && (c.OracleRateLimit <= 0 || c.OracleRateLimitWindow <= 0) {
		errs = append(errs, fmt.Errorf("ORACLE_RATE_LIMIT and ORACLE_RATE_LIMIT_WINDOW must be positive when REDIS_HOST is set"))
	}
	return errs
}

func (c *Config) Database() database.Config {
	return database.Config{
		Driver:          c.DatabaseDriver,
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Redis() ratelimit.RedisConfig {
	return ratelimit.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: time.Duration(c.KafkaBatchTimeout) * time.Millisecond,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Tracing() tracing.Config {
	cfg := tracing.DefaultConfig()
	cfg.ServiceName = c.AppName
	cfg.Version = c.Version
	cfg.Protocol = c.TracingProtocol
	cfg.Endpoint = c.TracingEndpoint
	cfg.Insecure = c.TracingInsecure
	cfg.SamplingRate = c.TracingSamplingRate
	return cfg
}

func (c *Config) OracleHTTP() oracle.HTTPConfig {
	cfg := oracle.DefaultHTTPConfig()
	cfg.URL = c.OracleURL
	cfg.APIKey = c.OracleAPIKey
	return cfg
}

func (c *Config) OracleBatch() oracle.Config {
	return oracle.Config{
		BatchSize:      c.OracleBatchSize,
		MaxInFlight:    c.OracleMaxInFlight,
		RequestTimeout: time.Duration(c.OracleTimeoutSeconds) * time.Second,
		Retry: oracle.RetryConfig{
			MaxRetries:   c.OracleMaxRetries,
			BackoffType:  c.OracleBackoffType,
			InitialDelay: c.OracleInitialDelayMs,
			MaxDelay:     c.OracleMaxDelayMs,
		},
	}
}

func (c *Config) Similarity() similarity.Config {
	return similarity.Config{
		Mode:                similarity.Mode(strings.ToLower(c.SimilarityMode)),
		HybridLexicalWeight: c.HybridLexicalWeight,
	}
}

func (c *Config) Duplicates() duplicates.Options {
	return duplicates.Options{
		IdentifierField:       c.DuplicateIdentifierField,
		SecondaryField:        c.DuplicateSecondaryField,
		IdentifierThreshold:   c.DuplicateIdentifierThreshold,
		SecondaryThreshold:    c.DuplicateSecondaryThreshold,
		Analysis:              models.AnalysisMode(c.DuplicateAnalysis),
		IdentifierNormalizers: c.DuplicateIdentifierNormalizers,
		SecondaryNormalizers:  c.DuplicateSecondaryNormalizers,
	}
}

func (c *Config) Recommend() recommend.Config {
	return recommend.Config{
		TopK:                c.RecommendTopK,
		RegionNeighbours:    c.RecommendRegionNeighbours,
		SkillMatchThreshold: c.RecommendSkillThreshold,
	}
}

var durationType = reflect.TypeOf(time.Duration(0))

// bind fills every env-tagged field of cfg. A value from the environment that
// does not parse is reported and the default is used in its place.
func bind(k *koanf.Koanf, cfg any) []error {
	var errs []error
	v := reflect.ValueOf(cfg).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		envKey, ok := f.Tag.Lookup("env")
		if !ok {
			continue
		}
		field := v.Field(i)
		def := f.Tag.Get("env-default")

		if raw := os.Getenv(envKey); raw != "" {
			if err := setText(field, raw); err == nil {
				continue
			}
			errs = append(errs, fmt.Errorf("%s must be %s, got %q", envKey, kindName(field), raw))
		} else if fileKey := f.Tag.Get("koanf"); fileKey != "" && k.Exists(fileKey) && setFile(field, k, fileKey) {
			continue
		}

		if def == "" {
			continue
		}
		if err := setText(field, def); err != nil {
			errs = append(errs, fmt.Errorf("%s: bad env-default %q: %w", f.Name, def, err))
		}
	}
	return errs
}

// setText parses a value written as text in the environment or a tag default.
func setText(field reflect.Value, raw string) error {
	raw = strings.TrimSpace(raw)
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(n))
	case reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		switch strings.ToLower(raw) {
		case "true", "1", "yes", "on":
			field.SetBool(true)
		case "false", "0", "no", "off":
			field.SetBool(false)
		default:
			return fmt.Errorf("invalid boolean %q", raw)
		}
	case reflect.Slice:
		var out []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		field.Set(reflect.ValueOf(out))
	default:
		return fmt.Errorf("unsupported kind %s", field.Kind())
	}
	return nil
}

// setFile copies a value already typed by the YAML parser. It reports false
// when the file holds nothing usable, so the default applies.
func setFile(field reflect.Value, k *koanf.Koanf, key string) bool {
	if field.Type() == durationType {
		field.SetInt(int64(k.Duration(key)))
		return true
	}
	switch field.Kind() {
	case reflect.String:
		s := k.String(key)
		if s == "" {
			return false
		}
		field.SetString(s)
	case reflect.Int:
		field.SetInt(int64(k.Int(key)))
	case reflect.Float64:
		field.SetFloat(k.Float64(key))
	case reflect.Bool:
		field.SetBool(k.Bool(key))
	case reflect.Slice:
		field.Set(reflect.ValueOf(k.Strings(key)))
	default:
		return false
	}
	return true
}

func kindName(field reflect.Value) string {
	if field.Type() == durationType {
		return "a duration"
	}
	switch field.Kind() {
	case reflect.Int:
		return "an integer"
	case reflect.Float64:
		return "a number"
	case reflect.Bool:
		return "a boolean"
	default:
		return "a list"
	}
}
