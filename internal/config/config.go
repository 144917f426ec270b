package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env (a local .env file is loaded best-effort).
// No business logic should depend on raw environment variables.
type Config struct {
	App         AppConfig
	DB          DBConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Voice       VoiceConfig
	Storage     StorageConfig
	Defaults    DefaultsConfig
	Placement   PlacementConfig
	Maintenance MaintenanceConfig
	Events      EventsConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration

	// BootstrapSecret gates the dev-only token mint endpoint.
	BootstrapSecret string
}

// VoiceConfig points at the LiveKit deployment used to place calls.
type VoiceConfig struct {
	URL             string
	APIKey          string
	APISecret       string
	SIPTrunkID      string
	DispatchTimeout time.Duration
}

// StorageConfig points at the S3 bucket holding recordings and transcripts.
// Access keys are optional; the SDK default credential chain is used when
// they are empty.
type StorageConfig struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	PresignTTL      time.Duration
}

// DefaultsConfig fills optional request fields when callers omit them.
type DefaultsConfig struct {
	AgentName   string
	CompanyName string
	CallerID    string
}

// PlacementConfig bounds how many outbound placements may be in flight.
type PlacementConfig struct {
	MaxActive int
	SlotTTL   time.Duration
}

// MaintenanceConfig drives the background sweeps.
type MaintenanceConfig struct {
	ConnectingTimeout  time.Duration
	InitiatedTimeout   time.Duration
	FailedRetention    time.Duration
	CompletedRetention time.Duration

	SweepEvery   time.Duration
	CleanupEvery time.Duration
	HealthEvery  time.Duration
}

// EventsConfig names the lifecycle event stream.
type EventsConfig struct {
	Stream   string
	Group    string
	Consumer string
}

func Load() (Config, error) {
	// Best-effort: absence of a .env file is the normal production case.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	// A mistyped duration must fail loading, not fall back to a default.
	optDur := func(key string) time.Duration {
		d, err := optDuration(key)
		if err != nil {
			parseErrs = append(parseErrs, err)
		}
		return d
	}

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optInt("REDIS_DB")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	c.Auth.AccessTokenTTL = optDur("JWT_ACCESS_TTL")
	c.Auth.BootstrapSecret = os.Getenv("AUTH_BOOTSTRAP_SECRET")

	c.Voice.URL = strings.TrimSpace(os.Getenv("LIVEKIT_URL"))
	c.Voice.APIKey = strings.TrimSpace(os.Getenv("LIVEKIT_API_KEY"))
	c.Voice.APISecret = os.Getenv("LIVEKIT_API_SECRET")
	c.Voice.SIPTrunkID = strings.TrimSpace(os.Getenv("SIP_OUTBOUND_TRUNK_ID"))
	c.Voice.DispatchTimeout = optDur("VOICE_DISPATCH_TIMEOUT")

	c.Storage.Region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	c.Storage.Bucket = strings.TrimSpace(os.Getenv("S3_BUCKET_NAME"))
	c.Storage.AccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	c.Storage.SecretAccessKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	c.Storage.Endpoint = strings.TrimSpace(os.Getenv("S3_ENDPOINT"))
	c.Storage.PresignTTL = optDur("S3_PRESIGN_TTL")

	c.Defaults.AgentName = strings.TrimSpace(os.Getenv("DEFAULT_AGENT_NAME"))
	c.Defaults.CompanyName = strings.TrimSpace(os.Getenv("DEFAULT_COMPANY_NAME"))
	c.Defaults.CallerID = strings.TrimSpace(os.Getenv("DEFAULT_CALLER_ID"))

	{
		n, err := optInt("PLACEMENT_MAX_ACTIVE")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Placement.MaxActive = n
	}
	c.Placement.SlotTTL = optDur("PLACEMENT_SLOT_TTL")

	c.Maintenance.ConnectingTimeout = optDur("SWEEP_CONNECTING_TIMEOUT")
	c.Maintenance.InitiatedTimeout = optDur("SWEEP_INITIATED_TIMEOUT")
	c.Maintenance.FailedRetention = optDur("CLEANUP_FAILED_RETENTION")
	c.Maintenance.CompletedRetention = optDur("CLEANUP_COMPLETED_RETENTION")
	c.Maintenance.SweepEvery = optDur("SWEEP_EVERY")
	c.Maintenance.CleanupEvery = optDur("CLEANUP_EVERY")
	c.Maintenance.HealthEvery = optDur("HEALTH_EVERY")

	c.Events.Stream = strings.TrimSpace(os.Getenv("EVENTS_STREAM"))
	c.Events.Group = strings.TrimSpace(os.Getenv("EVENTS_GROUP"))
	c.Events.Consumer = strings.TrimSpace(os.Getenv("EVENTS_CONSUMER"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// applyDefaults fills optional values. Required values stay empty so that
// Validate can report them.
func (c *Config) applyDefaults() {
	if c.DB.SSLMode == "" && !c.IsProduction() {
		// Local-friendly default; production must be explicit.
		c.DB.SSLMode = "disable"
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = time.Hour
	}

	if c.Voice.DispatchTimeout <= 0 {
		c.Voice.DispatchTimeout = 30 * time.Second
	}

	if c.Storage.PresignTTL <= 0 {
		c.Storage.PresignTTL = time.Hour
	}

	if c.Defaults.AgentName == "" {
		c.Defaults.AgentName = "AI Assistant"
	}
	if c.Defaults.CompanyName == "" {
		c.Defaults.CompanyName = "Our Company"
	}
	if c.Defaults.CallerID == "" {
		c.Defaults.CallerID = "AI Call Service"
	}

	if c.Placement.MaxActive <= 0 {
		c.Placement.MaxActive = 10
	}
	if c.Placement.SlotTTL <= 0 {
		c.Placement.SlotTTL = 10 * time.Minute
	}

	if c.Maintenance.ConnectingTimeout <= 0 {
		c.Maintenance.ConnectingTimeout = 5 * time.Minute
	}
	if c.Maintenance.InitiatedTimeout <= 0 {
		c.Maintenance.InitiatedTimeout = 2 * time.Minute
	}
	if c.Maintenance.FailedRetention <= 0 {
		c.Maintenance.FailedRetention = 24 * time.Hour
	}
	if c.Maintenance.CompletedRetention <= 0 {
		c.Maintenance.CompletedRetention = 30 * 24 * time.Hour
	}
	if c.Maintenance.SweepEvery <= 0 {
		c.Maintenance.SweepEvery = time.Minute
	}
	if c.Maintenance.CleanupEvery <= 0 {
		c.Maintenance.CleanupEvery = time.Hour
	}
	if c.Maintenance.HealthEvery <= 0 {
		c.Maintenance.HealthEvery = 5 * time.Minute
	}

	if c.Events.Stream == "" {
		c.Events.Stream = "calls:lifecycle"
	}
	if c.Events.Group == "" {
		c.Events.Group = "call-orchestrator"
	}
	if c.Events.Consumer == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "consumer-1"
		}
		c.Events.Consumer = host
	}
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	} else if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if c.Auth.BootstrapSecret != "" {
			errs = append(errs, errors.New("AUTH_BOOTSTRAP_SECRET must not be set in production"))
		}
	}

	if c.Voice.URL == "" {
		errs = append(errs, errors.New("LIVEKIT_URL is required"))
	}
	if c.Voice.APIKey == "" {
		errs = append(errs, errors.New("LIVEKIT_API_KEY is required"))
	}
	if c.Voice.APISecret == "" {
		errs = append(errs, errors.New("LIVEKIT_API_SECRET is required"))
	}
	if c.Voice.SIPTrunkID == "" {
		errs = append(errs, errors.New("SIP_OUTBOUND_TRUNK_ID is required"))
	}

	if c.Storage.Region == "" {
		errs = append(errs, errors.New("AWS_REGION is required"))
	}
	if c.Storage.Bucket == "" {
		errs = append(errs, errors.New("S3_BUCKET_NAME is required"))
	}
	if (c.Storage.AccessKeyID == "") != (c.Storage.SecretAccessKey == "") {
		errs = append(errs, errors.New("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optDuration(key string) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 5m or 1h30m, got %q", key, v)
	}
	return d, nil
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
