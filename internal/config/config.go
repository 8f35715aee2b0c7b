package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the binaries.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Store     StoreConfig
	Recompute RecomputeConfig
	Twilio    TwilioConfig
	Leads     LeadsConfig
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

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// MaxConns caps the pool; 0 keeps the driver-side default.
	MaxConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type StoreConfig struct {
	// Driver is one of postgres, redis, memory.
	Driver string
	// Migrate applies the embedded schema on startup (postgres only).
	Migrate bool
}

// RecomputeConfig is the delayed-dispatch side of the statistics pipeline.
type RecomputeConfig struct {
	Project  string
	Location string
	Queue    string

	WorkerURL      string
	ServiceAccount string
	WorkerSecret   string

	Delay       time.Duration
	MaxRetry    int
	Concurrency int

	// InvalidDelay holds an unusable RECALC_DELAY_MINUTES value; Delay then falls back to the default.
	InvalidDelay string
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	// PublicBaseURL is the scheme+host Twilio signs callbacks against, when behind a proxy.
	PublicBaseURL string
}

type LeadsConfig struct {
	// PhoneRegion is the default region for numbers without a country code.
	PhoneRegion string
}

const (
	defaultTasksLocation = "us-central1"
	defaultTasksQueue    = "recalc-tenant-queue"
	defaultRecalcDelay   = 5 * time.Minute
	defaultMaxRetry      = 10
	defaultConcurrency   = 10
)

func Load() (Config, error) {
	c, err := parse()
	if err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadTooling is Load for offline tools: only the app env and the store section are checked.
func LoadTooling() (Config, error) {
	c, err := parse()
	if err != nil {
		return Config{}, err
	}
	if err := c.ValidateStore(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func parse() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := optionalInt("APP_PORT", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.Store.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))
	c.Store.Migrate = optionalBool("STORE_MIGRATE")

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := optionalInt("DB_PORT", 5432)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	{
		n, err := optionalInt("DB_MAX_CONNS", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxConns = n
	}

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := optionalInt("REDIS_PORT", 6379)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	{
		n, err := optionalInt("REDIS_DB", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.DB = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Recompute.Project = firstEnv("TASKS_PROJECT", "GCP_PROJECT", "GCLOUD_PROJECT")
	c.Recompute.Location = strings.TrimSpace(os.Getenv("TASKS_LOCATION"))
	c.Recompute.Queue = strings.TrimSpace(os.Getenv("TASKS_QUEUE"))
	c.Recompute.WorkerURL = firstEnv("TASK_WORKER_URL", "TASK_WORKER")
	c.Recompute.ServiceAccount = strings.TrimSpace(os.Getenv("TASK_SA_EMAIL"))
	c.Recompute.WorkerSecret = os.Getenv("WORKER_SECRET")
	// An unusable delay degrades to the default with a warning; it never fails Load.
	if n, err := optionalInt("RECALC_DELAY_MINUTES", -1); err == nil && n >= 0 {
		c.Recompute.Delay = time.Duration(n) * time.Minute
	} else {
		c.Recompute.Delay = -1
		if err != nil || n < -1 {
			c.Recompute.InvalidDelay = os.Getenv("RECALC_DELAY_MINUTES")
		}
	}
	{
		n, err := optionalInt("TASK_MAX_RETRY", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Recompute.MaxRetry = n
	}
	{
		n, err := optionalInt("DISPATCH_CONCURRENCY", 0)
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Recompute.Concurrency = n
	}

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PublicBaseURL = strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL"))

	c.Leads.PhoneRegion = strings.ToUpper(strings.TrimSpace(os.Getenv("LEADS_PHONE_REGION")))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills defaults in place.
func (c *Config) Validate() error {
	errs := c.envErrors()

	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	errs = append(errs, c.storeErrors()...)

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
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	c.applyDefaults()
	return joinErrors(errs)
}

// ValidateStore checks what a process touching only the store needs.
func (c *Config) ValidateStore() error {
	errs := c.envErrors()
	errs = append(errs, c.storeErrors()...)
	c.applyDefaults()
	return joinErrors(errs)
}

func (c *Config) envErrors() []error {
	if c.App.Env == "" {
		return []error{errors.New("APP_ENV is required")}
	}
	if !isValidEnv(c.App.Env) {
		return []error{fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env)}
	}
	return nil
}

func (c *Config) storeErrors() []error {
	var errs []error
	if c.Store.Driver == "" {
		c.Store.Driver = "postgres"
	}
	switch c.Store.Driver {
	case "postgres":
		errs = append(errs, c.validateDB()...)
	case "redis":
		if c.Redis.Host == "" {
			errs = append(errs, errors.New("REDIS_HOST is required with STORE_DRIVER=redis"))
		}
	case "memory":
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of postgres, redis, memory, got %q", c.Store.Driver))
	}
	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}
	return errs
}

func (c *Config) applyDefaults() {
	if c.Recompute.Location == "" {
		c.Recompute.Location = defaultTasksLocation
	}
	if c.Recompute.Queue == "" {
		c.Recompute.Queue = defaultTasksQueue
	}
	if c.Recompute.Delay < 0 {
		c.Recompute.Delay = defaultRecalcDelay
	}
	if c.Recompute.MaxRetry <= 0 {
		c.Recompute.MaxRetry = defaultMaxRetry
	}
	if c.Recompute.Concurrency <= 0 {
		c.Recompute.Concurrency = defaultConcurrency
	}
	if c.Leads.PhoneRegion == "" {
		c.Leads.PhoneRegion = "US"
	}
}

func (c *Config) validateDB() []error {
	var errs []error
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
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	return errs
}

// Warnings lists features that are configured off. They are logged at startup and never fatal.
func (c Config) Warnings() []string {
	var out []string
	if c.Recompute.Project == "" {
		out = append(out, "TASKS_PROJECT not set: recompute scheduling disabled")
	}
	if c.Recompute.WorkerURL == "" {
		out = append(out, "TASK_WORKER_URL not set: recompute scheduling disabled")
	}
	if c.Recompute.ServiceAccount == "" && c.Recompute.WorkerSecret == "" {
		out = append(out, "neither TASK_SA_EMAIL nor WORKER_SECRET set: recompute scheduling disabled")
	}
	if c.Recompute.InvalidDelay != "" {
		out = append(out, fmt.Sprintf("RECALC_DELAY_MINUTES=%q is not a non-negative integer: using %s", c.Recompute.InvalidDelay, defaultRecalcDelay))
	}
	if c.Redis.Host == "" {
		out = append(out, "REDIS_HOST not set: recompute dispatch queue unavailable")
	}
	if c.Twilio.AuthToken == "" {
		out = append(out, "TWILIO_AUTH_TOKEN not set: status callbacks are not signature-checked")
	}
	return out
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

func optionalInt(key string, def int) (int, error) {
	if strings.TrimSpace(os.Getenv(key)) == "" {
		return def, nil
	}
	return mustInt(key)
}

// firstEnv returns the first non-empty value among keys.
func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func optionalBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
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
