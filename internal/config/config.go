package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the api and scheduler processes.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Auth      AuthConfig
	Voicebot  VoicebotConfig
	OpenAI    OpenAIConfig
	HubSpot   HubSpotConfig
	SendGrid  SendGridConfig
	Scheduler SchedulerConfig
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
	Host string
	Port int
}

// AuthConfig describes token verification only. Token issuance belongs to the
// managed auth provider; these processes never mint user tokens.
type AuthConfig struct {
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
}

// VoicebotConfig configures the outbound voice-agent vendor.
type VoicebotConfig struct {
	APIKey     string
	BaseURL    string
	AgentID    string
	FromNumber string

	// WebhookSecret authenticates vendor completed-call callbacks.
	WebhookSecret string
}

type OpenAIConfig struct {
	APIKey string
	Model  string

	// MaxInputChars bounds the transcript passed to the model; longer
	// transcripts are truncated (reported, non-fatal).
	MaxInputChars   int
	SummaryMaxWords int
}

type HubSpotConfig struct {
	AccessToken string
	BaseURL     string

	// SummaryProperty is the contact custom property holding call summaries.
	SummaryProperty string
	// CheckupProperty is the contact custom property holding the last
	// check-up date used by auto-trigger rules.
	CheckupProperty string
}

type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

type SchedulerConfig struct {
	CallInterval   time.Duration
	DigestInterval time.Duration

	// DuplicateWindow is the minimum spacing between two executions of the
	// same schedule.
	DuplicateWindow time.Duration

	// OrgCallConcurrency caps simultaneous vendor call initiations per org.
	OrgCallConcurrency int
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

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

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))

	c.Voicebot.APIKey = os.Getenv("VOICEBOT_API_KEY")
	c.Voicebot.BaseURL = strings.TrimSpace(os.Getenv("VOICEBOT_API_URL"))
	c.Voicebot.AgentID = strings.TrimSpace(os.Getenv("VOICEBOT_AGENT_ID"))
	c.Voicebot.FromNumber = strings.TrimSpace(os.Getenv("VOICEBOT_FROM_NUMBER"))
	c.Voicebot.WebhookSecret = os.Getenv("VOICEBOT_WEBHOOK_SECRET")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.Model = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	c.OpenAI.MaxInputChars = optInt("OPENAI_MAX_INPUT_CHARS")
	c.OpenAI.SummaryMaxWords = optInt("OPENAI_SUMMARY_MAX_WORDS")

	c.HubSpot.AccessToken = os.Getenv("HUBSPOT_ACCESS_TOKEN")
	c.HubSpot.BaseURL = strings.TrimSpace(os.Getenv("HUBSPOT_API_URL"))
	c.HubSpot.SummaryProperty = strings.TrimSpace(os.Getenv("HUBSPOT_SUMMARY_PROPERTY"))
	c.HubSpot.CheckupProperty = strings.TrimSpace(os.Getenv("HUBSPOT_CHECKUP_PROPERTY"))

	c.SendGrid.APIKey = os.Getenv("SENDGRID_API_KEY")
	c.SendGrid.FromEmail = strings.TrimSpace(os.Getenv("SENDGRID_FROM_EMAIL"))
	c.SendGrid.FromName = strings.TrimSpace(os.Getenv("SENDGRID_FROM_NAME"))

	// Duration env vars are optional; defaults applied in Validate().
	c.Scheduler.CallInterval = optDuration("SCHEDULER_CALL_INTERVAL")
	c.Scheduler.DigestInterval = optDuration("SCHEDULER_DIGEST_INTERVAL")
	c.Scheduler.DuplicateWindow = optDuration("SCHEDULER_DUPLICATE_WINDOW")
	c.Scheduler.OrgCallConcurrency = optInt("SCHEDULER_ORG_CALL_CONCURRENCY")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks required values and fills in safe defaults for optional
// ones. It mutates the receiver, so call it on the value you keep.
func (c *Config) Validate() error {
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
	}

	if c.Voicebot.APIKey == "" {
		errs = append(errs, errors.New("VOICEBOT_API_KEY is required"))
	}
	if c.Voicebot.BaseURL == "" {
		c.Voicebot.BaseURL = "https://api.bolna.ai"
	}
	if c.IsProduction() && c.Voicebot.WebhookSecret == "" {
		errs = append(errs, errors.New("VOICEBOT_WEBHOOK_SECRET is required in production"))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-3.5-turbo"
	}
	if c.OpenAI.MaxInputChars <= 0 {
		c.OpenAI.MaxInputChars = 48000
	}
	if c.OpenAI.SummaryMaxWords <= 0 {
		c.OpenAI.SummaryMaxWords = 20
	}

	if c.HubSpot.AccessToken == "" {
		errs = append(errs, errors.New("HUBSPOT_ACCESS_TOKEN is required"))
	}
	if c.HubSpot.BaseURL == "" {
		c.HubSpot.BaseURL = "https://api.hubapi.com"
	}
	if c.HubSpot.SummaryProperty == "" {
		c.HubSpot.SummaryProperty = "call_summary"
	}
	if c.HubSpot.CheckupProperty == "" {
		c.HubSpot.CheckupProperty = "last_checkup_date"
	}

	if c.SendGrid.FromEmail == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("SENDGRID_FROM_EMAIL is required in production"))
		} else {
			c.SendGrid.FromEmail = "digests@localhost"
		}
	}
	if c.SendGrid.FromName == "" {
		c.SendGrid.FromName = "AgentSDR Digests"
	}

	if c.Scheduler.CallInterval <= 0 {
		c.Scheduler.CallInterval = 2 * time.Minute
	}
	if c.Scheduler.DigestInterval <= 0 {
		c.Scheduler.DigestInterval = 2 * time.Minute
	}
	if c.Scheduler.DuplicateWindow <= 0 {
		c.Scheduler.DuplicateWindow = time.Hour
	}
	if c.Scheduler.OrgCallConcurrency <= 0 {
		c.Scheduler.OrgCallConcurrency = 5
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

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
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
