// Package config loads cratebot settings from flags, the environment and an
// optional dotenv-style secrets file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every non-secret setting, e.g. CRATEBOT_DB.
const EnvPrefix = "CRATEBOT"

// Setting keys, shared with the cobra flag names.
const (
	KeyDB          = "db"
	KeySecrets     = "secrets"
	KeyRegistryURL = "registry-url"
	KeySocialURL   = "social-url"
	KeyInterval    = "interval"
	KeyRate        = "rate"
	KeyDryRun      = "dry-run"
	KeyLogLevel    = "log-level"
)

const (
	DefaultDBPath      = "db.sqlite"
	DefaultSecretsFile = ".env"
	DefaultRegistryURL = "https://crates.io"
	DefaultSocialURL   = "https://api.twitter.com"
	DefaultInterval    = time.Hour
	DefaultRate        = 1.0
)

// Config is the fully resolved runtime configuration.
type Config struct {
	DBPath      string
	SecretsFile string
	// SecretsRequired is true when the secrets file was named explicitly and
	// therefore must exist.
	SecretsRequired bool
	RegistryURL     string
	SocialURL       string
	Interval        time.Duration
	// Rate is the registry request budget in requests per second.
	Rate     float64
	DryRun   bool
	LogLevel string
}

// NewViper returns a viper instance with cratebot defaults and environment
// binding. Callers bind cobra flags onto it before calling Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyDB, DefaultDBPath)
	v.SetDefault(KeySecrets, "")
	v.SetDefault(KeyRegistryURL, DefaultRegistryURL)
	v.SetDefault(KeySocialURL, DefaultSocialURL)
	v.SetDefault(KeyInterval, DefaultInterval)
	v.SetDefault(KeyRate, DefaultRate)
	v.SetDefault(KeyDryRun, false)
	v.SetDefault(KeyLogLevel, "")
	return v
}

// Load resolves settings from v. It does not read credentials; see
// LoadCredentials and CredentialSource.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		DBPath:      strings.TrimSpace(v.GetString(KeyDB)),
		SecretsFile: strings.TrimSpace(v.GetString(KeySecrets)),
		RegistryURL: strings.TrimRight(strings.TrimSpace(v.GetString(KeyRegistryURL)), "/"),
		SocialURL:   strings.TrimRight(strings.TrimSpace(v.GetString(KeySocialURL)), "/"),
		Interval:    v.GetDuration(KeyInterval),
		Rate:        v.GetFloat64(KeyRate),
		DryRun:      v.GetBool(KeyDryRun),
		LogLevel:    v.GetString(KeyLogLevel),
	}

	if cfg.SecretsFile == "" {
		cfg.SecretsFile = DefaultSecretsFile
	} else {
		cfg.SecretsRequired = true
	}

	// LOG_LEVEL without prefix is accepted as a fallback.
	if cfg.LogLevel == "" {
		cfg.LogLevel = os.Getenv("LOG_LEVEL")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the non-secret settings.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("database path must not be empty")
	}
	if c.RegistryURL == "" {
		return fmt.Errorf("registry URL must not be empty")
	}
	if c.SocialURL == "" {
		return fmt.Errorf("social API URL must not be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", c.Interval)
	}
	if c.Rate <= 0 {
		return fmt.Errorf("rate must be positive, got %g", c.Rate)
	}
	return nil
}

// Credential environment variable names.
const (
	EnvConsumerKey       = "CONSUMER_KEY"
	EnvConsumerSecret    = "CONSUMER_SECRET"
	EnvAccessTokenKey    = "ACCESS_TOKEN_KEY"
	EnvAccessTokenSecret = "ACCESS_TOKEN_SECRET"
)

var (
	// ErrMissingCredential is returned when a required credential is unset.
	ErrMissingCredential = errors.New("missing credential")

	// ErrMalformedCredential is returned when a credential contains whitespace.
	ErrMalformedCredential = errors.New("malformed credential")
)

// Credentials is the OAuth 1.0a key pair set used to post.
type Credentials struct {
	ConsumerKey       string
	ConsumerSecret    string
	AccessTokenKey    string
	AccessTokenSecret string
}

// String masks every value so credentials can be logged safely.
func (c Credentials) String() string {
	return fmt.Sprintf("Credentials{consumer_key=%s access_token_key=%s}",
		mask(c.ConsumerKey), mask(c.AccessTokenKey))
}

func mask(s string) string {
	if len(s) <= 4 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}

// Validate reports every missing or malformed credential at once.
func (c Credentials) Validate() error {
	fields := []struct {
		env, val string
	}{
		{EnvConsumerKey, c.ConsumerKey},
		{EnvConsumerSecret, c.ConsumerSecret},
		{EnvAccessTokenKey, c.AccessTokenKey},
		{EnvAccessTokenSecret, c.AccessTokenSecret},
	}

	var missing, malformed []string
	for _, f := range fields {
		switch {
		case f.val == "":
			missing = append(missing, f.env)
		case strings.ContainsAny(f.val, " \t\r\n"):
			malformed = append(malformed, f.env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingCredential, strings.Join(missing, ", "))
	}
	if len(malformed) > 0 {
		return fmt.Errorf("%w: %s contains whitespace", ErrMalformedCredential, strings.Join(malformed, ", "))
	}
	return nil
}

// LoadCredentials reads the four credentials from the environment, falling
// back to the dotenv file at secretsFile. A missing file is an error only
// when requireFile is set.
func LoadCredentials(secretsFile string, requireFile bool) (Credentials, error) {
	v := viper.New()
	for key, env := range map[string]string{
		"consumer_key":        EnvConsumerKey,
		"consumer_secret":     EnvConsumerSecret,
		"access_token_key":    EnvAccessTokenKey,
		"access_token_secret": EnvAccessTokenSecret,
	} {
		if err := v.BindEnv(key, env); err != nil {
			return Credentials{}, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if secretsFile != "" {
		v.SetConfigFile(secretsFile)
		v.SetConfigType("env")
		if err := v.ReadInConfig(); err != nil {
			if requireFile || !errors.Is(err, fs.ErrNotExist) {
				return Credentials{}, fmt.Errorf("failed to read secrets file %s: %w", secretsFile, err)
			}
		}
	}

	creds := Credentials{
		ConsumerKey:       strings.TrimSpace(v.GetString("consumer_key")),
		ConsumerSecret:    strings.TrimSpace(v.GetString("consumer_secret")),
		AccessTokenKey:    strings.TrimSpace(v.GetString("access_token_key")),
		AccessTokenSecret: strings.TrimSpace(v.GetString("access_token_secret")),
	}
	if err := creds.Validate(); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}
