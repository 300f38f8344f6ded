package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackwell-systems/cratebot/internal/logger"
)

// clearCredentialEnv blanks the credential variables; viper treats empty
// variables as unset.
func clearCredentialEnv(t *testing.T) {
	t.Helper()
	for _, env := range []string{EnvConsumerKey, EnvConsumerSecret, EnvAccessTokenKey, EnvAccessTokenSecret} {
		t.Setenv(env, "")
	}
}

func writeSecrets(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
}

const fullSecrets = `CONSUMER_KEY=ck-file
CONSUMER_SECRET=cs-file
ACCESS_TOKEN_KEY=atk-file
ACCESS_TOKEN_SECRET=ats-file
`

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"CRATEBOT_DB", "CRATEBOT_SECRETS", "CRATEBOT_REGISTRY_URL", "CRATEBOT_SOCIAL_URL", "CRATEBOT_INTERVAL", "CRATEBOT_RATE", "CRATEBOT_DRY_RUN", "CRATEBOT_LOG_LEVEL", "LOG_LEVEL"} {
		t.Setenv(key, "")
	}

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultSecretsFile, cfg.SecretsFile)
	assert.False(t, cfg.SecretsRequired)
	assert.Equal(t, DefaultRegistryURL, cfg.RegistryURL)
	assert.Equal(t, DefaultSocialURL, cfg.SocialURL)
	assert.Equal(t, time.Hour, cfg.Interval)
	assert.Equal(t, 1.0, cfg.Rate)
	assert.False(t, cfg.DryRun)
	assert.Empty(t, cfg.LogLevel)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("CRATEBOT_DB", "/var/lib/cratebot/db.sqlite")
	t.Setenv("CRATEBOT_SECRETS", "/etc/cratebot/secrets.env")
	t.Setenv("CRATEBOT_REGISTRY_URL", "http://localhost:8080/")
	t.Setenv("CRATEBOT_INTERVAL", "15m")
	t.Setenv("CRATEBOT_RATE", "0.5")
	t.Setenv("CRATEBOT_DRY_RUN", "true")
	t.Setenv("CRATEBOT_LOG_LEVEL", "")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(NewViper())
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/cratebot/db.sqlite", cfg.DBPath)
	assert.Equal(t, "/etc/cratebot/secrets.env", cfg.SecretsFile)
	assert.True(t, cfg.SecretsRequired)
	assert.Equal(t, "http://localhost:8080", cfg.RegistryURL)
	assert.Equal(t, 15*time.Minute, cfg.Interval)
	assert.Equal(t, 0.5, cfg.Rate)
	assert.True(t, cfg.DryRun)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidInterval(t *testing.T) {
	t.Setenv("CRATEBOT_INTERVAL", "0s")

	_, err := Load(NewViper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
}

func TestLoad_InvalidRate(t *testing.T) {
	t.Setenv("CRATEBOT_RATE", "-1")

	_, err := Load(NewViper())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate")
}

func TestLoadCredentials_FromEnvironment(t *testing.T) {
	t.Setenv(EnvConsumerKey, "ck")
	t.Setenv(EnvConsumerSecret, "cs")
	t.Setenv(EnvAccessTokenKey, "atk")
	t.Setenv(EnvAccessTokenSecret, "ats")

	creds, err := LoadCredentials("", false)
	require.NoError(t, err)
	assert.Equal(t, Credentials{
		ConsumerKey:       "ck",
		ConsumerSecret:    "cs",
		AccessTokenKey:    "atk",
		AccessTokenSecret: "ats",
	}, creds)
}

func TestLoadCredentials_MissingReportsAllNames(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(EnvConsumerKey, "ck")

	_, err := LoadCredentials("", false)
	require.ErrorIs(t, err, ErrMissingCredential)
	assert.Contains(t, err.Error(), EnvConsumerSecret)
	assert.Contains(t, err.Error(), EnvAccessTokenKey)
	assert.Contains(t, err.Error(), EnvAccessTokenSecret)
	assert.NotContains(t, err.Error(), EnvConsumerKey+",")
}

func TestLoadCredentials_FromSecretsFile(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	writeSecrets(t, path, fullSecrets)

	creds, err := LoadCredentials(path, true)
	require.NoError(t, err)
	assert.Equal(t, "ck-file", creds.ConsumerKey)
	assert.Equal(t, "ats-file", creds.AccessTokenSecret)
}

func TestLoadCredentials_EnvironmentOverridesFile(t *testing.T) {
	clearCredentialEnv(t)
	t.Setenv(EnvAccessTokenKey, "atk-env")
	path := filepath.Join(t.TempDir(), ".env")
	writeSecrets(t, path, fullSecrets)

	creds, err := LoadCredentials(path, true)
	require.NoError(t, err)
	assert.Equal(t, "atk-env", creds.AccessTokenKey)
	assert.Equal(t, "ck-file", creds.ConsumerKey)
}

func TestLoadCredentials_MissingFile(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), "absent.env")

	_, err := LoadCredentials(path, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read secrets file")

	// An optional file that is absent only leaves the credentials missing.
	_, err = LoadCredentials(path, false)
	require.ErrorIs(t, err, ErrMissingCredential)
}

func TestCredentials_Validate(t *testing.T) {
	t.Parallel()

	valid := Credentials{ConsumerKey: "a", ConsumerSecret: "b", AccessTokenKey: "c", AccessTokenSecret: "d"}
	require.NoError(t, valid.Validate())

	malformed := valid
	malformed.ConsumerSecret = "has space"
	assert.ErrorIs(t, malformed.Validate(), ErrMalformedCredential)

	assert.ErrorIs(t, Credentials{}.Validate(), ErrMissingCredential)
}

func TestCredentials_StringMasksSecrets(t *testing.T) {
	t.Parallel()

	c := Credentials{ConsumerKey: "abcdefgh", ConsumerSecret: "topsecret", AccessTokenKey: "xyz", AccessTokenSecret: "hidden"}
	s := c.String()
	assert.Contains(t, s, "abcd****")
	assert.Contains(t, s, "***")
	assert.NotContains(t, s, "topsecret")
	assert.NotContains(t, s, "hidden")
	assert.NotContains(t, s, "efgh")
}

func TestStatic(t *testing.T) {
	t.Parallel()

	_, err := Static{}.Credentials()
	assert.ErrorIs(t, err, ErrMissingCredential)

	creds, err := Static{ConsumerKey: "a", ConsumerSecret: "b", AccessTokenKey: "c", AccessTokenSecret: "d"}.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "c", creds.AccessTokenKey)
}

func TestWatchCredentials_ReloadsOnChange(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	writeSecrets(t, path, fullSecrets)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchCredentials(ctx, path, true, logger.NewNop())
	require.NoError(t, err)
	defer w.Close()

	creds, err := w.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "atk-file", creds.AccessTokenKey)

	writeSecrets(t, path, `CONSUMER_KEY=ck-file
CONSUMER_SECRET=cs-file
ACCESS_TOKEN_KEY=atk-rotated
ACCESS_TOKEN_SECRET=ats-rotated
`)

	select {
	case <-w.Reloaded():
	case <-time.After(5 * time.Second):
		t.Fatal("credentials were not reloaded after the secrets file changed")
	}

	creds, err = w.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "atk-rotated", creds.AccessTokenKey)
	assert.Equal(t, "ats-rotated", creds.AccessTokenSecret)
}

func TestWatchCredentials_KeepsPreviousOnInvalidReload(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	writeSecrets(t, path, fullSecrets)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchCredentials(ctx, path, true, logger.NewNop())
	require.NoError(t, err)
	defer w.Close()

	writeSecrets(t, path, "CONSUMER_KEY=only-one\n")
	time.Sleep(200 * time.Millisecond)

	creds, err := w.Credentials()
	require.NoError(t, err)
	assert.Equal(t, "ck-file", creds.ConsumerKey)
	assert.Equal(t, "atk-file", creds.AccessTokenKey)
}

func TestWatchCredentials_InitialLoadFails(t *testing.T) {
	clearCredentialEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	writeSecrets(t, path, "CONSUMER_KEY=x\n")

	_, err := WatchCredentials(context.Background(), path, true, logger.NewNop())
	require.ErrorIs(t, err, ErrMissingCredential)
}
