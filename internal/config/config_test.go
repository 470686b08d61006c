package config_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Flaque/filet"
	"github.com/UnknownOlympus/cookiejar/internal/config"
	"github.com/UnknownOlympus/cookiejar/internal/cookies"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
env: development
policy:
  rfc2965: true
  rfc2109_as_netscape: true
  strict_ns_domain: no_dots|non_domain
  blocked_domains:
    - .ads.example.com
  allowed_domains: []
fetcher:
  urls:
    - https://www.acme.com/login
    - https://www.acme.com/account
  interval: 10m
server:
  port: 9090
`

func TestMustLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")

	cfg := config.MustLoad()

	assert.Equal(t, "local", cfg.Env)
	assert.False(t, cfg.Policy.RFC2965)
	assert.True(t, cfg.Policy.Netscape)
	assert.Nil(t, cfg.Policy.RFC2109AsNetscape)
	assert.Equal(t, "liberal", cfg.Policy.StrictNSDomain)
	assert.Empty(t, cfg.Policy.BlockedDomains)
	assert.Empty(t, cfg.Fetcher.URLs)
	assert.Equal(t, 12*time.Hour, cfg.Fetcher.Interval)
	assert.Equal(t, config.DefaultUserAgent, cfg.Fetcher.UserAgent)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestMustLoadFromFile(t *testing.T) {
	defer filet.CleanUp(t)

	file := filet.TmpFile(t, "", testConfig)
	t.Setenv("CONFIG_PATH", file.Name())

	cfg := config.MustLoad()

	assert.Equal(t, "development", cfg.Env)
	assert.True(t, cfg.Policy.RFC2965)
	require.NotNil(t, cfg.Policy.RFC2109AsNetscape)
	assert.True(t, *cfg.Policy.RFC2109AsNetscape)
	assert.Equal(t, "no_dots|non_domain", cfg.Policy.StrictNSDomain)
	assert.Equal(t, []string{".ads.example.com"}, cfg.Policy.BlockedDomains)
	assert.Empty(t, cfg.Policy.AllowedDomains)
	assert.Equal(t, []string{"https://www.acme.com/login", "https://www.acme.com/account"}, cfg.Fetcher.URLs)
	assert.Equal(t, 10*time.Minute, cfg.Fetcher.Interval)
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestMustLoadEnvOverrides(t *testing.T) {
	defer filet.CleanUp(t)

	file := filet.TmpFile(t, "", testConfig)
	t.Setenv("CONFIG_PATH", file.Name())
	t.Setenv("COOKIEJAR_ENV", "production")
	t.Setenv("COOKIEJAR_POLICY_RFC2965", "false")
	t.Setenv("COOKIEJAR_POLICY_ALLOWED_DOMAINS", "www.acme.com,.acme.org")
	t.Setenv("COOKIEJAR_FETCHER_INTERVAL", "30s")
	t.Setenv("COOKIEJAR_FETCHER_USER_AGENT", "test-agent")

	cfg := config.MustLoad()

	assert.Equal(t, "production", cfg.Env)
	assert.False(t, cfg.Policy.RFC2965)
	assert.Equal(t, []string{"www.acme.com", ".acme.org"}, cfg.Policy.AllowedDomains)
	assert.Equal(t, 30*time.Second, cfg.Fetcher.Interval)
	assert.Equal(t, "test-agent", cfg.Fetcher.UserAgent)
}

func TestMustLoadIntervalError(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("COOKIEJAR_FETCHER_INTERVAL", "error_value")

	assert.PanicsWithValue(t,
		`failed to parse interval from configuration: time: invalid duration "error_value"`,
		func() { config.MustLoad() })
}

func TestMustLoadMissingFile(t *testing.T) {
	dir := filet.TmpDir(t, "")
	defer filet.CleanUp(t)
	missing := filepath.Join(dir, "missing.yaml")
	t.Setenv("CONFIG_PATH", missing)

	assert.PanicsWithValue(t, "config file does not exist: "+missing, func() { config.MustLoad() })
}

func TestLoadRejectsUnknownStrictness(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("COOKIEJAR_POLICY_STRICT_NS_DOMAIN", "paranoid")

	_, err := config.Load()
	require.ErrorIs(t, err, config.ErrUnknownStrictness)
}

func TestParseNSDomainStrictness(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  cookies.NSDomainStrictness
	}{
		{"", cookies.DomainLiberal},
		{"liberal", cookies.DomainLiberal},
		{"no_dots", cookies.DomainStrictNoDots},
		{"NON_DOMAIN", cookies.DomainStrictNonDomain},
		{"no_dots | non_domain", cookies.DomainStrict},
		{"strict|rfc2965_match", cookies.DomainStrict | cookies.DomainRFC2965Match},
	}

	for _, tt := range tests {
		got, err := config.ParseNSDomainStrictness(tt.value)
		require.NoError(t, err, tt.value)
		assert.Equal(t, tt.want, got, tt.value)
	}

	_, err := config.ParseNSDomainStrictness("no_dots|bogus")
	require.ErrorIs(t, err, config.ErrUnknownStrictness)
}

func TestPolicyConfigOptions(t *testing.T) {
	t.Parallel()

	asNetscape := false
	cfg := config.PolicyConfig{
		RFC2965:           true,
		Netscape:          true,
		RFC2109AsNetscape: &asNetscape,
		HideCookie2:       true,
		StrictNSDomain:    "strict",
		BlockedDomains:    []string{".ads.example.com"},
	}

	opts, err := cfg.Options()
	require.NoError(t, err)
	policy := cookies.NewDefaultPolicy(opts...)

	assert.True(t, policy.RFC2965())
	assert.True(t, policy.Netscape())
	assert.True(t, policy.HideCookie2())
	assert.False(t, policy.RFC2109AsNetscape())
	assert.Equal(t, []string{".ads.example.com"}, policy.BlockedDomains())
	assert.Empty(t, policy.AllowedDomains())

	cfg.StrictNSDomain = "nope"
	_, err = cfg.Options()
	require.ErrorIs(t, err, config.ErrUnknownStrictness)
}
