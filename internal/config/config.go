package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UnknownOlympus/cookiejar/internal/cookies"
	"github.com/spf13/viper"
)

const envPrefix = "COOKIEJAR"

// DefaultUserAgent is sent by the fetcher unless fetcher.user_agent is set.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) cookiejar/1.0"

// ErrUnknownStrictness is returned for an unknown policy.strict_ns_domain value.
var ErrUnknownStrictness = errors.New("unknown netscape domain strictness")

type Config struct {
	Env     string        `yaml:"env"`     // Env is the current environment: local, development, production.
	Policy  PolicyConfig  `yaml:"policy"`  // Policy holds the cookie acceptance rules.
	Fetcher FetcherConfig `yaml:"fetcher"` // Fetcher holds the pages fetched on a schedule.
	Server  ServerConfig  `yaml:"server"`  // Server holds the monitoring server settings.
}

// PolicyConfig mirrors the switches of cookies.DefaultPolicy.
type PolicyConfig struct {
	RFC2965  bool `yaml:"rfc2965"`
	Netscape bool `yaml:"netscape"`
	// RFC2109AsNetscape is nil when unset, letting the policy pick from RFC2965.
	RFC2109AsNetscape        *bool    `yaml:"rfc2109_as_netscape"`
	HideCookie2              bool     `yaml:"hide_cookie2"`
	StrictDomain             bool     `yaml:"strict_domain"`
	StrictNSDomain           string   `yaml:"strict_ns_domain"` // liberal, no_dots, non_domain, rfc2965_match, strict; join with "|"
	StrictNSSetInitialDollar bool     `yaml:"strict_ns_set_initial_dollar"`
	StrictNSSetPath          bool     `yaml:"strict_ns_set_path"`
	PublicSuffixBlocking     bool     `yaml:"public_suffix_blocking"`
	BlockedDomains           []string `yaml:"blocked_domains"`
	AllowedDomains           []string `yaml:"allowed_domains"` // AllowedDomains is empty to allow every domain.
}

// FetcherConfig struct holds the pages the fetcher visits.
type FetcherConfig struct {
	URLs      []string      `yaml:"urls"`       // URLs are fetched in order on every run.
	Interval  time.Duration `yaml:"interval"`   // Interval is the time after that the fetcher runs again.
	UserAgent string        `yaml:"user_agent"` // UserAgent is sent with every request.
}

type ServerConfig struct {
	Port int `yaml:"port"` // Port of the /metrics, /healthz and /cookies server.
}

var strictnessNames = map[string]cookies.NSDomainStrictness{
	"liberal":       cookies.DomainLiberal,
	"no_dots":       cookies.DomainStrictNoDots,
	"non_domain":    cookies.DomainStrictNonDomain,
	"rfc2965_match": cookies.DomainRFC2965Match,
	"strict":        cookies.DomainStrict,
}

// ParseNSDomainStrictness turns names like "no_dots|non_domain" into flags.
func ParseNSDomainStrictness(value string) (cookies.NSDomainStrictness, error) {
	flags := cookies.DomainLiberal
	for name := range strings.SplitSeq(value, "|") {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		flag, ok := strictnessNames[name]
		if !ok {
			return 0, fmt.Errorf("%w: %q", ErrUnknownStrictness, name)
		}
		flags |= flag
	}
	return flags, nil
}

// Options converts the configuration into cookies.DefaultPolicy options.
func (p PolicyConfig) Options() ([]cookies.PolicyOption, error) {
	strictness, err := ParseNSDomainStrictness(p.StrictNSDomain)
	if err != nil {
		return nil, err
	}

	opts := []cookies.PolicyOption{
		cookies.WithRFC2965(p.RFC2965),
		cookies.WithNetscape(p.Netscape),
		cookies.WithHideCookie2(p.HideCookie2),
		cookies.WithStrictDomain(p.StrictDomain),
		cookies.WithStrictNSDomain(strictness),
		cookies.WithStrictNSSetInitialDollar(p.StrictNSSetInitialDollar),
		cookies.WithStrictNSSetPath(p.StrictNSSetPath),
		cookies.WithPublicSuffixBlocking(p.PublicSuffixBlocking),
		cookies.WithBlockedDomains(p.BlockedDomains...),
		cookies.WithAllowedDomains(p.AllowedDomains...),
	}
	if p.RFC2109AsNetscape != nil {
		opts = append(opts, cookies.WithRFC2109AsNetscape(*p.RFC2109AsNetscape))
	}
	return opts, nil
}

// Load reads the YAML file named by CONFIG_PATH, if any, and applies
// COOKIEJAR_* environment overrides (policy.rfc2965 -> COOKIEJAR_POLICY_RFC2965).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath := os.Getenv("CONFIG_PATH"); configPath != "" {
		// check if file exists
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		if filepath.Ext(configPath) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config error: %w", err)
		}
	}

	interval, err := time.ParseDuration(v.GetString("fetcher.interval"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse interval from configuration: %w", err)
	}

	cfg := &Config{
		Env: v.GetString("env"),
		Policy: PolicyConfig{
			RFC2965:                  v.GetBool("policy.rfc2965"),
			Netscape:                 v.GetBool("policy.netscape"),
			HideCookie2:              v.GetBool("policy.hide_cookie2"),
			StrictDomain:             v.GetBool("policy.strict_domain"),
			StrictNSDomain:           v.GetString("policy.strict_ns_domain"),
			StrictNSSetInitialDollar: v.GetBool("policy.strict_ns_set_initial_dollar"),
			StrictNSSetPath:          v.GetBool("policy.strict_ns_set_path"),
			PublicSuffixBlocking:     v.GetBool("policy.public_suffix_blocking"),
			BlockedDomains:           stringList(v, "policy.blocked_domains"),
			AllowedDomains:           stringList(v, "policy.allowed_domains"),
		},
		Fetcher: FetcherConfig{
			URLs:      stringList(v, "fetcher.urls"),
			Interval:  interval,
			UserAgent: v.GetString("fetcher.user_agent"),
		},
		Server: ServerConfig{
			Port: v.GetInt("server.port"),
		},
	}
	if v.IsSet("policy.rfc2109_as_netscape") {
		asNetscape := v.GetBool("policy.rfc2109_as_netscape")
		cfg.Policy.RFC2109AsNetscape = &asNetscape
	}

	if _, err = ParseNSDomainStrictness(cfg.Policy.StrictNSDomain); err != nil {
		return nil, fmt.Errorf("invalid policy.strict_ns_domain: %w", err)
	}

	return cfg, nil
}

// MustLoad is Load that panics on a broken configuration.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	defFetchInterval := 12

	v.SetDefault("env", "local")
	v.SetDefault("policy.rfc2965", false)
	v.SetDefault("policy.netscape", true)
	v.SetDefault("policy.hide_cookie2", false)
	v.SetDefault("policy.strict_domain", false)
	v.SetDefault("policy.strict_ns_domain", "liberal")
	v.SetDefault("policy.strict_ns_set_initial_dollar", false)
	v.SetDefault("policy.strict_ns_set_path", false)
	v.SetDefault("policy.public_suffix_blocking", false)
	v.SetDefault("policy.blocked_domains", []string{})
	v.SetDefault("policy.allowed_domains", []string{})
	v.SetDefault("fetcher.urls", []string{})
	v.SetDefault("fetcher.interval", (time.Duration(defFetchInterval) * time.Hour).String())
	v.SetDefault("fetcher.user_agent", DefaultUserAgent)
	v.SetDefault("server.port", 8080) //nolint:mnd // default monitoring port
}

// stringList reads a list that may come from YAML or from a comma or space
// separated environment variable.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		out = append(out, strings.FieldsFunc(item, func(r rune) bool { return r == ',' || r == ' ' })...)
	}
	return out
}
