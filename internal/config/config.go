package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/retell-relay/pkg/salesforce"
)

// Config holds the full application configuration.
type Config struct {
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Validation ValidationConfig `yaml:"validation" mapstructure:"validation"`
	Mapping    MappingConfig    `yaml:"mapping" mapstructure:"mapping"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// SalesforceConfig holds Salesforce password-grant credentials and the
// Lead layout of the target org.
type SalesforceConfig struct {
	Username      string     `yaml:"username" mapstructure:"username"`
	Password      string     `yaml:"password" mapstructure:"password"`
	SecurityToken string     `yaml:"security_token" mapstructure:"security_token"`
	ClientID      string     `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret  string     `yaml:"client_secret" mapstructure:"client_secret"`
	LoginURL      string     `yaml:"login_url" mapstructure:"login_url"`
	APIVersion    string     `yaml:"api_version" mapstructure:"api_version"`
	RateLimit     float64    `yaml:"rate_limit" mapstructure:"rate_limit"`
	VerifyCreated bool       `yaml:"verify_created" mapstructure:"verify_created"`
	Fields        LeadFields `yaml:"fields" mapstructure:"fields"`
	Lead          LeadValues `yaml:"lead" mapstructure:"lead"`
}

// LeadFields names the Lead API fields written by the relay.
type LeadFields struct {
	DamageType   string `yaml:"damage_type" mapstructure:"damage_type"`
	DamageAmount string `yaml:"damage_amount" mapstructure:"damage_amount"`
	Status       string `yaml:"status" mapstructure:"status"`
	CompanyFocus string `yaml:"company_focus" mapstructure:"company_focus"`
}

// LeadValues are the fixed values written on every lead.
type LeadValues struct {
	Company      string `yaml:"company" mapstructure:"company"`
	LeadSource   string `yaml:"lead_source" mapstructure:"lead_source"`
	CompanyFocus string `yaml:"company_focus" mapstructure:"company_focus"`
	SourceLabel  string `yaml:"source_label" mapstructure:"source_label"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	WarmUp             bool     `yaml:"warm_up" mapstructure:"warm_up"`
}

// ValidationConfig configures webhook field validation.
type ValidationConfig struct {
	StrictPhone bool `yaml:"strict_phone" mapstructure:"strict_phone"`
}

// MappingConfig points at an optional YAML rule file.
type MappingConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// CacheConfig configures the picklist cache.
type CacheConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"`
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisKey  string `yaml:"redis_key" mapstructure:"redis_key"`
	TTLSecs   int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// RetryConfig bounds the startup authentication retries. Backoff settings also
// apply to the single re-authentication after a 401.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// legacyEnv maps config keys to the unprefixed variable names used by
// existing deployments.
var legacyEnv = map[string]string{
	"salesforce.username":       "SF_USERNAME",
	"salesforce.password":       "SF_PASSWORD",
	"salesforce.security_token": "SF_SECURITY_TOKEN",
	"salesforce.client_id":      "SF_CLIENT_ID",
	"salesforce.client_secret":  "SF_CLIENT_SECRET",
	"salesforce.login_url":      "SF_LOGIN_URL",
	"server.port":               "PORT",
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		prefixed := "RELAY_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, eris.Wrapf(err, "config: bind env %s", key)
		}
	}

	// Defaults
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("salesforce.api_version", salesforce.DefaultAPIVersion)
	v.SetDefault("salesforce.rate_limit", 0.0)
	v.SetDefault("salesforce.verify_created", false)
	v.SetDefault("salesforce.fields.damage_type", "msSchadensart__c")
	v.SetDefault("salesforce.fields.damage_amount", "GeschaetzteSchadenshoehe__c")
	v.SetDefault("salesforce.fields.status", "Status")
	v.SetDefault("salesforce.fields.company_focus", "msUnternehmensfokus__c")
	v.SetDefault("salesforce.lead.company", "Retell AI Lead")
	v.SetDefault("salesforce.lead.lead_source", "Website")
	v.SetDefault("salesforce.lead.company_focus", "Deutsche Schadenshilfe")
	v.SetDefault("salesforce.lead.source_label", "Retell AI Call")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("server.warm_up", true)
	v.SetDefault("validation.strict_phone", false)
	v.SetDefault("mapping.rules_file", "")
	v.SetDefault("cache.driver", "none")
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("retry.max_attempts", 2)
	v.SetDefault("retry.initial_backoff_ms", 100)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("retry.jitter_fraction", 0.1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Credentials returns the Salesforce password-grant credentials.
func (c *Config) Credentials() salesforce.Credentials {
	return salesforce.Credentials{
		Username:      c.Salesforce.Username,
		Password:      c.Salesforce.Password,
		SecurityToken: c.Salesforce.SecurityToken,
		ClientID:      c.Salesforce.ClientID,
		ClientSecret:  c.Salesforce.ClientSecret,
		LoginURL:      c.Salesforce.LoginURL,
	}
}

// Validate checks the settings a command needs. Modes: "serve", "check", "map".
func (c *Config) Validate(mode string) error {
	var errs []string

	requireCreds := func() {
		creds := []struct{ key, value string }{
			{"salesforce.username", c.Salesforce.Username},
			{"salesforce.password", c.Salesforce.Password},
			{"salesforce.client_id", c.Salesforce.ClientID},
			{"salesforce.client_secret", c.Salesforce.ClientSecret},
		}
		for _, cr := range creds {
			if strings.TrimSpace(cr.value) == "" {
				errs = append(errs, fmt.Sprintf("%s is required (%s)", cr.key, legacyEnv[cr.key]))
			}
		}
	}

	switch mode {
	case "serve":
		requireCreds()
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be between 1 and 65535")
		}
		if c.Server.RequestTimeoutSecs < 0 {
			errs = append(errs, "server.request_timeout_secs must be >= 0")
		}
	case "check":
		requireCreds()
	case "map":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Cache.Driver {
	case "", "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required when cache.driver is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("cache.driver %q must be one of none, memory, redis", c.Cache.Driver))
	}
	if c.Cache.TTLSecs < 0 {
		errs = append(errs, "cache.ttl_secs must be >= 0")
	}
	if c.Salesforce.RateLimit < 0 {
		errs = append(errs, "salesforce.rate_limit must be >= 0")
	}
	if c.Retry.MaxAttempts < 0 || c.Retry.MaxAttempts > 5 {
		errs = append(errs, "retry.max_attempts must be between 0 and 5")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
