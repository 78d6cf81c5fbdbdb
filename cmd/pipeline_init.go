package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/retell-relay/internal/config"
	"github.com/sells-group/retell-relay/internal/relay"
	"github.com/sells-group/retell-relay/internal/resilience"
	"github.com/sells-group/retell-relay/pkg/salesforce"
)

// relayEnv holds the initialized CRM session, clients and the relay service
// needed by the serve/check/map commands.
type relayEnv struct {
	Service  *relay.Service
	Sessions *salesforce.SessionManager
	Retry    resilience.RetryConfig
	Redis    *redis.Client // may be nil
}

// Close releases resources held by the relay environment.
func (re *relayEnv) Close() {
	if re.Redis != nil {
		_ = re.Redis.Close()
	}
}

// relayOptions adjusts how initRelay builds the service.
type relayOptions struct {
	// Offline maps against the values the rule set can produce instead of
	// the CRM picklists.
	Offline bool
}

// initRelay builds the session manager, REST client, picklist cache and the
// relay service from c. Callers should defer env.Close().
func initRelay(ctx context.Context, c *config.Config, opts relayOptions) (*relayEnv, error) {
	rules, err := relay.LoadRuleSet(c.Mapping.RulesFile)
	if err != nil {
		return nil, err
	}

	sessions := salesforce.NewSessionManager(salesforce.NewPasswordAuthenticator(c.Credentials()))
	rest := salesforce.NewRESTClient(
		salesforce.WithAPIVersion(c.Salesforce.APIVersion),
		salesforce.WithRESTRateLimit(c.Salesforce.RateLimit),
	)
	retry := resilience.FromRetryConfig(
		c.Retry.MaxAttempts,
		c.Retry.InitialBackoffMs,
		c.Retry.MaxBackoffMs,
		c.Retry.JitterFraction,
	)

	env := &relayEnv{Sessions: sessions, Retry: retry}

	var cache relay.PicklistCache
	ttl := time.Duration(c.Cache.TTLSecs) * time.Second
	switch {
	case opts.Offline:
		cache = relay.StaticCache{Values: rules.Picklists()}
		zap.L().Debug("mapping against rule set values, CRM picklists not loaded")
	case c.Cache.Driver == "memory":
		cache = relay.NewMemoryCache(ttl)
	case c.Cache.Driver == "redis":
		rdb := redis.NewClient(&redis.Options{Addr: c.Cache.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			// The relay still works without the cache; every request describes Lead.
			zap.L().Warn("redis picklist cache unreachable", zap.String("addr", c.Cache.RedisAddr), zap.Error(err))
		}
		env.Redis = rdb
		cache = relay.NewRedisCache(rdb, c.Cache.RedisKey, ttl)
	case c.Cache.Driver == "", c.Cache.Driver == "none":
	default:
		return nil, eris.Errorf("init relay: unsupported cache driver %q", c.Cache.Driver)
	}

	rate := c.Salesforce.RateLimit
	env.Service = relay.NewService(relay.Options{
		Sessions: sessions,
		REST:     rest,
		Rules:    rules,
		Fields: relay.LeadFields{
			DamageType:   c.Salesforce.Fields.DamageType,
			DamageAmount: c.Salesforce.Fields.DamageAmount,
			Status:       c.Salesforce.Fields.Status,
			CompanyFocus: c.Salesforce.Fields.CompanyFocus,
		},
		Defaults: relay.LeadDefaults{
			Company:      c.Salesforce.Lead.Company,
			LeadSource:   c.Salesforce.Lead.LeadSource,
			CompanyFocus: c.Salesforce.Lead.CompanyFocus,
			SourceLabel:  c.Salesforce.Lead.SourceLabel,
		},
		Retry:         retry,
		Cache:         cache,
		StrictPhone:   c.Validation.StrictPhone,
		VerifyCreated: c.Salesforce.VerifyCreated,
		QueryClient: func(s *salesforce.Session) (salesforce.Client, error) {
			return salesforce.NewSessionClient(s, salesforce.WithRateLimit(rate))
		},
	})

	zap.L().Info("relay initialized",
		zap.String("login_url", c.Salesforce.LoginURL),
		zap.String("api_version", c.Salesforce.APIVersion),
		zap.String("cache", c.Cache.Driver),
		zap.Bool("offline", opts.Offline),
	)
	return env, nil
}
