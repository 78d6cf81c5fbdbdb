// Package salesforce provides OAuth2 password-grant authentication and REST
// API access to Salesforce.
package salesforce

import (
	"context"
	"net/http"
	"strings"

	"github.com/k-capehart/go-salesforce/v3"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client runs SOQL queries against an org.
type Client interface {
	Query(ctx context.Context, soql string, out any) error
}

// ClientOption configures the Salesforce client.
type ClientOption func(*sfClient)

// WithRateLimit sets a per-second rate limit for SF API calls.
// A burst equal to the integer portion of rps is allowed.
func WithRateLimit(rps float64) ClientOption {
	return func(c *sfClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// sfClient wraps the go-salesforce/v3 Salesforce struct.
//
// NOTE: The underlying go-salesforce/v3 library does not accept context.Context,
// so the ctx is only used for rate limiter waiting.
type sfClient struct {
	sf      *salesforce.Salesforce
	limiter *rate.Limiter
}

// NewClient creates a new Salesforce Client wrapping the given go-salesforce instance.
func NewClient(sf *salesforce.Salesforce, opts ...ClientOption) Client {
	c := &sfClient{sf: sf}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewSessionClient creates a Client that reuses an existing Session instead of
// logging in again.
func NewSessionClient(s *Session, opts ...ClientOption) (Client, error) {
	if s == nil {
		return nil, eris.New("sf: session is required")
	}
	sf, err := salesforce.Init(salesforce.Creds{
		AccessToken: s.AccessToken,
		Domain:      s.InstanceURL,
	}, salesforce.WithValidateAuthentication(false))
	if err != nil {
		return nil, eris.Wrap(err, "sf: init client")
	}
	return NewClient(sf, opts...), nil
}

func (c *sfClient) Query(ctx context.Context, soql string, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sf: rate limit")
		}
	}
	if err := c.sf.Query(soql, out); err != nil {
		if isInvalidSession(err) {
			return &APIError{Op: "query", StatusCode: http.StatusUnauthorized, Body: err.Error()}
		}
		return eris.Wrap(err, "sf: query")
	}
	return nil
}

// isInvalidSession matches the error go-salesforce returns when a token-only
// client receives INVALID_SESSION_ID and cannot log in again by itself.
func isInvalidSession(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid session") || strings.Contains(msg, "INVALID_SESSION_ID")
}
