package relay

import (
	"context"
	"errors"

	"github.com/sells-group/retell-relay/internal/resilience"
	"github.com/sells-group/retell-relay/pkg/salesforce"
)

// sessionAttempts bounds a session-scoped call: the first try plus one retry
// after re-authentication.
const sessionAttempts = 2

// withSession runs fn with the active CRM session. When fn reports a 401 the
// session is invalidated and fn runs once more with a freshly authenticated
// one. cfg only contributes backoff and logging; the attempt count is fixed.
// A failed authentication is never retried here.
func withSession[T any](
	ctx context.Context,
	sessions *salesforce.SessionManager,
	cfg resilience.RetryConfig,
	op string,
	fn func(ctx context.Context, s *salesforce.Session) (T, error),
) (T, error) {
	cfg.MaxAttempts = sessionAttempts
	cfg.ShouldRetry = salesforce.IsUnauthorized
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("salesforce", op)
	}
	return resilience.DoVal(ctx, cfg, func(ctx context.Context) (T, error) {
		var zero T
		s, err := sessions.Session(ctx)
		if err != nil {
			return zero, err
		}
		v, err := fn(ctx, s)
		if salesforce.IsUnauthorized(err) {
			sessions.Invalidate(s)
		}
		return v, err
	})
}

// isAuthError reports whether err came from the token endpoint.
func isAuthError(err error) bool {
	var authErr *salesforce.AuthError
	return errors.As(err, &authErr)
}

// WarmUp authenticates ahead of the first webhook, retrying transient token
// endpoint failures (network errors, 5xx, 429).
func WarmUp(ctx context.Context, sessions *salesforce.SessionManager, cfg resilience.RetryConfig) error {
	cfg.ShouldRetry = func(err error) bool {
		var authErr *salesforce.AuthError
		if errors.As(err, &authErr) && authErr.StatusCode != 0 {
			return resilience.IsTransientHTTPStatus(authErr.StatusCode)
		}
		return resilience.IsTransient(err)
	}
	if cfg.OnRetry == nil {
		cfg.OnRetry = resilience.RetryLogger("salesforce", "authenticate")
	}
	return resilience.Do(ctx, cfg, func(ctx context.Context) error {
		_, err := sessions.Refresh(ctx)
		return err
	})
}
