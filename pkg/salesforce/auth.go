package salesforce

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const (
	defaultLoginURL = "https://login.salesforce.com"
	tokenPath       = "/services/oauth2/token"
)

// Credentials are the username-password flow inputs for a connected app.
type Credentials struct {
	Username      string
	Password      string
	SecurityToken string
	ClientID      string
	ClientSecret  string
	LoginURL      string
}

// grantPassword is the password sent to the token endpoint: the account
// password with the security token appended.
func (c Credentials) grantPassword() string {
	return c.Password + c.SecurityToken
}

// Session is an access token and the org instance it is valid for.
type Session struct {
	AccessToken string
	InstanceURL string
	IssuedAt    time.Time
}

// AuthError reports a failed token exchange.
type AuthError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *AuthError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("sf: authenticate: status %d: %s", e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return "sf: authenticate: " + e.Err.Error()
	}
	return "sf: authenticate failed"
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Authenticator exchanges credentials for a Session.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Session, error)
}

// AuthOption configures a PasswordAuthenticator.
type AuthOption func(*PasswordAuthenticator)

// WithAuthHTTPClient overrides the http.Client used for the token request.
func WithAuthHTTPClient(hc *http.Client) AuthOption {
	return func(a *PasswordAuthenticator) {
		a.http = hc
	}
}

// PasswordAuthenticator implements the OAuth2 password grant.
type PasswordAuthenticator struct {
	creds Credentials
	http  *http.Client
	now   func() time.Time
}

// NewPasswordAuthenticator creates an Authenticator for the given credentials.
func NewPasswordAuthenticator(creds Credentials, opts ...AuthOption) *PasswordAuthenticator {
	if creds.LoginURL == "" {
		creds.LoginURL = defaultLoginURL
	}
	creds.LoginURL = strings.TrimRight(creds.LoginURL, "/")
	a := &PasswordAuthenticator{
		creds: creds,
		http:  &http.Client{Timeout: 30 * time.Second},
		now:   time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	TokenType   string `json:"token_type"`
}

// Authenticate posts the password grant to the token endpoint.
func (a *PasswordAuthenticator) Authenticate(ctx context.Context) (*Session, error) {
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("client_id", a.creds.ClientID)
	form.Set("client_secret", a.creds.ClientSecret)
	form.Set("username", a.creds.Username)
	form.Set("password", a.creds.grantPassword())

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.creds.LoginURL+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, &AuthError{Err: eris.Wrap(err, "create token request")}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, &AuthError{Err: eris.Wrap(err, "send token request")}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &AuthError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var tok tokenResponse
	if err := decodeJSON(resp.Body, &tok); err != nil {
		return nil, &AuthError{Err: eris.Wrap(err, "decode token response")}
	}
	if tok.AccessToken == "" || tok.InstanceURL == "" {
		return nil, &AuthError{Err: eris.New("token response missing access_token or instance_url")}
	}

	return &Session{
		AccessToken: tok.AccessToken,
		InstanceURL: strings.TrimRight(tok.InstanceURL, "/"),
		IssuedAt:    a.now(),
	}, nil
}
