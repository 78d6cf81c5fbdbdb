package salesforce

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultAPIVersion is the REST API version used when none is configured.
const DefaultAPIVersion = "58.0"

// APIErrorDetail is one entry of a Salesforce REST error body.
type APIErrorDetail struct {
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode"`
	Fields    []string `json:"fields,omitempty"`
}

// APIError is a non-2xx answer from the REST API.
type APIError struct {
	Op         string
	StatusCode int
	Details    []APIErrorDetail
	Body       string
}

func (e *APIError) Error() string {
	if len(e.Details) > 0 {
		msgs := make([]string, 0, len(e.Details))
		for _, d := range e.Details {
			if d.ErrorCode != "" {
				msgs = append(msgs, d.ErrorCode+": "+d.Message)
			} else {
				msgs = append(msgs, d.Message)
			}
		}
		return fmt.Sprintf("sf: %s: status %d: %s", e.Op, e.StatusCode, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("sf: %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsUnauthorized reports whether err carries a 401 from the REST API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// PicklistEntry is one value of a picklist field.
type PicklistEntry struct {
	Value        string `json:"value"`
	Label        string `json:"label"`
	Active       bool   `json:"active"`
	DefaultValue bool   `json:"defaultValue"`
}

// SObjectField describes a single field on a Salesforce SObject.
type SObjectField struct {
	Name           string          `json:"name"`
	Label          string          `json:"label"`
	Type           string          `json:"type"`
	Length         int             `json:"length"`
	Custom         bool            `json:"custom"`
	Updateable     bool            `json:"updateable"`
	PicklistValues []PicklistEntry `json:"picklistValues"`
}

// SObjectDescription holds metadata about a Salesforce SObject.
type SObjectDescription struct {
	Name   string         `json:"name"`
	Label  string         `json:"label"`
	Fields []SObjectField `json:"fields"`
}

// Field returns the named field or nil.
func (d *SObjectDescription) Field(name string) *SObjectField {
	for i := range d.Fields {
		if d.Fields[i].Name == name {
			return &d.Fields[i]
		}
	}
	return nil
}

// ActivePicklistValues returns the active values of the named picklist field
// in their declared order. Unknown fields yield nil.
func (d *SObjectDescription) ActivePicklistValues(name string) []string {
	f := d.Field(name)
	if f == nil {
		return nil
	}
	var out []string
	for _, v := range f.PicklistValues {
		if v.Active {
			out = append(out, v.Value)
		}
	}
	return out
}

// CustomFields returns every custom field of the object.
func (d *SObjectDescription) CustomFields() []SObjectField {
	var out []SObjectField
	for _, f := range d.Fields {
		if f.Custom {
			out = append(out, f)
		}
	}
	return out
}

// CreateResult is the body returned by a successful record insert.
type CreateResult struct {
	ID      string           `json:"id"`
	Success bool             `json:"success"`
	Errors  []APIErrorDetail `json:"errors"`
}

// RESTOption configures a RESTClient.
type RESTOption func(*RESTClient)

// WithAPIVersion overrides the REST API version ("58.0").
func WithAPIVersion(v string) RESTOption {
	return func(c *RESTClient) {
		if v != "" {
			c.apiVersion = strings.TrimPrefix(v, "v")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) RESTOption {
	return func(c *RESTClient) {
		c.http = hc
	}
}

// WithRESTRateLimit sets a per-second rate limit for REST calls.
func WithRESTRateLimit(rps float64) RESTOption {
	return func(c *RESTClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		}
	}
}

// RESTClient issues sObject REST calls on behalf of a Session. It never
// authenticates by itself: a 401 is returned as an *APIError so the caller
// can renew the session and decide whether to retry.
type RESTClient struct {
	apiVersion string
	http       *http.Client
	limiter    *rate.Limiter
}

// NewRESTClient creates a RESTClient. The default http.Client has a 10s timeout.
func NewRESTClient(opts ...RESTOption) *RESTClient {
	c := &RESTClient{
		apiVersion: DefaultAPIVersion,
		http:       &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *RESTClient) sobjectURL(s *Session, path string) string {
	return fmt.Sprintf("%s/services/data/v%s/sobjects/%s", s.InstanceURL, c.apiVersion, path)
}

// Describe fetches the metadata of an SObject.
func (c *RESTClient) Describe(ctx context.Context, s *Session, sObject string) (*SObjectDescription, error) {
	op := "describe " + sObject
	var desc SObjectDescription
	if err := c.do(ctx, s, op, http.MethodGet, sObject+"/describe", nil, &desc); err != nil {
		return nil, err
	}
	return &desc, nil
}

// Create inserts a record and returns its id.
func (c *RESTClient) Create(ctx context.Context, s *Session, sObject string, record map[string]any) (string, error) {
	op := "create " + sObject
	body, err := json.Marshal(record)
	if err != nil {
		return "", eris.Wrap(err, "sf: marshal "+sObject)
	}
	var res CreateResult
	if err := c.do(ctx, s, op, http.MethodPost, sObject, body, &res); err != nil {
		return "", err
	}
	if !res.Success || res.ID == "" {
		return "", &APIError{Op: op, StatusCode: http.StatusOK, Details: res.Errors, Body: "insert not successful"}
	}
	return res.ID, nil
}

// do sends a request for an sobjects path. The URL is built only once the
// session is known to be present.
func (c *RESTClient) do(ctx context.Context, s *Session, op, method, path string, body []byte, out any) error {
	if s == nil {
		return eris.New("sf: " + op + ": no session")
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return eris.Wrap(err, "sf: rate limit")
		}
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.sobjectURL(s, path), reader)
	if err != nil {
		return eris.Wrap(err, "sf: "+op+": create request")
	}
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "sf: "+op+": send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "sf: "+op+": read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Op: op, StatusCode: resp.StatusCode, Body: string(respBody)}
		// Errors come back as a JSON array; anything else stays in Body.
		_ = json.Unmarshal(respBody, &apiErr.Details)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := decodeJSON(bytes.NewReader(respBody), out); err != nil {
		return eris.Wrap(err, "sf: "+op)
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	if err := json.NewDecoder(r).Decode(out); err != nil {
		return eris.Wrap(err, "decode json")
	}
	return nil
}
