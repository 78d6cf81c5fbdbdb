package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestSFClient creates an sfClient backed by an httptest server.
func newTestSFClient(t *testing.T, handler http.Handler) (Client, *httptest.Server) {
	t.Helper()
	ts := httptest.NewServer(handler)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	require.NotNil(t, sf)

	return NewClient(sf), ts
}

func leadQueryHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{
				{
					"attributes": map[string]any{"type": "Lead"},
					"Id":         "00Qxx",
					"LastName":   "Muster",
					"Status":     "Working",
				},
			},
		})
	})
}

func TestSFClient_Query(t *testing.T) {
	client, ts := newTestSFClient(t, leadQueryHandler(t))
	defer ts.Close()

	var leads []Lead
	err := client.Query(context.Background(), "SELECT Id, LastName, Status FROM Lead", &leads)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "00Qxx", leads[0].ID)
	assert.Equal(t, "Muster", leads[0].LastName)
	assert.Equal(t, "Working", leads[0].Status)
}

func TestSFClient_Query_Error(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var leads []Lead
	err := client.Query(context.Background(), "INVALID SOQL", &leads)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestSFClient_RateLimitCancelled(t *testing.T) {
	client, ts := newTestSFClient(t, leadQueryHandler(t))
	defer ts.Close()
	limited := NewClient(client.(*sfClient).sf, WithRateLimit(0.001))

	// First call consumes the single burst token.
	var leads []Lead
	require.NoError(t, limited.Query(context.Background(), "SELECT Id FROM Lead", &leads))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := limited.Query(ctx, "SELECT Id FROM Lead", &leads)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")
}

func TestNewSessionClient(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		leadQueryHandler(t).ServeHTTP(w, r)
	}))
	defer ts.Close()

	client, err := NewSessionClient(&Session{AccessToken: "sess-token", InstanceURL: ts.URL})
	require.NoError(t, err)

	lead, err := FindLeadByID(context.Background(), client, "00Qxx")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "00Qxx", lead.ID)
	assert.Contains(t, gotAuth, "sess-token")
}

func TestNewSessionClient_NilSession(t *testing.T) {
	_, err := NewSessionClient(nil)
	assert.Error(t, err)
}

func TestSFClient_Query_InvalidSessionIsUnauthorized(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "Session expired or invalid", "errorCode": "INVALID_SESSION_ID"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var leads []Lead
	err := client.Query(context.Background(), "SELECT Id FROM Lead", &leads)
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	_, err = FindLeadByID(context.Background(), client, "00Qxx")
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))

	_, err = Ping(context.Background(), client)
	assert.True(t, IsUnauthorized(err))
}

func TestSFClient_Query_ErrorNotUnauthorized(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	})

	client, ts := newTestSFClient(t, handler)
	defer ts.Close()

	var leads []Lead
	err := client.Query(context.Background(), "INVALID SOQL", &leads)
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
}
