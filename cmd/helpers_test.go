//go:build !integration

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/sells-group/retell-relay/internal/config"
)

// fakeSalesforce serves the token, describe, create and query endpoints the
// relay uses.
type fakeSalesforce struct {
	*httptest.Server
	creates atomic.Int32
	tokens  atomic.Int32
}

func newFakeSalesforce(t *testing.T) *fakeSalesforce {
	t.Helper()
	f := &fakeSalesforce{}
	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/services/oauth2/token":
			f.tokens.Add(1)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"access_token": "00D-token",
				"instance_url": f.URL,
			})
		case strings.HasSuffix(r.URL.Path, "/sobjects/Lead/describe"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "Lead",
				"fields": []map[string]any{
					{"name": "Status", "type": "picklist", "picklistValues": []map[string]any{
						{"value": "Open - Not Contacted", "active": true},
						{"value": "Working", "active": true},
						{"value": "New", "active": true},
					}},
					{"name": "msSchadensart__c", "label": "Schadensart", "type": "picklist", "custom": true, "picklistValues": []map[string]any{
						{"value": "Wasserschaden", "active": true},
						{"value": "Sonstiger Schaden", "active": true},
					}},
					{"name": "GeschaetzteSchadenshoehe__c", "label": "Schadenshöhe", "type": "picklist", "custom": true, "picklistValues": []map[string]any{
						{"value": "0€ - 5.000€", "active": true},
						{"value": "5.000€ - 50.000€", "active": true},
					}},
				},
			})
		case strings.HasSuffix(r.URL.Path, "/sobjects/Lead") && r.Method == http.MethodPost:
			f.creates.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"00Q5g00000ABCDE","success":true,"errors":[]}`))
		case strings.Contains(r.URL.Path, "/query"):
			_ = json.NewEncoder(w).Encode(map[string]any{
				"totalSize": 1,
				"done":      true,
				"records":   []map[string]any{{"attributes": map[string]any{"type": "Lead"}, "Id": "00Q5g00000ABCDE"}},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(f.Close)
	return f
}

// testConfig returns a Config pointing at the fake org.
func testConfig(loginURL string) *config.Config {
	c := &config.Config{}
	c.Salesforce.Username = "relay@example.com"
	c.Salesforce.Password = "secret"
	c.Salesforce.ClientID = "cid"
	c.Salesforce.ClientSecret = "csecret"
	c.Salesforce.LoginURL = loginURL
	c.Salesforce.APIVersion = "58.0"
	c.Salesforce.Fields = config.LeadFields{
		DamageType:   "msSchadensart__c",
		DamageAmount: "GeschaetzteSchadenshoehe__c",
		Status:       "Status",
		CompanyFocus: "msUnternehmensfokus__c",
	}
	c.Salesforce.Lead = config.LeadValues{
		Company:      "Retell AI Lead",
		LeadSource:   "Website",
		CompanyFocus: "Deutsche Schadenshilfe",
		SourceLabel:  "Retell AI Call",
	}
	c.Server.Port = 3000
	c.Cache.Driver = "none"
	c.Retry.MaxAttempts = 2
	c.Retry.InitialBackoffMs = 1
	c.Log.Level = "info"
	c.Log.Format = "json"
	return c
}

const retellPayload = `{
  "event": "call_analyzed",
  "call": {
    "call_id": "call_abc",
    "call_analysis": {
      "custom_analysis_data": {
        "first_name": "Erika",
        "last_name": "Mustermann",
        "user_email": "erika@example.de",
        "user_number": "+491701234567",
        "What Type of damage": "Water damage",
        "damage_amount": "3000€",
        "existing_or_new": "existing"
      }
    }
  }
}`
