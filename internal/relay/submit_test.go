package relay

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/retell-relay/internal/model"
	"github.com/sells-group/retell-relay/pkg/salesforce"
)

type stubAuth struct{ calls int }

func (a *stubAuth) Authenticate(context.Context) (*salesforce.Session, error) {
	a.calls++
	return &salesforce.Session{AccessToken: "tok", InstanceURL: "https://example.my.salesforce.com"}, nil
}

type stubCreator struct {
	calls int
	errs  []error
	rec   map[string]any
}

func (c *stubCreator) Create(_ context.Context, _ *salesforce.Session, sObject string, record map[string]any) (string, error) {
	c.calls++
	c.rec = record
	if len(c.errs) >= c.calls && c.errs[c.calls-1] != nil {
		return "", c.errs[c.calls-1]
	}
	return "00Q" + strings.Repeat("0", 12), nil
}

func newStubSubmitter(c Creator, fields LeadFields) (*Submitter, *stubAuth) {
	auth := &stubAuth{}
	s := NewSubmitter(c, salesforce.NewSessionManager(auth), testRetry(), fields, DefaultLeadDefaults())
	s.now = func() time.Time { return time.Date(2024, 5, 17, 9, 30, 0, 123e6, time.FixedZone("CEST", 2*3600)) }
	return s, auth
}

func TestBuildRecord(t *testing.T) {
	s, _ := newStubSubmitter(&stubCreator{}, DefaultLeadFields())
	lead, _, err := NewExtractor().Extract(analysisData())
	require.NoError(t, err)

	rec := s.BuildRecord(lead, model.MappedFields{
		DamageType:   "Wasserschaden",
		DamageAmount: "0€ - 5.000€",
		Status:       "Working",
	})

	assert.Equal(t, map[string]any{
		"FirstName":                   "Erika",
		"LastName":                    "Mustermann",
		"Email":                       "erika@example.de",
		"Phone":                       "+491701234567",
		"Company":                     "Retell AI Lead",
		"LeadSource":                  "Website",
		"Status":                      "Working",
		"msSchadensart__c":            "Wasserschaden",
		"GeschaetzteSchadenshoehe__c": "0€ - 5.000€",
		"msUnternehmensfokus__c":      "Deutsche Schadenshilfe",
		"Description": strings.Join([]string{
			"CUSTOMER TYPE: existing",
			"Mapped Salesforce Status: Working",
			"Original Damage Type: Water damage",
			"Mapped Damage Type: Wasserschaden",
			"Original Damage Amount: 3000€",
			"Mapped Damage Amount: 0€ - 5.000€",
			"Source: Retell AI Call",
			"Date: 2024-05-17T07:30:00.123Z",
		}, "\n"),
	}, rec)
}

func TestBuildRecord_EmptyMappingsAreNull(t *testing.T) {
	fields := DefaultLeadFields()
	fields.CompanyFocus = ""
	s, _ := newStubSubmitter(&stubCreator{}, fields)

	rec := s.BuildRecord(&model.ExtractedLead{}, model.MappedFields{Status: "New"})
	assert.Nil(t, rec["msSchadensart__c"])
	assert.Nil(t, rec["GeschaetzteSchadenshoehe__c"])
	assert.Equal(t, "New", rec["Status"])
	assert.NotContains(t, rec, "msUnternehmensfokus__c")
}

func TestSubmit_Errors(t *testing.T) {
	unauthorized := &salesforce.APIError{Op: "create Lead", StatusCode: http.StatusUnauthorized}
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantAuth  int
		check     func(t *testing.T, e *SubmissionError)
	}{
		{
			name:      "validation error detail",
			errs:      []error{&salesforce.APIError{StatusCode: http.StatusBadRequest, Details: []salesforce.APIErrorDetail{{Message: "Required fields are missing", ErrorCode: "REQUIRED_FIELD_MISSING", Fields: []string{"LastName"}}}}},
			wantCalls: 1,
			wantAuth:  1,
			check: func(t *testing.T, e *SubmissionError) {
				assert.Equal(t, http.StatusBadRequest, e.StatusCode)
				assert.Equal(t, "REQUIRED_FIELD_MISSING: Required fields are missing [LastName]", e.Detail)
				assert.False(t, e.Unauthorized)
			},
		},
		{
			name:      "raw body when no details",
			errs:      []error{&salesforce.APIError{StatusCode: http.StatusBadGateway, Body: "<html>bad gateway</html>"}},
			wantCalls: 1,
			wantAuth:  1,
			check: func(t *testing.T, e *SubmissionError) {
				assert.Equal(t, "<html>bad gateway</html>", e.Detail)
			},
		},
		{
			name:      "transport error",
			errs:      []error{errors.New("dial tcp: connection refused")},
			wantCalls: 1,
			wantAuth:  1,
			check: func(t *testing.T, e *SubmissionError) {
				assert.Zero(t, e.StatusCode)
				assert.Contains(t, e.Detail, "connection refused")
			},
		},
		{
			name:      "unauthorized twice",
			errs:      []error{unauthorized, unauthorized},
			wantCalls: 2,
			wantAuth:  2,
			check: func(t *testing.T, e *SubmissionError) {
				assert.True(t, e.Unauthorized)
				assert.Contains(t, e.Error(), "still unauthorized")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &stubCreator{errs: tt.errs}
			s, auth := newStubSubmitter(c, DefaultLeadFields())

			_, err := s.Submit(context.Background(), &model.ExtractedLead{}, model.MappedFields{Status: "New"})
			var subErr *SubmissionError
			require.True(t, errors.As(err, &subErr))
			assert.Equal(t, tt.wantCalls, c.calls)
			assert.Equal(t, tt.wantAuth, auth.calls)
			tt.check(t, subErr)
		})
	}
}

func TestSubmit_UnauthorizedOnceSucceeds(t *testing.T) {
	c := &stubCreator{errs: []error{&salesforce.APIError{StatusCode: http.StatusUnauthorized}}}
	s, auth := newStubSubmitter(c, DefaultLeadFields())

	id, err := s.Submit(context.Background(), &model.ExtractedLead{}, model.MappedFields{Status: "New"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 2, c.calls)
	assert.Equal(t, 2, auth.calls)
}
