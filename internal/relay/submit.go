package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sells-group/retell-relay/internal/model"
	"github.com/sells-group/retell-relay/internal/resilience"
	"github.com/sells-group/retell-relay/pkg/salesforce"
)

// isoMillis matches the UTC timestamps written into lead descriptions.
const isoMillis = "2006-01-02T15:04:05.000Z"

// Creator inserts CRM records for a session.
type Creator interface {
	Create(ctx context.Context, s *salesforce.Session, sObject string, record map[string]any) (string, error)
}

// LeadDefaults are the fixed metadata written on every lead.
type LeadDefaults struct {
	Company      string
	LeadSource   string
	CompanyFocus string
	SourceLabel  string
}

// DefaultLeadDefaults returns the production lead metadata.
func DefaultLeadDefaults() LeadDefaults {
	return LeadDefaults{
		Company:      "Retell AI Lead",
		LeadSource:   "Website",
		CompanyFocus: "Deutsche Schadenshilfe",
		SourceLabel:  "Retell AI Call",
	}
}

// Submitter creates Lead records.
type Submitter struct {
	rest     Creator
	sessions *salesforce.SessionManager
	retry    resilience.RetryConfig
	fields   LeadFields
	defaults LeadDefaults
	now      func() time.Time
}

// NewSubmitter creates a Submitter.
func NewSubmitter(rest Creator, sessions *salesforce.SessionManager, retry resilience.RetryConfig, fields LeadFields, defaults LeadDefaults) *Submitter {
	return &Submitter{
		rest:     rest,
		sessions: sessions,
		retry:    retry,
		fields:   fields,
		defaults: defaults,
		now:      time.Now,
	}
}

// BuildRecord assembles the Lead body sent to the CRM.
func (s *Submitter) BuildRecord(lead *model.ExtractedLead, mapped model.MappedFields) map[string]any {
	rec := map[string]any{
		"FirstName":   lead.Value(model.FieldFirstName),
		"LastName":    lead.Value(model.FieldLastName),
		"Email":       lead.Value(model.FieldUserEmail),
		"Phone":       lead.Value(model.FieldUserNumber),
		"Company":     s.defaults.Company,
		"LeadSource":  s.defaults.LeadSource,
		"Description": s.description(lead, mapped),
	}
	rec[s.fields.Status] = nullable(mapped.Status)
	rec[s.fields.DamageType] = nullable(mapped.DamageType)
	rec[s.fields.DamageAmount] = nullable(mapped.DamageAmount)
	if s.fields.CompanyFocus != "" {
		rec[s.fields.CompanyFocus] = s.defaults.CompanyFocus
	}
	return rec
}

func (s *Submitter) description(lead *model.ExtractedLead, mapped model.MappedFields) string {
	lines := []string{
		"CUSTOMER TYPE: " + lead.Value(model.FieldExistingOrNew),
		"Mapped Salesforce Status: " + mapped.Status,
		"Original Damage Type: " + lead.Value(model.FieldDamageType),
		"Mapped Damage Type: " + mapped.DamageType,
		"Original Damage Amount: " + lead.Value(model.FieldDamageAmount),
		"Mapped Damage Amount: " + mapped.DamageAmount,
		"Source: " + s.defaults.SourceLabel,
		"Date: " + s.now().UTC().Format(isoMillis),
	}
	return strings.Join(lines, "\n")
}

// Submit creates the Lead and returns its id. A 401 renews the session and
// retries once; any other CRM error is returned as a *SubmissionError.
func (s *Submitter) Submit(ctx context.Context, lead *model.ExtractedLead, mapped model.MappedFields) (string, error) {
	rec := s.BuildRecord(lead, mapped)
	id, err := withSession(ctx, s.sessions, s.retry, "create Lead",
		func(ctx context.Context, sess *salesforce.Session) (string, error) {
			return s.rest.Create(ctx, sess, "Lead", rec)
		})
	if err == nil {
		return id, nil
	}
	if isAuthError(err) {
		return "", err
	}

	var apiErr *salesforce.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusUnauthorized {
			return "", &SubmissionError{StatusCode: apiErr.StatusCode, Unauthorized: true, Err: err}
		}
		return "", &SubmissionError{StatusCode: apiErr.StatusCode, Detail: apiDetail(apiErr), Err: err}
	}
	return "", &SubmissionError{Detail: err.Error(), Err: err}
}

func apiDetail(e *salesforce.APIError) string {
	if len(e.Details) == 0 {
		return e.Body
	}
	parts := make([]string, 0, len(e.Details))
	for _, d := range e.Details {
		p := d.Message
		if d.ErrorCode != "" {
			p = d.ErrorCode + ": " + p
		}
		if len(d.Fields) > 0 {
			p += fmt.Sprintf(" %v", d.Fields)
		}
		parts = append(parts, p)
	}
	return strings.Join(parts, "; ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
