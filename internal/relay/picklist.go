package relay

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/retell-relay/internal/model"
	"github.com/sells-group/retell-relay/internal/resilience"
	"github.com/sells-group/retell-relay/pkg/salesforce"
)

// LeadFields names the Lead API fields the relay writes.
type LeadFields struct {
	DamageType   string
	DamageAmount string
	Status       string
	CompanyFocus string
}

// DefaultLeadFields returns the field names of the production org.
func DefaultLeadFields() LeadFields {
	return LeadFields{
		DamageType:   "msSchadensart__c",
		DamageAmount: "GeschaetzteSchadenshoehe__c",
		Status:       "Status",
		CompanyFocus: "msUnternehmensfokus__c",
	}
}

// Describer fetches SObject metadata for a session.
type Describer interface {
	Describe(ctx context.Context, s *salesforce.Session, sObject string) (*salesforce.SObjectDescription, error)
}

// PicklistSource reads the active Lead picklist values from the CRM.
type PicklistSource struct {
	rest     Describer
	sessions *salesforce.SessionManager
	retry    resilience.RetryConfig
	fields   LeadFields
	cache    PicklistCache
}

// NewPicklistSource creates a PicklistSource. cache may be nil.
func NewPicklistSource(rest Describer, sessions *salesforce.SessionManager, retry resilience.RetryConfig, fields LeadFields, cache PicklistCache) *PicklistSource {
	return &PicklistSource{rest: rest, sessions: sessions, retry: retry, fields: fields, cache: cache}
}

// Describe returns the Lead description, renewing the session once on a 401.
func (p *PicklistSource) Describe(ctx context.Context) (*salesforce.SObjectDescription, error) {
	return withSession(ctx, p.sessions, p.retry, "describe Lead",
		func(ctx context.Context, s *salesforce.Session) (*salesforce.SObjectDescription, error) {
			return p.rest.Describe(ctx, s, "Lead")
		})
}

// Picklists returns the active picklist values. When the describe call fails
// for any reason other than authentication, empty value sets are returned so
// mapping falls back to its defaults.
func (p *PicklistSource) Picklists(ctx context.Context) (*model.Picklists, error) {
	if p.cache != nil {
		if cached, ok := p.cache.Get(ctx); ok {
			return cached, nil
		}
	}

	desc, err := p.Describe(ctx)
	if err != nil {
		if isAuthError(err) {
			return nil, err
		}
		Logger(ctx).Warn("relay: picklist describe failed, mapping with empty values", zap.Error(err))
		return &model.Picklists{}, nil
	}

	out := &model.Picklists{
		DamageTypes:   desc.ActivePicklistValues(p.fields.DamageType),
		DamageAmounts: desc.ActivePicklistValues(p.fields.DamageAmount),
		Statuses:      desc.ActivePicklistValues(p.fields.Status),
	}
	if p.cache != nil {
		p.cache.Set(ctx, out)
	}
	return out, nil
}
