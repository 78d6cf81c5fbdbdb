// Package relay turns Retell call-analysis webhooks into Salesforce leads.
package relay

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/retell-relay/internal/model"
	"github.com/sells-group/retell-relay/internal/resilience"
	"github.com/sells-group/retell-relay/pkg/salesforce"
)

// QueryClientFactory opens a SOQL client for a session.
type QueryClientFactory func(s *salesforce.Session) (salesforce.Client, error)

// Options wires a Service.
type Options struct {
	Sessions    *salesforce.SessionManager
	REST        *salesforce.RESTClient
	Rules       RuleSet
	Fields      LeadFields
	Defaults    LeadDefaults
	Retry       resilience.RetryConfig
	Cache       PicklistCache
	StrictPhone bool
	// VerifyCreated reads each new lead back through SOQL and logs it.
	VerifyCreated bool
	QueryClient   QueryClientFactory
}

// Service runs the webhook pipeline: extract, validate, map, submit.
type Service struct {
	extractor *Extractor
	validator Validator
	mapper    *Mapper
	picklists *PicklistSource
	submitter *Submitter
	sessions  *salesforce.SessionManager
	retry     resilience.RetryConfig
	verify    bool
	query     QueryClientFactory
}

// NewService creates a Service from opts.
func NewService(opts Options) *Service {
	if opts.QueryClient == nil {
		opts.QueryClient = func(s *salesforce.Session) (salesforce.Client, error) {
			return salesforce.NewSessionClient(s)
		}
	}
	return &Service{
		extractor: NewExtractor(),
		validator: Validator{StrictPhone: opts.StrictPhone},
		mapper:    NewMapper(opts.Rules),
		picklists: NewPicklistSource(opts.REST, opts.Sessions, opts.Retry, opts.Fields, opts.Cache),
		submitter: NewSubmitter(opts.REST, opts.Sessions, opts.Retry, opts.Fields, opts.Defaults),
		sessions:  opts.Sessions,
		retry:     opts.Retry,
		verify:    opts.VerifyCreated,
		query:     opts.QueryClient,
	}
}

// Result describes a processed webhook.
type Result struct {
	LeadID string               `json:"lead_id,omitempty"`
	Shape  string               `json:"shape"`
	Lead   *model.ExtractedLead `json:"lead"`
	Mapped model.MappedFields   `json:"mapped"`
}

// Prepare extracts, validates and maps a payload without creating a lead.
func (s *Service) Prepare(ctx context.Context, payload map[string]any) (*Result, error) {
	lead, shape, err := s.extractor.Extract(payload)
	if err != nil {
		return nil, err
	}
	log := Logger(ctx).With(zap.String("shape", shape))
	log.Debug("relay: payload extracted")

	if _, err := s.validator.Validate(lead); err != nil {
		return nil, err
	}

	lists, err := s.picklists.Picklists(ctx)
	if err != nil {
		return nil, err
	}

	mapped := model.MappedFields{
		DamageType:   s.mapper.MapDamageType(lead.Value(model.FieldDamageType), lists.DamageTypes),
		DamageAmount: s.mapper.MapDamageAmount(lead.Value(model.FieldDamageAmount), lists.DamageAmounts),
		Status:       s.mapper.MapLeadStatus(lead.Value(model.FieldExistingOrNew), lists.Statuses),
	}
	log.Info("relay: lead mapped",
		zap.String("damage_type", mapped.DamageType),
		zap.String("damage_amount", mapped.DamageAmount),
		zap.String("status", mapped.Status),
	)

	return &Result{Shape: shape, Lead: lead, Mapped: mapped}, nil
}

// Process runs the full pipeline and creates the Lead.
func (s *Service) Process(ctx context.Context, payload map[string]any) (*Result, error) {
	res, err := s.Prepare(ctx, payload)
	if err != nil {
		return nil, err
	}

	id, err := s.submitter.Submit(ctx, res.Lead, res.Mapped)
	if err != nil {
		return nil, err
	}
	res.LeadID = id
	Logger(ctx).Info("relay: lead created", zap.String("lead_id", id), zap.String("status", res.Mapped.Status))

	if s.verify {
		s.verifyLead(ctx, id)
	}
	return res, nil
}

func (s *Service) verifyLead(ctx context.Context, id string) {
	log := Logger(ctx).With(zap.String("lead_id", id))
	lead, err := withSession(ctx, s.sessions, s.retry, "verify Lead",
		func(ctx context.Context, sess *salesforce.Session) (*salesforce.Lead, error) {
			c, err := s.query(sess)
			if err != nil {
				return nil, err
			}
			return salesforce.FindLeadByID(ctx, c, id)
		})
	switch {
	case err != nil:
		log.Warn("relay: lead verification failed", zap.Error(err))
	case lead == nil:
		log.Warn("relay: created lead not found")
	default:
		log.Info("relay: lead verified", zap.String("stored_status", lead.Status))
	}
}

// ConnectionReport is the outcome of a CRM connection probe.
type ConnectionReport struct {
	InstanceURL string `json:"instance_url"`
	LeadsSeen   int    `json:"leads_seen"`
}

// CheckConnection authenticates and runs a one-row Lead query.
func (s *Service) CheckConnection(ctx context.Context) (*ConnectionReport, error) {
	return withSession(ctx, s.sessions, s.retry, "ping",
		func(ctx context.Context, sess *salesforce.Session) (*ConnectionReport, error) {
			c, err := s.query(sess)
			if err != nil {
				return nil, err
			}
			n, err := salesforce.Ping(ctx, c)
			if err != nil {
				return nil, err
			}
			return &ConnectionReport{InstanceURL: sess.InstanceURL, LeadsSeen: n}, nil
		})
}

// FieldInfo is a short description of a Lead field.
type FieldInfo struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// FieldsReport lists the values and custom fields the mapping depends on.
type FieldsReport struct {
	Picklists    model.Picklists `json:"picklists"`
	CustomFields []FieldInfo     `json:"custom_fields"`
}

// AvailableFields describes Lead and reports the mapped picklists and the
// custom fields of the org.
func (s *Service) AvailableFields(ctx context.Context) (*FieldsReport, error) {
	desc, err := s.picklists.Describe(ctx)
	if err != nil {
		return nil, err
	}
	f := s.picklists.fields
	rep := &FieldsReport{
		Picklists: model.Picklists{
			DamageTypes:   desc.ActivePicklistValues(f.DamageType),
			DamageAmounts: desc.ActivePicklistValues(f.DamageAmount),
			Statuses:      desc.ActivePicklistValues(f.Status),
		},
	}
	for _, cf := range desc.CustomFields() {
		rep.CustomFields = append(rep.CustomFields, FieldInfo{Name: cf.Name, Label: cf.Label, Type: cf.Type})
	}
	return rep, nil
}

// Diagnostics combines the connection probe and the field report.
type Diagnostics struct {
	Connection *ConnectionReport `json:"connection"`
	Fields     *FieldsReport     `json:"fields"`
}

// Diagnose runs CheckConnection and AvailableFields concurrently.
func (s *Service) Diagnose(ctx context.Context) (*Diagnostics, error) {
	// Authenticate once up front so the two probes share a session.
	if _, err := s.sessions.Session(ctx); err != nil {
		return nil, err
	}

	var d Diagnostics
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c, err := s.CheckConnection(gCtx)
		d.Connection = c
		return err
	})
	g.Go(func() error {
		f, err := s.AvailableFields(gCtx)
		d.Fields = f
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &d, nil
}
