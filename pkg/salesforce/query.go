package salesforce

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// Lead represents the Lead fields read back after a webhook insert.
type Lead struct {
	ID          string `json:"Id" salesforce:"Id"`
	FirstName   string `json:"FirstName" salesforce:"FirstName"`
	LastName    string `json:"LastName" salesforce:"LastName"`
	Email       string `json:"Email" salesforce:"Email"`
	Phone       string `json:"Phone" salesforce:"Phone"`
	Status      string `json:"Status" salesforce:"Status"`
	LeadSource  string `json:"LeadSource" salesforce:"LeadSource"`
	DamageType  string `json:"msSchadensart__c" salesforce:"msSchadensart__c"`
	DamageRange string `json:"GeschaetzteSchadenshoehe__c" salesforce:"GeschaetzteSchadenshoehe__c"`
}

// leadFields are the SOQL fields selected for Lead queries.
var leadFields = []string{
	"Id", "FirstName", "LastName", "Email", "Phone", "Status", "LeadSource",
	"msSchadensart__c", "GeschaetzteSchadenshoehe__c",
}

// idRecord is the minimal row used by Ping.
type idRecord struct {
	ID string `json:"Id" salesforce:"Id"`
}

// FindLeadByID queries Salesforce for a Lead by its ID.
// Returns nil if no lead is found.
func FindLeadByID(ctx context.Context, c Client, id string) (*Lead, error) {
	if id == "" {
		return nil, eris.New("sf: lead id is required")
	}
	soql := fmt.Sprintf(
		"SELECT %s FROM Lead WHERE Id = '%s' LIMIT 1",
		strings.Join(leadFields, ", "),
		escapeSoql(id),
	)

	var leads []Lead
	if err := c.Query(ctx, soql, &leads); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("sf: find lead by id %s", id))
	}
	if len(leads) == 0 {
		return nil, nil
	}
	return &leads[0], nil
}

// Ping runs the cheapest Lead query to prove the session can read the org.
// It returns the number of rows seen (0 or 1).
func Ping(ctx context.Context, c Client) (int, error) {
	var rows []idRecord
	if err := c.Query(ctx, "SELECT Id FROM Lead LIMIT 1", &rows); err != nil {
		return 0, eris.Wrap(err, "sf: ping")
	}
	return len(rows), nil
}

// escapeSoql escapes single quotes in SOQL string literals to prevent injection.
func escapeSoql(s string) string {
	return strings.ReplaceAll(s, "'", "\\'")
}
