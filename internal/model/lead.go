package model

import "strings"

// Canonical webhook field keys, in validation order.
const (
	FieldFirstName     = "first_name"
	FieldLastName      = "last_name"
	FieldUserEmail     = "user_email"
	FieldUserNumber    = "user_number"
	FieldDamageType    = "damage_type"
	FieldDamageAmount  = "damage_amount"
	FieldExistingOrNew = "existing_or_new"
)

// CanonicalFields lists every lead field in canonical order.
var CanonicalFields = []string{
	FieldFirstName,
	FieldLastName,
	FieldUserEmail,
	FieldUserNumber,
	FieldDamageType,
	FieldDamageAmount,
	FieldExistingOrNew,
}

// ExtractedLead is the normalized projection of a webhook payload. A nil
// field means the payload did not carry it at all.
type ExtractedLead struct {
	FirstName     *string `json:"first_name"`
	LastName      *string `json:"last_name"`
	UserEmail     *string `json:"user_email"`
	UserNumber    *string `json:"user_number"`
	DamageType    *string `json:"damage_type"`
	DamageAmount  *string `json:"damage_amount"`
	ExistingOrNew *string `json:"existing_or_new"`
}

// Get returns the raw value of a canonical field.
func (l *ExtractedLead) Get(field string) *string {
	switch field {
	case FieldFirstName:
		return l.FirstName
	case FieldLastName:
		return l.LastName
	case FieldUserEmail:
		return l.UserEmail
	case FieldUserNumber:
		return l.UserNumber
	case FieldDamageType:
		return l.DamageType
	case FieldDamageAmount:
		return l.DamageAmount
	case FieldExistingOrNew:
		return l.ExistingOrNew
	}
	return nil
}

// Value returns the trimmed value of a canonical field or "".
func (l *ExtractedLead) Value(field string) string {
	if p := l.Get(field); p != nil {
		return strings.TrimSpace(*p)
	}
	return ""
}

// MappedFields are the picklist values chosen for a lead. An empty string is
// sent to the CRM as null.
type MappedFields struct {
	DamageType   string `json:"damage_type"`
	DamageAmount string `json:"damage_amount"`
	Status       string `json:"status"`
}

// Picklists holds the active values of the Lead picklists used by mapping.
type Picklists struct {
	DamageTypes   []string `json:"damage_types"`
	DamageAmounts []string `json:"damage_amounts"`
	Statuses      []string `json:"statuses"`
}
