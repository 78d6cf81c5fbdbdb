package relay

import (
	"regexp"
	"strings"

	"github.com/sells-group/retell-relay/internal/model"
)

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9]+$`)
	phoneStrip   = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "", "/", "")
)

// Validator checks an extracted lead before it is mapped.
type Validator struct {
	// StrictPhone enables the user_number format check.
	StrictPhone bool
}

// Validate returns the lead unchanged when every required field is present
// and well formed.
func (v Validator) Validate(lead *model.ExtractedLead) (*model.ExtractedLead, error) {
	var missing []string
	for _, f := range model.CanonicalFields {
		if lead.Value(f) == "" {
			missing = append(missing, f)
			continue
		}
		if f == model.FieldDamageAmount {
			if _, ok := parseAmount(lead.Value(f)); !ok {
				missing = append(missing, f)
			}
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Reason: ReasonMissingFields, MissingFields: missing}
	}

	email := lead.Value(model.FieldUserEmail)
	if !emailPattern.MatchString(email) {
		return nil, &ValidationError{Reason: ReasonInvalidEmail, Value: email}
	}

	if v.StrictPhone {
		phone := lead.Value(model.FieldUserNumber)
		if !phonePattern.MatchString(phoneStrip.Replace(phone)) {
			return nil, &ValidationError{Reason: ReasonInvalidPhone, Value: phone}
		}
	}

	return lead, nil
}
