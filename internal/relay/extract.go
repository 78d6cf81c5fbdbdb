package relay

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/sells-group/retell-relay/internal/model"
)

// ExtractStrategy locates the analysis data container in one payload shape.
type ExtractStrategy interface {
	Name() string
	Container(payload map[string]any) (map[string]any, bool)
}

// pathStrategy follows a fixed chain of object keys.
type pathStrategy struct {
	path []string
}

func (s pathStrategy) Name() string { return strings.Join(s.path, ".") }

func (s pathStrategy) Container(payload map[string]any) (map[string]any, bool) {
	cur := payload
	for _, key := range s.path {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, len(cur) > 0
}

// rootStrategy accepts the payload itself once it carries a lead field.
type rootStrategy struct {
	markers []string
}

func (rootStrategy) Name() string { return "root" }

func (s rootStrategy) Container(payload map[string]any) (map[string]any, bool) {
	for _, k := range s.markers {
		if _, ok := payload[k]; ok {
			return payload, true
		}
	}
	return nil, false
}

// DefaultStrategies returns the known Retell payload shapes in probe order.
func DefaultStrategies() []ExtractStrategy {
	return []ExtractStrategy{
		pathStrategy{path: []string{"call", "call_analysis", "custom_analysis_data"}},
		pathStrategy{path: []string{"custom_analysis_data"}},
		pathStrategy{path: []string{"args", "custom_analysis_data"}},
		rootStrategy{markers: []string{model.FieldFirstName, model.FieldLastName, model.FieldUserEmail}},
		pathStrategy{path: []string{"data"}},
	}
}

// damageTypeKeys are the source keys for the damage type, highest precedence first.
var damageTypeKeys = []string{"what_type_of_damage", "What Type of damage", model.FieldDamageType}

// Extractor projects raw webhook payloads onto the canonical lead fields.
type Extractor struct {
	strategies []ExtractStrategy
}

// NewExtractor creates an Extractor. With no strategies the defaults are used.
func NewExtractor(strategies ...ExtractStrategy) *Extractor {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}
	return &Extractor{strategies: strategies}
}

// Extract finds the first matching container and reads the lead fields from it.
// It also returns the name of the strategy that matched.
func (e *Extractor) Extract(payload map[string]any) (*model.ExtractedLead, string, error) {
	tried := make([]string, 0, len(e.strategies))
	for _, s := range e.strategies {
		data, ok := s.Container(payload)
		if !ok {
			tried = append(tried, s.Name())
			continue
		}
		return project(data), s.Name(), nil
	}
	return nil, "", &ExtractionError{Tried: tried}
}

func project(data map[string]any) *model.ExtractedLead {
	lead := &model.ExtractedLead{
		FirstName:     scalar(data[model.FieldFirstName]),
		LastName:      scalar(data[model.FieldLastName]),
		UserEmail:     scalar(data[model.FieldUserEmail]),
		UserNumber:    scalar(data[model.FieldUserNumber]),
		DamageAmount:  scalar(data[model.FieldDamageAmount]),
		ExistingOrNew: scalar(data[model.FieldExistingOrNew]),
	}
	// Blank values fall through to the next key.
	for _, k := range damageTypeKeys {
		v := scalar(data[k])
		if v == nil {
			continue
		}
		if lead.DamageType == nil {
			lead.DamageType = v
		}
		if *v != "" {
			lead.DamageType = v
			break
		}
	}
	return lead
}

// scalar stringifies JSON scalars. Null, objects and arrays read as absent.
func scalar(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case int:
		s = strconv.Itoa(t)
	case int64:
		s = strconv.FormatInt(t, 10)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	return &s
}
