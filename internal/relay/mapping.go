package relay

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/retell-relay/internal/model"
)

// Rule maps inputs containing Pattern to the picklist value Target.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Target  string `yaml:"target"`
}

// AmountBucket selects labels for amounts up to and including Max.
// A zero Max means no upper bound.
type AmountBucket struct {
	Max    float64  `yaml:"max"`
	Labels []string `yaml:"labels"`
}

// StatusRule applies when the customer type contains any of Patterns. The
// first of Prefer that is a valid status wins; otherwise the first valid
// status when UseFirstValid is set, otherwise the default status.
type StatusRule struct {
	Patterns      []string `yaml:"patterns"`
	Prefer        []string `yaml:"prefer"`
	UseFirstValid bool     `yaml:"use_first_valid"`
}

// RuleSet is the ordered mapping data used by Mapper.
type RuleSet struct {
	DamageTypes       []Rule         `yaml:"damage_types"`
	DefaultDamageType string         `yaml:"default_damage_type"`
	AmountBuckets     []AmountBucket `yaml:"amount_buckets"`
	Statuses          []StatusRule   `yaml:"statuses"`
	DefaultStatus     string         `yaml:"default_status"`
}

// DefaultRuleSet returns the built-in German damage and status tables.
func DefaultRuleSet() RuleSet {
	return RuleSet{
		DamageTypes: []Rule{
			{Pattern: "water", Target: "Wasserschaden"},
			{Pattern: "feuer", Target: "Brandschaden"},
			{Pattern: "brand", Target: "Brandschaden"},
			{Pattern: "sturm", Target: "Sturmschaden"},
			{Pattern: "einbruch", Target: "Einbruchdiebstahlschaden"},
			{Pattern: "diebstahl", Target: "Einbruchdiebstahlschaden"},
			{Pattern: "bau", Target: "Bauschaden / Baumangel"},
			{Pattern: "mangel", Target: "Bauschaden / Baumangel"},
			{Pattern: "beruf", Target: "Berufsunfähigkeit"},
			{Pattern: "unfähigkeit", Target: "Berufsunfähigkeit"},
			{Pattern: "other", Target: "Sonstiger Schaden"},
			{Pattern: "sonstig", Target: "Sonstiger Schaden"},
			{Pattern: "noch kein", Target: "Noch kein Schadensereignis"},
			{Pattern: "kein schaden", Target: "Noch kein Schadensereignis"},
		},
		DefaultDamageType: "Sonstiger Schaden",
		AmountBuckets: []AmountBucket{
			{Max: 5000, Labels: []string{"0€ - 5.000€"}},
			{Max: 50000, Labels: []string{"5.000€ - 50.000€"}},
			{Max: 100000, Labels: []string{"50.000€ - 100.000€"}},
			{Max: 250000, Labels: []string{"100.000€ - 250.000€"}},
			{Max: 500000, Labels: []string{"250.000€ - 500.000€"}},
			{Max: 1000000, Labels: []string{"500.000€ - 1.000.000€"}},
			{Labels: []string{"100.000€ +", "1 Mio. € - 2 Mio. €"}},
		},
		Statuses: []StatusRule{
			{Patterns: []string{"exist", "bestand", "current"}, Prefer: []string{"Existing", "Working", "Qualified"}},
			{Patterns: []string{"new", "neu"}, Prefer: []string{"New"}, UseFirstValid: true},
		},
		DefaultStatus: "New",
	}
}

// LoadRuleSet reads a YAML rule file. Sections left out of the file keep
// their built-in defaults.
func LoadRuleSet(path string) (RuleSet, error) {
	rs := DefaultRuleSet()
	if path == "" {
		return rs, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return rs, eris.Wrap(err, "relay: read rules file")
	}
	var file RuleSet
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return rs, eris.Wrap(err, "relay: parse rules file")
	}
	if len(file.DamageTypes) > 0 {
		rs.DamageTypes = file.DamageTypes
	}
	if file.DefaultDamageType != "" {
		rs.DefaultDamageType = file.DefaultDamageType
	}
	if len(file.AmountBuckets) > 0 {
		rs.AmountBuckets = file.AmountBuckets
	}
	if len(file.Statuses) > 0 {
		rs.Statuses = file.Statuses
	}
	if file.DefaultStatus != "" {
		rs.DefaultStatus = file.DefaultStatus
	}
	return rs, nil
}

// Picklists returns every value the rules can produce, for mapping without
// a CRM connection.
func (r RuleSet) Picklists() *model.Picklists {
	p := &model.Picklists{}
	for _, rule := range r.DamageTypes {
		p.DamageTypes = appendUnique(p.DamageTypes, rule.Target)
	}
	p.DamageTypes = appendUnique(p.DamageTypes, r.DefaultDamageType)
	for _, b := range r.AmountBuckets {
		for _, l := range b.Labels {
			p.DamageAmounts = appendUnique(p.DamageAmounts, l)
		}
	}
	for _, st := range r.Statuses {
		for _, v := range st.Prefer {
			p.Statuses = appendUnique(p.Statuses, v)
		}
	}
	p.Statuses = appendUnique(p.Statuses, r.DefaultStatus)
	return p
}

func appendUnique(values []string, v string) []string {
	if v == "" || contains(values, v) {
		return values
	}
	return append(values, v)
}

var amountPattern = regexp.MustCompile(`(\d+[,.]?\d*)`)

// parseAmount reads the first numeric token; a comma is a decimal separator.
func parseAmount(raw string) (float64, bool) {
	m := amountPattern.FindString(raw)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// fold normalizes text for comparison: NFC composition, then case folding,
// so "Unfähigkeit" typed with a combining diaeresis still matches.
func fold(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}

// Mapper maps free-text webhook values onto active picklist values.
type Mapper struct {
	rules RuleSet
}

// NewMapper creates a Mapper over the given rules.
func NewMapper(rules RuleSet) *Mapper {
	return &Mapper{rules: rules}
}

// MapDamageType returns the picklist value for raw, or "" when nothing fits.
func (m *Mapper) MapDamageType(raw string, valid []string) string {
	in := fold(raw)
	if in == "" {
		return ""
	}
	for _, v := range valid {
		if fold(v) == in {
			return v
		}
	}
	for _, r := range m.rules.DamageTypes {
		if strings.Contains(in, fold(r.Pattern)) && contains(valid, r.Target) {
			return r.Target
		}
	}
	if contains(valid, m.rules.DefaultDamageType) {
		return m.rules.DefaultDamageType
	}
	return ""
}

// MapDamageAmount buckets the first number in raw and returns the matching
// picklist value, the first valid value as a fallback, or "".
func (m *Mapper) MapDamageAmount(raw string, valid []string) string {
	amount, ok := parseAmount(raw)
	if !ok {
		return ""
	}
	for _, b := range m.rules.AmountBuckets {
		if b.Max == 0 || amount <= b.Max {
			return bestMatch(b.Labels, valid)
		}
	}
	return bestMatch(nil, valid)
}

// MapLeadStatus derives the Lead Status from the existing_or_new answer.
func (m *Mapper) MapLeadStatus(raw string, valid []string) string {
	in := fold(raw)
	if in == "" {
		return m.rules.DefaultStatus
	}
	for _, r := range m.rules.Statuses {
		if !containsAny(in, r.Patterns) {
			continue
		}
		for _, p := range r.Prefer {
			if contains(valid, p) {
				return p
			}
		}
		if r.UseFirstValid && len(valid) > 0 {
			return valid[0]
		}
		return m.rules.DefaultStatus
	}
	return m.rules.DefaultStatus
}

func bestMatch(labels, valid []string) string {
	for _, l := range labels {
		fl := fold(l)
		for _, v := range valid {
			if strings.Contains(fold(v), fl) {
				return v
			}
		}
	}
	if len(valid) > 0 {
		return valid[0]
	}
	return ""
}

func containsAny(s string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(s, fold(p)) {
			return true
		}
	}
	return false
}

func contains(values []string, want string) bool {
	if want == "" {
		return false
	}
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
