package relay

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/retell-relay/internal/model"
)

func analysisData() map[string]any {
	return map[string]any{
		"first_name":          "Erika",
		"last_name":           "Mustermann",
		"user_email":          "erika@example.de",
		"user_number":         "+491701234567",
		"What Type of damage": "Water damage",
		"damage_amount":       "3000€",
		"existing_or_new":     "existing",
	}
}

func mustPayload(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestExtract_AllShapesEquivalent(t *testing.T) {
	data := analysisData()
	shapes := []struct {
		name    string
		payload map[string]any
		shape   string
	}{
		{"retell_call", map[string]any{"event": "call_analyzed", "call": map[string]any{"call_analysis": map[string]any{"custom_analysis_data": data}}}, "call.call_analysis.custom_analysis_data"},
		{"top_level", map[string]any{"custom_analysis_data": data}, "custom_analysis_data"},
		{"function_args", map[string]any{"args": map[string]any{"custom_analysis_data": data}}, "args.custom_analysis_data"},
		{"root", data, "root"},
		{"data", map[string]any{"data": data}, "data"},
	}

	var first *model.ExtractedLead
	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			lead, shape, err := NewExtractor().Extract(tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, shape)
			assert.Equal(t, "Water damage", lead.Value(model.FieldDamageType))
			if first == nil {
				first = lead
				return
			}
			assert.Equal(t, first, lead)
		})
	}
}

func TestExtract_FirstNonEmptyContainerWins(t *testing.T) {
	payload := map[string]any{
		"call":                 map[string]any{"call_analysis": map[string]any{"custom_analysis_data": map[string]any{}}},
		"custom_analysis_data": map[string]any{"first_name": "Top"},
		"data":                 map[string]any{"first_name": "Data"},
	}
	lead, shape, err := NewExtractor().Extract(payload)
	require.NoError(t, err)
	assert.Equal(t, "custom_analysis_data", shape)
	assert.Equal(t, "Top", lead.Value(model.FieldFirstName))
}

func TestExtract_NoContainer(t *testing.T) {
	_, _, err := NewExtractor().Extract(map[string]any{"event": "call_started", "call": map[string]any{"call_id": "abc"}})
	require.Error(t, err)

	var exErr *ExtractionError
	require.True(t, errors.As(err, &exErr))
	assert.Len(t, exErr.Tried, 5)
	assert.Contains(t, err.Error(), "expected Retell AI data structure")
}

func TestExtract_DamageTypePrecedence(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
		want string
	}{
		{"explicit_key_wins", map[string]any{"first_name": "a", "what_type_of_damage": "Sturm", "What Type of damage": "Feuer", "damage_type": "Wasser"}, "Sturm"},
		{"label_over_alias", map[string]any{"first_name": "a", "What Type of damage": "Feuer", "damage_type": "Wasser"}, "Feuer"},
		{"blank_explicit_key_falls_through", map[string]any{"first_name": "a", "what_type_of_damage": "", "What Type of damage": "Feuer", "damage_type": "Wasser"}, "Feuer"},
		{"blank_label_falls_through", map[string]any{"first_name": "a", "what_type_of_damage": "", "What Type of damage": "", "damage_type": "Wasser"}, "Wasser"},
		{"alias_only", map[string]any{"first_name": "a", "damage_type": "Wasser"}, "Wasser"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead, _, err := NewExtractor().Extract(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.want, lead.Value(model.FieldDamageType))
		})
	}
}

func TestExtract_AbsentAndNonStringValues(t *testing.T) {
	payload := mustPayload(t, `{"custom_analysis_data":{
		"first_name":"Max","damage_amount":25000,"user_number":4917012345,
		"existing_or_new":null,"last_name":{"nested":true}}}`)

	lead, _, err := NewExtractor().Extract(payload)
	require.NoError(t, err)
	assert.Equal(t, "25000", lead.Value(model.FieldDamageAmount))
	assert.Equal(t, "4917012345", lead.Value(model.FieldUserNumber))
	assert.Nil(t, lead.ExistingOrNew)
	assert.Nil(t, lead.LastName)
	assert.Nil(t, lead.UserEmail)
	assert.Nil(t, lead.DamageType)
}

func TestExtract_CustomStrategies(t *testing.T) {
	e := NewExtractor(pathStrategy{path: []string{"payload", "lead"}})
	lead, shape, err := e.Extract(map[string]any{"payload": map[string]any{"lead": map[string]any{"first_name": "X"}}})
	require.NoError(t, err)
	assert.Equal(t, "payload.lead", shape)
	assert.Equal(t, "X", lead.Value(model.FieldFirstName))
}
