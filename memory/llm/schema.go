package llm

import "encoding/json"

// JSONSchema is the declared shape an Extract call must conform to.
// The alias trick in MarshalJSON prevents infinite recursion during
// serialization of the self-referential Properties map.
type JSONSchema struct {
	Type                 string                 `json:"type"`
	Description          string                 `json:"description,omitempty"`
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	Enum                 []string               `json:"enum,omitempty"`
	Items                *JSONSchema            `json:"items,omitempty"`
	AdditionalProperties bool                   `json:"additionalProperties"`
}

func (s *JSONSchema) MarshalJSON() ([]byte, error) {
	type alias JSONSchema
	return json.Marshal((*alias)(s))
}

// ExtractionSchema is the fixed schema the extraction prompt asks every
// LLM-backed provider to honor; it mirrors ExtractionResult field for
// field.
func ExtractionSchema() *JSONSchema {
	return &JSONSchema{
		Type:     "object",
		Required: []string{"summary", "keywords", "emotion", "importance", "facts", "profile_delta"},
		Properties: map[string]*JSONSchema{
			"summary":    {Type: "string"},
			"keywords":   {Type: "array", Items: &JSONSchema{Type: "string"}},
			"emotion":    {Type: "string", Enum: []string{"happy", "sad", "neutral", "scared", "angry", "curious"}},
			"importance": {Type: "number", Description: "clipped to [0,1] on receipt"},
			"facts": {
				Type: "array",
				Items: &JSONSchema{
					Type:     "object",
					Required: []string{"subject", "predicate", "object", "confidence"},
					Properties: map[string]*JSONSchema{
						"subject":    {Type: "string"},
						"predicate":  {Type: "string"},
						"object":     {Type: "string"},
						"confidence": {Type: "number"},
					},
				},
			},
			"profile_delta": {
				Type: "object",
				Properties: map[string]*JSONSchema{
					"name":     {Type: "string"},
					"age":      {Type: "integer"},
					"gender":   {Type: "string"},
					"add_tags": {Type: "array", Items: &JSONSchema{Type: "string"}},
				},
			},
		},
	}
}
