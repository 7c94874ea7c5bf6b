package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// listingSchemaJSON describes the object the model must return. Every field
// is nullable; a field that violates its rule is dropped, not the whole answer.
const listingSchemaJSON = `{
  "type": "object",
  "properties": {
    "title":               {"type": ["string", "null"], "maxLength": 300},
    "price":               {"type": ["number", "null"], "minimum": 0},
    "currency":            {"type": ["string", "null"], "pattern": "^[A-Za-z]{3}$"},
    "address":             {"type": ["string", "null"], "maxLength": 300},
    "city":                {"type": ["string", "null"], "maxLength": 100},
    "neighborhood":        {"type": ["string", "null"], "maxLength": 100},
    "postal_code":         {"type": ["string", "null"], "maxLength": 12},
    "surface_m2":          {"type": ["number", "null"], "minimum": 0},
    "rooms":               {"type": ["integer", "null"], "minimum": 0},
    "deposit":             {"type": ["number", "null"], "minimum": 0},
    "furnished":           {"type": ["string", "boolean", "null"]},
    "property_type":       {"type": ["string", "null"], "maxLength": 50},
    "energy_label":        {"type": ["string", "null"], "pattern": "^[A-Ga-g]\\+{0,4}$"},
    "available_date":      {"type": ["string", "null"], "maxLength": 50},
    "description_summary": {"type": ["string", "null"], "maxLength": 2000}
  }
}`

var listingSchema = mustSchema(listingSchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("llm: invalid listing schema: %v", err))
	}
	return s
}

// FieldError is one schema violation in a model answer.
type FieldError struct {
	Field   string
	Message string
}

// validateFields checks doc against the listing schema, removes every field
// that failed, and reports what was removed. A non-object answer is an error.
func validateFields(raw string, doc map[string]any) ([]FieldError, error) {
	result, err := listingSchema.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("llm: validate answer: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	var dropped []FieldError
	for _, desc := range result.Errors() {
		field := desc.Field()
		if field == "" || field == "(root)" {
			return nil, fmt.Errorf("llm: answer is not a listing object: %s", desc.Description())
		}
		if i := strings.IndexByte(field, '.'); i > 0 {
			field = field[:i]
		}
		delete(doc, field)
		dropped = append(dropped, FieldError{Field: field, Message: desc.Description()})
	}
	return dropped, nil
}

var jsonObject = regexp.MustCompile(`\{[\s\S]*\}`)

// parseAnswer recovers a JSON object from a model answer: the raw text first,
// then the outermost {...} span, then the text with a markdown fence removed.
func parseAnswer(answer string) (string, map[string]any, bool) {
	candidates := []string{strings.TrimSpace(answer)}
	if m := jsonObject.FindString(answer); m != "" {
		candidates = append(candidates, m)
	}
	candidates = append(candidates, cleanJSONBlock(answer))

	for _, c := range candidates {
		var doc map[string]any
		if err := json.Unmarshal([]byte(c), &doc); err == nil && doc != nil {
			return c, doc, true
		}
	}
	return "", nil, false
}

// cleanJSONBlock removes markdown code block wrappers from JSON.
func cleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
