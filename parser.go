package labelweaver

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Status is the terminal state of one parse. The parser never retries;
// reissuing a model call on malformed output is the caller's decision.
type Status int

const (
	// StatusValid means every field parsed cleanly.
	StatusValid Status = iota
	// StatusValidWithWarnings means usable values were recovered but some
	// constraint was violated (unknown token, missing attribute).
	StatusValidWithWarnings
	// StatusInvalid means no usable value could be recovered.
	StatusInvalid
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusValidWithWarnings:
		return "valid_with_warnings"
	case StatusInvalid:
		return "invalid"
	}
	return "unknown"
}

// ViolationKind classifies a constraint violation.
type ViolationKind string

const (
	ViolationUnrecognizedLabel ViolationKind = "unrecognized_label"
	ViolationUnknownToken      ViolationKind = "unknown_token"
	ViolationMissingAttribute  ViolationKind = "missing_attribute"
	ViolationUnexpectedKey     ViolationKind = "unexpected_key"
	ViolationMalformedJSON     ViolationKind = "malformed_json"
)

// Violation records one violated constraint.
type Violation struct {
	Field  string
	Kind   ViolationKind
	Detail string
}

// ParsedOutput is the validated result of one model response. Values
// maps each schema field name to a string, a []string, or MissingValue.
type ParsedOutput struct {
	Values     map[string]any
	Status     Status
	Violations []Violation
}

func (p *ParsedOutput) addViolation(field string, kind ViolationKind, detail string) {
	p.Violations = append(p.Violations, Violation{Field: field, Kind: kind, Detail: detail})
}

// LabelSetOf returns the recognized label set for a LabelSet field, nil
// when the field holds something else.
func (p *ParsedOutput) LabelSetOf(field string) []string {
	set, _ := p.Values[field].([]string)
	return set
}

// ParseOutput parses and validates a raw model response against the
// schema. It never returns a Go error: model misbehavior is data, and is
// reported through Status and Violations.
func ParseOutput(raw string, schema *OutputSchema) *ParsedOutput {
	out := &ParsedOutput{Values: make(map[string]any, len(schema.Fields))}
	if len(schema.Fields) == 0 {
		// SchemaFromConfig never produces this, but the schema may be
		// caller-built; there is nothing to validate against.
		out.Status = StatusInvalid
		out.addViolation("", ViolationMissingAttribute, "schema declares no fields")
		return out
	}
	if schema.Structured {
		parseStructured(raw, schema, out)
		return out
	}
	// Bare response: the whole text is the value of the single field.
	field := schema.Fields[0]
	switch field.Kind {
	case LabelSet:
		parseLabelSet(StripFences(raw), field, out)
	default:
		parseSingleLabel(StripFences(raw), field, out)
	}
	return out
}

// matchOption resolves text against a closed option set: case-insensitive
// exact match first, then the first option (in declared order) occurring
// as a substring of the text. The canonical declared spelling is
// returned on success.
func matchOption(text string, options []string) (string, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, opt := range options {
		if strings.ToLower(opt) == lower {
			return opt, true
		}
	}
	for _, opt := range options {
		if strings.Contains(lower, strings.ToLower(opt)) {
			return opt, true
		}
	}
	return "", false
}

func parseSingleLabel(text string, field FieldSchema, out *ParsedOutput) {
	if label, ok := matchOption(text, field.Options); ok {
		out.Values[field.Name] = label
		out.Status = StatusValid
		return
	}
	out.Values[field.Name] = MissingValue
	out.Status = StatusInvalid
	out.addViolation(field.Name, ViolationUnrecognizedLabel, strings.TrimSpace(text))
}

// parseLabelSet splits on the configured separator and validates each
// token. Unknown tokens are recorded but do not invalidate recognized
// ones: partial credit, not all-or-nothing.
func parseLabelSet(text string, field FieldSchema, out *ParsedOutput) {
	var valid []string
	seen := map[string]bool{}
	unknown := 0
	for _, tok := range strings.Split(text, field.Separator) {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		label, ok := matchOption(tok, field.Options)
		if !ok {
			unknown++
			out.addViolation(field.Name, ViolationUnknownToken, tok)
			continue
		}
		if !seen[label] {
			seen[label] = true
			valid = append(valid, label)
		}
	}
	out.Values[field.Name] = valid
	switch {
	case unknown == 0:
		out.Status = StatusValid
	case len(valid) > 0:
		out.Status = StatusValidWithWarnings
	default:
		out.Status = StatusInvalid
	}
}

// CanonicalLabelSet serializes a recognized label set back to the wire
// form, so parse(serialize(parse(raw))) recovers the same set.
func CanonicalLabelSet(labels []string, separator string) string {
	return strings.Join(labels, separator)
}

func parseStructured(raw string, schema *OutputSchema, out *ParsedOutput) {
	body, ok := ExtractJSONObject(raw)
	var obj map[string]any
	if ok {
		if err := json.Unmarshal([]byte(body), &obj); err != nil {
			ok = false
		}
	}
	if !ok {
		// Not valid JSON: fatal for the whole record, not per field.
		for _, f := range schema.Fields {
			out.Values[f.Name] = MissingValue
		}
		out.Status = StatusInvalid
		out.addViolation("", ViolationMalformedJSON, strings.TrimSpace(raw))
		return
	}

	warnings := false
	for _, f := range schema.Fields {
		val, present := obj[f.Name] // keys match case-sensitively
		if !present || val == nil {
			out.Values[f.Name] = MissingValue
			out.addViolation(f.Name, ViolationMissingAttribute, "")
			warnings = true
			continue
		}
		if !coerceAttributeValue(val, f, out) {
			warnings = true
		}
	}
	for key := range obj {
		if _, declared := schema.Field(key); !declared {
			out.addViolation(key, ViolationUnexpectedKey, "")
			warnings = true
		}
	}
	if warnings {
		out.Status = StatusValidWithWarnings
	} else {
		out.Status = StatusValid
	}
}

// coerceAttributeValue normalizes one JSON attribute value to a string
// or []string and validates it for closed attributes. Returns false when
// it recorded a violation.
func coerceAttributeValue(val any, f FieldSchema, out *ParsedOutput) bool {
	switch v := val.(type) {
	case string:
		if f.Kind == SingleLabel {
			label, ok := matchOption(v, f.Options)
			if !ok {
				out.Values[f.Name] = MissingValue
				out.addViolation(f.Name, ViolationUnrecognizedLabel, v)
				return false
			}
			out.Values[f.Name] = label
			return true
		}
		out.Values[f.Name] = v
		return true
	case []any:
		items := make([]string, 0, len(v))
		clean := true
		for _, item := range v {
			s, ok := scalarString(item)
			if !ok {
				out.addViolation(f.Name, ViolationMalformedJSON, fmt.Sprintf("%v", item))
				clean = false
				continue
			}
			if f.Kind == SingleLabel {
				label, ok := matchOption(s, f.Options)
				if !ok {
					out.addViolation(f.Name, ViolationUnrecognizedLabel, s)
					clean = false
					continue
				}
				s = label
			}
			items = append(items, s)
		}
		out.Values[f.Name] = items
		return clean
	default:
		if s, ok := scalarString(v); ok {
			out.Values[f.Name] = s
			return true
		}
		out.Values[f.Name] = MissingValue
		out.addViolation(f.Name, ViolationMalformedJSON, fmt.Sprintf("%v", val))
		return false
	}
}

// scalarString renders a JSON scalar as a string; objects and arrays are
// rejected.
func scalarString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	default:
		return "", false
	}
}
