package labelweaver

// MissingValue marks a declared attribute the model did not return at
// all, so consumers can tell "extracted empty" from "not returned".
const MissingValue = "NO_VALUE"

// FieldKind tags the shape of one schema field.
type FieldKind int

const (
	// SingleLabel is exactly one value from a closed option set.
	SingleLabel FieldKind = iota
	// LabelSet is a separator-delimited set drawn from a closed option set.
	LabelSet
	// OpenText accepts free text (a string or a list of strings).
	OpenText
)

func (k FieldKind) String() string {
	switch k {
	case SingleLabel:
		return "single_label"
	case LabelSet:
		return "label_set"
	case OpenText:
		return "open_text"
	}
	return "unknown"
}

// FieldSchema describes one expected output field.
type FieldSchema struct {
	Name        string
	Description string
	Kind        FieldKind
	Options     []string // closed option set; nil for OpenText
	Separator   string   // token separator, LabelSet only
}

// OutputSchema is the expected shape of a model response for one task.
// Derived once from the TaskConfig and read-only thereafter.
type OutputSchema struct {
	TaskType TaskType
	// Structured means the response is a JSON object with one key per
	// field; otherwise the response is the bare value of the one field.
	Structured bool
	Fields     []FieldSchema
}

// Field returns the schema field with the given name, if declared.
func (s *OutputSchema) Field(name string) (FieldSchema, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// SchemaFromConfig derives the output schema for a validated config.
// Classification and entity matching produce one closed single-label
// field named after the label column; multilabel classification produces
// one label-set field; attribute extraction produces one field per
// declared attribute, closed when options are present.
func SchemaFromConfig(cfg *TaskConfig) (*OutputSchema, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	schema := &OutputSchema{TaskType: cfg.TaskType}
	switch cfg.TaskType {
	case TaskClassification, TaskEntityMatching:
		schema.Fields = []FieldSchema{{
			Name:    cfg.Dataset.LabelColumn,
			Kind:    SingleLabel,
			Options: cfg.Prompt.Labels,
		}}
	case TaskMultilabelClassification:
		schema.Fields = []FieldSchema{{
			Name:      cfg.Dataset.LabelColumn,
			Kind:      LabelSet,
			Options:   cfg.Prompt.Labels,
			Separator: cfg.Dataset.LabelSeparator,
		}}
	case TaskAttributeExtraction:
		schema.Structured = true
		for _, a := range cfg.Prompt.Attributes {
			f := FieldSchema{Name: a.Name, Description: a.Description}
			if len(a.Options) > 0 {
				f.Kind = SingleLabel
				f.Options = a.Options
			} else {
				f.Kind = OpenText
			}
			schema.Fields = append(schema.Fields, f)
		}
	}
	return schema, nil
}
