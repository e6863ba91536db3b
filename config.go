package labelweaver

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// TaskType identifies what kind of labeling a task performs.
type TaskType string

const (
	TaskClassification           TaskType = "classification"
	TaskMultilabelClassification TaskType = "multilabel_classification"
	TaskAttributeExtraction      TaskType = "attribute_extraction"
	// TaskEntityMatching is classification over a record that holds two
	// concatenated entities (fields suffixed _entity1/_entity2). The
	// suffixes are a template naming convention, not a schema type.
	TaskEntityMatching TaskType = "entity_matching"
)

// SelectionPolicy names a few-shot example selection strategy.
type SelectionPolicy string

const (
	SelectionFixed              SelectionPolicy = "fixed"
	SelectionSemanticSimilarity SelectionPolicy = "semantic_similarity"
)

// DatasetConfig describes the dataset columns the prompt references.
type DatasetConfig struct {
	LabelColumn       string   `yaml:"label_column" json:"label_column"`
	LabelSeparator    string   `yaml:"label_separator" json:"label_separator"`
	Delimiter         string   `yaml:"delimiter" json:"delimiter"`
	InputColumns      []string `yaml:"input_columns" json:"input_columns"`
	ExplanationColumn string   `yaml:"explanation_column" json:"explanation_column"`
}

// ModelConfig identifies the labeling model. Opaque to this engine; it is
// handed through to the injected model caller untouched.
type ModelConfig struct {
	Provider string         `yaml:"provider" json:"provider"`
	Name     string         `yaml:"name" json:"name"`
	Endpoint string         `yaml:"endpoint" json:"endpoint"`
	Params   map[string]any `yaml:"params" json:"params"`
}

// EmbeddingConfig identifies the embedding model. Descriptor only; the
// embedding capability itself is injected.
type EmbeddingConfig struct {
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
}

// Attribute declares one field to extract. Options, when present, close
// the value set; an attribute without options accepts free text.
type Attribute struct {
	Name             string   `yaml:"name" json:"name"`
	Description      string   `yaml:"description" json:"description"`
	Options          []string `yaml:"options" json:"options"`
	OutputGuidelines string   `yaml:"output_guidelines" json:"output_guidelines"`
}

// FewShotSource is either an inline list of labeled records or a string
// reference to an external pool resolved by an injected ExampleLoader.
type FewShotSource struct {
	Inline []Record
	Ref    string
}

// UnmarshalYAML accepts a sequence of records or a scalar reference.
func (s *FewShotSource) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		return value.Decode(&s.Ref)
	case yaml.SequenceNode:
		return value.Decode(&s.Inline)
	default:
		return fmt.Errorf("few_shot_examples must be a list of records or a reference string")
	}
}

// IsZero reports whether no example source was configured.
func (s FewShotSource) IsZero() bool {
	return s.Ref == "" && len(s.Inline) == 0
}

// PromptConfig describes everything about the prompt for one task.
type PromptConfig struct {
	TaskGuidelines   string          `yaml:"task_guidelines" json:"task_guidelines"`
	OutputGuidelines string          `yaml:"output_guidelines" json:"output_guidelines"`
	ExampleTemplate  string          `yaml:"example_template" json:"example_template"`
	Labels           []string        `yaml:"labels" json:"labels"`
	Attributes       []Attribute     `yaml:"attributes" json:"attributes"`
	FewShotExamples  FewShotSource   `yaml:"few_shot_examples" json:"few_shot_examples"`
	FewShotSelection SelectionPolicy `yaml:"few_shot_selection" json:"few_shot_selection"`
	FewShotNum       int             `yaml:"few_shot_num" json:"few_shot_num"`
}

// TaskConfig is the full declarative description of one labeling task.
// Loaded once, validated once, read-only thereafter.
type TaskConfig struct {
	TaskName  string          `yaml:"task_name" json:"task_name"`
	TaskType  TaskType        `yaml:"task_type" json:"task_type"`
	Dataset   DatasetConfig   `yaml:"dataset" json:"dataset"`
	Model     ModelConfig     `yaml:"model" json:"model"`
	Embedding EmbeddingConfig `yaml:"embedding" json:"embedding"`
	Prompt    PromptConfig    `yaml:"prompt" json:"prompt"`
}

// ParseTaskConfig decodes a task config from YAML or JSON bytes, applies
// defaults, and validates it.
func ParseTaskConfig(data []byte) (*TaskConfig, error) {
	var cfg TaskConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse task config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadTaskConfig reads and parses a task config file.
func LoadTaskConfig(path string) (*TaskConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read task config: %w", err)
	}
	return ParseTaskConfig(data)
}

func (c *TaskConfig) applyDefaults() {
	if c.Dataset.LabelSeparator == "" {
		c.Dataset.LabelSeparator = ";"
	}
	if c.Dataset.Delimiter == "" {
		c.Dataset.Delimiter = ","
	}
	if c.Dataset.LabelColumn == "" {
		c.Dataset.LabelColumn = "label"
	}
	if c.Prompt.FewShotSelection == "" {
		c.Prompt.FewShotSelection = SelectionFixed
	}
}

// classificationLike reports whether the task resolves to a single or
// multi label drawn from a closed label list.
func (c *TaskConfig) classificationLike() bool {
	switch c.TaskType {
	case TaskClassification, TaskMultilabelClassification, TaskEntityMatching:
		return true
	}
	return false
}

// Validate checks the config for structural problems. Every failure is a
// *SchemaConfigError; the first one found is returned.
func (c *TaskConfig) Validate() error {
	if c.TaskName == "" {
		return NewSchemaConfigError("task_name", "must not be empty")
	}
	switch c.TaskType {
	case TaskClassification, TaskMultilabelClassification, TaskAttributeExtraction, TaskEntityMatching:
	default:
		return NewSchemaConfigError("task_type", fmt.Sprintf("unknown task type %q", c.TaskType))
	}
	if c.classificationLike() {
		if len(c.Prompt.Labels) == 0 {
			return NewSchemaConfigError("prompt.labels", "classification tasks need at least one label")
		}
		for _, l := range c.Prompt.Labels {
			if l == "" {
				// Empty string is reserved as the unanswered-query marker.
				return NewSchemaConfigError("prompt.labels", "empty string is not a valid label")
			}
			if c.TaskType == TaskMultilabelClassification && strings.Contains(l, c.Dataset.LabelSeparator) {
				return NewSchemaConfigError("prompt.labels",
					fmt.Sprintf("label %q contains the label separator %q", l, c.Dataset.LabelSeparator))
			}
		}
	}
	if c.TaskType == TaskAttributeExtraction {
		if len(c.Prompt.Attributes) == 0 {
			return NewSchemaConfigError("prompt.attributes", "attribute extraction needs at least one attribute")
		}
		seen := map[string]bool{}
		for _, a := range c.Prompt.Attributes {
			if a.Name == "" {
				return NewSchemaConfigError("prompt.attributes", "attribute name must not be empty")
			}
			if seen[a.Name] {
				return NewSchemaConfigError("prompt.attributes", fmt.Sprintf("duplicate attribute %q", a.Name))
			}
			seen[a.Name] = true
			for _, o := range a.Options {
				if o == "" {
					return NewSchemaConfigError("prompt.attributes",
						fmt.Sprintf("attribute %q has an empty option", a.Name))
				}
			}
		}
	}
	if c.Prompt.FewShotNum < 0 {
		return NewSchemaConfigError("prompt.few_shot_num", "must not be negative")
	}
	if c.Prompt.ExampleTemplate == "" {
		// The query block is rendered through the same template, so it is
		// required even when no few-shot examples are configured.
		return NewSchemaConfigError("prompt.example_template", "must not be empty")
	}
	switch c.Prompt.FewShotSelection {
	case SelectionFixed, SelectionSemanticSimilarity:
	default:
		return NewSchemaConfigError("prompt.few_shot_selection",
			fmt.Sprintf("unknown selection policy %q", c.Prompt.FewShotSelection))
	}
	return nil
}
