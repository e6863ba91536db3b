package labelweaver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// derivedBindings synthesizes the placeholders guidelines may reference
// beyond raw record fields: {labels} is the newline-joined label list,
// {attribute_json} is one "name: description" line per attribute.
func derivedBindings(cfg *TaskConfig) Record {
	b := Record{}
	if len(cfg.Prompt.Labels) > 0 {
		b["labels"] = joinLines(cfg.Prompt.Labels)
	}
	if len(cfg.Prompt.Attributes) > 0 {
		lines := make([]string, 0, len(cfg.Prompt.Attributes))
		for _, a := range cfg.Prompt.Attributes {
			lines = append(lines, fmt.Sprintf("%s: %s", a.Name, a.Description))
		}
		b["attribute_json"] = joinLines(lines)
	}
	return b
}

// goldBindings prepares an example record for rendering with its answer
// bound in: the label column carries the gold label (or delimited label
// set), {output_dict} carries the gold attribute values as JSON.
func goldBindings(cfg *TaskConfig, fields Record) (Record, error) {
	b := fields.Clone()
	if cfg.TaskType == TaskAttributeExtraction {
		gold := make(map[string]string, len(cfg.Prompt.Attributes))
		for _, a := range cfg.Prompt.Attributes {
			gold[a.Name] = fields[a.Name]
		}
		data, err := json.Marshal(gold)
		if err != nil {
			return nil, fmt.Errorf("render gold output dict: %w", err)
		}
		b["output_dict"] = string(data)
	}
	return b, nil
}

// maskedBindings prepares a record for rendering with every answer
// placeholder bound to the empty string: the query block in the prompt,
// and the text submitted for embedding. The empty marker cannot collide
// with a real label because config validation rejects empty labels.
func maskedBindings(cfg *TaskConfig, fields Record) Record {
	b := fields.Clone()
	b[cfg.Dataset.LabelColumn] = ""
	if cfg.Dataset.ExplanationColumn != "" {
		b[cfg.Dataset.ExplanationColumn] = ""
	}
	if cfg.TaskType == TaskAttributeExtraction {
		b["output_dict"] = ""
		for _, a := range cfg.Prompt.Attributes {
			b[a.Name] = ""
		}
	}
	return b
}

// outputGuidelines merges the task-level output guidelines with any
// per-attribute ones, concatenated in attributes-list order.
func outputGuidelines(cfg *TaskConfig) string {
	parts := []string{}
	if cfg.Prompt.OutputGuidelines != "" {
		parts = append(parts, cfg.Prompt.OutputGuidelines)
	}
	for _, a := range cfg.Prompt.Attributes {
		if a.OutputGuidelines != "" {
			parts = append(parts, a.OutputGuidelines)
		}
	}
	return strings.Join(parts, "\n")
}

// BuildPrompt assembles the full prompt for one query record: resolved
// task and output guidelines, the selected few-shot examples rendered
// with their gold answers, and the query rendered through the same
// template with the answer placeholders left empty. Sections are joined
// with blank lines; with few_shot_num = 0 the prompt is guidelines plus
// the query block only.
func (e *Engine) BuildPrompt(ctx context.Context, query Record) (string, error) {
	derived := derivedBindings(e.cfg)

	var sections []string
	if e.cfg.Prompt.TaskGuidelines != "" {
		rendered, err := Render(e.cfg.Prompt.TaskGuidelines, derived)
		if err != nil {
			return "", err
		}
		sections = append(sections, rendered)
	}
	if og := outputGuidelines(e.cfg); og != "" {
		rendered, err := Render(og, derived)
		if err != nil {
			return "", err
		}
		sections = append(sections, rendered)
	}

	selected, err := e.selector.Select(ctx, query, e.cfg.Prompt.FewShotNum)
	if err != nil {
		return "", fmt.Errorf("select few-shot examples: %w", err)
	}
	for _, ex := range selected {
		bindings, err := goldBindings(e.cfg, ex.Fields)
		if err != nil {
			return "", err
		}
		rendered, err := Render(e.cfg.Prompt.ExampleTemplate, bindings)
		if err != nil {
			return "", err
		}
		sections = append(sections, rendered)
	}

	queryBlock, err := Render(e.cfg.Prompt.ExampleTemplate, maskedBindings(e.cfg, query))
	if err != nil {
		return "", err
	}
	sections = append(sections, queryBlock)

	prompt := strings.Join(sections, "\n\n")
	e.logger.Debug("prompt assembled",
		zap.String("task", e.cfg.TaskName),
		zap.Int("examples", len(selected)),
		zap.Int("chars", len(prompt)))
	return prompt, nil
}
