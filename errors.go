package labelweaver

import (
	"fmt"
	"strings"
)

// TemplateError reports a placeholder that could not be resolved against
// the provided bindings. It always indicates a broken task definition,
// never a bad model response, so callers should surface it and stop.
type TemplateError struct {
	Placeholder string   // name of the unresolved placeholder
	Template    string   // the template being rendered
	Known       []string // binding names that were available
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template references {%s} but no binding for it exists (known: %s)",
		e.Placeholder, strings.Join(e.Known, ", "))
}

// NewTemplateError creates a new TemplateError.
func NewTemplateError(placeholder, template string, known []string) *TemplateError {
	return &TemplateError{
		Placeholder: placeholder,
		Template:    template,
		Known:       known,
	}
}

// SchemaConfigError reports a malformed TaskConfig: an unknown task type,
// a classification task with no labels, an extraction task with no
// attributes, and so on. Raised at load time, before any model call.
type SchemaConfigError struct {
	Field   string // config field the problem was found in
	Message string
}

// Error implements the error interface.
func (e *SchemaConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid task config: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid task config: %s", e.Message)
}

// NewSchemaConfigError creates a new SchemaConfigError.
func NewSchemaConfigError(field, message string) *SchemaConfigError {
	return &SchemaConfigError{Field: field, Message: message}
}
