package labelweaver

import (
	"regexp"
	"sort"
	"strings"
)

// Record is a raw dataset row or example: field name to string value.
// Extra fields are allowed and ignored unless a template references them.
type Record map[string]string

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// placeholderRe matches {name} tokens. Braces that do not wrap an
// identifier pass through verbatim, so JSON snippets inside guidelines
// survive rendering.
var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Placeholders returns the distinct placeholder names referenced by the
// template, in order of first appearance.
func Placeholders(template string) []string {
	seen := map[string]bool{}
	var names []string
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// Render substitutes every {name} placeholder in template with the
// corresponding binding. Substitution is literal; there is no control
// flow and no escaping. An unresolved placeholder is a fatal
// *TemplateError, never a silent empty string.
func Render(template string, bindings Record) (string, error) {
	var missing string
	out := placeholderRe.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		v, ok := bindings[name]
		if !ok && missing == "" {
			missing = name
		}
		return v
	})
	if missing != "" {
		return "", NewTemplateError(missing, template, bindingNames(bindings))
	}
	return out, nil
}

func bindingNames(bindings Record) []string {
	names := make([]string, 0, len(bindings))
	for k := range bindings {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// joinLines renders a list one item per line, the shape task guidelines
// expect for the {labels} binding.
func joinLines(items []string) string {
	return strings.Join(items, "\n")
}
