package labelweaver

import (
	"strings"
)

// Models frequently wrap answers in backtick code fences even when asked
// not to. StripFences peels one fenced block off the response: if the
// trimmed text starts with ``` (optionally tagged, e.g. ```json), the
// fence body is returned; otherwise the trimmed text is returned as is.
func StripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	nl := strings.IndexByte(text, '\n')
	if nl == -1 {
		// Single-line fence, e.g. ```anger```.
		body := strings.TrimPrefix(text, "```")
		body = strings.TrimSuffix(body, "```")
		return strings.TrimSpace(body)
	}
	body := text[nl+1:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// ExtractJSONObject locates the JSON object in a model response: fences
// are stripped first, then the substring from the first '{' to the last
// '}' is returned. ok is false when no object-shaped span exists.
func ExtractJSONObject(raw string) (string, bool) {
	text := StripFences(raw)
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start == -1 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}
