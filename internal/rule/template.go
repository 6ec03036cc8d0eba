package rule

import (
	"regexp"

	"govern/internal/entity"
)

var templateToken = regexp.MustCompile(`\{\{\s*([^{}]+?)\s*\}\}`)

// RenderTitle substitutes {{field}} tokens in an alert message template with
// the corresponding snapshot values. It is a closed key-to-string lookup, not
// a template language: no conditionals, no code execution. Tokens that do not
// resolve are replaced by the empty string.
func RenderTitle(template string, snapshot entity.Snapshot) string {
	return templateToken.ReplaceAllStringFunc(template, func(token string) string {
		field := templateToken.FindStringSubmatch(token)[1]
		value, ok := snapshot.Get(field)
		if !ok || value.IsNull() {
			return ""
		}
		return value.String()
	})
}
