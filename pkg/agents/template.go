package agents

import "regexp"

// Placeholders are {{identifier}} tokens of word characters only.
var placeholderRe = regexp.MustCompile(`\{\{(\w+)\}\}`)

// ExtractVariables returns the unique placeholder names referenced by a
// template, in first-seen order.
func ExtractVariables(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if seen[m[1]] {
			continue
		}
		seen[m[1]] = true
		names = append(names, m[1])
	}
	return names
}

// RenderTemplate substitutes {{name}} placeholders from variables in a
// single pass. Unknown placeholders stay verbatim so a partially
// parameterized template remains valid text. Substituted values are not
// re-scanned.
func RenderTemplate(template string, variables map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(token string) string {
		name := token[2 : len(token)-2]
		if value, ok := variables[name]; ok {
			return value
		}
		return token
	})
}
