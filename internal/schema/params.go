package schema

import "regexp"

// ParamHint is a parameter name recovered from an error body, along with
// the fact that it was flagged required by the server's own message.
type ParamHint struct {
	Name     string
	Required bool
}

// paramErrorPatterns mirrors the four case-insensitive regexes in
// extract_params_from_error, applied in order; every match contributes a
// candidate parameter name.
var paramErrorPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:missing|required)\s+(?:field|param(?:eter)?)[:\s]+['"]?(\w+)['"]?`),
	regexp.MustCompile(`(?i)['"](\w+)['"]\s+(?:is|are)\s+required`),
	regexp.MustCompile(`(?i)(?:field|param(?:eter)?)\s+['"](\w+)['"]\s+(?:is\s+)?(?:missing|required)`),
	regexp.MustCompile(`(?i)expected\s+['"](\w+)['"]`),
}

// ExtractParamsFromError recovers parameter names a server's error message
// calls out as missing or required. Matches of length <= 1 are discarded,
// matching the original's len(match) > 1 filter.
func ExtractParamsFromError(body string) []ParamHint {
	var hints []ParamHint
	for _, re := range paramErrorPatterns {
		for _, m := range re.FindAllStringSubmatch(body, -1) {
			if len(m) < 2 {
				continue
			}
			name := m[1]
			if len(name) <= 1 {
				continue
			}
			hints = append(hints, ParamHint{Name: name, Required: true})
		}
	}
	return hints
}
