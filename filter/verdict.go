package filter

import "strings"

// ParseVerdict interprets a model reply as a relevance decision. The model
// is asked for exactly one word but is not perfectly constrained, so this is
// a deliberately tolerant substring parse: any reply containing RELEVANT
// counts as relevant unless it also contains NOT RELEVANT, case-insensitive.
func ParseVerdict(response string) bool {
	upper := strings.ToUpper(response)
	if strings.Contains(upper, "NOT RELEVANT") {
		return false
	}
	return strings.Contains(upper, "RELEVANT")
}
