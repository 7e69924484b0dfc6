package builder

import "strings"

func trim(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// nonNil keeps empty lists as [] rather than null in the JSON document
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func normaliseOrg(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
