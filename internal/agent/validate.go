package agent

import "strings"

// dangerousKeywords are matched with a trailing space so identifiers such as
// "updated_at" do not trip the gate.
var dangerousKeywords = []string{"DROP ", "DELETE ", "UPDATE ", "INSERT ", "ALTER ", "TRUNCATE "}

// IsSafeSQL is a coarse lexical gate, not a parser: it admits only statements
// that start with SELECT and contain no mutating keyword. Comment tricks and
// stacked statements can still smuggle content past it; the store connection
// being the execution boundary, that residual risk is accepted.
func IsSafeSQL(sqlText string) bool {
	normalized := strings.ToUpper(strings.TrimSpace(sqlText))
	if !strings.HasPrefix(normalized, "SELECT") {
		return false
	}
	for _, keyword := range dangerousKeywords {
		if strings.Contains(normalized, keyword) {
			return false
		}
	}
	return true
}
