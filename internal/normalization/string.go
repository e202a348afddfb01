package normalization

import (
  "strings"
)

func ParseInputString(input string) string {
  normalized := strings.ToLower(strings.TrimSpace(input))
  return normalized
}

// ParseSQLInput trims surrounding whitespace but preserves case, since SQL
// string literals are case sensitive.
func ParseSQLInput(input string) string {
  return strings.TrimSpace(input)
}
