package logstore

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"formtel/pkg/model"
)

// Operator defines the comparison used by a Match.
type Operator string

const (
	OpEquals   Operator = "equals"
	OpContains Operator = "contains"
	OpRegex    Operator = "regex"
)

// fieldPaths resolves short field names to locations in a record's JSON form.
// Fields containing "/" are raw paths; anything else is a property key.
var fieldPaths = map[string]string{
	"level":     "level",
	"message":   "message",
	"msg":       "message",
	"exception": "exception",
	"timestamp": "timestamp",
}

// Match selects records by one field. Field is either a short name
// ("level", "message", "exception", "timestamp"), a property key, or an
// explicit path using "/" separators ("properties/form.id").
type Match struct {
	Field    string
	Operator Operator
	Value    string

	regex *regexp.Regexp
}

// ParseMatch parses "field=value", "field~value" (contains) and
// "field=~pattern" (regex).
func ParseMatch(expr string) (Match, error) {
	var m Match
	switch {
	case strings.Contains(expr, "=~"):
		i := strings.Index(expr, "=~")
		m = Match{Field: expr[:i], Operator: OpRegex, Value: expr[i+2:]}
	case strings.Contains(expr, "~"):
		i := strings.Index(expr, "~")
		m = Match{Field: expr[:i], Operator: OpContains, Value: expr[i+1:]}
	case strings.Contains(expr, "="):
		i := strings.Index(expr, "=")
		m = Match{Field: expr[:i], Operator: OpEquals, Value: expr[i+1:]}
	default:
		return Match{}, fmt.Errorf("invalid match expression %q", expr)
	}
	m.Field = strings.TrimSpace(m.Field)
	if m.Field == "" {
		return Match{}, fmt.Errorf("invalid match expression %q: empty field", expr)
	}
	return m, m.compile()
}

func (m *Match) compile() error {
	if m.Operator == "" {
		m.Operator = OpEquals
	}
	if m.Operator == OpRegex && m.regex == nil {
		re, err := regexp.Compile(m.Value)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		m.regex = re
	}
	return nil
}

// Select returns the records matching every m, preserving order.
func Select(records []model.LogRecord, matches ...Match) ([]model.LogRecord, error) {
	for i := range matches {
		if err := matches[i].compile(); err != nil {
			return nil, err
		}
	}

	out := make([]model.LogRecord, 0, len(records))
	for _, rec := range records {
		raw, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		keep := true
		for _, m := range matches {
			if !m.matches(raw) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m Match) matches(raw []byte) bool {
	value := lookup(raw, m.Field)
	if !value.Exists() {
		return false
	}
	str := value.String()

	switch m.Operator {
	case OpEquals:
		// Level names are matched case-insensitively so "error" finds "Error".
		if m.Field == "level" {
			return strings.EqualFold(str, m.Value)
		}
		return str == m.Value
	case OpContains:
		return strings.Contains(str, m.Value)
	case OpRegex:
		return m.regex != nil && m.regex.MatchString(str)
	default:
		return false
	}
}

func lookup(raw []byte, field string) gjson.Result {
	if path, ok := fieldPaths[field]; ok {
		return gjson.GetBytes(raw, path)
	}
	if strings.Contains(field, "/") {
		return gjson.GetBytes(raw, toGjsonPath(field))
	}
	return gjson.GetBytes(raw, "properties."+escape(field))
}

func escape(part string) string {
	return strings.ReplaceAll(part, ".", "\\.")
}

// toGjsonPath converts "properties/form.id" to "properties.form\.id".
func toGjsonPath(userPath string) string {
	parts := strings.Split(userPath, "/")
	for i, part := range parts {
		parts[i] = escape(part)
	}
	return strings.Join(parts, ".")
}
