package records

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/teranos/moverdesk/errors"
)

// ID is a numeric record id. In criteria it renders unquoted: (ID == 123).
type ID string

// Criteria builds a single-clause provider filter. String values are quoted
// and escaped; ID, integer and json.Number values render bare and must be
// all digits so a caller-supplied id cannot widen the filter.
func Criteria(field string, value any) (string, error) {
	if !validFieldName(field) {
		return "", errors.NewInvalidRequestError("invalid criteria field %q", field)
	}

	switch v := value.(type) {
	case ID:
		return numericClause(field, string(v))
	case json.Number:
		return numericClause(field, v.String())
	case int:
		return numericClause(field, strconv.Itoa(v))
	case int64:
		return numericClause(field, strconv.FormatInt(v, 10))
	case string:
		return fmt.Sprintf(`(%s == "%s")`, field, escapeCriteria(v)), nil
	default:
		return "", errors.NewInvalidRequestError("unsupported criteria value %T for %s", value, field)
	}
}

func numericClause(field, digits string) (string, error) {
	digits = strings.TrimSpace(digits)
	if !isDigits(digits) {
		return "", errors.NewInvalidRequestError("%s must be numeric, got %q", field, digits)
	}
	return fmt.Sprintf("(%s == %s)", field, digits), nil
}

func escapeCriteria(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func validFieldName(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '.':
		default:
			return false
		}
	}
	return true
}

// DigitsOnly strips every non-digit, the way the calendar feed sanitizes ids.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
