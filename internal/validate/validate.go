// Package validate checks decoded request fields against declared rules.
//
// Every rule runs; a field collects its messages in the order its rules were
// declared, so a client gets the full list of problems in one response.
package validate

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/keithlinneman/babyshower-web/internal/apierror"
)

// Predicate reports whether a stringified field value is acceptable.
type Predicate func(string) bool

// Rule pairs a field with a check and the message reported when it fails.
// Value, when set, replaces Check and sees the decoded value itself, for
// rules about JSON type rather than text.
type Rule struct {
	Field   string
	Check   Predicate
	Value   func(any) bool
	Message string
}

type Result struct {
	Valid  bool
	Errors map[string][]string
}

// Err is nil for a valid result, otherwise a VALIDATION_ERROR carrying the
// per-field messages.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return apierror.Validation(r.Errors)
}

// Validate runs rules against fields. Missing fields validate as "".
func Validate(fields map[string]any, rules []Rule) Result {
	errs := make(map[string][]string)
	for _, rule := range rules {
		var ok bool
		switch v := fields[rule.Field]; {
		case rule.Value != nil:
			ok = rule.Value(v)
		case rule.Check != nil:
			ok = rule.Check(stringify(v))
		default:
			continue
		}
		if !ok {
			errs[rule.Field] = append(errs[rule.Field], rule.Message)
		}
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprint(t)
	}
}
