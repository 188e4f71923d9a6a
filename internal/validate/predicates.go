package validate

import (
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var tagValidator = sync.OnceValue(func() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
})

func varTag(tag string) Predicate {
	return func(s string) bool {
		return tagValidator().Var(strings.TrimSpace(s), tag) == nil
	}
}

var (
	// Email accepts an address shaped like local@domain.
	Email = varTag("required,email")
	// URL accepts an absolute URL with a scheme.
	URL = varTag("required,url")
)

// optional leading +, separators allowed, at least 4 digits at the end
var phonePattern = regexp.MustCompile(`^\+?(?:[0-9(][0-9 ().-]*)?[0-9]{4,}$`)

func Phone(s string) bool { return phonePattern.MatchString(strings.TrimSpace(s)) }

// IsBool is a Rule.Value check accepting only a JSON true or false, not the
// strings "true" and "false".
func IsBool(v any) bool {
	_, ok := v.(bool)
	return ok
}

func NotEmpty(s string) bool { return strings.TrimSpace(s) != "" }

// MinLength counts runes after trimming.
func MinLength(n int) Predicate {
	return func(s string) bool { return utf8.RuneCountInString(strings.TrimSpace(s)) >= n }
}

// MaxLength counts runes after trimming.
func MaxLength(n int) Predicate {
	return func(s string) bool { return utf8.RuneCountInString(strings.TrimSpace(s)) <= n }
}

// Numeric accepts one or more ASCII digits and nothing else.
func Numeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Range accepts a number between lo and hi inclusive.
func Range(lo, hi float64) Predicate {
	return func(s string) bool {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return false
		}
		return f >= lo && f <= hi
	}
}

// Optional lets an empty value through and applies p otherwise.
func Optional(p Predicate) Predicate {
	return func(s string) bool {
		if strings.TrimSpace(s) == "" {
			return true
		}
		return p(s)
	}
}

// OneOf accepts exactly one of allowed.
func OneOf(allowed ...string) Predicate {
	return func(s string) bool {
		for _, a := range allowed {
			if s == a {
				return true
			}
		}
		return false
	}
}

func containsFunc(f func(rune) bool) Predicate {
	return func(s string) bool { return strings.IndexFunc(s, f) >= 0 }
}

const passwordMinLength = 8

// Password returns the composite password rules for field. Each violated
// condition reports its own message.
func Password(field string) []Rule {
	return []Rule{
		{Field: field, Check: func(s string) bool { return utf8.RuneCountInString(s) >= passwordMinLength },
			Message: "Password must be at least 8 characters long"},
		{Field: field, Check: containsFunc(unicode.IsUpper),
			Message: "Password must contain at least one uppercase letter"},
		{Field: field, Check: containsFunc(unicode.IsLower),
			Message: "Password must contain at least one lowercase letter"},
		{Field: field, Check: containsFunc(unicode.IsDigit),
			Message: "Password must contain at least one number"},
	}
}
