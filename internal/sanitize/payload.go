package sanitize

import "strings"

// KindForField picks the policy for a string held under key. Checks are
// case-insensitive substring matches, first match wins.
func KindForField(key string) Kind {
	k := strings.ToLower(key)
	switch {
	case strings.Contains(k, "email"):
		return Email
	case strings.Contains(k, "url"), strings.Contains(k, "website"):
		return URL
	case strings.Contains(k, "description"), strings.Contains(k, "content"):
		return RichText
	default:
		return PlainText
	}
}

// Payload returns a cleaned copy of v. Strings are cleaned by the name of the
// enclosing field, list elements inherit their list's field name and
// top-level strings are plain text. Other scalars are returned unchanged.
func Payload(v Value) Value {
	return visit("", v)
}

func visit(key string, v Value) Value {
	switch v.typ {
	case TypeString:
		return String(Clean(v.s, KindForField(key)))
	case TypeMap:
		m := make(map[string]Value, len(v.m))
		for k, child := range v.m {
			m[k] = visit(k, child)
		}
		return Map(m)
	case TypeList:
		l := make([]Value, len(v.l))
		for i, child := range v.l {
			l[i] = visit(key, child)
		}
		return List(l)
	case TypeNull, TypeBool, TypeNumber:
		return v
	default:
		panic("sanitize: unhandled value type")
	}
}
