package sanitize

import (
	"net/url"
	"regexp"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"
)

// Kind selects a cleaning policy.
type Kind int

const (
	PlainText Kind = iota
	Email
	URL
	RichText
)

func (k Kind) String() string {
	switch k {
	case PlainText:
		return "plainText"
	case Email:
		return "email"
	case URL:
		return "url"
	case RichText:
		return "richText"
	default:
		return "unknown"
	}
}

// Clean returns value cleaned under kind. Unknown kinds are treated as PlainText.
func Clean(value string, kind Kind) string {
	switch kind {
	case Email:
		return escapeText(strings.TrimSpace(value))
	case URL:
		return cleanURL(value)
	case RichText:
		return richTextPolicy().Sanitize(value)
	default:
		return escapeText(value)
	}
}

// existing character references are kept so escaping twice is a no-op
var charRef = regexp.MustCompile(`^&(?:[a-zA-Z][a-zA-Z0-9]{1,31}|#[0-9]{1,7}|#[xX][0-9a-fA-F]{1,6});`)

const maxCharRefLen = 40

func escapeText(s string) string {
	if !strings.ContainsAny(s, `&<>"'/`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + len(s)/4)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '&':
			end := min(len(s), i+maxCharRefLen)
			if loc := charRef.FindStringIndex(s[i:end]); loc != nil {
				b.WriteString(s[i : i+loc[1]])
				i += loc[1] - 1
				continue
			}
			b.WriteString("&amp;")
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '"':
			b.WriteString("&quot;")
		case '\'':
			b.WriteString("&#x27;")
		case '/':
			b.WriteString("&#x2F;")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

var blockedHostFragments = []string{"javascript:", "data:", "vbscript:"}

func cleanURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	if u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Host)
	for _, frag := range blockedHostFragments {
		if strings.Contains(host, frag) {
			return ""
		}
	}
	return u.String()
}

var richTextPolicy = sync.OnceValue(func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements(
		"b", "i", "em", "strong", "a", "p", "br", "ul", "ol", "li",
		"h1", "h2", "h3", "h4", "h5", "h6", "span", "div", "hr",
	)
	p.AllowAttrs("class").Globally()
	p.AllowAttrs("rel").Globally()
	p.AllowAttrs("target").Matching(regexp.MustCompile(`^_(?:blank|self)$`)).Globally()

	p.AllowURLSchemes("http", "https", "mailto")
	p.RequireParseableURLs(true)
	p.AllowAttrs("href").OnElements("a")

	p.AllowStyles("color", "background-color", "font-weight", "font-style", "text-align", "text-decoration").Globally()
	return p
})
