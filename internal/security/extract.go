package security

import (
	"net/http"
	"strings"
)

const DefaultCookieName = "auth-token"

// TokenExtractor pulls a raw token out of a request. An empty string means
// the source did not carry one.
type TokenExtractor func(r *http.Request) string

func FromBearerHeader(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func FromCookie(name string) TokenExtractor {
	return func(r *http.Request) string {
		c, err := r.Cookie(name)
		if err != nil {
			return ""
		}
		return c.Value
	}
}

// ExtractorChain returns the first token found, trying extractors in order.
func ExtractorChain(extractors ...TokenExtractor) TokenExtractor {
	return func(r *http.Request) string {
		for _, extract := range extractors {
			if token := extract(r); token != "" {
				return token
			}
		}
		return ""
	}
}

// DefaultExtractor checks the bearer header first and falls back to the
// session cookie.
func DefaultExtractor(cookieName string) TokenExtractor {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	return ExtractorChain(FromBearerHeader, FromCookie(cookieName))
}
