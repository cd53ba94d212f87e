package middleware

import (
	"context"
	"net/http"
	"strings"
)

type localeContextKey struct{}

// LocaleKey is the context key under which the detected locale is stored.
var LocaleKey = localeContextKey{}

// I18N detects the client locale from the X-Locale header or the
// Accept-Language header and stores it on the request context. Only "en"
// and "id" are recognized.
func I18N(defaultLocale string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			locale := detectLocale(r, defaultLocale)
			ctx := context.WithValue(r.Context(), LocaleKey, locale)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LocaleFromContext returns the locale detected for the request.
func LocaleFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(LocaleKey).(string); ok {
		return v
	}
	return "en"
}

func detectLocale(r *http.Request, fallback string) string {
	if v := r.Header.Get("X-Locale"); v != "" {
		return normalizeLocale(v)
	}
	if v := parseAcceptLanguage(r.Header.Get("Accept-Language")); v != "" {
		return v
	}
	if fallback != "" {
		return normalizeLocale(fallback)
	}
	return "en"
}

func parseAcceptLanguage(header string) string {
	for _, part := range strings.Split(header, ",") {
		locale := strings.TrimSpace(strings.Split(part, ";")[0])
		if locale == "" {
			continue
		}
		return normalizeLocale(locale)
	}
	return ""
}

func normalizeLocale(locale string) string {
	if strings.HasPrefix(strings.ToLower(locale), "id") {
		return "id"
	}
	return "en"
}
