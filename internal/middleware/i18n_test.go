package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func detectThrough(t *testing.T, configure func(r *http.Request)) string {
	t.Helper()
	var locale string
	handler := I18N("en")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale = LocaleFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	configure(req)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	return locale
}

func TestI18NPrefersXLocaleHeader(t *testing.T) {
	locale := detectThrough(t, func(r *http.Request) {
		r.Header.Set("X-Locale", "id-ID")
		r.Header.Set("Accept-Language", "en-US")
	})
	if locale != "id" {
		t.Fatalf("locale = %q, want id", locale)
	}
}

func TestI18NParsesAcceptLanguage(t *testing.T) {
	locale := detectThrough(t, func(r *http.Request) {
		r.Header.Set("Accept-Language", "id;q=0.9, en;q=0.8")
	})
	if locale != "id" {
		t.Fatalf("locale = %q, want id", locale)
	}
}

func TestI18NFallsBackToDefault(t *testing.T) {
	if locale := detectThrough(t, func(r *http.Request) {}); locale != "en" {
		t.Fatalf("locale = %q, want en", locale)
	}
}

func TestI18NUnknownLanguageMapsToEnglish(t *testing.T) {
	locale := detectThrough(t, func(r *http.Request) {
		r.Header.Set("Accept-Language", "fr-FR")
	})
	if locale != "en" {
		t.Fatalf("locale = %q, want en", locale)
	}
}
