package i18n

import (
	"net/http"
	"time"
)

// LangCookie remembers a language picked with the lang query parameter.
const LangCookie = "examgen_lang"

// Middleware attaches the request language to each request. A supported
// ?lang= value wins and is remembered in a cookie scoped to basePath;
// otherwise the cookie, then the server language apply. Accept-Language is
// not consulted.
func Middleware(lang, basePath string) func(http.Handler) http.Handler {
	cookiePath := basePath + "/"
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			chosen := lang
			if q, ok := Match(r.URL.Query().Get("lang")); ok {
				chosen = q
				http.SetCookie(w, &http.Cookie{
					Name:     LangCookie,
					Value:    q,
					Path:     cookiePath,
					MaxAge:   int((365 * 24 * time.Hour).Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
				})
			} else if c, err := r.Cookie(LangCookie); err == nil {
				if m, ok := Match(c.Value); ok {
					chosen = m
				}
			}
			next.ServeHTTP(w, r.WithContext(WithLang(r.Context(), chosen)))
		})
	}
}
