package middleware

import (
	"net/http"
	"strings"
)

// TrimSlash redirects paths ending in one or more slashes to the bare path,
// keeping the query. GET and HEAD get 301; other methods get 308 so uploads
// and compile requests are replayed with their method and body.
func TrimSlash() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			trimmed := strings.TrimRight(path, "/")
			if path == "/" || trimmed == path {
				next.ServeHTTP(w, r)
				return
			}
			if trimmed == "" {
				trimmed = "/"
			}

			target := trimmed
			if r.URL.RawQuery != "" {
				target += "?" + r.URL.RawQuery
			}

			code := http.StatusPermanentRedirect
			if r.Method == http.MethodGet || r.Method == http.MethodHead {
				code = http.StatusMovedPermanently
			}
			http.Redirect(w, r, target, code)
		})
	}
}
