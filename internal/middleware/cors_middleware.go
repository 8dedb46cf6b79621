package middleware

import (
	"net/http"
	"strings"
)

// CORSMiddleware lets browser-based operator consoles call the conflict API
// from the configured origins. Headers are only granted to matching origins;
// preflight requests are answered without reaching the handlers.
func CORSMiddleware(allowedOrigins, allowedMethods, allowedHeaders string) func(http.Handler) http.Handler {
	origins := strings.Split(allowedOrigins, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if grant := grantedOrigin(origins, r.Header.Get("Origin")); grant != "" {
				w.Header().Set("Access-Control-Allow-Origin", grant)
				w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// grantedOrigin returns the Allow-Origin value for a request origin, or ""
// when the origin is not allowed. A wildcard entry echoes the requesting
// origin so the grant stays per-request.
func grantedOrigin(allowed []string, origin string) string {
	for _, candidate := range allowed {
		if candidate == "*" {
			if origin != "" {
				return origin
			}
			return "*"
		}
		if candidate != "" && candidate == origin {
			return origin
		}
	}
	return ""
}
