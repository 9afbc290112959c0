package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"ticket_engine/internal/config"
)

// 监控接口只读，只放行 GET。
func corsMiddleware(cfg config.CorsConfig, next http.Handler) http.Handler {
	allowHeaders := strings.Join([]string{"Content-Type", "Authorization"}, ", ")
	allowMethods := strings.Join([]string{http.MethodGet, http.MethodOptions}, ", ")
	maxAge := strconv.Itoa(600)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowed := allowedOrigin(cfg.AllowOrigins, r.Header.Get("Origin")); allowed != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", allowed)
			if allowed != "*" {
				h.Add("Vary", "Origin")
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Max-Age", maxAge)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func allowedOrigin(origins []string, origin string) string {
	for _, o := range origins {
		if o == "*" {
			return "*"
		}
		if origin != "" && strings.EqualFold(o, origin) {
			return origin
		}
	}
	return ""
}
