package middleware

import (
	"net/http"
	"strings"
)

// CORSPolicy describes which browser origins may call one API surface.
// Each surface gets its own policy so the Teams webhook stays untouched.
type CORSPolicy struct {
	Origins []string
	Methods []string
	// Headers lists request headers a browser may send besides the safelisted ones.
	Headers []string
}

// NotifyCORS covers the notify API: read channels, post notifications.
func NotifyCORS(origins []string) CORSPolicy {
	return CORSPolicy{
		Origins: origins,
		Methods: []string{http.MethodGet, http.MethodPost},
		Headers: []string{"Content-Type", "X-API-Key", RequestIDHeader},
	}
}

// AdminCORS covers the session admin API, which is bearer authenticated.
func AdminCORS(origins []string) CORSPolicy {
	return CORSPolicy{
		Origins: origins,
		Methods: []string{http.MethodGet, http.MethodDelete},
		Headers: []string{"Authorization", RequestIDHeader},
	}
}

// Enabled reports whether any origin is allowed.
func (p CORSPolicy) Enabled() bool {
	for _, o := range p.Origins {
		if strings.TrimSpace(o) != "" {
			return true
		}
	}
	return false
}

// Handler wraps next. Preflights are answered here and never reach next;
// a preflight from an unlisted origin gets 403 so the browser stops early.
func (p CORSPolicy) Handler(next http.Handler) http.Handler {
	allowAny := false
	allow := make(map[string]struct{}, len(p.Origins))
	for _, origin := range p.Origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			allowAny = true
		default:
			allow[strings.ToLower(origin)] = struct{}{}
		}
	}
	methods := strings.Join(append(append([]string(nil), p.Methods...), http.MethodOptions), ", ")
	headers := strings.Join(p.Headers, ", ")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Add("Vary", "Origin")

		_, listed := allow[strings.ToLower(origin)]
		if !allowAny && !listed {
			if preflight {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Expose-Headers", RequestIDHeader)
		if preflight {
			w.Header().Set("Access-Control-Allow-Methods", methods)
			w.Header().Set("Access-Control-Allow-Headers", headers)
			w.Header().Set("Access-Control-Max-Age", "600")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
