package ssehttp

import (
	"net/http"
	"slices"
)

// corsPolicy answers cross-origin requests for the configured origins. An
// entry of "*" allows any origin.
type corsPolicy struct {
	origins []string
}

func (c corsPolicy) enabled() bool { return len(c.origins) > 0 }

func (c corsPolicy) allow(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	if slices.Contains(c.origins, "*") {
		return "*", true
	}
	if slices.Contains(c.origins, origin) {
		return origin, true
	}
	return "", false
}

// apply sets the CORS response headers. It reports true when r was a
// preflight request that has been fully answered.
func (c corsPolicy) apply(w http.ResponseWriter, r *http.Request) bool {
	if !c.enabled() {
		return false
	}
	w.Header().Add("Vary", "Origin")
	allowed, ok := c.allow(r.Header.Get("Origin"))
	if ok {
		w.Header().Set("Access-Control-Allow-Origin", allowed)
	}
	if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
		return false
	}
	if ok {
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, Last-Event-ID")
		w.Header().Set("Access-Control-Max-Age", "600")
	}
	w.WriteHeader(http.StatusNoContent)
	return true
}
