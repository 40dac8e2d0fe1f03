package handler

import (
	"net"
	"net/http"
	"strings"

	"caregiver-hub/internal/middleware"
	"caregiver-hub/internal/model"
	"caregiver-hub/pkg/apierror"
)

// requireUser returns the caregiver or admin behind the request, writing a
// 401 when there is none.
func requireUser(w http.ResponseWriter, r *http.Request) (model.UserPrincipal, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return model.UserPrincipal{}, false
	}
	return user, true
}

func clientIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}

	xri := strings.TrimSpace(r.Header.Get("X-Real-IP"))
	if xri != "" {
		return xri
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}

	return strings.TrimSpace(r.RemoteAddr)
}
