package handler

import (
	"net"
	"net/http"
	"strings"

	"crm-api/internal/middleware"
	"crm-api/internal/model"
)

// actorFromRequest identifies the caller for audit entries. Deletions are
// committed after the request ends, so the actor is captured up front.
func actorFromRequest(r *http.Request) model.AuditActor {
	actor := model.AuditActor{
		IP:        clientIP(r),
		RequestID: middleware.RequestIDFromContext(r.Context()),
	}

	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		actor.UserID = claims.UserID
		actor.Username = claims.Username
		actor.Role = claims.Role
	}
	return actor
}

func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr)); err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
