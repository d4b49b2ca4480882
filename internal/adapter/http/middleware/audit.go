package middleware

import (
	"encoding/json"

	"settlement-ledger/internal/core/domain"
	"settlement-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
)

// AuditLog audits successful write requests whose handlers do not record
// their own audit entry. It keys on the matched route pattern.
func AuditLog(auditSvc ports.AuditService) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		switch c.Request.Method {
		case "GET", "HEAD", "OPTIONS":
			return
		}

		action, resourceType := mapRouteToAction(c.FullPath(), c.Request.Method)
		if action == "" {
			return
		}

		details, _ := json.Marshal(map[string]interface{}{
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"status": c.Writer.Status(),
		})

		auditSvc.Log(c.Request.Context(), &domain.AuditLog{
			Actor:        Address(c),
			Action:       action,
			ResourceType: resourceType,
			ResourceID:   c.Param("id"),
			IPAddress:    c.ClientIP(),
			Details:      string(details),
		})
	}
}

func mapRouteToAction(route, method string) (domain.AuditAction, string) {
	switch {
	case route == "/api/v1/accounts/register" && method == "POST":
		return domain.AuditActionRegister, "account"
	case route == "/api/v1/accounts/login" && method == "POST":
		return domain.AuditActionLogin, "session"
	case route == "/api/v1/merchants/:id/webhook" && method == "PUT":
		return domain.AuditActionUpdateWebhook, "merchant"
	}
	return "", ""
}
