package worker

import (
	"github.com/spec-kit/session-service/internal/service"
)

// StartAuditWorker registers the audit handlers on the session event dispatcher.
func StartAuditWorker(auditService *service.AuditService) {
	if auditService == nil {
		return
	}
	auditService.RegisterHandlers()
}
