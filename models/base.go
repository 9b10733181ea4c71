package models

import (
	"context"

	"bitbucket.org/mmdatafocus/stationops_backend/utils"
	"github.com/google/uuid"
)

// auditStamp collects the server-generated audit fields every sub-ledger
// record persists: creator identity, client network origin and correlation
// id. Origin lookup failures degrade to "unknown" and never block a write.
func auditStamp(ctx context.Context) (createdBy int, createdByName string, originIp string, correlationId string) {
	createdBy, _ = utils.GetUserIdFromContext(ctx)
	createdByName, _ = utils.GetUserNameFromContext(ctx)
	originIp = utils.GetOriginIpFromContext(ctx)
	correlationId = correlationIdFromContextOrNew(ctx)
	return
}

func correlationIdFromContextOrNew(ctx context.Context) string {
	if ctx != nil {
		if v, ok := utils.GetCorrelationIdFromContext(ctx); ok && v != "" {
			return v
		}
	}
	return uuid.NewString()
}
