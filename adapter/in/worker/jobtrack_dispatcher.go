package worker

import (
	"context"

	"jobtrack_server/pkg/logger"
)

type Handler struct {
	syncProcessor *SyncProcessor
}

func NewHandler(syncProcessor *SyncProcessor) *Handler {
	return &Handler{syncProcessor: syncProcessor}
}

func (h *Handler) Process(ctx context.Context, msg *Message) error {
	logger.Debug("Processing message: %s", msg.Type)

	switch msg.Type {
	case JobSyncAccount:
		return h.syncProcessor.ProcessSyncAccount(ctx, msg)
	case JobSyncOwner:
		return h.syncProcessor.ProcessSyncOwner(ctx, msg)
	default:
		logger.Warn("Unknown job type: %s", msg.Type)
		return nil
	}
}
