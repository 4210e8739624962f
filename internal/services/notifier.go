package services

import (
	"context"

	"github.com/crowdfund-ton/backend/internal/events"
	"github.com/crowdfund-ton/backend/internal/executor"
	"go.uber.org/zap"
)

// OperationNotifier publishes executor status changes for the websocket hub.
type OperationNotifier struct {
	publisher events.Publisher
	log       *zap.Logger
}

func NewOperationNotifier(publisher events.Publisher, log *zap.Logger) *OperationNotifier {
	return &OperationNotifier{publisher: publisher, log: log}
}

func (n *OperationNotifier) Notify(ctx context.Context, o executor.Outcome) {
	payload := map[string]any{
		"operation": o.Operation,
		"status":    string(o.Status),
	}
	if len(o.Targets) > 0 {
		payload["campaign_id"] = o.Targets[0]
	}
	if o.Digest != "" {
		payload["digest"] = o.Digest
	}
	if o.Error != "" {
		payload["error"] = o.Error
	}
	if o.Reason != "" {
		payload["abort_code"] = uint32(o.Abort)
		payload["reason"] = o.Reason
	}

	if err := n.publisher.Publish(ctx, events.ChannelOperations, events.Event{
		Type:    events.EventOperationStatus,
		Payload: payload,
	}); err != nil {
		n.log.Debug("operation status not published", zap.String("operation", o.Operation), zap.Error(err))
	}
}
