// internal/service/notifier.go
package service

import (
	"context"

	"go.uber.org/zap"

	"challenge-orchestrator/internal/metrics"
	"challenge-orchestrator/internal/models"
)

// AttachmentNotifier pushes completed-challenge evidence to the order service
// for sessions created within an order context. Calls are synchronous so the
// caller's subsequent read of order state observes the attachment. The engine
// guarantees at most one call per terminal transition.
type AttachmentNotifier struct {
	orders EvidenceSink
	logger *zap.Logger
}

func NewAttachmentNotifier(orders EvidenceSink, logger *zap.Logger) *AttachmentNotifier {
	return &AttachmentNotifier{orders: orders, logger: logger}
}

func (n *AttachmentNotifier) NotifyTerminal(ctx context.Context, session *models.PaymentSession) {
	evidence := &models.ChallengeEvidence{
		PaymentInstrumentID: session.PaymentInstrumentID,
		ChallengeType:       session.ChallengeType,
		ChallengeStatus:     session.ChallengeStatus,
		SessionID:           session.ID,
		TenantID:            session.TenantID,
	}
	if err := n.orders.AttachChallengeEvidence(ctx, session.RequestID, evidence); err != nil {
		n.logger.Error("failed to attach challenge evidence",
			zap.String("session_id", session.ID),
			zap.String("request_id", session.RequestID),
			zap.Error(err))
		return
	}
	metrics.EvidenceAttached.Inc()
}
