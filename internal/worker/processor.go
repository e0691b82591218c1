package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/renomarket/dispatch-be/internal/domain"
	"github.com/renomarket/dispatch-be/internal/queue"
)

// processEnvelope routes one envelope through the dispatch engine with a
// per-message timeout.
func (w *Worker) processEnvelope(ctx context.Context, msg *envelopeMessage) error {
	ctx, cancel := context.WithTimeout(ctx, w.messageTimeout)
	defer cancel()

	switch msg.Envelope.Type {
	case queue.TypeInbound:
		inbound := msg.Envelope.Inbound
		w.logger.Info("Processing inbound message",
			slog.String("provider_message_id", inbound.ProviderMessageID),
			slog.String("worker_id", w.workerID),
		)
		return w.engine.HandleInbound(ctx, inbound)

	case queue.TypeStatus:
		status := msg.Envelope.Status
		err := w.engine.HandleDeliveryStatus(ctx, status.ProviderMessageID, status.Status)
		if errors.Is(err, domain.ErrAssignmentNotFound) {
			// Status callbacks for reply sends have no assignment row to
			// update. Nothing to do.
			w.logger.Debug("Status callback for untracked message",
				slog.String("provider_message_id", status.ProviderMessageID),
			)
			return nil
		}
		return err

	default:
		// The dispatcher validates envelopes before queueing them here.
		return fmt.Errorf("unknown envelope type: %s", msg.Envelope.Type)
	}
}
