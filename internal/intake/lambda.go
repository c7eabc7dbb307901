package intake

import (
	"context"

	"github.com/aws/aws-lambda-go/events"
)

// HandleSQSEvent processes a Lambda SQS batch. Messages that should be
// redelivered are reported as batch item failures; the function needs
// ReportBatchItemFailures enabled on its event source mapping.
func (h *Handler) HandleSQSEvent(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	var resp events.SQSEventResponse
	for _, msg := range ev.Records {
		if err := h.Handle(ctx, "lambda-sqs", msg.MessageId, []byte(msg.Body)); err != nil {
			h.logger.Warn("trigger not accepted, reporting batch item failure", "message", msg.MessageId, "error", err)
			resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
		}
	}
	return resp, nil
}
