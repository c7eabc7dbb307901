// Package intake feeds trigger events from message brokers into the reactor.
// Every source decodes the same JSON body:
//
//	{"type": "UpdateTaskRisk", "id": "<uuid>", "date": "2024-01-15"}
//
// A message is acknowledged once its event is queued or when redelivering it
// cannot succeed (undecodable body, unknown entity). Other failures leave the
// message with the broker for redelivery.
package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// Adder accepts trigger events. *reactor.Reactor satisfies it.
type Adder interface {
	Add(ctx context.Context, ev types.TriggerEvent) (int, error)
}

// DecodeEvent parses and validates one message body. Failures wrap
// types.ErrEncoding.
func DecodeEvent(body []byte) (types.TriggerEvent, error) {
	var ev types.TriggerEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return types.TriggerEvent{}, fmt.Errorf("%w: decoding trigger: %v", types.ErrEncoding, err)
	}
	if err := ev.Validate(); err != nil {
		return types.TriggerEvent{}, fmt.Errorf("%w: %v", types.ErrEncoding, err)
	}
	return ev, nil
}

// Permanent reports whether redelivering the message would fail the same way.
func Permanent(err error) bool {
	return errors.Is(err, types.ErrEncoding) || errors.Is(err, types.ErrMissingDependency)
}

// Handler decodes message bodies and hands them to an Adder.
type Handler struct {
	adder  Adder
	logger *slog.Logger
}

// NewHandler creates a Handler. A nil logger uses slog.Default.
func NewHandler(adder Adder, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{adder: adder, logger: logger}
}

// Handle processes one message body from source. It returns nil when the
// message should be acknowledged, including permanently failing ones, which
// are logged and dropped.
func (h *Handler) Handle(ctx context.Context, source, messageID string, body []byte) error {
	ev, err := DecodeEvent(body)
	if err == nil {
		var n int
		n, err = h.adder.Add(ctx, ev)
		if err == nil {
			h.logger.Debug("trigger accepted", "source", source, "message", messageID, "trigger", ev.String(), "jobs", n)
			return nil
		}
	}
	if Permanent(err) {
		h.logger.Warn("dropping trigger message", "source", source, "message", messageID, "error", err)
		return nil
	}
	return fmt.Errorf("message %s: %w", messageID, err)
}
