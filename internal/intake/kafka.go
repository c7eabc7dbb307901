package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dwsmith1983/riskreactor/internal/schedule"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const defaultPollTimeout = 5 * time.Second

// MessageReader is the subset of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads trigger events from a consumer group. Offsets are
// committed only after a message is accepted or dropped, so a crash replays
// uncommitted triggers.
type KafkaConsumer struct {
	reader  MessageReader
	topic   string
	handler *Handler
	logger  *slog.Logger
	poll    time.Duration
	retry   types.RetryPolicy
}

// NewKafkaReader builds a group reader for cfg.
func NewKafkaReader(cfg *types.KafkaIntakeConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
}

// NewKafkaConsumer wraps reader.
func NewKafkaConsumer(reader MessageReader, topic string, handler *Handler, logger *slog.Logger) *KafkaConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaConsumer{
		reader:  reader,
		topic:   topic,
		handler: handler,
		logger:  logger,
		poll:    defaultPollTimeout,
		retry:   schedule.DefaultRetryPolicy(),
	}
}

// Close shuts down the reader.
func (c *KafkaConsumer) Close() error { return c.reader.Close() }

// Run consumes until ctx is cancelled or the reader is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.logger.Info("kafka intake started", "topic", c.topic)
	defer c.logger.Info("kafka intake stopped", "topic", c.topic)

	for {
		if ctx.Err() != nil {
			return nil
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			switch {
			case errors.Is(err, context.DeadlineExceeded):
				continue
			case errors.Is(err, context.Canceled):
				if ctx.Err() != nil {
					return nil
				}
				continue
			case errors.Is(err, io.ErrClosedPipe), errors.Is(err, kafka.ErrGroupClosed), errors.Is(err, io.EOF):
				return nil
			}
			c.logger.Error("kafka fetch failed", "topic", c.topic, "error", err)
			continue
		}

		if err := c.deliver(ctx, msg); err != nil {
			return nil
		}

		commitCtx, commitCancel := context.WithTimeout(context.WithoutCancel(ctx), c.poll)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			c.logger.Error("kafka commit failed", "topic", c.topic, "offset", msg.Offset, "error", err)
		}
		commitCancel()
	}
}

// deliver retries retryable failures in place because later offsets cannot
// be committed past this one. It only fails when ctx is cancelled.
func (c *KafkaConsumer) deliver(ctx context.Context, msg kafka.Message) error {
	id := strconv.Itoa(msg.Partition) + ":" + strconv.FormatInt(msg.Offset, 10)
	for attempt := 1; ; attempt++ {
		err := c.handler.Handle(ctx, "kafka", id, msg.Value)
		if err == nil {
			return nil
		}
		c.logger.Warn("trigger not accepted, retrying", "message", id, "attempt", attempt, "error", err)
		if err := schedule.Sleep(ctx, schedule.JitteredBackoff(c.retry, attempt)); err != nil {
			return err
		}
	}
}
