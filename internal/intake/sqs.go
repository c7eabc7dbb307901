package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/dwsmith1983/riskreactor/internal/schedule"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

// SQSAPI is the subset of the SQS client used by the poller.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, opts ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, opts ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSPoller long-polls a queue and feeds each message to a Handler.
type SQSPoller struct {
	client   SQSAPI
	queueURL string
	wait     int32
	max      int32
	handler  *Handler
	logger   *slog.Logger
	retry    types.RetryPolicy
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// NewSQSPoller creates a poller for cfg.QueueURL.
func NewSQSPoller(client SQSAPI, cfg *types.SQSIntakeConfig, handler *Handler, logger *slog.Logger) *SQSPoller {
	if logger == nil {
		logger = slog.Default()
	}
	p := &SQSPoller{
		client:   client,
		queueURL: cfg.QueueURL,
		wait:     cfg.WaitTimeSeconds,
		max:      cfg.MaxMessages,
		handler:  handler,
		logger:   logger,
		retry:    schedule.DefaultRetryPolicy(),
	}
	if p.wait <= 0 || p.wait > 20 {
		p.wait = 20
	}
	if p.max <= 0 || p.max > 10 {
		p.max = 10
	}
	return p
}

// Run polls until ctx is cancelled. Receive errors back off with jitter.
func (p *SQSPoller) Run(ctx context.Context) error {
	p.logger.Info("sqs intake started", "queue", p.queueURL)
	defer p.logger.Info("sqs intake stopped", "queue", p.queueURL)

	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := p.Poll(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return nil
			}
			failures++
			p.logger.Error("sqs receive failed", "queue", p.queueURL, "attempt", failures, "error", err)
			if err := schedule.Sleep(ctx, schedule.JitteredBackoff(p.retry, failures)); err != nil {
				return nil
			}
			continue
		}
		failures = 0
		if n > 0 {
			p.logger.Debug("sqs batch handled", "messages", n)
		}
	}
}

// Poll receives one batch and handles it, returning the number of messages
// received.
func (p *SQSPoller) Poll(ctx context.Context) (int, error) {
	out, err := p.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(p.queueURL),
		MaxNumberOfMessages: p.max,
		WaitTimeSeconds:     p.wait,
	})
	if err != nil {
		return 0, err
	}
	for _, msg := range out.Messages {
		p.handle(ctx, msg)
	}
	return len(out.Messages), nil
}

func (p *SQSPoller) handle(ctx context.Context, msg sqstypes.Message) {
	id := aws.ToString(msg.MessageId)
	if err := p.handler.Handle(ctx, "sqs", id, []byte(aws.ToString(msg.Body))); err != nil {
		// Left on the queue; the visibility timeout redelivers it.
		p.logger.Warn("trigger not accepted, awaiting redelivery", "message", id, "error", err)
		return
	}
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if _, err := p.client.DeleteMessage(delCtx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(p.queueURL),
		ReceiptHandle: msg.ReceiptHandle,
	}); err != nil {
		p.logger.Error("sqs delete failed", "message", id, "error", err)
	}
}
