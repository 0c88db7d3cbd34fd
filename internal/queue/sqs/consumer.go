package sqsqueue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

type Consumer struct {
	SQS      API
	QueueURL string

	WaitTimeSeconds   int32
	MaxMessages       int32
	VisibilityTimeout int32
}

type Handler func(ctx context.Context, job EmailJob) error

// Poll is PollConcurrent with a single inline worker.
func (c *Consumer) Poll(ctx context.Context, handler Handler) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, ok := c.receive(ctx)
		if !ok {
			continue
		}
		for _, m := range msgs {
			c.handle(ctx, m, handler)
		}
	}
}

// PollConcurrent processes messages with a worker pool. Messages are deleted only after handler completes.
func (c *Consumer) PollConcurrent(ctx context.Context, workers int, handler Handler) error {
	if workers <= 0 {
		return c.Poll(ctx, handler)
	}

	jobs := make(chan types.Message, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for m := range jobs {
				c.handle(ctx, m, handler)
			}
		}()
	}

	err := func() error {
		defer close(jobs)
		for {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			msgs, ok := c.receive(ctx)
			if !ok {
				continue
			}
			for _, m := range msgs {
				select {
				case jobs <- m:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}()

	// Let workers finish whatever is already in `jobs`
	wg.Wait()
	return err
}

func (c *Consumer) receive(ctx context.Context) ([]types.Message, bool) {
	out, err := c.SQS.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            &c.QueueURL,
		MaxNumberOfMessages: c.MaxMessages,
		WaitTimeSeconds:     c.WaitTimeSeconds,
		VisibilityTimeout:   c.VisibilityTimeout,
	})
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("sqs receive message failed", "err", err)
			time.Sleep(500 * time.Millisecond)
		}
		return nil, false
	}
	return out.Messages, true
}

func (c *Consumer) handle(ctx context.Context, m types.Message, handler Handler) {
	var job EmailJob
	if m.Body == nil || json.Unmarshal([]byte(*m.Body), &job) != nil || job.NotificationID == "" {
		// poison message: delete to avoid endless redrive
		slog.Warn("dropping undecodable queue message", "message_id", deref(m.MessageId))
		c.delete(ctx, m)
		return
	}
	if err := handler(ctx, job); err != nil {
		// not deleted: visibility timeout and redrive policy handle the retry
		slog.Error("sqs handler error", "notification_id", job.NotificationID, "err", err)
		return
	}
	c.delete(ctx, m)
}

func (c *Consumer) delete(ctx context.Context, m types.Message) {
	if _, err := c.SQS.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      &c.QueueURL,
		ReceiptHandle: m.ReceiptHandle,
	}); err != nil {
		slog.Error("sqs delete message failed", "err", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
