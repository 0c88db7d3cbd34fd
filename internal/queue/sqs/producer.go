package sqsqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// API is the subset of the SQS client used here.
type API interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Producer struct {
	SQS      API
	QueueURL string
	// GroupBuckets spreads FIFO message groups; 0 uses the default.
	GroupBuckets int
}

// EmailJob points the notifier at a stored notification row.
type EmailJob struct {
	NotificationID string `json:"notificationId"`
	Kind           string `json:"kind"`
	To             string `json:"to"`
	OrderID        string `json:"orderId,omitempty"`
}

func (p *Producer) EnqueueEmail(ctx context.Context, job EmailJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}
	in := &sqs.SendMessageInput{
		QueueUrl:    &p.QueueURL,
		MessageBody: str(string(body)),
	}
	if strings.HasSuffix(p.QueueURL, ".fifo") {
		in.MessageGroupId = str(messageGroupID(job.To, p.GroupBuckets))
		in.MessageDeduplicationId = str(job.NotificationID)
	}
	_, err = p.SQS.SendMessage(ctx, in)
	return err
}

const defaultGroupBuckets = 256

// messageGroupID keeps mail for one recipient ordered without creating one
// FIFO group per address.
func messageGroupID(to string, buckets int) string {
	if buckets <= 0 {
		buckets = defaultGroupBuckets
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(strings.TrimSpace(to))))
	return fmt.Sprintf("email:%d", h.Sum32()%uint32(buckets))
}

func str(s string) *string { return &s }
