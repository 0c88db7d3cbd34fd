package awsutil

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"provisioner/internal/config"
)

type fakeAttributes struct {
	attrs map[string]string
	err   error
	url   string
}

func (f *fakeAttributes) GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, _ ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error) {
	f.url = *in.QueueUrl
	if f.err != nil {
		return nil, f.err
	}
	return &sqs.GetQueueAttributesOutput{Attributes: f.attrs}, nil
}

func TestQueueReachable(t *testing.T) {
	api := &fakeAttributes{attrs: map[string]string{"QueueArn": "arn:aws:sqs:eu-south-1:000000000000:notifications.fifo"}}
	check := QueueReachable(api, "http://localhost:4566/000000000000/notifications.fifo")
	require.NoError(t, check(context.Background()))
	assert.Equal(t, "http://localhost:4566/000000000000/notifications.fifo", api.url)

	api.attrs = map[string]string{}
	assert.Error(t, check(context.Background()))

	api.err = errors.New("connection refused")
	assert.ErrorContains(t, check(context.Background()), "connection refused")
}

func TestNewSQSClientNeedsQueueURL(t *testing.T) {
	_, err := NewSQSClient(context.Background(), config.SQSConfig{AWSRegion: "eu-south-1"})
	require.Error(t, err)

	c, err := NewSQSClient(context.Background(), config.SQSConfig{
		AWSRegion:          "eu-south-1",
		QueueURL:           "http://localhost:4566/000000000000/notifications.fifo",
		LocalstackEndpoint: "http://localhost:4566",
	})
	require.NoError(t, err)
	assert.NotNil(t, c)
}
