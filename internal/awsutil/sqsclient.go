// Package awsutil builds the SQS client shared by the api (producer) and the
// notifier (consumer).
package awsutil

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	configv2 "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"provisioner/internal/config"
)

// NewSQSClient builds a client for the notification queue. LocalstackEndpoint,
// when set, overrides the endpoint and switches to static test credentials.
func NewSQSClient(ctx context.Context, cfg config.SQSConfig) (*sqs.Client, error) {
	if cfg.QueueURL == "" {
		return nil, errors.New("SQS_QUEUE_URL is required")
	}
	loadOpts := []func(*configv2.LoadOptions) error{configv2.WithRegion(cfg.AWSRegion)}
	local := cfg.LocalstackEndpoint != ""
	if local {
		loadOpts = append(loadOpts, configv2.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider("test", "test", ""),
		))
	}
	awsCfg, err := configv2.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if local {
			o.BaseEndpoint = aws.String(cfg.LocalstackEndpoint)
		}
	}), nil
}

// QueueAttributesAPI is the slice of the SQS client the readiness check needs.
type QueueAttributesAPI interface {
	GetQueueAttributes(ctx context.Context, in *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// QueueReachable returns a readiness check that resolves the queue ARN.
func QueueReachable(api QueueAttributesAPI, queueURL string) func(context.Context) error {
	return func(ctx context.Context) error {
		out, err := api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
			QueueUrl:       aws.String(queueURL),
			AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
		})
		if err != nil {
			return fmt.Errorf("notification queue %s: %w", queueURL, err)
		}
		if out.Attributes[string(types.QueueAttributeNameQueueArn)] == "" {
			return fmt.Errorf("notification queue %s: no arn reported", queueURL)
		}
		return nil
	}
}
