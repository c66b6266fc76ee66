package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// AWSClients holds the service clients a binary asked for. Services that
// were not requested are left nil.
type AWSClients struct {
	DynamoDB   DynamoDBAPI
	SQS        SQSAPI
	CloudWatch CloudWatchAPI
}

// Service selects which clients NewAWSClients builds.
type Service uint8

const (
	ServiceDynamoDB Service = 1 << iota
	ServiceSQS
	ServiceCloudWatch

	AllServices = ServiceDynamoDB | ServiceSQS | ServiceCloudWatch
)

// NewAWSClients resolves the shared config once and builds the selected clients.
// With no services given it builds all of them.
func NewAWSClients(ctx context.Context, opts Options, services ...Service) (*AWSClients, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}

	want := Service(0)
	for _, s := range services {
		want |= s
	}
	if want == 0 {
		want = AllServices
	}

	c := &AWSClients{}
	if want&ServiceDynamoDB != 0 {
		c.DynamoDB = dynamodb.NewFromConfig(cfg)
	}
	if want&ServiceSQS != 0 {
		c.SQS = sqs.NewFromConfig(cfg)
	}
	if want&ServiceCloudWatch != 0 {
		c.CloudWatch = cloudwatch.NewFromConfig(cfg)
	}
	return c, nil
}
