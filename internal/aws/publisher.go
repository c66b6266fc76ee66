package aws

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ResolutionEvent is published once an order's final URL has been recorded.
type ResolutionEvent struct {
	OrderNo    string    `json:"order_no"`
	FinalURL   string    `json:"final_url"`
	RunID      string    `json:"run_id,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}

// Publisher wraps an SQS client and a queue URL.
type Publisher struct {
	SQS      SQSAPI
	QueueURL string
}

// NewPublisher returns a Publisher bound to a queue URL.
func NewPublisher(sqsClient SQSAPI, queueURL string) *Publisher {
	return &Publisher{
		SQS:      sqsClient,
		QueueURL: queueURL,
	}
}

// PublishResolution sends a ResolutionEvent to the queue. order_no and run_id
// ride along as message attributes. On a FIFO queue the order number is both
// the group and the deduplication id, since an order resolves at most once.
func (p *Publisher) PublishResolution(ctx context.Context, ev ResolutionEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal resolution event: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:          &p.QueueURL,
		MessageBody:       awsString(string(body)),
		MessageAttributes: stringAttributes(map[string]string{"order_no": ev.OrderNo, "run_id": ev.RunID}),
	}
	if strings.HasSuffix(p.QueueURL, ".fifo") {
		input.MessageGroupId = awsString(ev.OrderNo)
		input.MessageDeduplicationId = awsString(ev.OrderNo)
	}

	if _, err := p.SQS.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send resolution %s: %w", ev.OrderNo, err)
	}
	return nil
}

// stringAttributes drops empty values.
func stringAttributes(in map[string]string) map[string]sqstypes.MessageAttributeValue {
	out := make(map[string]sqstypes.MessageAttributeValue, len(in))
	for k, v := range in {
		if v == "" {
			continue
		}
		out[k] = sqstypes.MessageAttributeValue{
			DataType:    awsString("String"),
			StringValue: awsString(v),
		}
	}
	return out
}

func awsString(s string) *string { return &s }
