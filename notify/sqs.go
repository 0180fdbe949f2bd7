// Package notify delivers exception escalation notices.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/yairfalse/travelgate/exception"
)

// SQSAPI defines the SQS operations used by the notifier.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier publishes each escalation as a JSON message
type SQSNotifier struct {
	client   SQSAPI
	queueURL string
}

// NewSQSNotifier creates a notifier for queueURL
func NewSQSNotifier(client SQSAPI, queueURL string) *SQSNotifier {
	return &SQSNotifier{client: client, queueURL: queueURL}
}

// NotifyEscalation sends one message. FIFO queues group messages by
// request so a request's escalations arrive in order.
func (n *SQSNotifier) NotifyEscalation(ctx context.Context, e exception.Escalation) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal escalation %s: %w", e.RequestID, err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqstypes.MessageAttributeValue{
			"request_id": stringAttr(e.RequestID),
			"type":       stringAttr(string(e.Type)),
			"to_level":   stringAttr(string(e.ToLevel)),
		},
	}
	if strings.HasSuffix(n.queueURL, ".fifo") {
		input.MessageGroupId = aws.String(e.RequestID)
		input.MessageDeduplicationId = aws.String(e.RequestID + "-" + strconv.FormatInt(e.EscalatedAt.UnixNano(), 10))
	}

	if _, err := n.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("send escalation %s to %s: %w", e.RequestID, n.queueURL, err)
	}
	return nil
}

func stringAttr(v string) sqstypes.MessageAttributeValue {
	return sqstypes.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}
