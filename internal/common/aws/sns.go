// internal/common/aws/sns.go
package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
)

// SNSService is the slice of the SNS API the SMS sender needs.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SMSSender delivers notification texts through SNS.
type SMSSender struct {
	client   SNSService
	senderID string
}

func NewSMSSender(cfg aws.Config, senderID string) *SMSSender {
	return &SMSSender{client: sns.NewFromConfig(cfg), senderID: senderID}
}

// NewSMSSenderWith is used by tests to inject a fake SNS client.
func NewSMSSenderWith(client SNSService, senderID string) *SMSSender {
	return &SMSSender{client: client, senderID: senderID}
}

// SendSMS publishes a transactional text message and returns the SNS message id.
func (s *SMSSender) SendSMS(ctx context.Context, phone, message string) (string, error) {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(s.senderID)}
	}

	out, err := s.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(message),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}
