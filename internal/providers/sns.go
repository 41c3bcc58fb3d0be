package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
)

type snsPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSTransport publishes push messages to SNS platform endpoints. Device
// tokens are endpoint ARNs.
type SNSTransport struct {
	client snsPublisher
	logger *logrus.Logger
}

// NewSNSTransport builds an SNS client from the default AWS credential chain.
func NewSNSTransport(ctx context.Context, region string, logger *logrus.Logger) (*SNSTransport, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SNSTransport{client: sns.NewFromConfig(awsCfg), logger: logger}, nil
}

// SendBatch publishes msg to every endpoint. Per-endpoint failures are
// reported in the result; an error is returned only when nothing was delivered.
func (t *SNSTransport) SendBatch(ctx context.Context, msg models.PushMessage, tokens []string) (models.BatchResult, error) {
	body, err := snsMessage(msg)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("failed to encode push payload: %w", err)
	}

	var result models.BatchResult
	var lastErr error
	for _, arn := range tokens {
		_, err := t.client.Publish(ctx, &sns.PublishInput{
			TargetArn:        aws.String(arn),
			Message:          aws.String(body),
			MessageStructure: aws.String("json"),
		})
		if err != nil {
			lastErr = err
			t.logger.WithField("endpoint", arn).Warnf("SNS publish failed: %v", err)
		} else {
			result.SuccessCount++
		}
		result.Results = append(result.Results, models.TokenResult{Token: arn, Err: err})
	}

	if result.SuccessCount == 0 && lastErr != nil {
		return result, fmt.Errorf("sns publish: %w: %w", models.ErrTransport, lastErr)
	}
	return result, nil
}

type gcmPayload struct {
	Notification struct {
		Title string `json:"title"`
		Body  string `json:"body"`
	} `json:"notification"`
	Data map[string]string `json:"data,omitempty"`
}

type apnsPayload struct {
	APS struct {
		Alert struct {
			Title string `json:"title"`
			Body  string `json:"body"`
		} `json:"alert"`
		Sound string `json:"sound"`
	} `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

// snsMessage encodes msg as an SNS per-platform message structure.
func snsMessage(msg models.PushMessage) (string, error) {
	var gcm gcmPayload
	gcm.Notification.Title = msg.Title
	gcm.Notification.Body = msg.Body
	gcm.Data = msg.Data

	var apns apnsPayload
	apns.APS.Alert.Title = msg.Title
	apns.APS.Alert.Body = msg.Body
	apns.APS.Sound = "default"
	apns.Data = msg.Data

	gcmJSON, err := json.Marshal(gcm)
	if err != nil {
		return "", err
	}
	apnsJSON, err := json.Marshal(apns)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(map[string]string{
		"default":      msg.Body,
		"GCM":          string(gcmJSON),
		"APNS":         string(apnsJSON),
		"APNS_SANDBOX": string(apnsJSON),
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}
