package providers

import (
	"context"

	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
)

// LogTransport accepts every message and writes it to the log. It stands in
// for a push gateway in development.
type LogTransport struct {
	logger *logrus.Logger
}

func NewLogTransport(logger *logrus.Logger) *LogTransport {
	return &LogTransport{logger: logger}
}

func (t *LogTransport) SendBatch(_ context.Context, msg models.PushMessage, tokens []string) (models.BatchResult, error) {
	result := models.BatchResult{SuccessCount: len(tokens)}
	for _, tok := range tokens {
		t.logger.WithFields(logrus.Fields{
			"token":           tok,
			"notification_id": msg.Data["notification_id"],
		}).Infof("Push %q: %s", msg.Title, msg.Body)
		result.Results = append(result.Results, models.TokenResult{Token: tok})
	}
	return result, nil
}
