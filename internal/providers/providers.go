// Package providers implements the push transports the dispatcher hands
// rendered messages to.
package providers

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/config"
	"ship-notification-service/internal/models"
)

// New returns the transport selected by cfg.Transport.Driver.
func New(ctx context.Context, cfg config.Config, logger *logrus.Logger) (models.Transport, error) {
	switch cfg.Transport.Driver {
	case "sns":
		return NewSNSTransport(ctx, cfg.Transport.SNSRegion, logger)
	case "telegram":
		return NewTelegramTransport(cfg.Transport.TelegramBotToken, cfg.Transport.TelegramRate, logger)
	case "log":
		return NewLogTransport(logger), nil
	}
	return nil, fmt.Errorf("unsupported transport driver %q", cfg.Transport.Driver)
}
