package providers

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"ship-notification-service/internal/models"
	"ship-notification-service/internal/utils"
)

type messageSender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*tgmodels.Message, error)
}

// TelegramTransport delivers push messages as Telegram bot messages. Device
// tokens are chat ids.
type TelegramTransport struct {
	bot        messageSender
	limiter    *rate.Limiter
	logger     *logrus.Logger
	attempts   int
	retryDelay time.Duration
}

// NewTelegramTransport connects a bot and limits sends to ratePerSecond.
func NewTelegramTransport(botToken string, ratePerSecond int, logger *logrus.Logger) (*TelegramTransport, error) {
	b, err := bot.New(botToken, bot.WithSkipGetMe())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram bot: %w", err)
	}
	return newTelegramTransport(b, ratePerSecond, logger), nil
}

func newTelegramTransport(sender messageSender, ratePerSecond int, logger *logrus.Logger) *TelegramTransport {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	return &TelegramTransport{
		bot:        sender,
		limiter:    rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond),
		logger:     logger,
		attempts:   3,
		retryDelay: time.Second,
	}
}

func (t *TelegramTransport) SendBatch(ctx context.Context, msg models.PushMessage, tokens []string) (models.BatchResult, error) {
	text := fmt.Sprintf("*%s*\n%s", bot.EscapeMarkdown(msg.Title), bot.EscapeMarkdown(msg.Body))

	var result models.BatchResult
	var lastErr error
	for _, tok := range tokens {
		err := t.send(ctx, tok, text)
		if err != nil {
			lastErr = err
			t.logger.WithField("chat_id", tok).Warnf("Telegram send failed: %v", err)
		} else {
			result.SuccessCount++
		}
		result.Results = append(result.Results, models.TokenResult{Token: tok, Err: err})
	}

	if result.SuccessCount == 0 && lastErr != nil {
		return result, fmt.Errorf("telegram: %w: %w", models.ErrTransport, lastErr)
	}
	return result, nil
}

func (t *TelegramTransport) send(ctx context.Context, token, text string) error {
	chatID, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat_id %q: %w", token, err)
	}
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	return utils.Retry(ctx, t.logger, t.attempts, t.retryDelay, func() error {
		_, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      text,
			ParseMode: tgmodels.ParseModeMarkdown,
		})
		if err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", chatID, err)
		}
		return nil
	})
}
