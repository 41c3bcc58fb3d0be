// Package kafka feeds vessel alerts from a Kafka topic into the notification service.
package kafka

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"ship-notification-service/internal/models"
	"ship-notification-service/internal/utils"
	"ship-notification-service/pkg/validate"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type submitter interface {
	Submit(ctx context.Context, sub models.Submission) (models.Receipt, error)
}

type Consumer struct {
	reader     reader
	svc        submitter
	logger     *logrus.Logger
	attempts   int
	retryDelay time.Duration
}

func NewConsumer(cfg Config, svc submitter, logger *logrus.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.GroupID,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(r, svc, logger)
}

func newConsumer(r reader, svc submitter, logger *logrus.Logger) *Consumer {
	return &Consumer{reader: r, svc: svc, logger: logger, attempts: 5, retryDelay: time.Second}
}

// Start consumes until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					c.logger.Info("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Fetch message failed: %v", err)
				continue
			}

			c.handle(ctx, msg)
			if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
				c.logger.Errorf("Commit offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

// handle submits one message. Malformed and invalid messages are dropped;
// storage failures are retried before the message is given up on.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := c.logger.WithFields(logrus.Fields{"partition": msg.Partition, "offset": msg.Offset})

	var sub models.Submission
	if err := json.Unmarshal(msg.Value, &sub); err != nil {
		log.Errorf("Unmarshal message failed: %v", err)
		return
	}

	if err := validate.Struct(sub); err != nil {
		log.Warnf("Invalid message dropped: %v", err)
		return
	}

	var receipt models.Receipt
	err := utils.Retry(ctx, c.logger, c.attempts, c.retryDelay, func() error {
		r, err := c.svc.Submit(ctx, sub)
		receipt = r
		return err
	})
	if err != nil {
		log.WithField("payload", string(msg.Value)).Errorf("Giving up on message: %v", err)
		return
	}
	log.WithFields(logrus.Fields{"request_id": receipt.RequestID, "status": receipt.Status}).Info("Processed Kafka message")
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
