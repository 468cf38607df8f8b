// internal/events/publisher.go
package events

import (
	"context"
	"fmt"

	"freelance-lifecycle/internal/common/aws"
	"freelance-lifecycle/internal/common/config"
	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/metrics"
	"freelance-lifecycle/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	DriverRedis = config.EventDriverRedis
	DriverSNS   = config.EventDriverSNS
)

// Publisher is fire-and-forget for callers: the outcome is reported in the
// result and never as an error.
type Publisher interface {
	Publish(ctx context.Context, event models.NotificationEvent) models.PublishResult
}

// StreamPublisher appends events to a Redis stream.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
	logger logger.Logger
}

func NewStreamPublisher(client *redis.Client, stream string, maxLen int64, log logger.Logger) *StreamPublisher {
	return &StreamPublisher{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: log.WithFields(map[string]interface{}{"component": "stream-publisher", "stream": stream}),
	}
}

func (p *StreamPublisher) Publish(ctx context.Context, event models.NotificationEvent) models.PublishResult {
	result := models.PublishResult{EventID: event.EventID, Driver: DriverRedis}

	payload, err := Encode(event)
	if err != nil {
		result.Err = errors.NewEventPublishFailedError(string(event.Type), fmt.Errorf("encode event: %w", err))
		return recordPublish(p.logger, event, result)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			FieldPayload: string(payload),
			FieldType:    string(event.Type),
			FieldEventID: event.EventID,
		},
	}).Result()
	if err != nil {
		result.Err = errors.NewEventPublishFailedError(string(event.Type), fmt.Errorf("xadd %s: %w", p.stream, err))
		return recordPublish(p.logger, event, result)
	}

	result.MessageID = id
	return recordPublish(p.logger, event, result)
}

// SNSPublisher sends events to an SNS topic, which fans them in to the
// notification service's push endpoint.
type SNSPublisher struct {
	client   *aws.SNSClient
	topicARN string
	logger   logger.Logger
}

func NewSNSPublisher(client *aws.SNSClient, topicARN string, log logger.Logger) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
		logger:   log.WithFields(map[string]interface{}{"component": "sns-publisher"}),
	}
}

func (p *SNSPublisher) Publish(ctx context.Context, event models.NotificationEvent) models.PublishResult {
	result := models.PublishResult{EventID: event.EventID, Driver: DriverSNS}

	payload, err := Encode(event)
	if err != nil {
		result.Err = errors.NewEventPublishFailedError(string(event.Type), fmt.Errorf("encode event: %w", err))
		return recordPublish(p.logger, event, result)
	}

	id, err := p.client.PublishMessage(ctx, p.topicARN, string(payload), map[string]string{
		FieldType:    string(event.Type),
		FieldEventID: event.EventID,
	})
	if err != nil {
		result.Err = errors.NewEventPublishFailedError(string(event.Type), err)
		return recordPublish(p.logger, event, result)
	}

	result.MessageID = id
	return recordPublish(p.logger, event, result)
}

func recordPublish(log logger.Logger, event models.NotificationEvent, result models.PublishResult) models.PublishResult {
	outcome := "success"
	if result.Err != nil {
		outcome = "failure"
		log.Error("event publish failed", map[string]interface{}{
			"eventId": event.EventID,
			"type":    event.Type,
			"userId":  event.UserID,
			"error":   result.Err,
		})
	}
	metrics.EventsPublished.WithLabelValues(string(event.Type), result.Driver, outcome).Inc()
	return result
}

// NewPublisher builds the publisher selected by events.driver.
func NewPublisher(ctx context.Context, cfg config.EventsConfig, client *redis.Client, log logger.Logger) (Publisher, error) {
	switch cfg.Driver {
	case DriverRedis:
		return NewStreamPublisher(client, cfg.Stream, cfg.MaxLen, log), nil
	case DriverSNS:
		snsClient, err := aws.NewSNSClient(ctx, cfg.SNS.Region)
		if err != nil {
			return nil, fmt.Errorf("sns client: %w", err)
		}
		return NewSNSPublisher(snsClient, cfg.SNS.TopicARN, log), nil
	default:
		return nil, fmt.Errorf("unknown event driver %q", cfg.Driver)
	}
}
