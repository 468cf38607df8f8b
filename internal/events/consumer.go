// internal/events/consumer.go
package events

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"
	"time"

	"freelance-lifecycle/internal/common/config"
	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/common/logger"
	"freelance-lifecycle/internal/common/metrics"
	"freelance-lifecycle/internal/models"

	"github.com/redis/go-redis/v9"
)

const reasonMaxDeliveries = "MAX_DELIVERIES_EXCEEDED"

// EventHandler processes one decoded event. A retryable error leaves the
// entry pending for redelivery; a non-retryable one dead-letters it.
type EventHandler interface {
	HandleEvent(ctx context.Context, event models.NotificationEvent) error
}

type EventHandlerFunc func(ctx context.Context, event models.NotificationEvent) error

func (f EventHandlerFunc) HandleEvent(ctx context.Context, event models.NotificationEvent) error {
	return f(ctx, event)
}

type ConsumerConfig struct {
	Stream           string
	Group            string
	Consumer         string
	DeadLetterStream string
	DeadLetterMaxLen int64
	BatchSize        int64
	Workers          int
	// Block is the XREADGROUP block time. A negative value polls without blocking.
	Block         time.Duration
	ClaimIdle     time.Duration
	SweepInterval time.Duration
	MaxDeliveries int64
}

// ConsumerConfigFrom maps the events section of the service config.
func ConsumerConfigFrom(cfg config.EventsConfig) ConsumerConfig {
	return ConsumerConfig{
		Stream:           cfg.Stream,
		Group:            cfg.Group,
		Consumer:         cfg.Consumer,
		DeadLetterStream: cfg.DeadLetterStream,
		DeadLetterMaxLen: cfg.MaxLen,
		BatchSize:        cfg.BatchSize,
		Workers:          cfg.Workers,
		Block:            config.GetDuration(cfg.BlockTimeout),
		ClaimIdle:        config.GetDuration(cfg.ClaimIdle),
		SweepInterval:    config.GetDuration(cfg.SweepInterval),
		MaxDeliveries:    cfg.MaxDeliveries,
	}
}

type outcome string

const (
	outcomeAcked        outcome = "ok"
	outcomeRetry        outcome = "retry"
	outcomeDeadLettered outcome = "dead_letter"
)

type delivery struct {
	msg        redis.XMessage
	deliveries int64
}

// SweepResult summarizes one pass over the pending entries list.
type SweepResult struct {
	Reclaimed    int
	DeadLettered int
}

// StreamConsumer reads a Redis stream through a consumer group and feeds a
// pool of workers. Entries stay pending until acked, so a crash or a failed
// handler leads to redelivery by the sweep.
type StreamConsumer struct {
	client  *redis.Client
	cfg     ConsumerConfig
	decoder *Decoder
	handler EventHandler
	logger  logger.Logger
}

func NewStreamConsumer(client *redis.Client, cfg ConsumerConfig, decoder *Decoder, handler EventHandler, log logger.Logger) *StreamConsumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.MaxDeliveries <= 0 {
		cfg.MaxDeliveries = 5
	}
	if cfg.DeadLetterStream == "" {
		cfg.DeadLetterStream = cfg.Stream + ".dlq"
	}
	return &StreamConsumer{
		client:  client,
		cfg:     cfg,
		decoder: decoder,
		handler: handler,
		logger: log.WithFields(map[string]interface{}{
			"component": "stream-consumer",
			"stream":    cfg.Stream,
			"group":     cfg.Group,
			"consumer":  cfg.Consumer,
		}),
	}
}

// EnsureGroup creates the consumer group (and the stream) if missing.
func (c *StreamConsumer) EnsureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

// Run consumes until ctx is cancelled. In-flight events finish on a
// detached context; anything read but not dispatched stays pending.
func (c *StreamConsumer) Run(ctx context.Context) error {
	if err := c.EnsureGroup(ctx); err != nil {
		return err
	}

	msgCh := make(chan delivery)
	var workers sync.WaitGroup

	for i := 0; i < c.cfg.Workers; i++ {
		workers.Add(1)
		go func(id int) {
			defer workers.Done()
			c.logger.Debug("worker started", map[string]interface{}{"worker": id})

			for d := range msgCh {
				c.process(context.WithoutCancel(ctx), d)
			}
			c.logger.Debug("worker stopped", map[string]interface{}{"worker": id})
		}(i)
	}

	var sweeper sync.WaitGroup
	if c.cfg.SweepInterval > 0 {
		sweeper.Add(1)
		go func() {
			defer sweeper.Done()
			c.sweepLoop(ctx)
		}()
	}

	c.readLoop(ctx, msgCh)

	close(msgCh)
	workers.Wait()
	sweeper.Wait()

	c.logger.Info("consumer stopped", nil)
	return nil
}

func (c *StreamConsumer) readLoop(ctx context.Context, out chan<- delivery) {
	backoff := 100 * time.Millisecond

	for ctx.Err() == nil {
		messages, err := c.read(ctx, c.cfg.Block)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("stream read failed", map[string]interface{}{
				"error":   err.Error(),
				"backoff": backoff.String(),
			})
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = 100 * time.Millisecond

		for _, msg := range messages {
			select {
			case out <- delivery{msg: msg, deliveries: 1}:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *StreamConsumer) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := c.Sweep(ctx)
			if err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("pending sweep failed", map[string]interface{}{"error": err.Error()})
				}
				continue
			}
			if result.Reclaimed > 0 || result.DeadLettered > 0 {
				c.logger.Info("pending sweep", map[string]interface{}{
					"reclaimed":    result.Reclaimed,
					"deadLettered": result.DeadLettered,
				})
			}
		}
	}
}

func (c *StreamConsumer) read(ctx context.Context, block time.Duration) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.BatchSize,
		Block:    block,
	}).Result()
	if stderrors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

// Poll reads one batch of new entries without blocking and processes them
// on the calling goroutine. It returns the number of entries handled.
func (c *StreamConsumer) Poll(ctx context.Context) (int, error) {
	messages, err := c.read(ctx, -1)
	if err != nil {
		return 0, err
	}
	for _, msg := range messages {
		c.process(ctx, delivery{msg: msg, deliveries: 1})
	}
	return len(messages), nil
}

// Sweep walks the group's pending entries. Entries that used up their
// delivery budget are dead-lettered; the rest are claimed by this consumer
// and processed again.
func (c *StreamConsumer) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	pending, err := c.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: c.cfg.Stream,
		Group:  c.cfg.Group,
		Idle:   c.cfg.ClaimIdle,
		Start:  "-",
		End:    "+",
		Count:  c.cfg.BatchSize,
	}).Result()
	if err != nil {
		return result, err
	}

	var reclaim []string
	retries := make(map[string]int64, len(pending))
	for _, p := range pending {
		if p.RetryCount >= c.cfg.MaxDeliveries {
			if err := c.deadLetterPending(ctx, p.ID, p.RetryCount); err != nil {
				return result, err
			}
			result.DeadLettered++
			continue
		}
		reclaim = append(reclaim, p.ID)
		retries[p.ID] = p.RetryCount
	}

	if len(reclaim) == 0 {
		return result, nil
	}

	claimed, err := c.client.XClaim(ctx, &redis.XClaimArgs{
		Stream:   c.cfg.Stream,
		Group:    c.cfg.Group,
		Consumer: c.cfg.Consumer,
		MinIdle:  c.cfg.ClaimIdle,
		Messages: reclaim,
	}).Result()
	if err != nil {
		return result, err
	}

	for _, msg := range claimed {
		c.process(ctx, delivery{msg: msg, deliveries: retries[msg.ID] + 1})
		result.Reclaimed++
	}
	return result, nil
}

func (c *StreamConsumer) deadLetterPending(ctx context.Context, id string, deliveries int64) error {
	entries, err := c.client.XRangeN(ctx, c.cfg.Stream, id, id, 1).Result()
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		// trimmed by MAXLEN; nothing left to quarantine
		return c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, id).Err()
	}
	return c.deadLetter(ctx, entries[0], reasonMaxDeliveries, deliveries)
}

func (c *StreamConsumer) process(ctx context.Context, d delivery) outcome {
	metrics.ConsumerWorkersActive.WithLabelValues(c.cfg.Stream).Inc()
	defer metrics.ConsumerWorkersActive.WithLabelValues(c.cfg.Stream).Dec()

	start := time.Now()
	eventType := "unknown"
	if t, ok := d.msg.Values[FieldType].(string); ok && t != "" {
		eventType = t
	}

	result := c.handle(ctx, d)

	metrics.EventsConsumed.WithLabelValues(eventType, string(result)).Inc()
	metrics.EventProcessingDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	return result
}

func (c *StreamConsumer) handle(ctx context.Context, d delivery) outcome {
	fields := map[string]interface{}{
		"messageId":  d.msg.ID,
		"deliveries": d.deliveries,
	}

	payload, ok := d.msg.Values[FieldPayload].(string)
	if !ok {
		return c.quarantine(ctx, d, errors.NewMalformedEventError("entry has no payload field"))
	}

	event, err := c.decoder.Decode([]byte(payload))
	if err != nil {
		return c.quarantine(ctx, d, err)
	}

	fields["eventId"] = event.EventID
	fields["type"] = event.Type

	if err := c.handler.HandleEvent(ctx, event); err != nil {
		if !shouldRedeliver(err) {
			return c.quarantine(ctx, d, err)
		}
		fields["error"] = err.Error()
		c.logger.Warn("event processing failed, leaving pending for redelivery", fields)
		return outcomeRetry
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, d.msg.ID).Err(); err != nil {
		// the entry stays pending and is redelivered; consumption is idempotent
		fields["error"] = err.Error()
		c.logger.Warn("ack failed", fields)
		return outcomeRetry
	}

	c.logger.Debug("event processed", fields)
	return outcomeAcked
}

// shouldRedeliver treats errors without a classification as transient.
func shouldRedeliver(err error) bool {
	stdErr, ok := errors.AsStandardError(err)
	return !ok || stdErr.Retryable
}

func (c *StreamConsumer) quarantine(ctx context.Context, d delivery, cause error) outcome {
	reason := string(errors.Normalize(cause).Code)

	if err := c.deadLetter(ctx, d.msg, reason, d.deliveries); err != nil {
		c.logger.Error("dead-letter failed, leaving pending", map[string]interface{}{
			"messageId": d.msg.ID,
			"reason":    reason,
			"error":     err.Error(),
		})
		return outcomeRetry
	}

	c.logger.Warn("event quarantined", map[string]interface{}{
		"messageId": d.msg.ID,
		"reason":    reason,
		"details":   cause.Error(),
	})
	return outcomeDeadLettered
}

// deadLetter copies the entry to the dead-letter stream and acks it in one
// MULTI block.
func (c *StreamConsumer) deadLetter(ctx context.Context, msg redis.XMessage, reason string, deliveries int64) error {
	payload, _ := msg.Values[FieldPayload].(string)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: c.cfg.DeadLetterStream,
			MaxLen: c.cfg.DeadLetterMaxLen,
			Approx: c.cfg.DeadLetterMaxLen > 0,
			Values: map[string]interface{}{
				FieldPayload:    payload,
				FieldReason:     reason,
				FieldSourceID:   msg.ID,
				FieldDeliveries: deliveries,
			},
		})
		pipe.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID)
		return nil
	})
	if err != nil {
		return err
	}

	metrics.EventsDeadLettered.WithLabelValues(reason).Inc()
	return nil
}
