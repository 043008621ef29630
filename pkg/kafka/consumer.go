package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/internal/tracing"
	"github.com/Ramsey-B/fern/pkg/models"
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ConsumerConfig holds Kafka consumer configuration
type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
	// IdleTimeout ends a drain when no message arrives for this long.
	IdleTimeout time.Duration
}

// Consumer drains a topic of flattened company records. Offsets are
// committed only through Commit, after the caller has persisted the run.
type Consumer struct {
	reader  messageReader
	logger  ectologger.Logger
	idle    time.Duration
	mu      sync.Mutex
	pending []kafka.Message
	skipped int
}

// NewConsumer creates a new Kafka consumer
func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    10e3, // 10KB
		MaxBytes:    10e6, // 10MB
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	})
	return newConsumer(reader, cfg.IdleTimeout, logger)
}

func newConsumer(reader messageReader, idle time.Duration, logger ectologger.Logger) *Consumer {
	if idle <= 0 {
		idle = 10 * time.Second
	}
	return &Consumer{
		reader: reader,
		logger: logger,
		idle:   idle,
	}
}

// Next returns the next decodable record. It returns io.EOF once the topic
// has been idle for the configured timeout. Undecodable messages are logged
// and skipped; they are still committed so they are not redelivered.
func (c *Consumer) Next(ctx context.Context) (*models.PartialCompanyRecord, error) {
	for {
		fetchCtx, cancel := context.WithTimeout(ctx, c.idle)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			c.logger.WithContext(ctx).WithError(err).Error("Failed to fetch message")
			return nil, err
		}

		c.mu.Lock()
		c.pending = append(c.pending, msg)
		c.mu.Unlock()

		rec, err := c.decode(ctx, msg)
		if err != nil {
			continue
		}
		return rec, nil
	}
}

func (c *Consumer) decode(ctx context.Context, msg kafka.Message) (*models.PartialCompanyRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.decode")
	defer span.End()

	incoming := newIncoming(msg)
	rec, err := incoming.Record()
	if err != nil {
		c.mu.Lock()
		c.skipped++
		c.mu.Unlock()
		c.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"topic":     msg.Topic,
			"partition": msg.Partition,
			"offset":    msg.Offset,
			"vendor":    incoming.Vendor(),
		}).Warn("Skipping undecodable record message")
		return nil, err
	}
	return rec, nil
}

// Commit commits every message fetched so far.
func (c *Consumer) Commit(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.Commit")
	defer span.End()

	c.mu.Lock()
	msgs := c.pending
	c.pending = nil
	c.mu.Unlock()

	if len(msgs) == 0 {
		return nil
	}
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.logger.WithContext(ctx).WithError(err).Error("Failed to commit messages")
		c.mu.Lock()
		c.pending = append(msgs, c.pending...)
		c.mu.Unlock()
		return err
	}
	c.logger.WithContext(ctx).WithField("count", len(msgs)).Debug("Committed messages")
	return nil
}

// Skipped returns how many messages could not be decoded.
func (c *Consumer) Skipped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.skipped
}

// Close closes the reader. Uncommitted messages will be redelivered.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
