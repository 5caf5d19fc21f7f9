package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/terra-clan/challenge-tracker/internal/models"
)

// KafkaPublisher writes completion events to a topic keyed by user id,
// so events for one user stay ordered within a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		},
		logger: logger.With().Str("component", "kafka-publisher").Logger(),
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, event models.CompletionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: data,
	}); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.EventID).
		Str("user_id", event.UserID).
		Str("challenge_id", event.ChallengeID).
		Msg("Published completion event")

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads completion events from a topic and hands them to a handler
type KafkaConsumer struct {
	reader  *kafka.Reader
	handler Handler
	logger  zerolog.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewKafkaConsumer(brokers []string, groupID, topic string, handler Handler, logger zerolog.Logger) *KafkaConsumer {
	ctx, cancel := context.WithCancel(context.Background())

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		MaxWait:        1 * time.Second,
		CommitInterval: 1 * time.Second,
		StartOffset:    kafka.FirstOffset,
	})

	return &KafkaConsumer{
		reader:  reader,
		handler: handler,
		logger:  logger.With().Str("component", "kafka-consumer").Logger(),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

func (c *KafkaConsumer) Start() {
	go c.consume()
	c.logger.Info().Str("topic", c.reader.Config().Topic).Msg("Kafka consumer started")
}

func (c *KafkaConsumer) consume() {
	defer close(c.done)
	topic := c.reader.Config().Topic

	for {
		msg, err := c.reader.FetchMessage(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to fetch message")
			time.Sleep(1 * time.Second)
			continue
		}

		c.logger.Debug().
			Str("topic", topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("Received message")

		var event models.CompletionEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			c.logger.Error().Err(err).Int64("offset", msg.Offset).Msg("Dropping malformed event")
		} else if err := c.handler(c.ctx, event); err != nil {
			c.logger.Error().Err(err).Str("event_id", event.EventID).Msg("Handler failed")
		}

		if err := c.reader.CommitMessages(c.ctx, msg); err != nil && c.ctx.Err() == nil {
			c.logger.Error().Err(err).Str("topic", topic).Msg("Failed to commit message")
		}
	}
}

func (c *KafkaConsumer) Stop() error {
	c.cancel()
	err := c.reader.Close()
	<-c.done
	c.logger.Info().Msg("Kafka consumer stopped")
	return err
}
