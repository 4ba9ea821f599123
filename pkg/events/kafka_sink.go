package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"snscraper/pkg/logger"
)

const kafkaWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes events to a Kafka topic, fire-and-forget. Write
// failures are logged and swallowed; the event contract is best-effort.
type KafkaSink struct {
	writer messageWriter
	logger logger.Logger
}

// NewKafkaSink creates a Kafka sink for the given broker and topic
func NewKafkaSink(broker, topic string, log logger.Logger) *KafkaSink {
	if log == nil {
		log = logger.GetLogger()
	}
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(broker),
			Topic:                  topic,
			Balancer:               &kafka.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		logger: log,
	}
}

// newKafkaSinkWithWriter builds a sink using a custom writer (tests)
func newKafkaSinkWithWriter(writer messageWriter, log logger.Logger) *KafkaSink {
	if log == nil {
		log = logger.GetLogger()
	}
	return &KafkaSink{writer: writer, logger: log}
}

// Close shuts down the underlying writer
func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func (s *KafkaSink) publish(kind, key string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.WithError(err).WithField("kind", kind).Warn("failed to marshal event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), kafkaWriteTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now().UTC(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(kind)},
		},
	}

	if err := s.writer.WriteMessages(ctx, msg); err != nil {
		s.logger.WithError(err).WithField("kind", kind).Warn("failed to publish event")
	}
}

func (s *KafkaSink) Progress(e ProgressEvent) {
	s.publish("progress", e.TaskID, e)
}

func (s *KafkaSink) Completed(e CompletedEvent) {
	s.publish("completed", e.TaskID, e)
}

func (s *KafkaSink) Error(e ErrorEvent) {
	s.publish("error", e.TaskID, e)
}

func (s *KafkaSink) LoginOutcome(e LoginOutcomeEvent) {
	s.publish("login", e.SessionID, e)
}
