package observer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/chargenet/central-system/internal/logger"
	"github.com/chargenet/central-system/internal/metrics"
)

// auditRecord is the wire shape spec.md §6 defines for the audit sink:
// one per frame, one per connection lifecycle event.
type auditRecord struct {
	Type       string          `json:"type"`
	CP         string          `json:"cp"`
	Dir        string          `json:"dir,omitempty"`
	Event      string          `json:"event,omitempty"`
	Msg        json.RawMessage `json:"msg,omitempty"`
	RemoteAddr string          `json:"remote_addr,omitempty"`
	Timestamp  string          `json:"timestamp"`
}

// KafkaAuditSink publishes audit records to a Kafka topic, adapted from
// the teacher's internal/message/kafka_producer.go KafkaProducer — same
// sarama.AsyncProducer config and handleSuccesses/handleErrors draining
// goroutines, rebuilt around this package's auditRecord shape instead of
// the teacher's IntegrationEvent.
type KafkaAuditSink struct {
	producer sarama.AsyncProducer
	topic    string
	log      *logger.Logger
}

func NewKafkaAuditSink(brokers []string, topic string, log *logger.Logger) (*KafkaAuditSink, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.RequiredAcks = sarama.WaitForLocal
	cfg.Producer.Compression = sarama.CompressionSnappy
	cfg.Producer.Flush.Frequency = 500 * time.Millisecond
	cfg.Producer.Return.Successes = true
	cfg.Producer.Return.Errors = true

	producer, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka audit producer: %w", err)
	}

	sink := &KafkaAuditSink{producer: producer, topic: topic, log: log}
	go sink.handleSuccesses()
	go sink.handleErrors()
	return sink, nil
}

func (s *KafkaAuditSink) publish(rec auditRecord) {
	rec.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, err := json.Marshal(rec)
	if err != nil {
		s.log.Errorf("marshal audit record for %s: %v", rec.CP, err)
		return
	}
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(rec.CP),
		Value: sarama.ByteEncoder(data),
	}
}

func (s *KafkaAuditSink) Frame(stationID string, dir Direction, raw []byte, remoteAddr string) {
	s.publish(auditRecord{Type: "ocpp", CP: stationID, Dir: string(dir), Msg: raw, RemoteAddr: remoteAddr})
}

func (s *KafkaAuditSink) Connect(stationID string, remoteAddr string) {
	s.publish(auditRecord{Type: "ws", CP: stationID, Event: "connect", RemoteAddr: remoteAddr})
}

func (s *KafkaAuditSink) Disconnect(stationID string, remoteAddr string) {
	s.publish(auditRecord{Type: "ws", CP: stationID, Event: "disconnect", RemoteAddr: remoteAddr})
}

func (s *KafkaAuditSink) Close() error {
	return s.producer.Close()
}

func (s *KafkaAuditSink) handleSuccesses() {
	for range s.producer.Successes() {
		metrics.EventsPublished.WithLabelValues("audit").Inc()
	}
}

func (s *KafkaAuditSink) handleErrors() {
	for err := range s.producer.Errors() {
		s.log.Errorf("failed to publish audit record: %v", err)
	}
}

var _ AuditSink = (*KafkaAuditSink)(nil)
