package broadcast

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"

	"clipforge/internal/config"
	"clipforge/internal/logging"
)

const kafkaQueueSize = 128

// NewKafkaProducer builds a synchronous producer that waits for all in-sync
// replicas before acknowledging.
func NewKafkaProducer(cfg config.Kafka) (sarama.SyncProducer, error) {
	sc := sarama.NewConfig()
	sc.ClientID = cfg.ClientID
	sc.Producer.RequiredAcks = sarama.WaitForAll
	sc.Producer.Retry.Max = 5
	sc.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return nil, fmt.Errorf("connect kafka %v: %w", cfg.Brokers, err)
	}
	return producer, nil
}

// KafkaRelay forwards lifecycle events (status changes and restarts) to a
// Kafka topic keyed by session id, so consumers see each job's events in
// order. Progress ticks are not forwarded.
type KafkaRelay struct {
	producer sarama.SyncProducer
	topic    string
	logger   *slog.Logger

	queue     chan Event
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewKafkaRelay starts the relay worker. Close drains the queue; the
// producer stays owned by the caller.
func NewKafkaRelay(producer sarama.SyncProducer, topic string, logger *slog.Logger) *KafkaRelay {
	r := &KafkaRelay{
		producer: producer,
		topic:    topic,
		logger:   logging.NewComponentLogger(logger, "kafka-relay"),
		queue:    make(chan Event, kafkaQueueSize),
		done:     make(chan struct{}),
	}
	r.wg.Add(1)
	go r.run()
	return r
}

// Relay enqueues lifecycle events; everything else is ignored.
func (r *KafkaRelay) Relay(evt Event) {
	if evt.Kind != KindStatus && evt.Kind != KindRestart {
		return
	}
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.queue <- evt:
	default:
		logging.WarnWithContext(r.logger, "kafka relay queue full; dropping event", "kafka_queue_full",
			logging.String(logging.FieldSessionID, evt.SessionID),
			logging.String("kind", string(evt.Kind)),
			logging.String(logging.FieldImpact, "event stream consumers miss this transition"),
		)
	}
}

// Close stops accepting events and waits for queued ones to be sent.
func (r *KafkaRelay) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

func (r *KafkaRelay) run() {
	defer r.wg.Done()
	for {
		select {
		case evt := <-r.queue:
			r.send(evt)
		case <-r.done:
			for {
				select {
				case evt := <-r.queue:
					r.send(evt)
				default:
					return
				}
			}
		}
	}
}

func (r *KafkaRelay) send(evt Event) {
	payload, err := json.Marshal(evt)
	if err != nil {
		r.logger.Warn("kafka relay encode failed",
			logging.String(logging.FieldSessionID, evt.SessionID),
			logging.Error(err),
		)
		return
	}
	partition, offset, err := r.producer.SendMessage(&sarama.ProducerMessage{
		Topic: r.topic,
		Key:   sarama.StringEncoder(evt.SessionID),
		Value: sarama.ByteEncoder(payload),
	})
	if err != nil {
		logging.WarnWithContext(r.logger, "kafka relay send failed", "kafka_send_failed",
			logging.String(logging.FieldSessionID, evt.SessionID),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check kafka.brokers and topic permissions"),
			logging.String(logging.FieldImpact, "event stream consumers miss this transition"),
		)
		return
	}
	r.logger.Debug("job event sent",
		logging.String(logging.FieldSessionID, evt.SessionID),
		logging.String("kind", string(evt.Kind)),
		logging.Int("partition", int(partition)),
		logging.Int("offset", int(offset)),
	)
}
