package output

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/brunobiangulo/kgsynth/dataset"
	"github.com/streadway/amqp"
)

// AMQPConfig addresses the RabbitMQ queue written by QueueSink.
type AMQPConfig struct {
	URL   string `json:"url" yaml:"url"`
	Queue string `json:"queue" yaml:"queue"`
}

// Message is the JSON body published for each record.
type Message struct {
	RunID    string            `json:"run_id,omitempty"`
	Context  string            `json:"context"`
	Triple   string            `json:"triple"`
	Question string            `json:"question"`
	Answer   string            `json:"answer"`
	RTE      dataset.RTERecord `json:"rte"`
	KGC      dataset.KGCRecord `json:"kgc"`
}

// publisher is the part of *amqp.Channel the sink uses.
type publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// QueueSink publishes every record as a persistent JSON message on a
// durable queue.
type QueueSink struct {
	cfg   AMQPConfig
	dial  func(url string) (*amqp.Connection, error)
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    publisher
	runID string
}

// NewQueueSink creates a sink. The connection is opened by Init.
func NewQueueSink(cfg AMQPConfig) *QueueSink {
	return &QueueSink{cfg: cfg, dial: amqp.Dial}
}

func (s *QueueSink) Name() string { return "amqp" }

func (s *QueueSink) BindRun(runID string) {
	s.mu.Lock()
	s.runID = runID
	s.mu.Unlock()
}

// Init dials the broker and declares the queue.
func (s *QueueSink) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		return nil
	}

	conn, err := s.dial(s.cfg.URL)
	if err != nil {
		return fmt.Errorf("create connection fail: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("create channel fail: %w", err)
	}
	if _, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare queue [%s] fail: %w", s.cfg.Queue, err)
	}
	s.conn, s.ch = conn, ch
	return nil
}

func (s *QueueSink) Write(ctx context.Context, rec *dataset.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch == nil {
		return fmt.Errorf("queue %s written before init", s.cfg.Queue)
	}

	body, err := json.Marshal(Message{
		RunID:    s.runID,
		Context:  rec.Context,
		Triple:   rec.Triple.String(),
		Question: rec.QA.Question,
		Answer:   rec.QA.Answer,
		RTE:      rec.RTE,
		KGC:      rec.KGC,
	})
	if err != nil {
		return fmt.Errorf("json marshal fail: %w", err)
	}
	err = s.ch.Publish("", s.cfg.Queue, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish fail: %w", err)
	}
	return nil
}

func (s *QueueSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.ch != nil {
		err = s.ch.Close()
		s.ch = nil
	}
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
		s.conn = nil
	}
	return err
}
