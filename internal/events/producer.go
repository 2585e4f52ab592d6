package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

func (p *Producer) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				close(p.inbox)
				for m := range p.inbox {
					_ = p.w.WriteMessages(context.Background(), m)
				}
				_ = p.w.Close()
				close(p.closeCh)
				return
			case m, ok := <-p.inbox:
				if !ok {
					_ = p.w.Close()
					close(p.closeCh)
					return
				}
				_ = p.w.WriteMessages(context.Background(), m)
			}
		}
	}()
}

func (p *Producer) Send(key, value []byte, headers ...kafka.Header) {
	p.inbox <- kafka.Message{
		Key:     key,
		Value:   value,
		Time:    time.Now(),
		Headers: headers,
	}
}

// Close the inbox so the loop flushes remaining messages and exits.
func (p *Producer) Close() { close(p.inbox) }

func (p *Producer) WaitClosed() { <-p.closeCh }

// Sink is the producer surface the Emitter needs.
type Sink interface {
	Send(key, value []byte, headers ...kafka.Header)
}

// Publisher is what services publish through. Publishing is
// best-effort: it never fails the primary operation.
type Publisher interface {
	Publish(eventType, correlationID string, payload any)
}

// Emitter wraps envelope construction around a producer.
type Emitter struct {
	Sink    Sink
	Service string
}

func (e *Emitter) Publish(eventType, correlationID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		CorrelationID: correlationID,
		Payload:       mustMarshal(payload),
	}
	e.Sink.Send(PartitionKey(correlationID), mustMarshal(ev),
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(string, string, any) {}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}
