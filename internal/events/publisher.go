// Package events streams confirmed bookings to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/railnet/railnet/models"
)

const TypeBookingConfirmed = "booking.confirmed"

// BookingEvent is the message body written for each confirmed booking
type BookingEvent struct {
	Type          string    `json:"type"`
	BookingID     string    `json:"bookingId"`
	ScheduleID    string    `json:"scheduleId"`
	CompartmentID string    `json:"compartmentId"`
	SeatNumber    string    `json:"seatNumber"`
	FromStationID string    `json:"fromStationId"`
	ToStationID   string    `json:"toStationId"`
	Price         float64   `json:"price"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func NewBookingEvent(b *models.Booking) BookingEvent {
	return BookingEvent{
		Type:          TypeBookingConfirmed,
		BookingID:     b.ID,
		ScheduleID:    b.ScheduleID,
		CompartmentID: b.CompartmentID,
		SeatNumber:    b.SeatNumber,
		FromStationID: b.FromStationID,
		ToStationID:   b.ToStationID,
		Price:         b.Price,
		OccurredAt:    b.BookingDate.UTC(),
	}
}

type Publisher interface {
	BookingConfirmed(ctx context.Context, b *models.Booking) error
	Close() error
}

// KafkaPublisher writes booking events to a topic, keyed by schedule id so
// all events of one train run land on one partition in order. Delivery is
// asynchronous: BookingConfirmed only waits for the producer to accept the
// message, and delivery failures are logged once retries are exhausted.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	failed   atomic.Int64
	done     chan struct{}
}

func NewKafkaPublisher(brokers []string, topic string) (*KafkaPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Errors = true

	p, err := sarama.NewAsyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewPublisher(p, topic), nil
}

// NewPublisher wraps an existing producer and starts draining its errors
func NewPublisher(producer sarama.AsyncProducer, topic string) *KafkaPublisher {
	p := &KafkaPublisher{producer: producer, topic: topic, done: make(chan struct{})}
	go p.watch()
	return p
}

func (p *KafkaPublisher) watch() {
	defer close(p.done)
	for perr := range p.producer.Errors() {
		p.failed.Add(1)
		log.Printf("Warning: failed to publish booking %v: %v", perr.Msg.Metadata, perr.Err)
	}
}

// BookingConfirmed hands the event to the producer. It returns an error only
// when ctx ends before the producer accepts the message.
func (p *KafkaPublisher) BookingConfirmed(ctx context.Context, b *models.Booking) error {
	value, err := json.Marshal(NewBookingEvent(b))
	if err != nil {
		return fmt.Errorf("failed to encode booking event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:    p.topic,
		Key:      sarama.StringEncoder(b.ScheduleID),
		Value:    sarama.ByteEncoder(value),
		Metadata: b.ID,
	}
	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to enqueue booking %s: %w", b.ID, ctx.Err())
	}
}

// Failed reports how many events could not be delivered
func (p *KafkaPublisher) Failed() int64 {
	return p.failed.Load()
}

// Close flushes buffered events and waits for pending failures to be logged
func (p *KafkaPublisher) Close() error {
	err := p.producer.Close()
	<-p.done
	return err
}

// Nop discards events. Used when no brokers are configured.
type Nop struct{}

func (Nop) BookingConfirmed(context.Context, *models.Booking) error { return nil }

func (Nop) Close() error { return nil }
