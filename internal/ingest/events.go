package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/taxi-dispatch/internal/models"
)

// EventPublisher mirrors dispatch decisions onto Kafka so downstream
// consumers (driver apps, analytics) see assignments as they happen.
type EventPublisher struct {
	writer *kafka.Writer
}

func NewEventPublisher(brokers []string, topic string) *EventPublisher {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &EventPublisher{writer: w}
}

type assignedEvent struct {
	Type       string    `json:"type"`
	JobID      string    `json:"job_id"`
	TenantID   string    `json:"tenant_id"`
	DriverID   string    `json:"driver_id"`
	Callsign   string    `json:"callsign"`
	PickupTime time.Time `json:"pickup_time"`
	At         time.Time `json:"at"`
}

func (p *EventPublisher) PublishAssigned(ctx context.Context, job models.Job, driver models.Driver) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	b, err := json.Marshal(assignedEvent{
		Type:       "job.assigned",
		JobID:      job.ID,
		TenantID:   job.TenantID,
		DriverID:   driver.ID,
		Callsign:   driver.Callsign,
		PickupTime: job.PickupTime,
		At:         time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(job.ID), Value: b})
}

func (p *EventPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
