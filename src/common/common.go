package common

import (
	"context"
	"hallpass/src/lib"
	"hallpass/src/lib/mailer"
	"hallpass/src/services"
	"hallpass/src/types"
	"log"
	"time"
)

// EventPublisher fans pass lifecycle events out to the pass events topic and
// to email. Delivery runs in the background and failures are only logged.
type EventPublisher struct {
	topic    string
	location *time.Location
	send     func(input *lib.SendMailInput) error
	produce  func(topic string, key string, payload map[string]any) error
	wait     bool
}

func NewEventPublisher(topic string, loc *time.Location) *EventPublisher {
	return &EventPublisher{
		topic:    topic,
		location: loc,
		send:     mailer.NewMailerMessage,
		produce:  lib.KafkaProduceMessage,
	}
}

func EventPayload(event services.PassEvent) types.JSONB {
	p := event.Pass
	payload := types.JSONB{
		"type":      string(event.Type),
		"id":        p.ID,
		"passType":  string(p.Type),
		"status":    string(p.Status),
		"studentId": p.StudentID,
		"teacherId": p.TeacherID,
		"startTime": p.StartTime.UTC().Format(time.RFC3339),
		"expiresAt": p.ExpiresAt.UTC().Format(time.RFC3339),
		"actorId":   event.ActorID,
		"at":        event.At.UTC().Format(time.RFC3339Nano),
	}
	if p.ReturnTime != nil {
		payload["returnTime"] = p.ReturnTime.UTC().Format(time.RFC3339)
	}
	if p.RejectReason != nil {
		payload["rejectReason"] = *p.RejectReason
	}
	return payload
}

// Notification returns the email an event should trigger, or nil.
func Notification(event services.PassEvent, loc *time.Location) *lib.SendMailInput {
	if event.Student == nil || event.Teacher == nil {
		return nil
	}
	switch event.Type {
	case types.PASS_EVENT_CREATED:
		if event.Teacher.Email == "" {
			return nil
		}
		return mailer.PassRequested(&event.Pass, event.Student, event.Teacher, loc)
	case types.PASS_EVENT_APPROVED, types.PASS_EVENT_REJECTED:
		if event.Student.Email == "" {
			return nil
		}
		return mailer.PassDecided(&event.Pass, event.Student, event.Teacher, loc)
	}
	return nil
}

func (p *EventPublisher) Publish(ctx context.Context, event services.PassEvent) {
	deliver := func() {
		if lib.KafkaEnabled() {
			if err := p.produce(p.topic, event.Pass.ID, EventPayload(event)); err != nil {
				log.Printf("[%s] Error publishing %s for %s: %s\n", p.topic, event.Type, event.Pass.ID, err.Error())
			}
		}
		if input := Notification(event, p.location); input != nil {
			if err := p.send(input); err != nil {
				log.Printf("[MAILER] Error sending %q: %s\n", input.Subject, err.Error())
			}
		}
	}
	if p.wait {
		deliver()
		return
	}
	go deliver()
}

// Consumers starts the background kafka consumers. It is a no-op without a broker.
func Consumers(ctx context.Context) {
	if !lib.KafkaEnabled() {
		return
	}
	if err := lib.KafkaConsume(ctx, "hallpass-mailer", []string{mailer.EmailQueue()}, EmailsToSendConsumer); err != nil {
		log.Printf("Error starting email consumer: %s\n", err.Error())
	}
}
