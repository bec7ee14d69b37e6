package notifier

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/mailflowhq/mailflow/internal/email_service/domain"
)

// Subscriber is the slice of the message broker the listener needs.
// The subscription is broadcast, not queue-grouped: every API replica
// holds only its own sockets, so each must see every event.
type Subscriber interface {
	Subscribe(subject string, handler func(subject string, data []byte)) (*nats.Subscription, error)
}

// Listener bridges the NATS job event stream into the hub.
type Listener struct {
	hub    *Hub
	broker Subscriber
	logger *slog.Logger

	subs []*nats.Subscription
}

func NewListener(hub *Hub, broker Subscriber, logger *slog.Logger) *Listener {
	return &Listener{hub: hub, broker: broker, logger: logger}
}

// Start subscribes to the terminal job subjects. Events for users with
// no live connection on this process are dropped silently.
func (l *Listener) Start() error {
	for _, subject := range []string{domain.SubjectJobCompleted, domain.SubjectJobFailed} {
		sub, err := l.broker.Subscribe(subject, l.handle)
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		l.subs = append(l.subs, sub)
	}
	l.logger.Info("Job event listener started")
	return nil
}

func (l *Listener) handle(subject string, data []byte) {
	var event domain.JobEvent
	if err := json.Unmarshal(data, &event); err != nil {
		l.logger.Error("Discarding undecodable job event", "error", err, "subject", subject)
		return
	}
	eventName := "job-completed"
	if subject == domain.SubjectJobFailed {
		eventName = "job-failed"
	}
	l.hub.Push(event.UserID, Update{
		Event:  eventName,
		JobID:  event.JobID,
		Status: event.Status,
		Reason: event.Reason,
	})
}

// Stop unsubscribes from the event stream.
func (l *Listener) Stop() {
	for _, sub := range l.subs {
		if err := sub.Unsubscribe(); err != nil {
			l.logger.Error("Failed to unsubscribe job event listener", "error", err)
		}
	}
	l.subs = nil
}
