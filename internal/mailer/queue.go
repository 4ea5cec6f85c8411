package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/yamdb/apiserver/internal/mq"
)

// QueueSender publishes messages for the mailer worker.
type QueueSender struct {
	broker mq.Backend
	queue  string
}

func NewQueueSender(broker mq.Backend, queue string) *QueueSender {
	return &QueueSender{broker: broker, queue: queue}
}

func (q *QueueSender) Send(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := q.broker.Publish(ctx, q.queue, data, map[string]string{mq.ContentTypeAttr: "application/json"}); err != nil {
		return fmt.Errorf("publish mail: %w", err)
	}
	return nil
}

func (q *QueueSender) Close() error {
	return q.broker.Close()
}

// Worker drains the mail queue into a delivery Sender.
type Worker struct {
	broker mq.Backend
	queue  string
	sender Sender
	logger *slog.Logger
}

func NewWorker(broker mq.Backend, queue string, sender Sender, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{broker: broker, queue: queue, sender: sender, logger: logger}
}

// Run blocks until ctx is cancelled or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("mailer worker started", "queue", w.queue)
	return w.broker.Subscribe(ctx, w.queue, w.handle)
}

func (w *Worker) handle(ctx context.Context, delivery mq.Message) error {
	var msg Message
	if err := json.Unmarshal(delivery.Data, &msg); err != nil {
		// Redelivering a malformed payload cannot succeed.
		w.logger.Warn("dropping malformed mail message", "id", delivery.ID, "error", err)
		return nil
	}

	if err := w.sender.Send(ctx, msg); err != nil {
		w.logger.Error("mail delivery failed", "id", delivery.ID, "to", msg.To, "error", err)
		return err
	}
	w.logger.Info("mail delivered", "id", delivery.ID, "to", msg.To)
	return nil
}
