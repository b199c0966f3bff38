package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"invoicechat/internal/model"
	"invoicechat/internal/platform/rabbitmq"
)

var errMalformedEvent = errors.New("malformed document event")

type EventRecorder interface {
	Record(ctx context.Context, ev *model.DocumentEvent) (bool, error)
}

// EventAuditWorker drains the document event queue into the audit table.
type EventAuditWorker struct {
	conn      *amqp.Connection
	recorder  EventRecorder
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventAuditWorker(conn *amqp.Connection, recorder EventRecorder, queueName string) *EventAuditWorker {
	return &EventAuditWorker{
		conn:      conn,
		recorder:  recorder,
		queueName: queueName,
	}
}

func (w *EventAuditWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	ch, err := w.conn.Channel()
	if err != nil {
		return fmt.Errorf("open worker channel failed: %w", err)
	}
	if err := rabbitmq.DeclareEventQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set worker qos failed: %w", err)
	}
	deliveries, err := ch.Consume(w.queueName, "invoicechat-event-audit", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					slog.Warn("event_audit_deliveries_closed", "queue", w.queueName)
					return
				}
				w.dispatch(workerCtx, d)
			}
		}
	}()

	slog.Info("event_audit_worker_started", "queue", w.queueName)
	return nil
}

func (w *EventAuditWorker) dispatch(ctx context.Context, d amqp.Delivery) {
	err := w.handle(ctx, d.Body)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errMalformedEvent):
		slog.Warn("event_audit_dropped", "error", err)
		_ = d.Nack(false, false)
	default:
		// One redelivery for store failures, then drop.
		slog.Error("event_audit_store_failed", "error", err, "redelivered", d.Redelivered)
		_ = d.Nack(false, !d.Redelivered)
	}
}

func (w *EventAuditWorker) handle(ctx context.Context, body []byte) error {
	var ev model.DocumentEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("%w: %v", errMalformedEvent, err)
	}
	if strings.TrimSpace(ev.EventID) == "" || strings.TrimSpace(ev.DocumentID) == "" || strings.TrimSpace(ev.Type) == "" {
		return fmt.Errorf("%w: missing eventId, type or documentId", errMalformedEvent)
	}

	stored, err := w.recorder.Record(ctx, &ev)
	if err != nil {
		return err
	}
	if !stored {
		slog.Debug("event_audit_duplicate", "event_id", ev.EventID)
	}
	return nil
}

func (w *EventAuditWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
