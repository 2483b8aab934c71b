package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"ragpool/internal/app"
	"ragpool/internal/platform/rabbitmq"
)

// EmbedWorker consumes embed jobs and vectorizes documents off the request
// path, so model inference never delays uploads or keyword retrieval.
type EmbedWorker struct {
	conn      *amqp.Connection
	retrieval *app.RetrievalService
	queueName string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEmbedWorker(conn *amqp.Connection, retrieval *app.RetrievalService, queueName string) *EmbedWorker {
	return &EmbedWorker{
		conn:      conn,
		retrieval: retrieval,
		queueName: queueName,
	}
}

func (w *EmbedWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume embed queue failed: %w", err)
	}

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
					return
				}

				var job rabbitmq.EmbedJob
				if err := json.Unmarshal(d.Body, &job); err != nil {
					log.Printf("worker decode embed job failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.retrieval.EmbedDocument(workerCtx, job.DocumentID); err != nil {
					log.Printf("worker embed document %d failed: %v", job.DocumentID, err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *EmbedWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
