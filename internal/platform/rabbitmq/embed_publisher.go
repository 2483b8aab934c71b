package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EmbedJob asks the embed worker to vectorize a document's chunks.
type EmbedJob struct {
	DocumentID uint `json:"document_id"`
	UserID     uint `json:"user_id"`
}

// EmbedPublisher enqueues embed jobs on a durable queue.
type EmbedPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewEmbedPublisher(conn *amqp.Connection, queueName string) *EmbedPublisher {
	return &EmbedPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

// PublishDocument enqueues one embed job for the document.
func (p *EmbedPublisher) PublishDocument(ctx context.Context, documentID, userID uint) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	_, err = ch.QueueDeclare(
		p.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare embed queue failed: %w", err)
	}

	payload, err := json.Marshal(EmbedJob{DocumentID: documentID, UserID: userID})
	if err != nil {
		return fmt.Errorf("marshal embed job failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish embed job failed: %w", err)
	}
	return nil
}
