package mq

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitMQ fans referral events out across server instances so websocket
// subscribers on any instance see edges recorded on another.
type RabbitMQ struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	q    amqp.Queue
	out  chan ReferralEvent
	done chan struct{}
	once sync.Once
}

func NewRabbitMQ(url, queue string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	_ = ch.Confirm(false)
	q, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	r := &RabbitMQ{
		conn: conn,
		ch:   ch,
		q:    q,
		out:  make(chan ReferralEvent, 1024),
		done: make(chan struct{}),
	}
	go r.consume()
	return r, nil
}

func (r *RabbitMQ) Publish(evt ReferralEvent) error {
	b, _ := json.Marshal(evt)
	return r.ch.PublishWithContext(context.Background(), "", r.q.Name, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		ContentType:  "application/json",
		Body:         b,
	})
}

// consume is the only sender on r.out and therefore the one that closes it.
func (r *RabbitMQ) consume() {
	defer close(r.out)
	msgs, err := r.ch.Consume(r.q.Name, "", false, false, false, false, nil)
	if err != nil {
		return
	}
	for m := range msgs {
		var evt ReferralEvent
		if json.Unmarshal(m.Body, &evt) != nil {
			_ = m.Nack(false, false)
			continue
		}
		select {
		case r.out <- evt:
			_ = m.Ack(false)
		case <-r.done:
			_ = m.Nack(false, true)
			return
		}
	}
}

func (r *RabbitMQ) Subscribe() <-chan ReferralEvent { return r.out }

func (r *RabbitMQ) Close() error {
	var err error
	r.once.Do(func() {
		close(r.done)
		if r.ch != nil {
			_ = r.ch.Close()
		}
		if r.conn != nil {
			err = r.conn.Close()
		}
	})
	return err
}
