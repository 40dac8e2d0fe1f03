// Package queue forwards domain events from the in-process bus to a RabbitMQ
// topic exchange. Routing keys are event types ("device.revoked", ...), so
// consumers bind with patterns such as "device.*".
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"caregiver-hub/internal/event"
)

type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Dialer opens a publisher and returns a func that releases it.
type Dialer func(ctx context.Context) (Publisher, func(), error)

// AMQPDialer dials url and declares exchange as a durable topic exchange.
func AMQPDialer(url string, exchange string) Dialer {
	return func(ctx context.Context) (Publisher, func(), error) {
		conn, err := amqp.DialConfig(url, amqp.Config{
			Heartbeat: 10 * time.Second,
			Locale:    "en_US",
			Properties: amqp.Table{
				"connection_name": "caregiver-hub",
			},
		})
		if err != nil {
			return nil, nil, fmt.Errorf("dial broker: %w", err)
		}

		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("open channel: %w", err)
		}

		if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, nil, fmt.Errorf("declare exchange %q: %w", exchange, err)
		}

		release := func() {
			_ = ch.Close()
			_ = conn.Close()
		}
		return ch, release, nil
	}
}

type Forwarder struct {
	exchange       string
	dial           Dialer
	minBackoff     time.Duration
	maxBackoff     time.Duration
	publishTimeout time.Duration
	wait           func(ctx context.Context, d time.Duration) bool
}

func NewForwarder(exchange string, dial Dialer) *Forwarder {
	return &Forwarder{
		exchange:       exchange,
		dial:           dial,
		minBackoff:     time.Second,
		maxBackoff:     30 * time.Second,
		publishTimeout: 5 * time.Second,
		wait:           sleep,
	}
}

// Run publishes every event received on events until ctx is cancelled or the
// channel closes. Failed dials and failed publishes are both retried with
// exponential backoff that resets after a delivery. The bus drops events for a
// stalled subscriber rather than blocking request handlers.
func (f *Forwarder) Run(ctx context.Context, events <-chan event.Event) {
	var (
		pub     Publisher
		release func()
	)
	defer func() {
		if release != nil {
			release()
		}
	}()

	backoff := f.minBackoff
	for {
		var e event.Event
		select {
		case <-ctx.Done():
			return
		case next, ok := <-events:
			if !ok {
				return
			}
			e = next
		}

		key, msg, err := Message(e)
		if err != nil {
			slog.Error("event not forwarded", "event_type", e.Type, "error", err)
			continue
		}

		for {
			if pub == nil {
				p, r, err := f.dial(ctx)
				if err != nil {
					slog.Warn("amqp connect failed", "error", err, "retry_in", backoff)
					if !f.wait(ctx, backoff) {
						return
					}
					backoff = min(backoff*2, f.maxBackoff)
					continue
				}
				pub, release = p, r
				slog.Info("amqp forwarder connected", "exchange", f.exchange)
			}

			pubCtx, cancel := context.WithTimeout(ctx, f.publishTimeout)
			err := pub.PublishWithContext(pubCtx, f.exchange, key, false, false, msg)
			cancel()
			if err == nil {
				backoff = f.minBackoff
				break
			}

			slog.Warn("amqp publish failed, reconnecting", "event_type", e.Type, "error", err, "retry_in", backoff)
			release()
			pub, release = nil, nil
			if !f.wait(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, f.maxBackoff)
		}
	}
}

// Message renders e as a persistent JSON publishing routed by its type.
func Message(e event.Event) (string, amqp.Publishing, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return "", amqp.Publishing{}, fmt.Errorf("marshal event: %w", err)
	}

	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		ts = time.Now().UTC()
	}

	return string(e.Type), amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID,
		Type:         string(e.Type),
		Timestamp:    ts,
		AppId:        "caregiver-hub",
		Body:         body,
	}, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
